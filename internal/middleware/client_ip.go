package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientIPResolver はレート制限などのセキュリティ判定に使うクライアントIPを決定する。
// 転送ヘッダーは直前の接続元が信頼済みプロキシの範囲内にある場合のみ参照する。
type ClientIPResolver struct {
	trustedProxies []*net.IPNet
}

// NewClientIPResolver は信頼済みプロキシのCIDR（または単一IP）からClientIPResolverを生成する。
// 空要素は無視する。解釈できない値が含まれる場合はエラーを返す。
func NewClientIPResolver(trustedProxyCIDRs []string) (*ClientIPResolver, error) {
	resolver := &ClientIPResolver{}

	for _, raw := range trustedProxyCIDRs {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}

		if ip := net.ParseIP(value); ip != nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			resolver.trustedProxies = append(resolver.trustedProxies, &net.IPNet{
				IP:   ip,
				Mask: net.CIDRMask(bits, bits),
			})
			continue
		}

		_, network, err := net.ParseCIDR(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", value, err)
		}
		resolver.trustedProxies = append(resolver.trustedProxies, network)
	}

	return resolver, nil
}

// Resolve はリクエストのクライアントIPを返す。
// 接続元が信頼済みプロキシならX-Forwarded-Forの先頭、次いでX-Real-IPを使い、
// それ以外はTCP接続元のIPを返す。接続元が解釈できない場合は"unknown"。
func (r *ClientIPResolver) Resolve(req *http.Request) string {
	peer := parseRemoteAddr(req.RemoteAddr)
	if peer == nil {
		return "unknown"
	}

	if r != nil && r.trusted(peer) {
		if forwarded := firstForwardedFor(req.Header.Get("X-Forwarded-For")); forwarded != nil {
			return forwarded.String()
		}
		if realIP := parseHeaderIP(req.Header.Get("X-Real-IP")); realIP != nil {
			return realIP.String()
		}
	}

	return peer.String()
}

// KeyFunc はhttprate.WithKeyFuncsに渡すキー関数を返す。
func (r *ClientIPResolver) KeyFunc() func(req *http.Request) (string, error) {
	return func(req *http.Request) (string, error) {
		return r.Resolve(req), nil
	}
}

func (r *ClientIPResolver) trusted(ip net.IP) bool {
	for _, network := range r.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func firstForwardedFor(header string) net.IP {
	if header == "" {
		return nil
	}
	for _, part := range strings.Split(header, ",") {
		if ip := parseHeaderIP(part); ip != nil {
			return ip
		}
	}
	return nil
}

func parseRemoteAddr(remoteAddr string) net.IP {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return parseHeaderIP(host)
	}
	return parseHeaderIP(remoteAddr)
}

// parseHeaderIP は"1.2.3.4"、"1.2.3.4:80"、"[::1]:80"や引用符付きの値を解釈する。
func parseHeaderIP(value string) net.IP {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" {
		return nil
	}
	if ip := net.ParseIP(value); ip != nil {
		return ip
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		return net.ParseIP(strings.Trim(host, "[]"))
	}
	return nil
}
