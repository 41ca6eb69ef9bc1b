package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// otpCodeSpace は6桁コードの取り得る値の数。
var otpCodeSpace = big.NewInt(1_000_000)

// generateOTPCode はcrypto/randで0埋め6桁の数字コードを生成する。
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpCodeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// generateSessionToken は暗号的に安全な256bitのセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// generateState はOAuthのstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NormalizeEmail は前後の空白を除去し小文字化する。
// レート制限のキーとDB検索の両方で同じ正規化を使う。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
