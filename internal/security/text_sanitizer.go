package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はユーザー由来・外部由来のプレーンテキストを無害化するインターフェース。
// OAuthの表示名、インク消費理由、カタログのタイトル等に使用される。
type TextSanitizerService interface {
	// Clean はHTMLタグを全て除去し、空白を正規化した上でmaxRunes文字に切り詰める。
	// maxRunesが0以下の場合は切り詰めない。
	Clean(raw string, maxRunes int) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyは並行利用してよい。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はタグを除去したプレーンテキストを返す。
// StrictPolicyがエスケープした実体参照は元の文字に戻す（出力先はJSONでありHTMLではない）。
func (s *textSanitizer) Clean(raw string, maxRunes int) string {
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned := strings.Join(strings.Fields(stripped), " ")

	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:maxRunes]))
	}
	return cleaned
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
