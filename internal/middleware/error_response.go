package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/inkstudio/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 成功レスポンスと同じくsuccessフィールドを持ち、原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Success  bool           `json:"success"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Category string         `json:"category"`
	Action   string         `json:"action"`
	Details  map[string]any `json:"details,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Success:  false,
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Details:  apiErr.Details,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
