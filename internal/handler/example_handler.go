package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/inkstudio/internal/catalog"
	"github.com/hitoshi/inkstudio/internal/model"
)

// ExampleServiceInterface はサンプルハンドラーが必要とするサービスインターフェース。
type ExampleServiceInterface interface {
	List(ctx context.Context, filter model.ExampleFilter) (*catalog.ListResult, error)
	Random(ctx context.Context, count int) ([]*model.Example, error)
	Featured(ctx context.Context) ([]*model.Example, error)
	RecordView(ctx context.Context, id string) (int, error)
}

// ExampleHandler はサンプル画像ギャラリーのHTTPハンドラー。
type ExampleHandler struct {
	service ExampleServiceInterface
}

// NewExampleHandler はExampleHandlerを生成する。
func NewExampleHandler(service ExampleServiceInterface) *ExampleHandler {
	return &ExampleHandler{service: service}
}

type examplesResponse struct {
	Examples []*model.Example `json:"examples"`
}

type viewResponse struct {
	Success bool `json:"success"`
	Views   int  `json:"views"`
}

// List はサンプル一覧を返す。
// GET /api/examples?limit=&offset=&style=
func (h *ExampleHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fields := map[string]string{}

	limit, ok := parseIntParam(q.Get("limit"))
	if !ok {
		fields["limit"] = "must be an integer"
	}
	offset, ok := parseIntParam(q.Get("offset"))
	if !ok {
		fields["offset"] = "must be an integer"
	}
	if len(fields) > 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(fields))
		return
	}

	result, err := h.service.List(r.Context(), model.ExampleFilter{
		Style:  q.Get("style"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result.Examples = nonNil(result.Examples)
	writeJSON(w, http.StatusOK, result)
}

// Random は無作為に選んだサンプルを返す。
// GET /api/examples/random?count=
func (h *ExampleHandler) Random(w http.ResponseWriter, r *http.Request) {
	count, ok := parseIntParam(r.URL.Query().Get("count"))
	if !ok {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(map[string]string{
			"count": "must be an integer",
		}))
		return
	}

	examples, err := h.service.Random(r.Context(), count)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, examplesResponse{Examples: nonNil(examples)})
}

// Featured はおすすめのサンプルを返す。
// GET /api/examples/featured
func (h *ExampleHandler) Featured(w http.ResponseWriter, r *http.Request) {
	examples, err := h.service.Featured(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, examplesResponse{Examples: nonNil(examples)})
}

// RecordView は閲覧数を加算する。
// POST /api/examples/{id}/view
func (h *ExampleHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.RecordView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, viewResponse{Success: true, Views: views})
}

// parseIntParam はクエリパラメータを整数に変換する。空文字列は0として扱う。
func parseIntParam(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// nonNil は空の結果をJSONのnullではなく空配列として返すために使う。
func nonNil(examples []*model.Example) []*model.Example {
	if examples == nil {
		return []*model.Example{}
	}
	return examples
}
