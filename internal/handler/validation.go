package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/inkstudio/internal/middleware"
	"github.com/hitoshi/inkstudio/internal/model"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// エラー詳細のキーをJSONフィールド名に揃える
	requestValidator.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// decodeAndValidate はJSONボディをdstにデコードし、validateタグで検証する。
// 未知のフィールドや後続データを含むボディ、上限を超えるボディは拒否する。
func decodeAndValidate(body io.Reader, dst any) *model.APIError {
	data, err := io.ReadAll(io.LimitReader(body, middleware.MaxJSONBodyBytes+1))
	if err != nil {
		return model.NewValidationError(map[string]string{"body": "invalid JSON body"})
	}
	if len(data) > middleware.MaxJSONBodyBytes {
		return model.NewValidationError(map[string]string{"body": "request body too large"})
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return model.NewValidationError(map[string]string{"body": "invalid JSON body"})
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return model.NewValidationError(map[string]string{"body": "invalid JSON body"})
	}

	if err := requestValidator.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			fields := make(map[string]string, len(validationErrors))
			for _, fe := range validationErrors {
				fields[fe.Field()] = describeFieldError(fe)
			}
			return model.NewValidationError(fields)
		}
		return model.NewValidationError(map[string]string{"body": "invalid request payload"})
	}

	return nil
}

// describeFieldError はバリデーション違反を短い英文に変換する。
func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "len":
		return "must be " + fe.Param() + " characters"
	case "numeric":
		return "must contain only digits"
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "url", "http_url":
		return "must be a valid URL"
	default:
		return "is invalid"
	}
}
