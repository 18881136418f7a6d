// Package contract は、外部境界（プロバイダー応答・クライアント要求・保存データ）の
// スキーマ検証を担う腐敗防止層です。検証を通過したデータだけがドメインロジックに届きます。
package contract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldIssue はスキーマ違反1件分の詳細です。
type FieldIssue struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationError は境界での契約違反を表す型付きエラーです。
// 対象エンティティ名、違反の一覧、そして元の不正ペイロードを保持します。
// 暗黙の型変換や補正は一切行いません。
type ValidationError struct {
	Entity  string
	Issues  []FieldIssue
	Payload any
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("%s の検証に失敗しました", e.Entity)
	}
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.Message)
	}
	return fmt.Sprintf("%s の検証に失敗しました: %s", e.Entity, strings.Join(msgs, "; "))
}

// AsValidationError は err が ValidationError かどうかを判定して取り出します。
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	return ve, ok
}

// newValidationError は validator の結果を ValidationError へ変換します。
func newValidationError(entity string, payload any, err error) *ValidationError {
	ve := &ValidationError{Entity: entity, Payload: payload}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			ve.Issues = append(ve.Issues, FieldIssue{
				Field:   fe.Namespace(),
				Tag:     fe.Tag(),
				Message: fmt.Sprintf("フィールド %s が制約 %q を満たしていません", fe.Namespace(), fe.Tag()),
				Value:   fe.Value(),
			})
		}
		return ve
	}

	ve.Issues = append(ve.Issues, FieldIssue{Message: err.Error()})
	return ve
}
