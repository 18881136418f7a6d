package contract

import (
	"encoding/json"
)

// StoryStep はAIが生成するストーリー構成案の1ステップです。
type StoryStep struct {
	StepNumber  int    `json:"step_number" validate:"required,gte=1"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// StoryResponse はAIのストーリー生成応答です。
type StoryResponse struct {
	Steps []StoryStep `json:"steps" validate:"required,min=1,dive"`
}

// StoryParseOption は ParseStoryResponse の挙動を調整します。
type StoryParseOption func(*storyParseOptions)

type storyParseOptions struct {
	fallbackOnError bool
}

// WithFallbackStory は、応答が不正だった場合に固定の4ステップ構成案へ
// フォールバックさせます。UX上の意図的な劣化運転であり、呼び出し側が
// 明示的に選んだ場合にのみ有効です。既定では ValidationError を返します。
func WithFallbackStory() StoryParseOption {
	return func(o *storyParseOptions) {
		o.fallbackOnError = true
	}
}

// ParseStoryResponse はAIのストーリー生成応答をスキーマ検証込みでパースします。
func ParseStoryResponse(raw []byte, opts ...StoryParseOption) ([]StoryStep, error) {
	var options storyParseOptions
	for _, opt := range opts {
		opt(&options)
	}

	var resp StoryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		if options.fallbackOnError {
			return FallbackStorySteps(), nil
		}
		return nil, &ValidationError{
			Entity:  "StoryResponse",
			Payload: string(raw),
			Issues:  []FieldIssue{{Message: "JSONのデコードに失敗しました: " + err.Error()}},
		}
	}

	if err := validatorInstance().Struct(resp); err != nil {
		if options.fallbackOnError {
			return FallbackStorySteps(), nil
		}
		return nil, newValidationError("StoryResponse", string(raw), err)
	}

	return resp.Steps, nil
}

// FallbackStorySteps は劣化運転用の決定論的な4ステップ構成案を返します。
func FallbackStorySteps() []StoryStep {
	return []StoryStep{
		{StepNumber: 1, Title: "導入", Description: "主題と舞台を提示するオープニングシーン"},
		{StepNumber: 2, Title: "展開", Description: "中心となる出来事や課題を描くシーン"},
		{StepNumber: 3, Title: "転換", Description: "状況が変化する山場のシーン"},
		{StepNumber: 4, Title: "結末", Description: "主題を回収して締めくくるクロージングシーン"},
	}
}
