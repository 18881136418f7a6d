package contract

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// ByteDanceImageData はByteDance(Ark)画像生成APIの data 配列の1要素です。
type ByteDanceImageData struct {
	URL          string `json:"url" validate:"required,url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty" validate:"omitempty,url"`
	B64JSON      string `json:"b64_json,omitempty"`
	Size         string `json:"size,omitempty"`
	Seed         int64  `json:"seed,omitempty"`
}

// ByteDanceUsage は課金情報です。
type ByteDanceUsage struct {
	GeneratedImages int     `json:"generated_images"`
	OutputTokens    int     `json:"output_tokens,omitempty"`
	TotalCost       float64 `json:"total_cost,omitempty"`
}

// ByteDanceImageResponse はByteDance(Ark)画像生成APIの応答全体です。
// ProcessingTimeMS はミリ秒で届くため、ドメインでは秒へ変換します。
type ByteDanceImageResponse struct {
	RequestID        string               `json:"request_id"`
	Model            string               `json:"model" validate:"required"`
	Created          int64                `json:"created"`
	Data             []ByteDanceImageData `json:"data" validate:"required,min=1,dive"`
	Usage            *ByteDanceUsage      `json:"usage,omitempty"`
	ProcessingTimeMS int64                `json:"processing_time_ms" validate:"gte=0"`
}

// ParseByteDanceResponse は生のJSONをスキーマ検証込みでパースします。
// スキーマ違反は ValidationError になり、先のレイヤーには届きません。
func ParseByteDanceResponse(raw []byte) (*ByteDanceImageResponse, error) {
	var resp ByteDanceImageResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ValidationError{
			Entity:  "ByteDanceImageResponse",
			Payload: string(raw),
			Issues:  []FieldIssue{{Message: "JSONのデコードに失敗しました: " + err.Error()}},
		}
	}
	if err := validatorInstance().Struct(resp); err != nil {
		return nil, newValidationError("ByteDanceImageResponse", string(raw), err)
	}
	return &resp, nil
}

// GenerationResultFromByteDance は検証済み応答をドメインの GenerationResult へ変換します。
// 処理時間は provider のミリ秒を秒へ変換し、フィールドは欠落なく引き継ぎます。
func GenerationResultFromByteDance(resp *ByteDanceImageResponse, prompt string, cfg domain.ImageGenerationConfig) (domain.GenerationResult, error) {
	first := resp.Data[0]

	generationID := resp.RequestID
	if generationID == "" {
		generationID = uuid.NewString()
	}

	cost := 0.0
	if resp.Usage != nil {
		cost = resp.Usage.TotalCost
	}

	result, err := domain.NewGenerationResult(
		first.URL,
		first.ThumbnailURL,
		generationID,
		domain.ImageModel(resp.Model),
		cfg,
		prompt,
		float64(resp.ProcessingTimeMS)/1000.0,
		cost,
	)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	return result, nil
}
