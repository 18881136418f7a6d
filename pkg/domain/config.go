package domain

// ImageModel はサポートする画像生成プロバイダーのモデル識別子です。
type ImageModel string

const (
	ModelGeminiImage     ImageModel = "gemini-3-pro-image-preview"
	ModelGeminiImageFast ImageModel = "gemini-3-flash-image-preview"
	ModelSeedream        ImageModel = "seedream-4-0"
)

// AspectRatio は生成画像の縦横比です。
type AspectRatio string

const (
	AspectRatio16x9 AspectRatio = "16:9"
	AspectRatio9x16 AspectRatio = "9:16"
	AspectRatio1x1  AspectRatio = "1:1"
	AspectRatio4x3  AspectRatio = "4:3"
	AspectRatio3x4  AspectRatio = "3:4"
)

// Quality は生成品質のティアです。
type Quality string

const (
	QualityDraft    Quality = "draft"
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
)

// 数値パラメータの境界値です。contract 層のバリデーションと共有します。
const (
	MinSteps         = 1
	MaxSteps         = 150
	MinGuidanceScale = 0.0
	MaxGuidanceScale = 30.0
)

// ImageGenerationConfig は1フレーム分の生成設定です。
// 部分的な設定は MergeGenerationConfig でデフォルトに重ねて解決します。
type ImageGenerationConfig struct {
	Model          ImageModel     `json:"model" validate:"required"`
	AspectRatio    AspectRatio    `json:"aspect_ratio" validate:"required"`
	Quality        Quality        `json:"quality" validate:"required,oneof=draft standard high"`
	StylePreset    string         `json:"style_preset,omitempty"`
	Seed           *int64         `json:"seed,omitempty" validate:"omitempty,gte=0"`
	Steps          *int           `json:"steps,omitempty" validate:"omitempty,gte=1,lte=150"`
	GuidanceScale  *float64       `json:"guidance_scale,omitempty" validate:"omitempty,gte=0,lte=30"`
	NegativePrompt string         `json:"negative_prompt,omitempty"`
	CustomParams   map[string]any `json:"custom_params,omitempty"`
}

// DefaultGenerationConfig は推奨されるデフォルト設定を返します。
func DefaultGenerationConfig() ImageGenerationConfig {
	return ImageGenerationConfig{
		Model:       ModelGeminiImage,
		AspectRatio: AspectRatio16x9,
		Quality:     QualityStandard,
	}
}

// MergeGenerationConfig は部分設定 override をベース設定 base に重ねた結果を返します。
// override が nil の場合は base のコピーをそのまま返します。ゼロ値のフィールドは無視します。
func MergeGenerationConfig(base ImageGenerationConfig, override *ImageGenerationConfig) ImageGenerationConfig {
	merged := base
	if override == nil {
		return merged
	}
	if override.Model != "" {
		merged.Model = override.Model
	}
	if override.AspectRatio != "" {
		merged.AspectRatio = override.AspectRatio
	}
	if override.Quality != "" {
		merged.Quality = override.Quality
	}
	if override.StylePreset != "" {
		merged.StylePreset = override.StylePreset
	}
	if override.Seed != nil {
		seed := *override.Seed
		merged.Seed = &seed
	}
	if override.Steps != nil {
		steps := *override.Steps
		merged.Steps = &steps
	}
	if override.GuidanceScale != nil {
		gs := *override.GuidanceScale
		merged.GuidanceScale = &gs
	}
	if override.NegativePrompt != "" {
		merged.NegativePrompt = override.NegativePrompt
	}
	if len(override.CustomParams) > 0 {
		params := make(map[string]any, len(override.CustomParams))
		for k, v := range merged.CustomParams {
			params[k] = v
		}
		for k, v := range override.CustomParams {
			params[k] = v
		}
		merged.CustomParams = params
	}
	return merged
}
