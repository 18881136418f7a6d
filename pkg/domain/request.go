package domain

import (
	"crypto/sha256"
	"encoding/binary"
)

// Priority はバッチ内でのフレームの優先度です。
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Rank は優先度の並べ替え用の序列を返します。数値が大きいほど先に処理されます。
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// FrameRequest は1フレーム分の画像生成要求です。
// バッチへ投入した後は変更せず、エンジン側も入力をその場で書き換えません。
// バッチ内では SceneID が一意なキーになります。
type FrameRequest struct {
	SceneID           string                 `json:"scene_id" validate:"required"`
	SceneDescription  string                 `json:"scene_description" validate:"required,max=2000"`
	AdditionalPrompt  string                 `json:"additional_prompt,omitempty" validate:"max=500"`
	ConfigOverride    *ImageGenerationConfig `json:"config_override,omitempty"`
	ConsistencyRefs   []ConsistencyReference `json:"consistency_refs,omitempty" validate:"max=5,dive"`
	ReferenceImageURL string                 `json:"reference_image_url,omitempty" validate:"omitempty,url"`
	Priority          Priority               `json:"priority,omitempty" validate:"omitempty,oneof=low normal high"`
}

// PromptEngineering はユーザー意図 (BasePrompt) と、一貫性・スタイル補強後の
// モデル投入用テキスト (EnhancedPrompt) を保持します。
// EnhancedPrompt は BasePrompt から派生し、意味的な内容が減ることはありません。
type PromptEngineering struct {
	BasePrompt     string   `json:"base_prompt"`
	EnhancedPrompt string   `json:"enhanced_prompt"`
	StyleModifiers []string `json:"style_modifiers,omitempty"`
	TechnicalSpecs []string `json:"technical_specs,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	TokenCount     *int     `json:"token_count,omitempty"`
}

// SeedFromSceneID はシーンIDから決定論的なシード値を生成します。
// 明示的なシード指定がない場合でも、同じシーンなら同じシードが使われます。
func SeedFromSceneID(sceneID string) int64 {
	hash := sha256.Sum256([]byte(sceneID))
	seed := int32(binary.BigEndian.Uint32(hash[:4]))
	// シード値は正の数が望ましいため、最上位ビットを落とします
	return int64(seed & 0x7FFFFFFF)
}
