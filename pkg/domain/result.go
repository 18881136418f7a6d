package domain

import (
	"fmt"
	"net/url"
	"time"
)

// GenerationResult は1回の生成成功の記録です。
// 構築後は書き換えず、フレームごとの履歴リストへ追記だけしていきます。
type GenerationResult struct {
	ImageURL       string                `json:"image_url"`
	ThumbnailURL   string                `json:"thumbnail_url"`
	GenerationID   string                `json:"generation_id"`
	Model          ImageModel            `json:"model"`
	Config         ImageGenerationConfig `json:"config"`
	Prompt         string                `json:"prompt"`
	CreatedAt      time.Time             `json:"created_at"`
	ProcessingTime float64               `json:"processing_time"` // 秒
	Cost           float64               `json:"cost"`
}

// NewGenerationResult は構築時に不変条件を検証して GenerationResult を生成します。
// ImageURL は必ず構文的に有効な URL でなければなりません。
// ThumbnailURL が空の場合は ImageURL から導出（同一値）します。
func NewGenerationResult(imageURL, thumbnailURL, generationID string, model ImageModel, cfg ImageGenerationConfig, prompt string, processingTime, cost float64) (GenerationResult, error) {
	if _, err := url.ParseRequestURI(imageURL); err != nil {
		return GenerationResult{}, fmt.Errorf("生成結果の画像URLが不正です (%q): %w", imageURL, err)
	}
	if generationID == "" {
		return GenerationResult{}, fmt.Errorf("生成IDが空です")
	}
	if thumbnailURL == "" {
		thumbnailURL = imageURL
	}
	return GenerationResult{
		ImageURL:       imageURL,
		ThumbnailURL:   thumbnailURL,
		GenerationID:   generationID,
		Model:          model,
		Config:         cfg,
		Prompt:         prompt,
		CreatedAt:      time.Now().UTC(),
		ProcessingTime: processingTime,
		Cost:           cost,
	}, nil
}
