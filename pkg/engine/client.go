// Package engine は、外部画像生成APIに対して逐次（一貫性優先）または
// 並列（速度優先）のバッチ生成を駆動するエンジンを提供します。
package engine

import (
	"context"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// GenerateImageInput は画像生成ケイパビリティへの1回分の入力です。
// Width/Height はアスペクト比から解決済みの値で、比率文字列も併せて渡します。
type GenerateImageInput struct {
	FrameID        string
	Prompt         string
	NegativePrompt string
	Style          string
	AspectRatio    domain.AspectRatio
	Width          int
	Height         int
	ReferenceImage string
	Seed           *int64
	Steps          *int
	GuidanceScale  *float64
}

// GenerateImageOutput は画像生成ケイパビリティからの正規化済み出力です。
type GenerateImageOutput struct {
	ImageURL       string
	ThumbnailURL   string
	GenerationID   string
	Seed           int64
	ProcessingTime float64 // 秒
	Cost           float64
}

// APIClient は外部画像生成プロバイダーへの注入ケイパビリティです。
// 3メソッドともブロッキングであり、いずれも失敗し得ます。
type APIClient interface {
	// GenerateImage は1枚の画像を生成します。
	GenerateImage(ctx context.Context, input GenerateImageInput) (*GenerateImageOutput, error)
	// EnhancePrompt はアクティブな一貫性リファレンスを織り込んだ強化プロンプトを返します。
	EnhancePrompt(ctx context.Context, prompt, style string, refs []domain.ConsistencyReference) (string, error)
	// ExtractConsistencyData は生成済み画像からスタイル指紋などを抽出します。
	ExtractConsistencyData(ctx context.Context, imageURL string) (*domain.ConsistencyData, error)
}

// Callbacks は生成の進行を呼び出し側へ通知するためのフック群です。
// いずれも nil のままで構いません。ステージ境界で同期的に呼ばれます。
type Callbacks struct {
	OnProgress func(frameID string, progress float64, stage string)
	OnComplete func(frameID string, result domain.GenerationResult)
	OnError    func(frameID string, err error)
}

func (c Callbacks) progress(frameID string, progress float64, stage string) {
	if c.OnProgress != nil {
		c.OnProgress(frameID, progress, stage)
	}
}

func (c Callbacks) complete(frameID string, result domain.GenerationResult) {
	if c.OnComplete != nil {
		c.OnComplete(frameID, result)
	}
}

func (c Callbacks) fail(frameID string, err error) {
	if c.OnError != nil {
		c.OnError(frameID, err)
	}
}
