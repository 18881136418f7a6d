// Package consistency は、生成済みフレームから色・画風・照明・構図の指紋を抽出し、
// 後続フレームのプロンプトを視覚的な連続性へ寄せるためのマネージャーを提供します。
package consistency

import (
	"context"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// Extractor は画像解析ケイパビリティのインターフェースです。
// 実装は外部の解析APIへ委譲され、いずれのメソッドも失敗し得ます。
type Extractor interface {
	// AnalyzeColors は画像の色彩パレットを解析します。
	AnalyzeColors(ctx context.Context, imageURL string) (*domain.ColorPaletteAnalysis, error)
	// AnalyzeStyle は画像の画風・照明・構図の属性を解析します。
	AnalyzeStyle(ctx context.Context, imageURL string) (*domain.StyleAnalysis, error)
	// ExtractVisualFingerprint は画像の視覚的指紋（不透明な記述子）を抽出します。
	ExtractVisualFingerprint(ctx context.Context, imageURL string) (string, error)
}
