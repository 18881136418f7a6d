// Package provider は、外部画像生成サービスをエンジンの APIClient へ正規化する
// アダプター層です。Gemini と ByteDance(Ark) Seedream の2系統を提供します。
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shouni/gemini-image-kit/pkg/adapters"
	"github.com/shouni/go-ai-client/v2/pkg/ai/gemini"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"google.golang.org/genai"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/engine"
)

// Gemini画像生成の1枚あたりの概算コスト（USD）です。
// APIは課金額を返さないため、結果にはこの定数を記録します。
const geminiImageCost = 0.039

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

// GeminiClient は Gemini を使った engine.APIClient の実装です。
// 生成した画像バイト列は OutputWriter 経由で保存し、保存先をURLとして返します。
type GeminiClient struct {
	imgCore    adapters.ImageGeneratorCore
	aiClient   gemini.GenerativeModel
	writer     remoteio.OutputWriter
	imageModel string
	textModel  string
	outputDir  string
}

// NewGeminiClient は依存関係を注入して GeminiClient を初期化します。
func NewGeminiClient(
	imgCore adapters.ImageGeneratorCore,
	aiClient gemini.GenerativeModel,
	writer remoteio.OutputWriter,
	imageModel, textModel, outputDir string,
) (*GeminiClient, error) {
	if imgCore == nil {
		return nil, fmt.Errorf("imgCore (ImageGeneratorCore) は必須です")
	}
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient (gemini.GenerativeModel) は必須です")
	}
	if writer == nil {
		return nil, fmt.Errorf("writer (OutputWriter) は必須です")
	}
	return &GeminiClient{
		imgCore:    imgCore,
		aiClient:   aiClient,
		writer:     writer,
		imageModel: imageModel,
		textModel:  textModel,
		outputDir:  outputDir,
	}, nil
}

// GenerateImage は1枚の画像を生成して保存し、正規化済みの出力を返します。
func (c *GeminiClient) GenerateImage(ctx context.Context, input engine.GenerateImageInput) (*engine.GenerateImageOutput, error) {
	started := time.Now()

	prompt := input.Prompt
	if input.NegativePrompt != "" {
		prompt += "\n\nAvoid: " + input.NegativePrompt
	}

	parts := []*genai.Part{{Text: prompt}}
	if input.ReferenceImage != "" {
		// ダウンロード失敗時は nil が返り、テキストのみで続行する
		if imgPart := c.imgCore.PrepareImagePart(ctx, input.ReferenceImage); imgPart != nil {
			parts = append(parts, imgPart)
		}
	}

	opts := gemini.ImageOptions{
		AspectRatio: string(input.AspectRatio),
		Seed:        seedToPtrInt32(input.Seed),
	}

	resp, err := c.aiClient.GenerateWithParts(ctx, c.imageModel, parts, opts)
	if err != nil {
		return nil, fmt.Errorf("Gemini画像生成エラー: %w", err)
	}

	out, err := c.imgCore.ParseToResponse(resp, dereferenceSeed(input.Seed))
	if err != nil {
		return nil, fmt.Errorf("Gemini応答の解析に失敗しました: %w", err)
	}

	savePath := path.Join(c.outputDir, imageFileName(input.FrameID, out.MimeType))
	if err := c.writer.Write(ctx, savePath, bytes.NewReader(out.Data), out.MimeType); err != nil {
		return nil, fmt.Errorf("生成画像の保存に失敗しました (path: %s): %w", savePath, err)
	}

	return &engine.GenerateImageOutput{
		ImageURL:       toResultURL(savePath),
		GenerationID:   uuid.NewString(),
		Seed:           out.UsedSeed,
		ProcessingTime: time.Since(started).Seconds(),
		Cost:           geminiImageCost,
	}, nil
}

// EnhancePrompt はテキストモデルでプロンプトを書き直します。
// モデルが空応答を返した場合は決定論的なローカル合成へ切り替えます。
func (c *GeminiClient) EnhancePrompt(ctx context.Context, prompt, style string, refs []domain.ConsistencyReference) (string, error) {
	instruction := buildEnhanceInstruction(prompt, style, refs)

	resp, err := c.aiClient.GenerateContent(ctx, instruction, c.textModel)
	if err != nil {
		return "", fmt.Errorf("プロンプト強化に失敗しました: %w", err)
	}

	enhanced := strings.TrimSpace(resp.Text)
	if enhanced == "" {
		return ComposeEnhancedPrompt(prompt, style, refs), nil
	}
	return enhanced, nil
}

// ExtractConsistencyData は生成済み画像をビジョン解析し、スタイル情報を抽出します。
func (c *GeminiClient) ExtractConsistencyData(ctx context.Context, imageURL string) (*domain.ConsistencyData, error) {
	imgPart := c.imgCore.PrepareImagePart(ctx, imageURL)
	if imgPart == nil {
		return nil, fmt.Errorf("解析対象の画像を取得できませんでした (url: %s)", imageURL)
	}

	parts := []*genai.Part{
		{Text: consistencyExtractionInstruction},
		imgPart,
	}

	resp, err := c.aiClient.GenerateWithParts(ctx, c.textModel, parts, gemini.ImageOptions{})
	if err != nil {
		return nil, fmt.Errorf("一貫性データの抽出に失敗しました: %w", err)
	}

	raw, err := extractResponseText(resp)
	if err != nil {
		return nil, err
	}
	return parseConsistencyJSON(raw)
}

const consistencyExtractionInstruction = `この画像の視覚的特徴を解析し、次のJSONだけを返してください:
{"style_fingerprint": "画風の短い記述", "color_palette": ["主要な色", "..."], "lighting_profile": "照明の記述", "composition_style": "構図の記述"}`

// extractResponseText は応答からテキスト本文を取り出します。
func extractResponseText(resp *gemini.Response) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("Geminiからの応答が空です")
	}
	if text := strings.TrimSpace(resp.Text); text != "" {
		return text, nil
	}
	if resp.RawResponse != nil {
		for _, cand := range resp.RawResponse.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					return part.Text, nil
				}
			}
		}
	}
	return "", fmt.Errorf("Gemini応答にテキストが含まれていません")
}

// parseConsistencyJSON は応答テキストからJSONブロックを抽出してデコードします。
func parseConsistencyJSON(raw string) (*domain.ConsistencyData, error) {
	raw = strings.TrimSpace(raw)
	var rawJSON string

	matches := jsonBlockRegex.FindStringSubmatch(raw)
	if len(matches) > 1 {
		rawJSON = matches[1]
	} else if first, last := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); first != -1 && last > first {
		rawJSON = raw[first : last+1]
	} else {
		rawJSON = raw
	}

	var data domain.ConsistencyData
	if err := json.Unmarshal([]byte(rawJSON), &data); err != nil {
		return nil, fmt.Errorf("一貫性データJSONの解析に失敗しました (応答抜粋: %q): %w", truncateString(raw, 200), err)
	}
	return &data, nil
}

func buildEnhanceInstruction(prompt, style string, refs []domain.ConsistencyReference) string {
	var b strings.Builder
	b.WriteString("次のシーン説明を、画像生成モデル向けの英語プロンプト1行に書き直してください。装飾や説明は不要です。\n\n")
	b.WriteString("シーン: " + prompt + "\n")
	if style != "" {
		b.WriteString("画風: " + style + "\n")
	}
	if features := referenceFeatures(refs); len(features) > 0 {
		b.WriteString("維持すべき視覚的特徴: " + strings.Join(features, ", ") + "\n")
	}
	return b.String()
}

// ComposeEnhancedPrompt は外部呼び出しなしでプロンプトを決定論的に合成します。
// リファレンスは重みの降順（同値は元の順序）で反映されます。
func ComposeEnhancedPrompt(prompt, style string, refs []domain.ConsistencyReference) string {
	segments := []string{prompt}
	if features := referenceFeatures(refs); len(features) > 0 {
		segments = append(segments, features...)
	}
	if style != "" {
		segments = append(segments, style)
	}
	return strings.Join(segments, ", ")
}

// referenceFeatures はリファレンスの特徴キーワードを重み降順で重複なく集めます。
func referenceFeatures(refs []domain.ConsistencyReference) []string {
	ordered := make([]domain.ConsistencyReference, len(refs))
	copy(ordered, refs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Weight > ordered[j].Weight })

	seen := make(map[string]bool)
	var features []string
	for _, ref := range ordered {
		for _, f := range ref.KeyFeatures {
			f = strings.TrimSpace(f)
			if f == "" || seen[strings.ToLower(f)] {
				continue
			}
			seen[strings.ToLower(f)] = true
			features = append(features, f)
		}
	}
	return features
}

func imageFileName(frameID, mimeType string) string {
	ext := ".png"
	switch mimeType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	if frameID == "" {
		frameID = uuid.NewString()
	}
	return frameID + ext
}

// toResultURL は保存パスを構文的に有効なURLへ変換します。
// gs:// や http(s):// はそのまま、ローカルパスは file:// を付与します。
func toResultURL(savePath string) string {
	if strings.Contains(savePath, "://") {
		return savePath
	}
	if strings.HasPrefix(savePath, "/") {
		return "file://" + savePath
	}
	return "file:///" + savePath
}

// seedToPtrInt32 はドメインの *int64 を Gemini SDK 用の *int32 に変換します。
// int32 の範囲を超える値は切り捨てますが、シードの再現性としては期待どおりです。
func seedToPtrInt32(seed *int64) *int32 {
	if seed == nil {
		return nil
	}
	val := int32(*seed)
	return &val
}

func dereferenceSeed(seed *int64) int64 {
	if seed == nil {
		return 0
	}
	return *seed
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
