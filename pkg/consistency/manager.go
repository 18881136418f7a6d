package consistency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-storyboard-kit/pkg/cache"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// ErrMissingGeneratedImage は、結果画像を持たないフレームに対して
// 一貫性抽出を要求した場合のエラーです。
var ErrMissingGeneratedImage = errors.New("フレームに生成済み画像がありません")

// 抽出した4種類のリファレンスの初期重みです。特異性の高い順に並びます。
const (
	weightColor       = 0.8
	weightStyle       = 0.7
	weightLighting    = 0.6
	weightComposition = 0.5
)

// 解析キャッシュの種別キーです。
const (
	cacheTypeColors      = "colors"
	cacheTypeStyle       = "style"
	cacheTypeFingerprint = "fingerprint"
)

// frameAnalyses はフレーム1枚分の解析結果一式です。
type frameAnalyses struct {
	colors      *domain.ColorPaletteAnalysis
	style       *domain.StyleAnalysis
	fingerprint string
}

// Manager はフレーム間の視覚的一貫性シグナルを導出・伝播します。
// 解析結果はフレームIDをキーにキャッシュし、同じフレームを二度解析しません。
type Manager struct {
	extractor Extractor
	analyses  *cache.APICache

	mu   sync.Mutex
	refs map[string][]domain.ConsistencyReference
}

// NewManager は解析ケイパビリティを注入して Manager を生成します。
func NewManager(extractor Extractor, analysisCache *cache.APICache) (*Manager, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor は必須です")
	}
	if analysisCache == nil {
		analysisCache = cache.New(30*time.Minute, time.Hour)
	}
	return &Manager{
		extractor: extractor,
		analyses:  analysisCache,
		refs:      make(map[string][]domain.ConsistencyReference),
	}, nil
}

// ExtractConsistencyFromFrame は生成済みフレームの画像から一貫性リファレンスを合成します。
// 色・画風・視覚指紋の3解析を並行実行し、色 (0.8)・画風 (0.7)・照明 (0.6)・構図 (0.5) の
// 4件のリファレンスを返します。結果はフレームIDをキーに保存されます。
func (m *Manager) ExtractConsistencyFromFrame(ctx context.Context, frame domain.Frame) ([]domain.ConsistencyReference, error) {
	if frame.Result == nil || frame.Result.ImageURL == "" {
		return nil, fmt.Errorf("フレーム %q からの一貫性抽出に失敗しました: %w", frame.ID, ErrMissingGeneratedImage)
	}

	analyses, err := m.ensureAnalyses(ctx, frame.ID, frame.Result.ImageURL)
	if err != nil {
		slog.ErrorContext(ctx, "一貫性抽出に失敗しました", "frame_id", frame.ID, "error", err)
		return nil, fmt.Errorf("フレーム %q の解析に失敗しました: %w", frame.ID, err)
	}

	refs := []domain.ConsistencyReference{
		{
			ID:                frame.ID + "-color",
			Name:              "color palette",
			Type:              domain.ReferenceTypeStyle,
			Weight:            weightColor,
			KeyFeatures:       colorFeatures(analyses.colors),
			ReferenceImageURL: frame.Result.ImageURL,
			IsActive:          true,
		},
		{
			ID:                frame.ID + "-style",
			Name:              "art style",
			Type:              domain.ReferenceTypeStyle,
			Weight:            weightStyle,
			KeyFeatures:       []string{analyses.style.ArtStyle, analyses.fingerprint},
			ReferenceImageURL: frame.Result.ImageURL,
			IsActive:          true,
		},
		{
			ID:          frame.ID + "-lighting",
			Name:        "lighting",
			Type:        domain.ReferenceTypeStyle,
			Weight:      weightLighting,
			KeyFeatures: []string{analyses.style.Lighting, analyses.style.Mood},
			IsActive:    true,
		},
		{
			ID:          frame.ID + "-composition",
			Name:        "composition",
			Type:        domain.ReferenceTypeStyle,
			Weight:      weightComposition,
			KeyFeatures: []string{analyses.style.Composition},
			IsActive:    true,
		},
	}

	m.mu.Lock()
	m.refs[frame.ID] = refs
	m.mu.Unlock()
	return refs, nil
}

// ReferencesForFrame は抽出済みのリファレンスを返します。未抽出なら nil です。
func (m *Manager) ReferencesForFrame(frameID string) []domain.ConsistencyReference {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs[frameID]
}

// CalculateConsistencyScore はフレーム群の視覚的一貫性を採点します。
// 全体で0〜1枚なら自明に 1.0（比較相手がいない）、完了フレームが2枚未満なら
// 0.0 と診断つきで返します。それ以外は色・画風・照明・構図の4次元それぞれで
// 「最頻値の出現率」を計算し、全体は4つの単純平均です。
func (m *Manager) CalculateConsistencyScore(ctx context.Context, frames []domain.Frame) (*domain.ConsistencyScore, error) {
	if len(frames) <= 1 {
		return &domain.ConsistencyScore{
			Overall: 1.0, Color: 1.0, Style: 1.0, Lighting: 1.0, Composition: 1.0,
		}, nil
	}

	completed := make([]domain.Frame, 0, len(frames))
	for _, f := range frames {
		if f.Result != nil && f.Result.ImageURL != "" {
			completed = append(completed, f)
		}
	}
	if len(completed) < 2 {
		return &domain.ConsistencyScore{
			Overall: 0.0,
			Recommendations: []string{
				"一貫性を評価するには、生成済みのフレームが2枚以上必要です",
			},
		}, nil
	}

	colors := make([]string, 0, len(completed))
	styles := make([]string, 0, len(completed))
	lightings := make([]string, 0, len(completed))
	compositions := make([]string, 0, len(completed))
	for _, f := range completed {
		analyses, err := m.ensureAnalyses(ctx, f.ID, f.Result.ImageURL)
		if err != nil {
			slog.ErrorContext(ctx, "一貫性スコアの計算に失敗しました", "frame_id", f.ID, "error", err)
			return nil, fmt.Errorf("フレーム %q の解析に失敗しました: %w", f.ID, err)
		}
		colors = append(colors, analyses.colors.DominantColor)
		styles = append(styles, analyses.style.ArtStyle)
		lightings = append(lightings, analyses.style.Lighting)
		compositions = append(compositions, analyses.style.Composition)
	}

	score := &domain.ConsistencyScore{
		Color:       modeFrequency(colors),
		Style:       modeFrequency(styles),
		Lighting:    modeFrequency(lightings),
		Composition: modeFrequency(compositions),
	}
	score.Overall = (score.Color + score.Style + score.Lighting + score.Composition) / 4.0

	if score.Color < 0.5 {
		score.Recommendations = append(score.Recommendations,
			"色調のばらつきが大きいため、カラーパレットのリファレンスの重みを上げることを検討してください")
	}
	if score.Style < 0.5 {
		score.Recommendations = append(score.Recommendations,
			"画風のばらつきが大きいため、スタイルプリセットの固定を検討してください")
	}
	return score, nil
}

// GenerateConsistencyGuidedPrompt は参照フレーム群の解析から最頻の
// 色・照明・ムード・画風を取り出し、ベースプロンプトの末尾へ付加します。
// 参照フレームがない場合はベースプロンプトをそのまま返します。
func (m *Manager) GenerateConsistencyGuidedPrompt(ctx context.Context, basePrompt string, targetFrame domain.Frame, referenceFrames []domain.Frame) (string, error) {
	if len(referenceFrames) == 0 {
		return basePrompt, nil
	}

	var colors, lightings, moods, styles []string
	for _, f := range referenceFrames {
		if f.Result == nil || f.Result.ImageURL == "" {
			continue
		}
		analyses, err := m.ensureAnalyses(ctx, f.ID, f.Result.ImageURL)
		if err != nil {
			slog.ErrorContext(ctx, "参照フレームの解析に失敗しました", "frame_id", f.ID, "error", err)
			return "", fmt.Errorf("参照フレーム %q の解析に失敗しました: %w", f.ID, err)
		}
		colors = append(colors, analyses.colors.DominantColor)
		lightings = append(lightings, analyses.style.Lighting)
		moods = append(moods, analyses.style.Mood)
		styles = append(styles, analyses.style.ArtStyle)
	}
	if len(colors) == 0 {
		return basePrompt, nil
	}

	var descriptors []string
	for _, v := range []string{mostFrequent(colors), mostFrequent(lightings), mostFrequent(moods), mostFrequent(styles)} {
		if v != "" {
			descriptors = append(descriptors, v)
		}
	}
	if len(descriptors) == 0 {
		return basePrompt, nil
	}
	return basePrompt + ", " + strings.Join(descriptors, ", "), nil
}

// OptimizeConsistencyReferences は重みの合計が targetWeight になるよう正規化し、
// 影響の大きい順（重み降順・同値は元の順）に並べ替えた新しいスライスを返します。
// 重みの合計が0の場合は入力をそのまま返します。
func (m *Manager) OptimizeConsistencyReferences(refs []domain.ConsistencyReference, targetWeight float64) []domain.ConsistencyReference {
	total := 0.0
	for _, r := range refs {
		total += r.Weight
	}
	if total == 0 {
		return refs
	}

	optimized := make([]domain.ConsistencyReference, len(refs))
	copy(optimized, refs)
	for i := range optimized {
		optimized[i].Weight = optimized[i].Weight * targetWeight / total
	}
	sort.SliceStable(optimized, func(i, j int) bool {
		return optimized[i].Weight > optimized[j].Weight
	})
	return optimized
}

// ensureAnalyses は解析結果をキャッシュから取り出し、なければ3解析を
// 並行実行してキャッシュへ格納します。同一フレームの再解析は行いません。
func (m *Manager) ensureAnalyses(ctx context.Context, frameID, imageURL string) (*frameAnalyses, error) {
	result := &frameAnalyses{}
	if v, ok := m.analyses.Get(cacheTypeColors, frameID); ok {
		result.colors = v.(*domain.ColorPaletteAnalysis)
	}
	if v, ok := m.analyses.Get(cacheTypeStyle, frameID); ok {
		result.style = v.(*domain.StyleAnalysis)
	}
	if v, ok := m.analyses.Get(cacheTypeFingerprint, frameID); ok {
		result.fingerprint = v.(string)
	}
	if result.colors != nil && result.style != nil && result.fingerprint != "" {
		return result, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	if result.colors == nil {
		eg.Go(func() error {
			colors, err := m.extractor.AnalyzeColors(egCtx, imageURL)
			if err != nil {
				return fmt.Errorf("色彩解析に失敗しました: %w", err)
			}
			result.colors = colors
			return nil
		})
	}
	if result.style == nil {
		eg.Go(func() error {
			style, err := m.extractor.AnalyzeStyle(egCtx, imageURL)
			if err != nil {
				return fmt.Errorf("画風解析に失敗しました: %w", err)
			}
			result.style = style
			return nil
		})
	}
	if result.fingerprint == "" {
		eg.Go(func() error {
			fp, err := m.extractor.ExtractVisualFingerprint(egCtx, imageURL)
			if err != nil {
				return fmt.Errorf("視覚指紋の抽出に失敗しました: %w", err)
			}
			result.fingerprint = fp
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	m.analyses.Set(cacheTypeColors, frameID, result.colors)
	m.analyses.Set(cacheTypeStyle, frameID, result.style)
	m.analyses.Set(cacheTypeFingerprint, frameID, result.fingerprint)
	return result, nil
}

// mostFrequent は最頻値を返します。同数の場合は先に現れた値が勝ちます。
func mostFrequent(values []string) string {
	counts := make(map[string]int, len(values))
	var order []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v]++
	}

	best := ""
	bestCount := 0
	for _, v := range order {
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}

// modeFrequency は最頻値の出現率（最頻値の件数 / 全体数）を返します。
func modeFrequency(values []string) float64 {
	if len(values) == 0 {
		return 0
	}
	mode := mostFrequent(values)
	if mode == "" {
		return 0
	}
	count := 0
	for _, v := range values {
		if v == mode {
			count++
		}
	}
	return float64(count) / float64(len(values))
}

func colorFeatures(colors *domain.ColorPaletteAnalysis) []string {
	features := make([]string, 0, domain.MaxKeyFeatures)
	if colors.DominantColor != "" {
		features = append(features, colors.DominantColor)
	}
	for _, c := range colors.Palette {
		if len(features) >= domain.MaxKeyFeatures {
			break
		}
		features = append(features, c)
	}
	if colors.Temperature != "" && len(features) < domain.MaxKeyFeatures {
		features = append(features, colors.Temperature+" tones")
	}
	return features
}
