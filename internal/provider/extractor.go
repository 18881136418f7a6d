package provider

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/engine"
)

// ConsistencyExtractor は engine.APIClient の抽出ケイパビリティを
// consistency.Extractor の3解析へ橋渡しするアダプターです。
// 3解析は同じ抽出結果を共有するため、URLごとに singleflight で呼び出しを
// 合流させ、結果を TTL 付きでキャッシュします。
type ConsistencyExtractor struct {
	client engine.APIClient
	group  singleflight.Group
	cache  *gocache.Cache
}

// NewConsistencyExtractor は APIClient を注入して初期化します。
func NewConsistencyExtractor(client engine.APIClient, ttl time.Duration) (*ConsistencyExtractor, error) {
	if client == nil {
		return nil, fmt.Errorf("client (APIClient) は必須です")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ConsistencyExtractor{
		client: client,
		cache:  gocache.New(ttl, 2*ttl),
	}, nil
}

// AnalyzeColors は抽出結果から色彩解析を導出します。
func (e *ConsistencyExtractor) AnalyzeColors(ctx context.Context, imageURL string) (*domain.ColorPaletteAnalysis, error) {
	data, err := e.extract(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	analysis := &domain.ColorPaletteAnalysis{Palette: data.ColorPalette}
	if len(data.ColorPalette) > 0 {
		analysis.DominantColor = data.ColorPalette[0]
	}
	return analysis, nil
}

// AnalyzeStyle は抽出結果から画風・照明・構図の解析を導出します。
func (e *ConsistencyExtractor) AnalyzeStyle(ctx context.Context, imageURL string) (*domain.StyleAnalysis, error) {
	data, err := e.extract(ctx, imageURL)
	if err != nil {
		return nil, err
	}
	return &domain.StyleAnalysis{
		ArtStyle:    data.StyleFingerprint,
		Lighting:    data.LightingProfile,
		Composition: data.CompositionStyle,
	}, nil
}

// ExtractVisualFingerprint は画像の視覚的指紋を返します。
func (e *ConsistencyExtractor) ExtractVisualFingerprint(ctx context.Context, imageURL string) (string, error) {
	data, err := e.extract(ctx, imageURL)
	if err != nil {
		return "", err
	}
	return data.StyleFingerprint, nil
}

// extract はURL単位で抽出を1回に合流させ、結果をキャッシュします。
func (e *ConsistencyExtractor) extract(ctx context.Context, imageURL string) (*domain.ConsistencyData, error) {
	if cached, found := e.cache.Get(imageURL); found {
		if data, ok := cached.(*domain.ConsistencyData); ok {
			return data, nil
		}
	}

	v, err, _ := e.group.Do(imageURL, func() (any, error) {
		data, err := e.client.ExtractConsistencyData(ctx, imageURL)
		if err != nil {
			return nil, err
		}
		e.cache.SetDefault(imageURL, data)
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("画像解析に失敗しました (url: %s): %w", imageURL, err)
	}
	return v.(*domain.ConsistencyData), nil
}
