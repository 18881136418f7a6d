package builder

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shouni/gemini-image-kit/pkg/adapters"
	"github.com/shouni/go-ai-client/v2/pkg/ai/gemini"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"google.golang.org/genai"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/provider"
	"github.com/shouni/go-storyboard-kit/pkg/consistency"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/engine"
	"github.com/shouni/go-storyboard-kit/pkg/runner"
)

// InitializeAIClient は gemini クライアントを初期化します。
func InitializeAIClient(ctx context.Context, apiKey string) (gemini.GenerativeModel, error) {
	const defaultGeminiTemperature = float32(0.2)
	clientConfig := gemini.Config{
		APIKey:      apiKey,
		Temperature: genai.Ptr(defaultGeminiTemperature),
	}
	aiClient, err := gemini.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return aiClient, nil
}

// BuildAPIClient は設定に応じたプロバイダーの APIClient を構築するのだ。
func BuildAPIClient(ctx context.Context, cfg *config.Config, httpClient httpkit.ClientInterface, writer remoteio.OutputWriter) (engine.APIClient, error) {
	switch cfg.Options.Provider {
	case config.ProviderArk:
		return provider.NewArkClient(nil, cfg.ArkEndpoint, cfg.ArkAPIKey, cfg.ArkModel)

	case config.ProviderGemini, "":
		aiClient, err := InitializeAIClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}

		imageCache := gocache.New(config.DefaultImageCacheTTL, 2*config.DefaultImageCacheTTL)
		imgCore := adapters.NewGeminiImageCore(httpClient, imageCache, config.DefaultImageCacheTTL)

		imageModel := cfg.GeminiImageModel
		if cfg.Options.ImageModel != "" {
			imageModel = cfg.Options.ImageModel
		}
		return provider.NewGeminiClient(
			imgCore, aiClient, writer,
			imageModel, cfg.GeminiModel, cfg.Options.OutputImageDir,
		)

	default:
		return nil, fmt.Errorf("未知のプロバイダーです: %q (gemini または ark を指定するのだ)", cfg.Options.Provider)
	}
}

// BuildEngine は生成デフォルトとバッチ制御を束ねたエンジンを構築します。
func BuildEngine(apiClient engine.APIClient, opts config.GenerateOptions, defaultCfg domain.ImageGenerationConfig) (*engine.Engine, error) {
	engineCfg := engine.Config{
		DefaultConfig:  defaultCfg,
		FrameInterval:  opts.FrameInterval(),
		RequestTimeout: config.DefaultRequestTimeout,
		MaxConcurrency: opts.MaxConcurrent,
	}
	eng, err := engine.New(apiClient, engineCfg)
	if err != nil {
		return nil, fmt.Errorf("生成エンジンの初期化に失敗しました: %w", err)
	}
	return eng, nil
}

// BuildConsistencyManager は APIClient の抽出ケイパビリティを使う一貫性マネージャーを構築します。
func BuildConsistencyManager(apiClient engine.APIClient) (*consistency.Manager, error) {
	extractor, err := provider.NewConsistencyExtractor(apiClient, config.DefaultImageCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("一貫性抽出アダプターの初期化に失敗しました: %w", err)
	}
	manager, err := consistency.NewManager(extractor, nil)
	if err != nil {
		return nil, fmt.Errorf("一貫性マネージャーの初期化に失敗しました: %w", err)
	}
	return manager, nil
}

// BuildBatchRunner はストーリーボード用のバッチランナーを構築します。
func BuildBatchRunner(eng *engine.Engine, manager *consistency.Manager, writer remoteio.OutputWriter) *runner.StoryboardBatchRunner {
	return runner.NewStoryboardBatchRunner(eng, manager, writer)
}
