package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/gcsfactory"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/contract"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/engine"
	"github.com/shouni/go-storyboard-kit/pkg/runner"
)

// Execute は、ストーリーボードJSONを読み込み、バッチ画像生成と保存（全フェーズ）を実行するのだ。
func Execute(ctx context.Context, cfg *config.Config) error {
	appCtx, err := setupAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	sb, err := loadStoryboard(ctx, appCtx, cfg.Options.StoryboardFile)
	if err != nil {
		return err
	}

	batch := contract.BatchGenerationRequest{
		Frames:            runner.BuildRequests(sb),
		MaxConcurrent:     cfg.Options.MaxConcurrent,
		RequestIntervalMS: cfg.Options.RequestIntervalMS,
		StopOnError:       cfg.Options.StopOnError,
	}
	if len(batch.Frames) == 0 {
		slog.Info("生成対象のフレームがないのだ。すべて完了済みなのだ！", "storyboard_id", sb.ID)
		return nil
	}

	report, err := appCtx.Runner.RunAndSave(ctx, sb, batch, cfg.Options.Parallel, progressCallbacks(), cfg.Options.OutputFile)
	if err != nil {
		return err
	}

	slog.Info("ストーリーボードの生成が完了したのだ！",
		"generated", report.Generated,
		"failed", report.Failed,
		"deduped", report.Deduped,
		"consistency", fmt.Sprintf("%.2f", report.Score.Overall),
		"output", cfg.Options.OutputFile)
	return nil
}

// ExecuteValidateOnly は、生成を行わずにコスト安全とデータ品質の診断だけを実行するのだ。
// 生成前のドライランとして、課金の前に問題を全件洗い出すのだ。
func ExecuteValidateOnly(ctx context.Context, cfg *config.Config) error {
	appCtx, err := setupAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	sb, err := loadStoryboard(ctx, appCtx, cfg.Options.StoryboardFile)
	if err != nil {
		return err
	}

	if err := contract.ValidateStoryboard(sb); err != nil {
		return fmt.Errorf("ストーリーボードの契約違反があるのだ: %w", err)
	}

	batch := contract.BatchGenerationRequest{
		Frames:            runner.BuildRequests(sb),
		MaxConcurrent:     cfg.Options.MaxConcurrent,
		RequestIntervalMS: cfg.Options.RequestIntervalMS,
	}
	safety := contract.ValidateBatchCostSafety(batch)
	for _, w := range safety.Warnings {
		slog.Warn("コスト安全の警告なのだ", "warning", w)
	}

	quality := contract.PerformDataQualityCheck(sb.Frames)
	for _, w := range quality.Warnings {
		slog.Warn("品質の警告なのだ", "warning", w)
	}
	for _, e := range quality.Errors {
		slog.Error("品質のエラーなのだ", "error", e)
	}

	slog.Info("検証が完了したのだ",
		"storyboard_id", sb.ID,
		"frames", len(sb.Frames),
		"cost_safety_ok", safety.IsValid,
		"quality_score", fmt.Sprintf("%.1f", quality.Score))

	if !safety.IsValid {
		return fmt.Errorf("コスト安全の検証に失敗したのだ: %s", strings.Join(safety.Errors, " / "))
	}
	return nil
}

// ExecuteScoreOnly は、生成済みフレームの視覚的一貫性スコアだけを算出するのだ。
func ExecuteScoreOnly(ctx context.Context, cfg *config.Config) error {
	appCtx, err := setupAppContext(ctx, cfg)
	if err != nil {
		return err
	}

	sb, err := loadStoryboard(ctx, appCtx, cfg.Options.StoryboardFile)
	if err != nil {
		return err
	}

	completed := sb.CompletedFrames()
	slog.Info("一貫性スコアを算出するのだ", "storyboard_id", sb.ID, "completed_frames", len(completed))

	score, err := appCtx.Manager.CalculateConsistencyScore(ctx, completed)
	if err != nil {
		return fmt.Errorf("一貫性スコアの算出に失敗したのだ: %w", err)
	}

	slog.Info("一貫性スコアなのだ",
		"overall", fmt.Sprintf("%.2f", score.Overall),
		"color", fmt.Sprintf("%.2f", score.Color),
		"style", fmt.Sprintf("%.2f", score.Style),
		"lighting", fmt.Sprintf("%.2f", score.Lighting),
		"composition", fmt.Sprintf("%.2f", score.Composition))
	for _, rec := range score.Recommendations {
		slog.Info("改善の提案なのだ", "recommendation", rec)
	}

	if threshold := sb.Settings.QualityThreshold; threshold > 0 && score.Overall < threshold {
		slog.Warn("一貫性スコアが品質しきい値を下回っているのだ。逐次モードでの再生成を検討してほしいのだ",
			"overall", score.Overall, "threshold", threshold)
	}
	return nil
}

// setupAppContext は、提供された設定と共有コンポーネントを使用して、アプリケーションコンテキストを初期化して返すのだ。
// 初期化中にエラーが発生した場合は、AppContext のポインタとエラーを返すのだ。
func setupAppContext(ctx context.Context, cfg *config.Config) (*builder.AppContext, error) {
	settings, err := config.LoadSettings(cfg.Options.SettingsFile)
	if err != nil {
		return nil, err
	}
	settings.ApplyToOptions(&cfg.Options)

	httpClient := httpkit.New(cfg.Options.HTTPTimeout)

	gcsFactory, err := gcsfactory.NewGCSClientFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client factory: %w", err)
	}
	reader, err := gcsFactory.NewInputReader()
	if err != nil {
		return nil, err
	}
	writer, err := gcsFactory.NewOutputWriter()
	if err != nil {
		return nil, err
	}

	apiClient, err := builder.BuildAPIClient(ctx, cfg, httpClient, writer)
	if err != nil {
		return nil, err
	}

	eng, err := builder.BuildEngine(apiClient, cfg.Options, settings.ResolveGenerationConfig())
	if err != nil {
		return nil, err
	}

	manager, err := builder.BuildConsistencyManager(apiClient)
	if err != nil {
		return nil, err
	}

	batchRunner := builder.BuildBatchRunner(eng, manager, writer)

	appCtx := builder.NewAppContext(cfg, reader, writer, eng, manager, batchRunner)
	return &appCtx, nil
}

// loadStoryboard は、ローカルまたは gs:// のJSONファイルからストーリーボードを読み込むのだ。
func loadStoryboard(ctx context.Context, appCtx *builder.AppContext, path string) (*domain.Storyboard, error) {
	rc, err := appCtx.Reader.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("ストーリーボードJSON '%s' の読み込みに失敗したのだ: %w", path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("ストーリーボードJSON '%s' の読み取りに失敗したのだ: %w", path, err)
	}

	sb, err := domain.LoadStoryboard(data)
	if err != nil {
		return nil, err
	}
	slog.Info("ストーリーボードを読み込んだのだ", "storyboard_id", sb.ID, "title", sb.Title, "frames", len(sb.Frames))
	return sb, nil
}

// progressCallbacks は、生成の進行をログへ流すコールバック群を返すのだ。
func progressCallbacks() engine.Callbacks {
	return engine.Callbacks{
		OnProgress: func(frameID string, progress float64, stage string) {
			slog.Info("生成の進捗なのだ", "frame", frameID, "progress", fmt.Sprintf("%.0f%%", progress*100), "stage", stage)
		},
		OnComplete: func(frameID string, result domain.GenerationResult) {
			slog.Info("フレームが完成したのだ！", "frame", frameID, "image_url", result.ImageURL,
				"processing_time", fmt.Sprintf("%.1fs", result.ProcessingTime))
		},
		OnError: func(frameID string, err error) {
			slog.Error("フレームの生成に失敗したのだ", "frame", frameID, "error", err)
		},
	}
}
