package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/pipeline"
)

// generateCmd は、ストーリーボードのバッチ画像生成を実行するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "ストーリーボードの全フレーム画像をAIに生成させますなのだ。",
	Long: `ストーリーボードJSONを読み込み、未完了フレームの画像を一括生成するのだ。
既定の逐次モードでは直前フレームの画風を次フレームへ伝播させ、
--parallel では伝播なしで同時生成するのだよ。`,
	RunE: generateCommand,
}

func generateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// 1. 必須チェック
	if opts.StoryboardFile == "" {
		return fmt.Errorf("ストーリーボードJSON（--storyboard-file）を指定してほしいのだ")
	}

	// 2. 環境変数等から基本設定をロードするのだ
	cfg := config.LoadConfig()
	cfg.GeminiModel = opts.AIModel
	cfg.Options = opts

	slog.Info("ストーリーボード生成パイプラインを起動するのだ！",
		"provider", opts.Provider,
		"parallel", opts.Parallel,
		"text_model", cfg.GeminiModel,
		"output", opts.OutputFile)

	// 3. 更新した config を考慮しつつパイプラインを実行するのだ
	err := pipeline.Execute(ctx, cfg)
	if err != nil {
		return fmt.Errorf("パイプライン実行中にエラーが発生したのだ: %w", err)
	}

	slog.Info("すべての生成工程が完了したのだ！")
	return nil
}
