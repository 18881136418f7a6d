package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/pipeline"
)

// scoreCmd は、生成済みフレームの視覚的一貫性スコアを算出するのだ。
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "生成済みフレームの視覚的一貫性スコアを算出しますなのだ。",
	Long: `完了済みフレームの画像を解析し、色彩・画風・照明・構図の
4次元で一貫性スコアを算出するのだ。スコアが低いフレームには改善の提案も出すのだよ。`,
	RunE: scoreCommand,
}

func scoreCommand(cmd *cobra.Command, args []string) error {
	if opts.StoryboardFile == "" {
		return fmt.Errorf("ストーリーボードJSON（--storyboard-file）を指定してほしいのだ")
	}

	cfg := config.LoadConfig()
	cfg.GeminiModel = opts.AIModel
	cfg.Options = opts

	if err := pipeline.ExecuteScoreOnly(cmd.Context(), cfg); err != nil {
		return fmt.Errorf("スコア算出中にエラーが発生したのだ: %w", err)
	}
	return nil
}
