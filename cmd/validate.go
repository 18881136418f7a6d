package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/pipeline"
)

// validateCmd は、生成を行わずにストーリーボードの事前診断だけを実行するのだ。
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "ストーリーボードのコスト安全とデータ品質を診断しますなのだ。",
	Long: `ストーリーボードJSONを読み込み、構造の契約・コスト安全・データ品質を検証するのだ。
課金が発生する前のドライランとして使うのだよ。`,
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	if opts.StoryboardFile == "" {
		return fmt.Errorf("ストーリーボードJSON（--storyboard-file）を指定してほしいのだ")
	}

	cfg := config.LoadConfig()
	cfg.GeminiModel = opts.AIModel
	cfg.Options = opts

	if err := pipeline.ExecuteValidateOnly(cmd.Context(), cfg); err != nil {
		return fmt.Errorf("検証中にエラーが発生したのだ: %w", err)
	}
	return nil
}
