package builder

import (
	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/consistency"
	"github.com/shouni/go-storyboard-kit/pkg/engine"
	"github.com/shouni/go-storyboard-kit/pkg/runner"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// これを各実行フェーズに渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config  *config.Config          // Configは、環境変数から読み込まれたグローバルな設定です（APIキー、モデル名など）。
	Options config.GenerateOptions  // Optionsは、コマンドラインから渡された実行時の設定です。
	Reader  remoteio.InputReader    // Readerは、ストーリーボードJSONの読み込みに使用する入力元です。
	Writer  remoteio.OutputWriter   // Writerは、生成画像と更新済みJSONを保存するための出力先です。
	Engine  *engine.Engine          // Engineは、逐次・並列のバッチ画像生成を駆動するエンジンです。
	Manager *consistency.Manager    // Managerは、フレーム間の視覚的一貫性を管理します。
	Runner  *runner.StoryboardBatchRunner
}

// NewAppContext は AppContext の新しいインスタンスを生成する
func NewAppContext(
	cfg *config.Config,
	reader remoteio.InputReader,
	writer remoteio.OutputWriter,
	eng *engine.Engine,
	manager *consistency.Manager,
	batchRunner *runner.StoryboardBatchRunner,
) AppContext {
	return AppContext{
		Config:  cfg,
		Options: cfg.Options,
		Reader:  reader,
		Writer:  writer,
		Engine:  eng,
		Manager: manager,
		Runner:  batchRunner,
	}
}
