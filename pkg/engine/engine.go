package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// ErrAlreadyGenerating は、バッチ実行中に新しいバッチを開始しようとした場合のエラーです。
// エンジン全体で同時に動けるバッチは1つだけです。
var ErrAlreadyGenerating = errors.New("別のバッチが生成中です")

// State はエンジンの実行状態です。裸のbooleanではなく明示的な状態機械として持ちます。
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCancelling
)

// String は状態のログ表示用の名前を返します。
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCancelling:
		return "cancelling"
	default:
		return "unknown"
	}
}

// 進捗コールバックの固定チェックポイントです。
const (
	progressEnhancing  = 0.10
	progressGenerating = 0.30
	progressBuilding   = 0.80
	progressDone       = 1.00
)

// 逐次バッチで先頭フレームから合成するスタイルリファレンスの重みです。
const propagatedStyleWeight = 0.7

// aspectRatioDimensions はアスペクト比から生成サイズを引く固定テーブルです。
// 未知の比率は 16:9 のサイズへフォールバックします。
var aspectRatioDimensions = map[domain.AspectRatio][2]int{
	domain.AspectRatio16x9: {1024, 576},
	domain.AspectRatio9x16: {576, 1024},
	domain.AspectRatio1x1:  {1024, 1024},
	domain.AspectRatio4x3:  {1024, 768},
	domain.AspectRatio3x4:  {768, 1024},
}

// ResolveDimensions はアスペクト比に対応する (width, height) を返します。
func ResolveDimensions(ratio domain.AspectRatio) (int, int) {
	if dims, ok := aspectRatioDimensions[ratio]; ok {
		return dims[0], dims[1]
	}
	fallback := aspectRatioDimensions[domain.AspectRatio16x9]
	return fallback[0], fallback[1]
}

// Config はエンジンの動作設定です。
type Config struct {
	// DefaultConfig は部分的なフレーム設定を解決するためのベース設定です。
	DefaultConfig domain.ImageGenerationConfig
	// FrameInterval は逐次バッチでのフレーム間の待機時間です。0なら待機しません。
	FrameInterval time.Duration
	// RequestTimeout はプロバイダー呼び出し1回あたりの上限時間です。
	// ハングしたプロバイダーがバッチ全体を固めるのを防ぎます。0なら無制限です。
	RequestTimeout time.Duration
	// MaxConcurrency は並列バッチの既定の同時実行数です。
	MaxConcurrency int
}

// DefaultEngineConfig は推奨されるエンジン設定を返します。
func DefaultEngineConfig() Config {
	return Config{
		DefaultConfig:  domain.DefaultGenerationConfig(),
		FrameInterval:  time.Second,
		RequestTimeout: 2 * time.Minute,
		MaxConcurrency: 3,
	}
}

// BatchOptions はバッチ実行ごとのオプションです。
type BatchOptions struct {
	// StopOnError が真なら、1フレームの失敗で残りのバッチを中断します。
	// 偽なら失敗フレームを記録して続行します。
	StopOnError bool
}

// FrameOutcome はバッチ内の1フレームの結末です。入力順に並びます。
type FrameOutcome struct {
	SceneID string
	Result  *domain.GenerationResult
	Err     error
}

// Status はエンジンの読み取り専用スナップショットです。
type Status struct {
	State State
	Queue []string
}

// consistencyContext は逐次バッチでフレームからフレームへ引き継ぐ不変の蓄積値です。
// 入力リクエストを書き換える代わりに、この値を畳み込みで前へ運びます。
type consistencyContext struct {
	extraRefs    []domain.ConsistencyReference
	prevImageURL string
}

// withStyleRef は合成リファレンスを追加した新しいコンテキストを返します。
func (c consistencyContext) withStyleRef(ref domain.ConsistencyReference) consistencyContext {
	refs := make([]domain.ConsistencyReference, 0, len(c.extraRefs)+1)
	refs = append(refs, c.extraRefs...)
	refs = append(refs, ref)
	return consistencyContext{extraRefs: refs, prevImageURL: c.prevImageURL}
}

// withPrevImage は直前フレームの画像URLを更新した新しいコンテキストを返します。
func (c consistencyContext) withPrevImage(url string) consistencyContext {
	return consistencyContext{extraRefs: c.extraRefs, prevImageURL: url}
}

// Engine は画像生成バッチのオーケストレーターです。
// 状態はすべてこの構造体が所有し、パッケージレベルの共有状態は持ちません。
type Engine struct {
	client APIClient
	cfg    Config

	mu      sync.Mutex
	state   State
	queue   []string
	cancel  context.CancelFunc
	history map[string][]domain.GenerationResult
}

// New は APIClient を注入してエンジンを生成します。
func New(client APIClient, cfg Config) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("client (APIClient) は必須です")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 3
	}
	return &Engine{
		client:  client,
		cfg:     cfg,
		state:   StateIdle,
		history: make(map[string][]domain.GenerationResult),
	}, nil
}

// GenerateSingleFrame は1フレームを5段階のパイプラインで生成します。
// 失敗時は OnError コールバックを呼んだうえでエラーを返し、継続か中断かの
// 判断は呼び出し側（バッチオーケストレーター）に委ねます。
func (e *Engine) GenerateSingleFrame(ctx context.Context, req domain.FrameRequest, cb Callbacks) (*domain.GenerationResult, error) {
	return e.generateFrame(ctx, req, consistencyContext{}, cb)
}

// GenerateSequentialBatch はリクエストを入力順に1件ずつ処理します。
// 先頭フレームの成功後にその画像からスタイル指紋を抽出し、重み0.7の
// スタイルリファレンスとして残りすべてのフレームへ伝播します（前方伝播のみ）。
// 抽出の失敗はログに残して握りつぶし、バッチは継続します。
// 2枚目以降は、明示指定がなければ直前フレームの画像を参照画像として使います。
func (e *Engine) GenerateSequentialBatch(ctx context.Context, reqs []domain.FrameRequest, opts BatchOptions, cb Callbacks) ([]FrameOutcome, error) {
	runCtx, err := e.begin(ctx, reqs)
	if err != nil {
		return nil, err
	}
	defer e.finish()

	var limiter *rate.Limiter
	if e.cfg.FrameInterval > 0 {
		// Burst 1 なので先頭フレームは即時、以降は FrameInterval ずつ空きます
		limiter = rate.NewLimiter(rate.Every(e.cfg.FrameInterval), 1)
	}

	slog.Info("逐次バッチ生成を開始します", "count", len(reqs), "interval", e.cfg.FrameInterval, "stop_on_error", opts.StopOnError)

	outcomes := make([]FrameOutcome, 0, len(reqs))
	cc := consistencyContext{}

	for i, req := range reqs {
		if limiter != nil {
			if err := limiter.Wait(runCtx); err != nil {
				return outcomes, fmt.Errorf("バッチが中断されました: %w", err)
			}
		} else if err := runCtx.Err(); err != nil {
			return outcomes, fmt.Errorf("バッチが中断されました: %w", err)
		}

		result, err := e.generateFrame(runCtx, req, cc, cb)
		if err != nil {
			outcomes = append(outcomes, FrameOutcome{SceneID: req.SceneID, Err: err})
			if opts.StopOnError {
				return outcomes, fmt.Errorf("フレーム %q の生成に失敗したためバッチを中断します: %w", req.SceneID, err)
			}
			slog.Warn("フレーム生成に失敗しましたが、バッチを継続します", "scene_id", req.SceneID, "error", err)
			continue
		}
		outcomes = append(outcomes, FrameOutcome{SceneID: req.SceneID, Result: result})

		// 先頭フレームの成功からスタイルを抽出して、以降のフレームへ伝播する
		if i == 0 {
			if ref, ok := e.extractPropagatedStyle(runCtx, req.SceneID, result.ImageURL); ok {
				cc = cc.withStyleRef(ref)
			}
		}
		cc = cc.withPrevImage(result.ImageURL)
	}

	slog.Info("逐次バッチ生成が完了しました", "count", len(outcomes))
	return outcomes, nil
}

// GenerateParallelBatch はセマフォで同時実行数を maxConcurrency に制限しながら
// 全リクエストを独立に処理します。一貫性の伝播は行いません（速度優先）。
// いずれか1件でも失敗するとバッチ全体がエラーになります。
func (e *Engine) GenerateParallelBatch(ctx context.Context, reqs []domain.FrameRequest, maxConcurrency int, cb Callbacks) ([]FrameOutcome, error) {
	runCtx, err := e.begin(ctx, reqs)
	if err != nil {
		return nil, err
	}
	defer e.finish()

	if maxConcurrency <= 0 {
		maxConcurrency = e.cfg.MaxConcurrency
	}

	slog.Info("並列バッチ生成を開始します", "count", len(reqs), "max_concurrency", maxConcurrency)

	sem := semaphore.NewWeighted(int64(maxConcurrency))
	outcomes := make([]FrameOutcome, len(reqs))
	eg, egCtx := errgroup.WithContext(runCtx)

	for i, req := range reqs {
		i, req := i, req
		eg.Go(func() error {
			if err := sem.Acquire(egCtx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			result, err := e.generateFrame(egCtx, req, consistencyContext{}, cb)
			if err != nil {
				outcomes[i] = FrameOutcome{SceneID: req.SceneID, Err: err}
				return err
			}
			outcomes[i] = FrameOutcome{SceneID: req.SceneID, Result: result}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return outcomes, fmt.Errorf("並列バッチ生成に失敗しました: %w", err)
	}

	slog.Info("並列バッチ生成が完了しました", "count", len(outcomes))
	return outcomes, nil
}

// Cancel は協調的なキャンセルを要求します。新しいフレームの開始は止まりますが、
// すでにプロバイダーへ発行済みの呼び出しは中断できず、遅れて届いた結果は捨てられます。
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return
	}
	e.state = StateCancelling
	e.queue = nil
	if e.cancel != nil {
		e.cancel()
	}
	slog.Info("バッチ生成のキャンセルを要求しました")
}

// Status は現在の状態とキューのスナップショットを返します。
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	queue := make([]string, len(e.queue))
	copy(queue, e.queue)
	return Status{State: e.state, Queue: queue}
}

// HistoryFor はフレームの生成履歴のコピーを返します。未知のフレームIDには
// 空のリストを返し、エラーにはしません。
func (e *Engine) HistoryFor(frameID string) []domain.GenerationResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	src := e.history[frameID]
	out := make([]domain.GenerationResult, len(src))
	copy(out, src)
	return out
}

// begin はバッチ実行権を取得します。すでに実行中なら ErrAlreadyGenerating です。
func (e *Engine) begin(ctx context.Context, reqs []domain.FrameRequest) (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return nil, fmt.Errorf("バッチを開始できません (state=%s): %w", e.state, ErrAlreadyGenerating)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.state = StateRunning
	e.cancel = cancel
	e.queue = make([]string, 0, len(reqs))
	for _, r := range reqs {
		e.queue = append(e.queue, r.SceneID)
	}
	return runCtx, nil
}

// finish は成功・失敗を問わずバッチ終了時に状態を必ず初期化します。
func (e *Engine) finish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.state = StateIdle
	e.queue = nil
}

// generateFrame は1フレーム分の5段階パイプラインの実体です。
// 一貫性コンテキストのリファレンスはリクエスト自身のものへ追記した形で渡され、
// 入力リクエストそのものは書き換えません。
func (e *Engine) generateFrame(ctx context.Context, req domain.FrameRequest, cc consistencyContext, cb Callbacks) (*domain.GenerationResult, error) {
	started := time.Now()
	cfg := domain.MergeGenerationConfig(e.cfg.DefaultConfig, req.ConfigOverride)

	// (1) アクティブなリファレンスだけでプロンプトを強化する
	cb.progress(req.SceneID, progressEnhancing, "プロンプトを強化しています")

	refs := make([]domain.ConsistencyReference, 0, len(req.ConsistencyRefs)+len(cc.extraRefs))
	refs = append(refs, req.ConsistencyRefs...)
	refs = append(refs, cc.extraRefs...)
	activeRefs := domain.ActiveReferences(refs)

	basePrompt := req.SceneDescription
	if req.AdditionalPrompt != "" {
		basePrompt = basePrompt + ", " + req.AdditionalPrompt
	}

	enhanced, err := e.withTimeout(ctx, func(callCtx context.Context) (string, error) {
		return e.client.EnhancePrompt(callCtx, basePrompt, cfg.StylePreset, activeRefs)
	})
	if err != nil {
		wrapped := fmt.Errorf("フレーム %q のプロンプト強化に失敗しました: %w", req.SceneID, err)
		cb.fail(req.SceneID, wrapped)
		return nil, wrapped
	}

	// (2) アスペクト比をサイズへ解決して生成を実行する
	cb.progress(req.SceneID, progressGenerating, "画像を生成しています")

	width, height := ResolveDimensions(cfg.AspectRatio)
	referenceImage := req.ReferenceImageURL
	if referenceImage == "" {
		referenceImage = cc.prevImageURL
	}

	input := GenerateImageInput{
		FrameID:        req.SceneID,
		Prompt:         enhanced,
		NegativePrompt: cfg.NegativePrompt,
		Style:          cfg.StylePreset,
		AspectRatio:    cfg.AspectRatio,
		Width:          width,
		Height:         height,
		ReferenceImage: referenceImage,
		Seed:           cfg.Seed,
		Steps:          cfg.Steps,
		GuidanceScale:  cfg.GuidanceScale,
	}

	output, err := e.withTimeoutOutput(ctx, input)
	if err != nil {
		wrapped := fmt.Errorf("フレーム %q の画像生成に失敗しました: %w", req.SceneID, err)
		cb.fail(req.SceneID, wrapped)
		return nil, wrapped
	}

	// (3) 不変の生成結果を構築する
	cb.progress(req.SceneID, progressBuilding, "生成結果を構築しています")

	generationID := output.GenerationID
	if generationID == "" {
		generationID = uuid.NewString()
	}
	processingTime := output.ProcessingTime
	if processingTime == 0 {
		processingTime = time.Since(started).Seconds()
	}

	result, err := domain.NewGenerationResult(
		output.ImageURL, output.ThumbnailURL, generationID,
		cfg.Model, cfg, enhanced, processingTime, output.Cost,
	)
	if err != nil {
		wrapped := fmt.Errorf("フレーム %q の生成結果が不正です: %w", req.SceneID, err)
		cb.fail(req.SceneID, wrapped)
		return nil, wrapped
	}

	// (4) 履歴へ追記する
	e.appendHistory(req.SceneID, result)

	// (5) 完了を通知する
	cb.progress(req.SceneID, progressDone, "完了しました")
	cb.complete(req.SceneID, result)

	return &result, nil
}

// extractPropagatedStyle は先頭フレームの画像からスタイルリファレンスを合成します。
// 失敗は致命的ではなく、ログに残してバッチを続行します。
func (e *Engine) extractPropagatedStyle(ctx context.Context, sceneID, imageURL string) (domain.ConsistencyReference, bool) {
	data, err := e.withTimeoutData(ctx, imageURL)
	if err != nil {
		slog.Warn("先頭フレームからの一貫性抽出に失敗しました。伝播なしで続行します",
			"scene_id", sceneID, "error", err)
		return domain.ConsistencyReference{}, false
	}

	features := make([]string, 0, domain.MaxKeyFeatures)
	if data.StyleFingerprint != "" {
		features = append(features, data.StyleFingerprint)
	}
	if data.LightingProfile != "" {
		features = append(features, data.LightingProfile)
	}
	if data.CompositionStyle != "" {
		features = append(features, data.CompositionStyle)
	}
	for _, c := range data.ColorPalette {
		if len(features) >= domain.MaxKeyFeatures {
			break
		}
		features = append(features, c)
	}

	return domain.ConsistencyReference{
		ID:                sceneID + "-propagated-style",
		Name:              "batch style anchor",
		Type:              domain.ReferenceTypeStyle,
		Weight:            propagatedStyleWeight,
		KeyFeatures:       features,
		ReferenceImageURL: imageURL,
		IsActive:          true,
	}, true
}

func (e *Engine) appendHistory(frameID string, result domain.GenerationResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history[frameID] = append(e.history[frameID], result)
}

// withTimeout はプロバイダー呼び出しへ RequestTimeout の期限を付けます。
func (e *Engine) withTimeout(ctx context.Context, call func(context.Context) (string, error)) (string, error) {
	if e.cfg.RequestTimeout <= 0 {
		return call(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()
	return call(callCtx)
}

func (e *Engine) withTimeoutOutput(ctx context.Context, input GenerateImageInput) (*GenerateImageOutput, error) {
	if e.cfg.RequestTimeout <= 0 {
		return e.client.GenerateImage(ctx, input)
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()
	return e.client.GenerateImage(callCtx, input)
}

func (e *Engine) withTimeoutData(ctx context.Context, imageURL string) (*domain.ConsistencyData, error) {
	if e.cfg.RequestTimeout <= 0 {
		return e.client.ExtractConsistencyData(ctx, imageURL)
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()
	return e.client.ExtractConsistencyData(callCtx, imageURL)
}
