// Package runner は、検証・生成・採点・保存を1つの実行単位として束ねる
// ストーリーボード向けのバッチランナーを提供します。
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/shouni/go-storyboard-kit/pkg/contract"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/engine"
	"github.com/shouni/go-storyboard-kit/pkg/optimizer"
)

// BatchEngine はランナーが必要とする生成エンジンのケイパビリティです。
type BatchEngine interface {
	GenerateSequentialBatch(ctx context.Context, reqs []domain.FrameRequest, opts engine.BatchOptions, cb engine.Callbacks) ([]engine.FrameOutcome, error)
	GenerateParallelBatch(ctx context.Context, reqs []domain.FrameRequest, maxConcurrency int, cb engine.Callbacks) ([]engine.FrameOutcome, error)
}

// ConsistencyScorer は完了フレーム群の一貫性を採点するケイパビリティです。
type ConsistencyScorer interface {
	CalculateConsistencyScore(ctx context.Context, frames []domain.Frame) (*domain.ConsistencyScore, error)
}

// RunReport は1回のバッチ実行の集計結果です。
type RunReport struct {
	Outcomes  []engine.FrameOutcome    `json:"outcomes"`
	Score     *domain.ConsistencyScore `json:"score,omitempty"`
	Generated int                      `json:"generated"`
	Failed    int                      `json:"failed"`
	Deduped   int                      `json:"deduped"`
}

// StoryboardBatchRunner は、ストーリーボード1冊分のバッチ生成を管理します。
type StoryboardBatchRunner struct {
	engine BatchEngine
	scorer ConsistencyScorer
	writer remoteio.OutputWriter
}

// NewStoryboardBatchRunner は、依存関係を注入して初期化します。
func NewStoryboardBatchRunner(eng BatchEngine, scorer ConsistencyScorer, writer remoteio.OutputWriter) *StoryboardBatchRunner {
	return &StoryboardBatchRunner{
		engine: eng,
		scorer: scorer,
		writer: writer,
	}
}

// BuildRequests はストーリーボードの未完了フレームから生成要求を組み立てます。
// シード未指定のフレームにはシーンIDから導出した決定論的なシードを与えます。
func BuildRequests(sb *domain.Storyboard) []domain.FrameRequest {
	reqs := make([]domain.FrameRequest, 0, len(sb.Frames))
	for _, f := range sb.Frames {
		if f.Status == domain.FrameStatusCompleted {
			continue
		}
		cfg := f.Config
		if cfg.Seed == nil {
			seed := domain.SeedFromSceneID(f.SceneID)
			cfg.Seed = &seed
		}
		reqs = append(reqs, domain.FrameRequest{
			SceneID:          f.SceneID,
			SceneDescription: f.Prompt.BasePrompt,
			AdditionalPrompt: strings.Join(f.Prompt.StyleModifiers, ", "),
			ConfigOverride:   &cfg,
			ConsistencyRefs:  f.ConsistencyRefs,
		})
	}
	return reqs
}

// Run は、ストーリーボードの検証 → 重複排除 → バッチ生成 → 結果反映 → 採点を
// 1回の実行として進めます。parallel が真なら並列戦略、偽なら逐次戦略を使います。
// コスト安全違反はこの入口で全件まとめてエラーになります。
func (r *StoryboardBatchRunner) Run(ctx context.Context, sb *domain.Storyboard, batch contract.BatchGenerationRequest, parallel bool, cb engine.Callbacks) (*RunReport, error) {
	if err := contract.ValidateStoryboard(sb); err != nil {
		return nil, fmt.Errorf("ストーリーボードの検証に失敗しました: %w", err)
	}

	safety := contract.ValidateBatchCostSafety(batch)
	for _, w := range safety.Warnings {
		slog.Warn("コスト安全の警告があります", "storyboard_id", sb.ID, "warning", w)
	}
	if !safety.IsValid {
		return nil, fmt.Errorf("コスト安全の検証に失敗しました: %s", strings.Join(safety.Errors, " / "))
	}

	// 同一プロンプトのリクエストは代表1件だけ生成し、結果を複製して共有する
	dedup := optimizer.DetectDuplicateRequests(batch.Frames)
	report := &RunReport{Deduped: len(batch.Frames) - len(dedup.Unique)}

	sb.Status = domain.StoryboardStatusInProgress
	slog.Info("ストーリーボードのバッチ生成を開始します",
		"storyboard_id", sb.ID, "frames", len(dedup.Unique), "parallel", parallel)

	var outcomes []engine.FrameOutcome
	var runErr error
	if parallel {
		outcomes, runErr = r.engine.GenerateParallelBatch(ctx, dedup.Unique, batch.MaxConcurrent, cb)
	} else {
		outcomes, runErr = r.engine.GenerateSequentialBatch(ctx, dedup.Unique, engine.BatchOptions{StopOnError: batch.StopOnError}, cb)
	}
	report.Outcomes = expandOutcomes(outcomes, dedup)

	if err := r.applyOutcomes(sb, report); err != nil {
		return report, err
	}
	if runErr != nil {
		return report, fmt.Errorf("バッチ生成が完了しませんでした: %w", runErr)
	}

	if allFramesCompleted(sb) {
		sb.Status = domain.StoryboardStatusCompleted
	}

	score, err := r.scorer.CalculateConsistencyScore(ctx, sb.CompletedFrames())
	if err != nil {
		return report, fmt.Errorf("一貫性スコアの算出に失敗しました: %w", err)
	}
	report.Score = score

	slog.Info("ストーリーボードのバッチ生成が完了しました",
		"storyboard_id", sb.ID, "generated", report.Generated, "failed", report.Failed,
		"deduped", report.Deduped, "consistency", score.Overall)
	return report, nil
}

// RunAndSave はバッチを実行し、更新済みストーリーボードJSONを指定パスへ保存します。
// 保存先はローカルパスでも gs:// でも構いません。
func (r *StoryboardBatchRunner) RunAndSave(ctx context.Context, sb *domain.Storyboard, batch contract.BatchGenerationRequest, parallel bool, cb engine.Callbacks, outputPath string) (*RunReport, error) {
	report, err := r.Run(ctx, sb, batch, parallel, cb)
	if err != nil {
		return report, err
	}

	data, err := json.MarshalIndent(sb, "", "  ")
	if err != nil {
		return report, fmt.Errorf("ストーリーボードJSONのエンコードに失敗しました: %w", err)
	}

	slog.InfoContext(ctx, "ストーリーボードを保存しています", "path", outputPath)
	if err := r.writer.Write(ctx, outputPath, bytes.NewReader(data), "application/json"); err != nil {
		return report, fmt.Errorf("ストーリーボードの保存に失敗しました (path: %s): %w", outputPath, err)
	}
	return report, nil
}

// expandOutcomes は代表リクエストの結果を、重複グループの全メンバーへ複製します。
// 複製された結果は scene_id だけが各メンバーのものへ置き換わります。
func expandOutcomes(outcomes []engine.FrameOutcome, dedup optimizer.DuplicationResult) []engine.FrameOutcome {
	byScene := make(map[string]engine.FrameOutcome, len(outcomes))
	for _, o := range outcomes {
		byScene[o.SceneID] = o
	}

	expanded := make([]engine.FrameOutcome, 0, len(outcomes))
	expanded = append(expanded, outcomes...)
	for _, group := range dedup.Duplicates {
		rep, ok := byScene[group[0].SceneID]
		if !ok {
			continue
		}
		for _, member := range group[1:] {
			copied := rep
			copied.SceneID = member.SceneID
			expanded = append(expanded, copied)
		}
	}
	return expanded
}

// applyOutcomes は生成結果をストーリーボードのフレームへ反映します。
func (r *StoryboardBatchRunner) applyOutcomes(sb *domain.Storyboard, report *RunReport) error {
	for _, outcome := range report.Outcomes {
		frame := frameBySceneID(sb, outcome.SceneID)
		if frame == nil {
			slog.Warn("結果に対応するフレームが見つかりません", "scene_id", outcome.SceneID)
			continue
		}
		if outcome.Err != nil || outcome.Result == nil {
			frame.Status = domain.FrameStatusFailed
			frame.Attempts++
			report.Failed++
			continue
		}
		if err := sb.AppendResult(frame.ID, *outcome.Result); err != nil {
			return fmt.Errorf("フレーム %q への結果反映に失敗しました: %w", frame.ID, err)
		}
		report.Generated++
	}
	return nil
}

func frameBySceneID(sb *domain.Storyboard, sceneID string) *domain.Frame {
	for i := range sb.Frames {
		if sb.Frames[i].SceneID == sceneID {
			return &sb.Frames[i]
		}
	}
	return nil
}

func allFramesCompleted(sb *domain.Storyboard) bool {
	for _, f := range sb.Frames {
		if f.Status != domain.FrameStatusCompleted {
			return false
		}
	}
	return len(sb.Frames) > 0
}
