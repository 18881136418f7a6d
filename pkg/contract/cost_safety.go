package contract

import (
	"fmt"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// コスト安全装置の固定上限です。外部APIの課金事故を防ぐための明示的な制約で、
// 設定で緩めることはできません。
const (
	MaxBatchFrames             = 12
	MaxConcurrentRequests      = 3
	MinRequestIntervalMS       = 5000
	DefaultRequestIntervalMS   = 12000
	MaxPromptLength            = 2000
	MaxAdditionalPromptLength  = 500
	MaxConsistencyRefsPerFrame = 5
)

// BatchGenerationRequest はバッチ生成の実行要求です。
type BatchGenerationRequest struct {
	Frames            []domain.FrameRequest `json:"frames"`
	MaxConcurrent     int                   `json:"max_concurrent,omitempty"`
	RequestIntervalMS int                   `json:"request_interval_ms,omitempty"`
	StopOnError       bool                  `json:"stop_on_error"`
}

// CostSafetyResult はコスト安全検証の結果です。
// 例外を投げる代わりに違反を列挙して返すため、呼び出し側は全件を一度に提示できます。
type CostSafetyResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateBatchCostSafety はバッチ要求をコスト安全の観点で検証します。
func ValidateBatchCostSafety(req BatchGenerationRequest) CostSafetyResult {
	var result CostSafetyResult

	if len(req.Frames) == 0 {
		result.Errors = append(result.Errors, "フレームが1件も含まれていません")
	}
	if len(req.Frames) > MaxBatchFrames {
		result.Errors = append(result.Errors,
			fmt.Sprintf("フレーム数 %d が上限の %d フレームを超えています", len(req.Frames), MaxBatchFrames))
	}
	if req.MaxConcurrent > MaxConcurrentRequests {
		result.Errors = append(result.Errors,
			fmt.Sprintf("同時実行数 %d が上限の %d 並列を超えています", req.MaxConcurrent, MaxConcurrentRequests))
	}
	if req.RequestIntervalMS != 0 && req.RequestIntervalMS < MinRequestIntervalMS {
		result.Errors = append(result.Errors,
			fmt.Sprintf("リクエスト間隔 %dms が下限の %dms を下回っています（推奨は %dms）",
				req.RequestIntervalMS, MinRequestIntervalMS, DefaultRequestIntervalMS))
	}

	seen := make(map[string]bool, len(req.Frames))
	for i, frame := range req.Frames {
		if frame.SceneID == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("フレーム %d に scene_id がありません", i))
		} else if seen[frame.SceneID] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("scene_id %q がバッチ内で重複しています", frame.SceneID))
		}
		seen[frame.SceneID] = true

		if len(frame.SceneDescription) > MaxPromptLength {
			result.Errors = append(result.Errors,
				fmt.Sprintf("フレーム %q のプロンプトが上限 %d 文字を超えています", frame.SceneID, MaxPromptLength))
		}
		if len(frame.AdditionalPrompt) > MaxAdditionalPromptLength {
			result.Errors = append(result.Errors,
				fmt.Sprintf("フレーム %q の追加プロンプトが上限 %d 文字を超えています", frame.SceneID, MaxAdditionalPromptLength))
		}
		if len(frame.ConsistencyRefs) > MaxConsistencyRefsPerFrame {
			result.Errors = append(result.Errors,
				fmt.Sprintf("フレーム %q の一貫性リファレンスが上限 %d 件を超えています", frame.SceneID, MaxConsistencyRefsPerFrame))
		}
	}

	if req.RequestIntervalMS == 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("リクエスト間隔が未指定のため既定値 %dms を適用します", DefaultRequestIntervalMS))
	}

	result.IsValid = len(result.Errors) == 0
	return result
}
