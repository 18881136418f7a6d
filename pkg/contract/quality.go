package contract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// 品質スコアの重み配分です。合計で100点満点になります。
const (
	weightPromptQuality     = 30.0
	weightConsistency       = 20.0
	weightTechnicalValidity = 20.0
	weightURLValidity       = 15.0
	weightDuplicatePenalty  = 10.0
	weightMissingPrompt     = 5.0

	penaltyPerError   = 10.0
	penaltyPerWarning = 5.0
)

// QualityReport はストーリーボードのデータ品質診断の結果です。
type QualityReport struct {
	Score           float64    `json:"score"` // 0〜100
	Errors          []string   `json:"errors,omitempty"`
	Warnings        []string   `json:"warnings,omitempty"`
	DuplicateGroups [][]string `json:"duplicate_groups,omitempty"` // 各グループは frame ID のリスト
}

// PerformDataQualityCheck はフレーム群の品質を加重合成で採点します。
// 各成分を満点比で採点したあと、エラー1件につき10点、警告1件につき5点を
// 差し引き、[0,100] にクランプします。
func PerformDataQualityCheck(frames []domain.Frame) QualityReport {
	var report QualityReport
	if len(frames) == 0 {
		report.Errors = append(report.Errors, "フレームが1件もありません")
		report.Score = 0
		return report
	}

	if len(frames) > domain.MaxStoryboardFrames {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("フレーム数 %d が推奨上限の %d を超えています", len(frames), domain.MaxStoryboardFrames))
	}

	report.DuplicateGroups = detectDuplicateFrames(frames)

	promptScore := ratioScore(frames, func(f domain.Frame) bool {
		p := f.Prompt
		return p.BasePrompt != "" && p.EnhancedPrompt != "" &&
			len(p.BasePrompt) <= MaxPromptLength && len(p.EnhancedPrompt) >= len(p.BasePrompt)
	})
	consistencyScore := ratioScore(frames, func(f domain.Frame) bool {
		for _, ref := range f.ConsistencyRefs {
			if ref.Weight < 0 || ref.Weight > 1 || len(ref.KeyFeatures) > domain.MaxKeyFeatures {
				return false
			}
		}
		return true
	})
	technicalScore := ratioScore(frames, func(f domain.Frame) bool {
		cfg := f.Config
		if cfg.Steps != nil && (*cfg.Steps < domain.MinSteps || *cfg.Steps > domain.MaxSteps) {
			return false
		}
		if cfg.GuidanceScale != nil && (*cfg.GuidanceScale < domain.MinGuidanceScale || *cfg.GuidanceScale > domain.MaxGuidanceScale) {
			return false
		}
		return cfg.Model != "" && cfg.AspectRatio != ""
	})
	urlScore := ratioScore(frames, func(f domain.Frame) bool {
		if f.Result == nil {
			return true // 未生成フレームはURL検査の対象外
		}
		_, err := url.ParseRequestURI(f.Result.ImageURL)
		return err == nil
	})

	duplicateScore := 1.0
	if len(report.DuplicateGroups) > 0 {
		duplicateScore = 0.0
		for _, group := range report.DuplicateGroups {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("プロンプトが重複しているフレームがあります: %s", strings.Join(group, ", ")))
		}
	}
	missingScore := ratioScore(frames, func(f domain.Frame) bool {
		return strings.TrimSpace(f.Prompt.BasePrompt) != ""
	})
	for _, f := range frames {
		if strings.TrimSpace(f.Prompt.BasePrompt) == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("フレーム %q のプロンプトが空です", f.ID))
		}
	}

	score := promptScore*weightPromptQuality +
		consistencyScore*weightConsistency +
		technicalScore*weightTechnicalValidity +
		urlScore*weightURLValidity +
		duplicateScore*weightDuplicatePenalty +
		missingScore*weightMissingPrompt

	score -= float64(len(report.Errors)) * penaltyPerError
	score -= float64(len(report.Warnings)) * penaltyPerWarning

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	report.Score = score
	return report
}

// detectDuplicateFrames は強化済みプロンプトの大文字小文字・前後空白を無視した
// 同値グループを検出します。2件以上のグループだけを返します。
func detectDuplicateFrames(frames []domain.Frame) [][]string {
	groups := make(map[string][]string)
	var order []string
	for _, f := range frames {
		key := strings.ToLower(strings.TrimSpace(f.Prompt.EnhancedPrompt))
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f.ID)
	}

	var duplicates [][]string
	for _, key := range order {
		if len(groups[key]) > 1 {
			duplicates = append(duplicates, groups[key])
		}
	}
	return duplicates
}

func ratioScore(frames []domain.Frame, ok func(domain.Frame) bool) float64 {
	passed := 0
	for _, f := range frames {
		if ok(f) {
			passed++
		}
	}
	return float64(passed) / float64(len(frames))
}
