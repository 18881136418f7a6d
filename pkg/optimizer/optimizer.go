// Package optimizer は、エンジンへ投入する前のバッチリクエストを整理します。
// 同一プロンプトの重複検出と、優先度を考慮したバッチ分割を提供します。
package optimizer

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// DuplicationResult は重複検出の結果です。
// Unique には各グループの先頭リクエストが初出順で並び、
// Duplicates には2件以上の同一プロンプトグループが初出順で並びます。
type DuplicationResult struct {
	Unique     []domain.FrameRequest
	Duplicates [][]domain.FrameRequest
}

// DetectDuplicateRequests はプロンプト本文が同一のリクエストをグループ化します。
// 比較キーは前後の空白を除去した小文字のプロンプト（シーン説明＋追加プロンプト）です。
// 重複グループの代表としては常に初出のリクエストを採用します。
func DetectDuplicateRequests(reqs []domain.FrameRequest) DuplicationResult {
	groups := make(map[string][]domain.FrameRequest, len(reqs))
	order := make([]string, 0, len(reqs))

	for _, req := range reqs {
		key := promptKey(req)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], req)
	}

	result := DuplicationResult{Unique: make([]domain.FrameRequest, 0, len(order))}
	for _, key := range order {
		group := groups[key]
		result.Unique = append(result.Unique, group[0])
		if len(group) > 1 {
			result.Duplicates = append(result.Duplicates, group)
		}
	}

	if len(result.Duplicates) > 0 {
		slog.Info("重複するフレームリクエストを検出しました",
			"total", len(reqs), "unique", len(result.Unique), "duplicate_groups", len(result.Duplicates))
	}
	return result
}

// ChunkByPriority は優先度の高い順（同順位は入力順を保持）に並べ替えたうえで、
// batchSize 件ずつのチャンクへ分割します。batchSize が0以下の場合は
// ストーリーボードの最大フレーム数を使います。入力スライスは書き換えません。
func ChunkByPriority(reqs []domain.FrameRequest, batchSize int) [][]domain.FrameRequest {
	if len(reqs) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = domain.MaxStoryboardFrames
	}

	ordered := make([]domain.FrameRequest, len(reqs))
	copy(ordered, reqs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority.Rank() > ordered[j].Priority.Rank()
	})

	chunks := make([][]domain.FrameRequest, 0, (len(ordered)+batchSize-1)/batchSize)
	for start := 0; start < len(ordered); start += batchSize {
		end := start + batchSize
		if end > len(ordered) {
			end = len(ordered)
		}
		chunks = append(chunks, ordered[start:end])
	}
	return chunks
}

func promptKey(req domain.FrameRequest) string {
	prompt := req.SceneDescription
	if req.AdditionalPrompt != "" {
		prompt += ", " + req.AdditionalPrompt
	}
	return strings.ToLower(strings.TrimSpace(prompt))
}
