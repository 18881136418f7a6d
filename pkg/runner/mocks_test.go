package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/engine"
)

// --- Mocks ---

type mockBatchEngine struct {
	sequentialCalls int
	parallelCalls   int
	receivedReqs    []domain.FrameRequest

	failScenes map[string]error
	batchErr   error
}

func newMockBatchEngine() *mockBatchEngine {
	return &mockBatchEngine{failScenes: make(map[string]error)}
}

func (m *mockBatchEngine) GenerateSequentialBatch(ctx context.Context, reqs []domain.FrameRequest, opts engine.BatchOptions, cb engine.Callbacks) ([]engine.FrameOutcome, error) {
	m.sequentialCalls++
	return m.run(reqs, opts.StopOnError)
}

func (m *mockBatchEngine) GenerateParallelBatch(ctx context.Context, reqs []domain.FrameRequest, maxConcurrency int, cb engine.Callbacks) ([]engine.FrameOutcome, error) {
	m.parallelCalls++
	return m.run(reqs, true)
}

func (m *mockBatchEngine) run(reqs []domain.FrameRequest, stopOnError bool) ([]engine.FrameOutcome, error) {
	m.receivedReqs = reqs
	if m.batchErr != nil {
		return nil, m.batchErr
	}

	outcomes := make([]engine.FrameOutcome, 0, len(reqs))
	for _, req := range reqs {
		if err := m.failScenes[req.SceneID]; err != nil {
			outcomes = append(outcomes, engine.FrameOutcome{SceneID: req.SceneID, Err: err})
			if stopOnError {
				return outcomes, fmt.Errorf("フレーム %q の生成に失敗したためバッチを中断します: %w", req.SceneID, err)
			}
			continue
		}
		result, _ := domain.NewGenerationResult(
			fmt.Sprintf("https://img.example.com/%s.png", req.SceneID), "",
			"gen-"+req.SceneID, domain.ModelGeminiImage,
			domain.DefaultGenerationConfig(), "enhanced: "+req.SceneDescription, 1.2, 0.04,
		)
		outcomes = append(outcomes, engine.FrameOutcome{SceneID: req.SceneID, Result: &result})
	}
	return outcomes, nil
}

type mockScorer struct {
	score      *domain.ConsistencyScore
	err        error
	lastFrames []domain.Frame
}

func (m *mockScorer) CalculateConsistencyScore(ctx context.Context, frames []domain.Frame) (*domain.ConsistencyScore, error) {
	m.lastFrames = frames
	if m.err != nil {
		return nil, m.err
	}
	if m.score != nil {
		return m.score, nil
	}
	return &domain.ConsistencyScore{Overall: 0.9, Color: 0.9, Style: 0.9, Lighting: 0.9, Composition: 0.9}, nil
}

type mockWriter struct {
	paths     []string
	mimeTypes []string
	payloads  [][]byte
	err       error
}

func (m *mockWriter) Write(ctx context.Context, path string, r io.Reader, mimeType string) error {
	if m.err != nil {
		return m.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.paths = append(m.paths, path)
	m.mimeTypes = append(m.mimeTypes, mimeType)
	m.payloads = append(m.payloads, data)
	return nil
}

// --- Fixtures ---

func testStoryboard(descriptions ...string) *domain.Storyboard {
	sb := domain.NewStoryboard("sb-1", "scenario-1", "テスト用ストーリーボード")
	for i, desc := range descriptions {
		sb.AddFrame(domain.Frame{
			ID:      fmt.Sprintf("frame-%d", i+1),
			SceneID: fmt.Sprintf("scene-%d", i+1),
			Prompt:  domain.PromptEngineering{BasePrompt: desc, EnhancedPrompt: "enhanced: " + desc},
			Config:  domain.DefaultGenerationConfig(),
			Status:  domain.FrameStatusPending,
		})
	}
	return sb
}

func batchFor(sb *domain.Storyboard) []domain.FrameRequest {
	return BuildRequests(sb)
}
