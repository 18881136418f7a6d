package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameStatus はフレーム単位の生成ライフサイクルです。
// pending → generating → completed | failed | retry と遷移します。
type FrameStatus string

const (
	FrameStatusPending    FrameStatus = "pending"
	FrameStatusGenerating FrameStatus = "generating"
	FrameStatusCompleted  FrameStatus = "completed"
	FrameStatusFailed     FrameStatus = "failed"
	FrameStatusRetry      FrameStatus = "retry"
)

// StoryboardStatus はストーリーボード全体のライフサイクルです。
// draft → in_progress → completed | archived と遷移します。
type StoryboardStatus string

const (
	StoryboardStatusDraft      StoryboardStatus = "draft"
	StoryboardStatusInProgress StoryboardStatus = "in_progress"
	StoryboardStatusCompleted  StoryboardStatus = "completed"
	StoryboardStatusArchived   StoryboardStatus = "archived"
)

// MaxStoryboardFrames はストーリーボードの推奨上限フレーム数です。
// 超過は品質チェック境界で警告になります。
const MaxStoryboardFrames = 12

// Frame はストーリーボードを構成する1コマです。
type Frame struct {
	ID              string                 `json:"id"`
	SceneID         string                 `json:"scene_id"`
	Order           int                    `json:"order"`
	Prompt          PromptEngineering      `json:"prompt"`
	Config          ImageGenerationConfig  `json:"config"`
	ConsistencyRefs []ConsistencyReference `json:"consistency_refs,omitempty"`
	Status          FrameStatus            `json:"status"`
	Result          *GenerationResult      `json:"result,omitempty"`
	History         []GenerationResult     `json:"history,omitempty"`
	Attempts        int                    `json:"attempts"`
}

// StoryboardSettings はストーリーボード全体の既定動作です。
type StoryboardSettings struct {
	DefaultConfig    ImageGenerationConfig  `json:"default_config"`
	GlobalRefs       []ConsistencyReference `json:"global_refs,omitempty"`
	AutoGenerate     bool                   `json:"auto_generate"`
	QualityThreshold float64                `json:"quality_threshold"`
	MaxRetries       int                    `json:"max_retries"`
	BatchSize        int                    `json:"batch_size"`
}

// Storyboard は1つのシナリオ配下のフレームの順序付き集合体です。
type Storyboard struct {
	ID         string             `json:"id"`
	ScenarioID string             `json:"scenario_id"`
	Title      string             `json:"title"`
	Status     StoryboardStatus   `json:"status"`
	Frames     []Frame            `json:"frames"`
	Settings   StoryboardSettings `json:"settings"`
	Version    int                `json:"version"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// NewStoryboard は draft 状態の空のストーリーボードを生成します。
func NewStoryboard(id, scenarioID, title string) *Storyboard {
	now := time.Now().UTC()
	return &Storyboard{
		ID:         id,
		ScenarioID: scenarioID,
		Title:      title,
		Status:     StoryboardStatusDraft,
		Settings: StoryboardSettings{
			DefaultConfig:    DefaultGenerationConfig(),
			QualityThreshold: 0.7,
			MaxRetries:       3,
			BatchSize:        4,
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LoadStoryboard はJSONバイト列からストーリーボードを復元します。
func LoadStoryboard(data []byte) (*Storyboard, error) {
	var sb Storyboard
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("ストーリーボードJSONのデコードに失敗しました: %w", err)
	}
	if err := sb.ValidateFrameOrder(); err != nil {
		return nil, err
	}
	return &sb, nil
}

// ValidateFrameOrder はフレームの Order が 0 起点で一意かつ連続であることを検証します。
func (s *Storyboard) ValidateFrameOrder() error {
	seen := make(map[int]string, len(s.Frames))
	for _, f := range s.Frames {
		if prev, dup := seen[f.Order]; dup {
			return fmt.Errorf("フレーム順序 %d が重複しています (frame %q と %q)", f.Order, prev, f.ID)
		}
		seen[f.Order] = f.ID
	}
	for i := range s.Frames {
		if _, ok := seen[i]; !ok {
			return fmt.Errorf("フレーム順序が連続していません: order %d が欠落しています", i)
		}
	}
	return nil
}

// ResolveConsistencyRefs はフレームが参照するリファレンスIDを解決します。
// フレームローカルのリファレンスを優先し、見つからなければグローバルリストを探します。
// どちらにも存在しないIDはエラーです。
func (s *Storyboard) ResolveConsistencyRefs(frame Frame, refIDs []string) ([]ConsistencyReference, error) {
	local := make(map[string]ConsistencyReference, len(frame.ConsistencyRefs))
	for _, r := range frame.ConsistencyRefs {
		local[r.ID] = r
	}
	global := make(map[string]ConsistencyReference, len(s.Settings.GlobalRefs))
	for _, r := range s.Settings.GlobalRefs {
		global[r.ID] = r
	}

	resolved := make([]ConsistencyReference, 0, len(refIDs))
	for _, id := range refIDs {
		if r, ok := local[id]; ok {
			resolved = append(resolved, r)
			continue
		}
		if r, ok := global[id]; ok {
			resolved = append(resolved, r)
			continue
		}
		return nil, fmt.Errorf("一貫性リファレンス %q がフレームにもグローバルにも存在しません", id)
	}
	return resolved, nil
}

// FrameByID は ID 一致するフレームへのポインタを返します。見つからなければ nil です。
func (s *Storyboard) FrameByID(frameID string) *Frame {
	for i := range s.Frames {
		if s.Frames[i].ID == frameID {
			return &s.Frames[i]
		}
	}
	return nil
}

// AppendResult は生成結果をフレームの履歴へ追記し、最新結果として設定します。
// 結果の追記だけでは Version は上がりません（構造変更ではないため）。
func (s *Storyboard) AppendResult(frameID string, result GenerationResult) error {
	frame := s.FrameByID(frameID)
	if frame == nil {
		return fmt.Errorf("フレーム %q が見つかりません", frameID)
	}
	frame.History = append(frame.History, result)
	frame.Result = &frame.History[len(frame.History)-1]
	frame.Status = FrameStatusCompleted
	frame.Attempts++
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// AddFrame はフレームを末尾に追加し、構造変更として Version を加算します。
func (s *Storyboard) AddFrame(frame Frame) {
	frame.Order = len(s.Frames)
	if frame.Status == "" {
		frame.Status = FrameStatusPending
	}
	s.Frames = append(s.Frames, frame)
	s.bumpVersion()
}

// RemoveFrame は指定フレームを取り除き、Order を詰め直して Version を加算します。
func (s *Storyboard) RemoveFrame(frameID string) error {
	idx := -1
	for i := range s.Frames {
		if s.Frames[i].ID == frameID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("フレーム %q が見つかりません", frameID)
	}
	s.Frames = append(s.Frames[:idx], s.Frames[idx+1:]...)
	for i := range s.Frames {
		s.Frames[i].Order = i
	}
	s.bumpVersion()
	return nil
}

func (s *Storyboard) bumpVersion() {
	s.Version++
	s.UpdatedAt = time.Now().UTC()
}

// CompletedFrames は結果を持つフレームだけを抜き出した新しいスライスを返します。
func (s *Storyboard) CompletedFrames() []Frame {
	done := make([]Frame, 0, len(s.Frames))
	for _, f := range s.Frames {
		if f.Result != nil {
			done = append(done, f)
		}
	}
	return done
}
