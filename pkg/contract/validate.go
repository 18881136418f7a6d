package contract

import (
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// validatorInstance は共有の validator を遅延初期化して返します。
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateFrameRequest はフレーム生成要求の契約を検証します。
// 違反は型付きの ValidationError として返し、不正データは先へ通しません。
func ValidateFrameRequest(req domain.FrameRequest) error {
	if err := validatorInstance().Struct(req); err != nil {
		return newValidationError("FrameRequest", req, err)
	}
	return nil
}

// ValidateGenerationConfig は解決済みの生成設定の境界値を検証します。
func ValidateGenerationConfig(cfg domain.ImageGenerationConfig) error {
	if err := validatorInstance().Struct(cfg); err != nil {
		return newValidationError("ImageGenerationConfig", cfg, err)
	}
	return nil
}

// ValidateConsistencyReference は一貫性リファレンスの契約を検証します。
func ValidateConsistencyReference(ref domain.ConsistencyReference) error {
	if err := validatorInstance().Struct(ref); err != nil {
		return newValidationError("ConsistencyReference", ref, err)
	}
	return nil
}

// ValidateStoryboard はストーリーボード集合体の不変条件を検証します。
// フレーム順序の一意・連続性と、各フレームのリファレンス重みを確認します。
func ValidateStoryboard(sb *domain.Storyboard) error {
	if err := sb.ValidateFrameOrder(); err != nil {
		return &ValidationError{
			Entity:  "Storyboard",
			Payload: sb.ID,
			Issues:  []FieldIssue{{Field: "frames", Tag: "order", Message: err.Error()}},
		}
	}
	for _, f := range sb.Frames {
		for _, ref := range f.ConsistencyRefs {
			if err := ValidateConsistencyReference(ref); err != nil {
				return err
			}
		}
	}
	for _, ref := range sb.Settings.GlobalRefs {
		if err := ValidateConsistencyReference(ref); err != nil {
			return err
		}
	}
	return nil
}
