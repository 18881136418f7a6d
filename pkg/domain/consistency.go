package domain

// ReferenceType は一貫性リファレンスが表す視覚的特徴の種類です。
type ReferenceType string

const (
	ReferenceTypeCharacter ReferenceType = "character"
	ReferenceTypeLocation  ReferenceType = "location"
	ReferenceTypeObject    ReferenceType = "object"
	ReferenceTypeStyle     ReferenceType = "style"
)

// MaxKeyFeatures は1つのリファレンスが保持できる特徴キーワードの上限です。
const MaxKeyFeatures = 10

// ConsistencyReference は、後続フレームのプロンプトを過去フレームの
// 見た目に寄せるための重み付きヒントです。
// Weight は必ず [0.0, 1.0] の範囲に収まります。
type ConsistencyReference struct {
	ID                string        `json:"id" validate:"required"`
	Name              string        `json:"name" validate:"required"`
	Type              ReferenceType `json:"type" validate:"required,oneof=character location object style"`
	Weight            float64       `json:"weight" validate:"gte=0,lte=1"`
	KeyFeatures       []string      `json:"key_features" validate:"max=10,dive,max=120"`
	ReferenceImageURL string        `json:"reference_image_url,omitempty" validate:"omitempty,url"`
	IsActive          bool          `json:"is_active"`
}

// ActiveReferences は IsActive なリファレンスだけを抜き出した新しいスライスを返します。
// 非アクティブなものは履歴・監査用に残すだけで、プロンプト強化には使いません。
func ActiveReferences(refs []ConsistencyReference) []ConsistencyReference {
	active := make([]ConsistencyReference, 0, len(refs))
	for _, r := range refs {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active
}

// ConsistencyData は、生成済み画像からプロバイダーが抽出したスタイル情報です。
// StyleFingerprint はプロバイダー固有の不透明な記述子として扱います。
type ConsistencyData struct {
	StyleFingerprint string   `json:"style_fingerprint"`
	ColorPalette     []string `json:"color_palette"`
	LightingProfile  string   `json:"lighting_profile"`
	CompositionStyle string   `json:"composition_style"`
}

// ColorPaletteAnalysis は1枚の画像の色彩解析の結果です。
type ColorPaletteAnalysis struct {
	DominantColor string   `json:"dominant_color"`
	Palette       []string `json:"palette"`
	Temperature   string   `json:"temperature"` // warm / cool / neutral
}

// StyleAnalysis は1枚の画像の画風・照明・構図の解析結果です。
type StyleAnalysis struct {
	ArtStyle    string `json:"art_style"`
	Lighting    string `json:"lighting"`
	Mood        string `json:"mood"`
	Composition string `json:"composition"`
}

// ConsistencyScore はストーリーボード全体の視覚的一貫性の採点結果です。
// 各サブスコアは「最頻値の出現率」(0.0〜1.0) で、Overall はその単純平均です。
type ConsistencyScore struct {
	Overall         float64  `json:"overall"`
	Color           float64  `json:"color"`
	Style           float64  `json:"style"`
	Lighting        float64  `json:"lighting"`
	Composition     float64  `json:"composition"`
	Recommendations []string `json:"recommendations,omitempty"`
}
