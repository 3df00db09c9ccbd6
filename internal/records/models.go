package records

import "time"

// ProjectStatus tracks a project through the pipeline stages.
type ProjectStatus string

const (
	ProjectParsing         ProjectStatus = "parsing"
	ProjectBibleReview     ProjectStatus = "bible_review"
	ProjectSceneValidation ProjectStatus = "scene_validation"
	ProjectAssetGeneration ProjectStatus = "asset_generation"
	ProjectExporting       ProjectStatus = "exporting"
	ProjectFailed          ProjectStatus = "failed"
)

// Project is the root record owning every other entity.
type Project struct {
	ID             string
	Title          string
	Logline        string
	SourceText     string
	Status         ProjectStatus
	SceneOrderJSON string
	AutoMode       bool
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AssetKind distinguishes the bible asset categories.
type AssetKind string

const (
	AssetCharacter AssetKind = "character"
	AssetLocation  AssetKind = "location"
	AssetProp      AssetKind = "prop"
)

// ImageStatus tracks a bible asset's reference image.
type ImageStatus string

const (
	ImagePending    ImageStatus = "pending"
	ImageGenerating ImageStatus = "generating"
	ImageReady      ImageStatus = "ready"
	ImageApproved   ImageStatus = "approved"
	ImageFailed     ImageStatus = "failed"
)

// BibleAsset is a reusable visual reference approved once and reused across
// scenes for consistency.
type BibleAsset struct {
	ID           string
	ProjectID    string
	Kind         AssetKind
	Name         string
	Description  string
	ImageStatus  ImageStatus
	ImageURL     string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ParentKind identifies which record a variant belongs to.
type ParentKind string

const (
	ParentCharacter  ParentKind = "character"
	ParentLocation   ParentKind = "location"
	ParentProp       ParentKind = "prop"
	ParentSceneImage ParentKind = "scene_image"
)

// VariantStatus tracks one generation attempt.
type VariantStatus string

const (
	VariantPending    VariantStatus = "pending"
	VariantGenerating VariantStatus = "generating"
	VariantReady      VariantStatus = "ready"
	VariantSelected   VariantStatus = "selected"
	VariantFailed     VariantStatus = "failed"
)

// Variant is one candidate generation attempt for an asset or scene image,
// tagged by which model produced it. At most one variant per
// (parent_id, shot_type) may be selected.
type Variant struct {
	ID              string
	ProjectID       string
	ParentKind      ParentKind
	ParentID        string
	ShotType        string
	Model           string
	Status          VariantStatus
	GenerationOrder int
	IsSelected      bool
	Prompt          string
	ImageURL        string
	SourceURL       string
	ParentImageURL  string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Selectable reports whether the variant may be selected or shown as a
// candidate. Generating and failed attempts are not selectable.
func (v *Variant) Selectable() bool {
	return v.Status == VariantReady || v.Status == VariantSelected
}

// ValidationStatus tracks human review of a scene.
type ValidationStatus string

const (
	ScenePending  ValidationStatus = "pending"
	SceneApproved ValidationStatus = "approved"
)

// Scene is one unit of the decomposed source document. ProductionJSON carries
// structured production data (characters present, props, mood, audio cues)
// that this core treats as opaque.
type Scene struct {
	ID               string
	ProjectID        string
	SceneNumber      int
	Title            string
	Synopsis         string
	ValidationStatus ValidationStatus
	ProductionJSON   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ShotStatus tracks a video generation job.
type ShotStatus string

const (
	ShotGenerating ShotStatus = "generating"
	ShotReady      ShotStatus = "ready"
	ShotApproved   ShotStatus = "approved"
	ShotFailed     ShotStatus = "failed"
)

// Shot is a video segment generated for a scene. The simple flow uses a single
// shot per scene with shot_number 1; the shot-based flow orders many.
type Shot struct {
	ID              string
	ProjectID       string
	SceneID         string
	ShotNumber      int
	SourceVariantID string
	Prompt          string
	Status          ShotStatus
	VideoURL        string
	DurationSeconds float64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Complete reports whether the shot has a usable result.
func (s *Shot) Complete() bool {
	return (s.Status == ShotReady || s.Status == ShotApproved) && s.VideoURL != ""
}

// ReelStatus tracks final assembly.
type ReelStatus string

const (
	ReelAssembling ReelStatus = "assembling"
	ReelUploading  ReelStatus = "uploading"
	ReelReady      ReelStatus = "ready"
	ReelFailed     ReelStatus = "failed"
)

// FinalReel is the single assembled output per project. VideoURL is the
// permanent re-hosted location; TransientURL is the gateway's original result.
type FinalReel struct {
	ID           string
	ProjectID    string
	Status       ReelStatus
	VideoURL     string
	TransientURL string
	PublishedURL string
	PublishedID  string
	SegmentCount int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
