package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Project describes a project in a transport-friendly format.
type Project struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Logline      string   `json:"logline,omitempty"`
	Status       string   `json:"status"`
	AutoMode     bool     `json:"autoMode"`
	SceneOrder   []string `json:"sceneOrder,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	CreatedAt    string   `json:"createdAt,omitempty"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
}

// ProjectDetail is a project with its owned records attached.
type ProjectDetail struct {
	Project
	Assets []Asset `json:"assets"`
	Scenes []Scene `json:"scenes"`
	Reel   *Reel   `json:"reel,omitempty"`
}

// Asset describes a bible asset.
type Asset struct {
	ID           string `json:"id"`
	ProjectID    string `json:"projectId"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ImageStatus  string `json:"imageStatus"`
	ImageURL     string `json:"imageUrl,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// Variant describes one generation attempt.
type Variant struct {
	ID              string `json:"id"`
	ProjectID       string `json:"projectId"`
	ParentKind      string `json:"parentKind"`
	ParentID        string `json:"parentId"`
	ShotType        string `json:"shotType,omitempty"`
	Model           string `json:"model"`
	Status          string `json:"status"`
	GenerationOrder int    `json:"generationOrder"`
	Selected        bool   `json:"selected"`
	Prompt          string `json:"prompt,omitempty"`
	ImageURL        string `json:"imageUrl,omitempty"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

// Scene describes a decomposed scene; Production carries the opaque
// structured data verbatim.
type Scene struct {
	ID               string          `json:"id"`
	ProjectID        string          `json:"projectId"`
	SceneNumber      int             `json:"sceneNumber"`
	Title            string          `json:"title,omitempty"`
	Synopsis         string          `json:"synopsis,omitempty"`
	ValidationStatus string          `json:"validationStatus"`
	Production       json.RawMessage `json:"production,omitempty"`
	Shots            []Shot          `json:"shots,omitempty"`
	CreatedAt        string          `json:"createdAt,omitempty"`
	UpdatedAt        string          `json:"updatedAt,omitempty"`
}

// Shot describes a video generation job.
type Shot struct {
	ID              string  `json:"id"`
	ProjectID       string  `json:"projectId"`
	SceneID         string  `json:"sceneId"`
	ShotNumber      int     `json:"shotNumber"`
	SourceVariantID string  `json:"sourceVariantId,omitempty"`
	Status          string  `json:"status"`
	VideoURL        string  `json:"videoUrl,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	CreatedAt       string  `json:"createdAt,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
}

// Reel describes the project's final assembled output.
type Reel struct {
	ID           string `json:"id"`
	ProjectID    string `json:"projectId"`
	Status       string `json:"status"`
	VideoURL     string `json:"videoUrl,omitempty"`
	TransientURL string `json:"transientUrl,omitempty"`
	PublishedURL string `json:"publishedUrl,omitempty"`
	PublishedID  string `json:"publishedId,omitempty"`
	SegmentCount int    `json:"segmentCount"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// Segment is one ordered piece of an assembly preview.
type Segment struct {
	SceneID     string  `json:"sceneId"`
	SceneNumber int     `json:"sceneNumber"`
	ShotID      string  `json:"shotId"`
	ShotNumber  int     `json:"shotNumber"`
	URL         string  `json:"url"`
	Duration    float64 `json:"duration,omitempty"`
}

// Model describes one catalog entry.
type Model struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Label       string `json:"label,omitempty"`
	Default     bool   `json:"default"`
	Description string `json:"description,omitempty"`
}

// DatabaseHealth mirrors the store's self-diagnostics.
type DatabaseHealth struct {
	Path           string `json:"path"`
	Exists         bool   `json:"exists"`
	Readable       bool   `json:"readable"`
	IntegrityCheck bool   `json:"integrityCheck"`
	Projects       int    `json:"projects"`
	Error          string `json:"error,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running         bool           `json:"running"`
	PID             int            `json:"pid"`
	Version         string         `json:"version,omitempty"`
	LockFilePath    string         `json:"lockFilePath,omitempty"`
	Database        DatabaseHealth `json:"database"`
	GeneratingShots int            `json:"generatingShots"`
}

// ProjectListResponse wraps a collection of projects.
type ProjectListResponse struct {
	Projects []Project `json:"projects"`
}

// VariantListResponse wraps a collection of variants.
type VariantListResponse struct {
	Variants []Variant `json:"variants"`
}

// ModelListResponse wraps the catalog listing.
type ModelListResponse struct {
	Models []Model `json:"models"`
}

// SegmentListResponse wraps an assembly order preview.
type SegmentListResponse struct {
	Segments []Segment `json:"segments"`
}

// SweepResponse reports how many video jobs a sweep admitted.
type SweepResponse struct {
	Admitted int `json:"admitted"`
}

// VideoDecision reports the outcome of a video admission request.
type VideoDecision struct {
	Shot   *Shot  `json:"shot,omitempty"`
	State  string `json:"state,omitempty"`
	Queued bool   `json:"queued"`
}

// ErrorResponse is the uniform error body for non-2xx answers.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateProjectRequest starts a new project.
type CreateProjectRequest struct {
	Title      string `json:"title"`
	Logline    string `json:"logline,omitempty"`
	SourceText string `json:"sourceText"`
	AutoMode   bool   `json:"autoMode,omitempty"`
}

// GenerateVariantsRequest fans out image generation for a parent record.
type GenerateVariantsRequest struct {
	ParentKind string   `json:"parentKind"`
	ParentID   string   `json:"parentId"`
	ShotType   string   `json:"shotType,omitempty"`
	Prompt     string   `json:"prompt,omitempty"`
	Models     []string `json:"models,omitempty"`
}

// RegenerateVariantRequest creates a successor for an existing variant.
type RegenerateVariantRequest struct {
	Prompt string `json:"prompt,omitempty"`
}

// VideoRequest asks for a video job for a scene.
type VideoRequest struct {
	SceneID         string `json:"sceneId"`
	SourceVariantID string `json:"sourceVariantId,omitempty"`
}

// AssembleRequest triggers final reel assembly.
type AssembleRequest struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}
