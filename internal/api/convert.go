package api

import (
	"encoding/json"
	"time"

	"reelsmith/internal/assembly"
	"reelsmith/internal/catalog"
	"reelsmith/internal/records"
)

// FromProject converts a project record to its API representation. The scene
// order is omitted here; ProjectDetail resolves it against the loaded scenes.
func FromProject(project *records.Project) Project {
	if project == nil {
		return Project{}
	}
	return Project{
		ID:           project.ID,
		Title:        project.Title,
		Logline:      project.Logline,
		Status:       string(project.Status),
		AutoMode:     project.AutoMode,
		ErrorMessage: project.ErrorMessage,
		CreatedAt:    formatTime(project.CreatedAt),
		UpdatedAt:    formatTime(project.UpdatedAt),
	}
}

// FromProjects converts a project listing.
func FromProjects(projects []*records.Project) []Project {
	out := make([]Project, 0, len(projects))
	for _, p := range projects {
		out = append(out, FromProject(p))
	}
	return out
}

// FromProjectDetail assembles the full project view. shotsByScene may be nil
// when the caller does not need shot detail.
func FromProjectDetail(project *records.Project, assets []*records.BibleAsset, scenes []*records.Scene, shotsByScene map[string][]*records.Shot, reel *records.FinalReel) ProjectDetail {
	detail := ProjectDetail{
		Project: FromProject(project),
		Assets:  make([]Asset, 0, len(assets)),
		Scenes:  make([]Scene, 0, len(scenes)),
	}
	if project != nil {
		detail.SceneOrder = records.ResolveSceneOrder(project.SceneOrderJSON, scenes)
	}
	for _, asset := range assets {
		detail.Assets = append(detail.Assets, FromAsset(asset))
	}
	for _, scene := range scenes {
		detail.Scenes = append(detail.Scenes, FromScene(scene, shotsByScene[scene.ID]))
	}
	if reel != nil {
		converted := FromReel(reel)
		detail.Reel = &converted
	}
	return detail
}

// FromAsset converts a bible asset record.
func FromAsset(asset *records.BibleAsset) Asset {
	if asset == nil {
		return Asset{}
	}
	return Asset{
		ID:           asset.ID,
		ProjectID:    asset.ProjectID,
		Kind:         string(asset.Kind),
		Name:         asset.Name,
		Description:  asset.Description,
		ImageStatus:  string(asset.ImageStatus),
		ImageURL:     asset.ImageURL,
		ErrorMessage: asset.ErrorMessage,
		CreatedAt:    formatTime(asset.CreatedAt),
		UpdatedAt:    formatTime(asset.UpdatedAt),
	}
}

// FromVariant converts a variant record.
func FromVariant(variant *records.Variant) Variant {
	if variant == nil {
		return Variant{}
	}
	return Variant{
		ID:              variant.ID,
		ProjectID:       variant.ProjectID,
		ParentKind:      string(variant.ParentKind),
		ParentID:        variant.ParentID,
		ShotType:        variant.ShotType,
		Model:           variant.Model,
		Status:          string(variant.Status),
		GenerationOrder: variant.GenerationOrder,
		Selected:        variant.IsSelected,
		Prompt:          variant.Prompt,
		ImageURL:        variant.ImageURL,
		ErrorMessage:    variant.ErrorMessage,
		CreatedAt:       formatTime(variant.CreatedAt),
		UpdatedAt:       formatTime(variant.UpdatedAt),
	}
}

// FromVariants converts a variant listing.
func FromVariants(variants []*records.Variant) []Variant {
	out := make([]Variant, 0, len(variants))
	for _, v := range variants {
		out = append(out, FromVariant(v))
	}
	return out
}

// FromScene converts a scene record, attaching its shots when provided.
func FromScene(scene *records.Scene, shots []*records.Shot) Scene {
	if scene == nil {
		return Scene{}
	}
	dto := Scene{
		ID:               scene.ID,
		ProjectID:        scene.ProjectID,
		SceneNumber:      scene.SceneNumber,
		Title:            scene.Title,
		Synopsis:         scene.Synopsis,
		ValidationStatus: string(scene.ValidationStatus),
		CreatedAt:        formatTime(scene.CreatedAt),
		UpdatedAt:        formatTime(scene.UpdatedAt),
	}
	if raw := scene.ProductionJSON; raw != "" && json.Valid([]byte(raw)) {
		dto.Production = json.RawMessage(raw)
	}
	for _, shot := range shots {
		dto.Shots = append(dto.Shots, FromShot(shot))
	}
	return dto
}

// FromShot converts a shot record.
func FromShot(shot *records.Shot) Shot {
	if shot == nil {
		return Shot{}
	}
	return Shot{
		ID:              shot.ID,
		ProjectID:       shot.ProjectID,
		SceneID:         shot.SceneID,
		ShotNumber:      shot.ShotNumber,
		SourceVariantID: shot.SourceVariantID,
		Status:          string(shot.Status),
		VideoURL:        shot.VideoURL,
		DurationSeconds: shot.DurationSeconds,
		ErrorMessage:    shot.ErrorMessage,
		CreatedAt:       formatTime(shot.CreatedAt),
		UpdatedAt:       formatTime(shot.UpdatedAt),
	}
}

// FromReel converts a final reel record.
func FromReel(reel *records.FinalReel) Reel {
	if reel == nil {
		return Reel{}
	}
	return Reel{
		ID:           reel.ID,
		ProjectID:    reel.ProjectID,
		Status:       string(reel.Status),
		VideoURL:     reel.VideoURL,
		TransientURL: reel.TransientURL,
		PublishedURL: reel.PublishedURL,
		PublishedID:  reel.PublishedID,
		SegmentCount: reel.SegmentCount,
		ErrorMessage: reel.ErrorMessage,
		CreatedAt:    formatTime(reel.CreatedAt),
		UpdatedAt:    formatTime(reel.UpdatedAt),
	}
}

// FromSegments converts an assembly order preview.
func FromSegments(segments []assembly.Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, Segment{
			SceneID:     seg.SceneID,
			SceneNumber: seg.SceneNumber,
			ShotID:      seg.ShotID,
			ShotNumber:  seg.ShotNumber,
			URL:         seg.URL,
			Duration:    seg.Duration,
		})
	}
	return out
}

// FromModels converts catalog entries.
func FromModels(models []catalog.Model) []Model {
	out := make([]Model, 0, len(models))
	for _, m := range models {
		out = append(out, Model{
			Name:        m.Name,
			Kind:        string(m.Kind),
			Label:       m.Label,
			Default:     m.Default,
			Description: m.Description,
		})
	}
	return out
}

// FromHealth converts store diagnostics.
func FromHealth(health records.DatabaseHealth) DatabaseHealth {
	return DatabaseHealth{
		Path:           health.DBPath,
		Exists:         health.DatabaseExists,
		Readable:       health.DatabaseReadable,
		IntegrityCheck: health.IntegrityCheck,
		Projects:       health.Projects,
		Error:          health.Error,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
