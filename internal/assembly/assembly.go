// Package assembly orders finished shots into the project's final reel and
// drives the composition gateway. Ordering honors the project's stored scene
// order and falls back to ascending scene number; the ordinal-versus-id
// heuristic lives in the records package, not here.
package assembly

import (
	"context"
	"fmt"
	"log/slog"

	"reelsmith/internal/config"
	"reelsmith/internal/events"
	"reelsmith/internal/logging"
	"reelsmith/internal/notifications"
	"reelsmith/internal/records"
	"reelsmith/internal/services"
	"reelsmith/internal/services/composition"
	"reelsmith/internal/storage"
)

// Segment is one ordered piece of the final reel, carrying enough context for
// order previews. Duration is advisory and may be zero.
type Segment struct {
	SceneID     string  `json:"scene_id"`
	SceneNumber int     `json:"scene_number"`
	ShotID      string  `json:"shot_id"`
	ShotNumber  int     `json:"shot_number"`
	URL         string  `json:"url"`
	Duration    float64 `json:"duration"`
}

// Orderer assembles a project's completed shots into its single final reel.
type Orderer struct {
	cfg      *config.Config
	store    *records.Store
	gateway  composition.Gateway
	blobs    storage.BlobStore
	hub      *events.Hub
	notifier notifications.Service
	logger   *slog.Logger
}

// NewOrderer wires the assembler.
func NewOrderer(cfg *config.Config, store *records.Store, gateway composition.Gateway, blobs storage.BlobStore, hub *events.Hub, notifier notifications.Service, logger *slog.Logger) *Orderer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orderer{
		cfg:      cfg,
		store:    store,
		gateway:  gateway,
		blobs:    blobs,
		hub:      hub,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "assembly"),
	}
}

// ResolveOrder returns the project's assembly order: completed shots grouped
// by scene, scenes in the project's resolved order, shots within a scene by
// shot number. Scenes without a completed shot are skipped without error.
func (o *Orderer) ResolveOrder(ctx context.Context, projectID string) ([]Segment, error) {
	project, err := o.mustGetProject(ctx, projectID, "resolve_order")
	if err != nil {
		return nil, err
	}

	scenes, err := o.store.ScenesByProject(ctx, projectID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "assembly", "resolve_order", "load scenes", err)
	}
	byID := make(map[string]*records.Scene, len(scenes))
	for _, scene := range scenes {
		byID[scene.ID] = scene
	}

	var segments []Segment
	for _, sceneID := range records.ResolveSceneOrder(project.SceneOrderJSON, scenes) {
		scene := byID[sceneID]
		if scene == nil {
			continue
		}
		shots, err := o.store.ShotsByScene(ctx, scene.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "assembly", "resolve_order", "load shots", err)
		}
		for _, shot := range shots {
			if !shot.Complete() {
				continue
			}
			segments = append(segments, Segment{
				SceneID:     scene.ID,
				SceneNumber: scene.SceneNumber,
				ShotID:      shot.ID,
				ShotNumber:  shot.ShotNumber,
				URL:         shot.VideoURL,
				Duration:    shot.DurationSeconds,
			})
		}
	}
	return segments, nil
}

// Assemble composes the project's completed shots into the final reel. The
// project keeps a single reel row; repeated calls reset and reuse it, so
// retrying a failed assembly is this same operation.
func (o *Orderer) Assemble(ctx context.Context, projectID, title, description string) (*records.FinalReel, error) {
	project, err := o.mustGetProject(ctx, projectID, "assemble")
	if err != nil {
		return nil, err
	}

	segments, err := o.ResolveOrder(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(segments) < 2 {
		return nil, services.Wrap(services.ErrPrecondition, "assembly", "assemble",
			fmt.Sprintf("need at least 2 completed shots to assemble, have %d", len(segments)), nil)
	}

	reel, err := o.store.EnsureReel(ctx, projectID, len(segments))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "assembly", "assemble", "ensure reel", err)
	}
	o.publish(reel)

	if project.Status != records.ProjectExporting {
		project.Status = records.ProjectExporting
		if err := o.store.UpdateProject(ctx, project); err != nil {
			return nil, services.Wrap(services.ErrTransient, "assembly", "assemble", "mark project exporting", err)
		}
		o.hub.Publish(events.Event{
			Type:      events.TypeProjectUpdated,
			ProjectID: project.ID,
			RecordID:  project.ID,
			Status:    string(project.Status),
		})
	}

	if title == "" {
		title = project.Title
	}
	videos := make([]composition.Segment, len(segments))
	for i, seg := range segments {
		videos[i] = composition.Segment{URL: seg.URL, Duration: seg.Duration}
	}

	o.logger.Info("composing final reel",
		logging.FieldProjectID, projectID, "segments", len(segments))

	resp, err := o.gateway.Compose(ctx, composition.ComposeRequest{
		ProjectID:   projectID,
		Title:       title,
		Description: description,
		Videos:      videos,
	})
	if err == nil && !resp.Success {
		err = services.Wrap(services.ErrExternal, "assembly", "assemble", coalesce(resp.Error, "composition rejected"), nil)
	}
	if err == nil && resp.VideoURL == "" {
		err = services.Wrap(services.ErrExternal, "assembly", "assemble", "composition returned no video", nil)
	}
	if err != nil {
		return o.failReel(ctx, project, reel, err)
	}

	reel.Status = records.ReelUploading
	reel.TransientURL = resp.VideoURL
	if err := o.store.UpdateReel(ctx, reel); err != nil {
		return nil, services.Wrap(services.ErrTransient, "assembly", "assemble", "record composed result", err)
	}
	o.publish(reel)

	reel.VideoURL = o.rehost(ctx, resp.VideoURL, storage.ReelKey(projectID))
	reel.PublishedURL = resp.PublishedURL
	reel.PublishedID = resp.PublishedID
	reel.Status = records.ReelReady
	reel.ErrorMessage = ""
	if err := o.store.UpdateReel(ctx, reel); err != nil {
		return nil, services.Wrap(services.ErrTransient, "assembly", "assemble", "record final reel", err)
	}
	o.publish(reel)

	if o.notifier != nil {
		if err := o.notifier.NotifyReelReady(ctx, project.Title, reel.VideoURL); err != nil {
			o.logger.Warn("reel notification failed", logging.FieldProjectID, projectID, logging.Error(err))
		}
	}
	o.logger.Info("final reel ready",
		logging.FieldProjectID, projectID, "video_url", reel.VideoURL)
	return reel, nil
}

// Retry re-runs assembly. EnsureReel resets the existing row, so this is
// Assemble under a name that reads right at the call sites.
func (o *Orderer) Retry(ctx context.Context, projectID, title, description string) (*records.FinalReel, error) {
	return o.Assemble(ctx, projectID, title, description)
}

func (o *Orderer) failReel(ctx context.Context, project *records.Project, reel *records.FinalReel, cause error) (*records.FinalReel, error) {
	reel.Status = records.ReelFailed
	reel.ErrorMessage = cause.Error()
	if err := o.store.UpdateReel(ctx, reel); err != nil {
		o.logger.Error("failed to record assembly failure",
			logging.FieldProjectID, project.ID, logging.Error(err))
	}
	o.publish(reel)
	if o.notifier != nil {
		if err := o.notifier.NotifyReelFailed(ctx, project.Title, reel.ErrorMessage); err != nil {
			o.logger.Warn("failure notification failed", logging.FieldProjectID, project.ID, logging.Error(err))
		}
	}
	return reel, cause
}

func (o *Orderer) rehost(ctx context.Context, transientURL, key string) string {
	permanent, err := o.blobs.Rehost(ctx, transientURL, key)
	if err != nil {
		o.logger.Warn("re-host failed, keeping transient url",
			"object", key, logging.Error(err))
		return transientURL
	}
	return permanent
}

func (o *Orderer) mustGetProject(ctx context.Context, projectID, operation string) (*records.Project, error) {
	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "assembly", operation, "load project", err)
	}
	if project == nil {
		return nil, services.Wrap(services.ErrNotFound, "assembly", operation, "project "+projectID+" not found", nil)
	}
	return project, nil
}

func (o *Orderer) publish(reel *records.FinalReel) {
	o.hub.Publish(events.Event{
		Type:      events.TypeReelUpdated,
		ProjectID: reel.ProjectID,
		RecordID:  reel.ID,
		Status:    string(reel.Status),
	})
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
