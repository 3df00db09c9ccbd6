// Package admission bounds the number of concurrently generating video shots.
// This is count-based admission control, not a work queue: a request over the
// cap is dropped with a queued signal and no record, and relies on a later
// sweep to start it. The count is read non-atomically; the cap is a soft
// capacity guard, not a correctness invariant.
package admission

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
	"reelsmith/internal/services/generation"
	"reelsmith/internal/storage"
	"reelsmith/internal/webhook"
)

// Decision is the outcome of an admission request.
type Decision struct {
	// Shot is set when a job exists for the scene, newly admitted or prior.
	Shot *records.Shot
	// State mirrors Shot.Status for convenience.
	State records.ShotStatus
	// Queued reports a capped request that created no record.
	Queued bool
}

// Queue admits video generation jobs under the configured cap.
type Queue struct {
	cfg      *config.Config
	store    *records.Store
	blobs    storage.BlobStore
	gateway  generation.Gateway
	hub      *events.Hub
	notifier notifications.Service
	logger   *slog.Logger
}

// NewQueue wires the admission queue.
func NewQueue(cfg *config.Config, store *records.Store, blobs storage.BlobStore, gateway generation.Gateway, hub *events.Hub, notifier notifications.Service, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Queue{
		cfg:      cfg,
		store:    store,
		blobs:    blobs,
		gateway:  gateway,
		hub:      hub,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "admission"),
	}
}

// CanAdmit reports whether a new video job fits under the cap right now. The
// answer can be stale by the time the caller acts on it.
func (q *Queue) CanAdmit(ctx context.Context) (bool, error) {
	count, err := q.store.CountGeneratingShots(ctx)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "admission", "can_admit", "count in-flight shots", err)
	}
	return count < q.cfg.Admission.MaxConcurrentJobs, nil
}

// Request asks for a video job for a scene. An existing job is returned
// as-is, making retried requests idempotent. Over the cap the request is
// dropped with Queued set and no record created. sourceVariantID may be empty
// when the scene has a selected image.
func (q *Queue) Request(ctx context.Context, sceneID, sourceVariantID string) (Decision, error) {
	scene, err := q.mustGetScene(ctx, sceneID)
	if err != nil {
		return Decision{}, err
	}

	existing, err := q.store.ShotsByScene(ctx, sceneID)
	if err != nil {
		return Decision{}, services.Wrap(services.ErrTransient, "admission", "request", "load shots", err)
	}
	if len(existing) > 0 {
		shot := existing[0]
		return Decision{Shot: shot, State: shot.Status}, nil
	}

	variant, err := q.resolveSourceVariant(ctx, scene, sourceVariantID)
	if err != nil {
		return Decision{}, err
	}

	ok, err := q.CanAdmit(ctx)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		q.logger.Debug("admission cap reached, dropping request",
			logging.FieldSceneID, sceneID)
		return Decision{Queued: true}, nil
	}

	shot, err := q.store.NewShot(ctx, &records.Shot{
		ProjectID:       scene.ProjectID,
		SceneID:         scene.ID,
		SourceVariantID: variant.ID,
		Prompt:          variant.Prompt,
	})
	if err != nil {
		return Decision{}, services.Wrap(services.ErrTransient, "admission", "request", "insert shot", err)
	}

	q.submit(ctx, shot, variant.ImageURL)
	shot, err = q.store.GetShot(ctx, shot.ID)
	if err != nil {
		return Decision{}, services.Wrap(services.ErrTransient, "admission", "request", "reload shot", err)
	}
	q.publish(shot)
	return Decision{Shot: shot, State: shot.Status}, nil
}

// Sweep admits jobs for scenes that have a selected image but no video yet,
// stopping at the cap. Invoked after video completions and from the CLI,
// never on a timer.
func (q *Queue) Sweep(ctx context.Context, projectID string) (int, error) {
	scenes, err := q.store.ScenesByProject(ctx, projectID)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "admission", "sweep", "load scenes", err)
	}

	admitted := 0
	for _, scene := range scenes {
		shots, err := q.store.ShotsByScene(ctx, scene.ID)
		if err != nil {
			return admitted, services.Wrap(services.ErrTransient, "admission", "sweep", "load shots", err)
		}
		if len(shots) > 0 {
			continue
		}
		if _, err := q.resolveSourceVariant(ctx, scene, ""); err != nil {
			continue
		}

		decision, err := q.Request(ctx, scene.ID, "")
		if err != nil {
			return admitted, err
		}
		if decision.Queued {
			break
		}
		if decision.Shot != nil {
			admitted++
		}
	}

	if admitted > 0 {
		q.hub.Publish(events.Event{
			Type:      events.TypeSweepApplied,
			ProjectID: projectID,
			Fields:    map[string]string{"admitted": fmt.Sprintf("%d", admitted)},
		})
	}
	return admitted, nil
}

// Cancel deletes a generating shot outright, freeing its admission slot so a
// retry starts clean.
func (q *Queue) Cancel(ctx context.Context, shotID string) error {
	shot, err := q.mustGetShot(ctx, shotID, "cancel")
	if err != nil {
		return err
	}
	if shot.Status != records.ShotGenerating {
		return services.Wrap(services.ErrPrecondition, "admission", "cancel",
			fmt.Sprintf("shot is %s, only generating shots can be cancelled", shot.Status), nil)
	}

	if _, err := q.store.DeleteShot(ctx, shotID); err != nil {
		return services.Wrap(services.ErrTransient, "admission", "cancel", "delete shot", err)
	}
	q.hub.Publish(events.Event{
		Type:      events.TypeShotUpdated,
		ProjectID: shot.ProjectID,
		RecordID:  shot.ID,
		Status:    "cancelled",
	})
	return nil
}

// Regenerate resubmits a finished or failed shot through the admission path.
func (q *Queue) Regenerate(ctx context.Context, shotID string) (Decision, error) {
	shot, err := q.mustGetShot(ctx, shotID, "regenerate")
	if err != nil {
		return Decision{}, err
	}
	if shot.Status == records.ShotGenerating {
		return Decision{}, services.Wrap(services.ErrPrecondition, "admission", "regenerate",
			"shot is already generating", nil)
	}

	ok, err := q.CanAdmit(ctx)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{Queued: true}, nil
	}

	variant, err := q.mustGetVariant(ctx, shot.SourceVariantID)
	if err != nil {
		return Decision{}, err
	}

	shot.Status = records.ShotGenerating
	shot.VideoURL = ""
	shot.ErrorMessage = ""
	if err := q.store.UpdateShot(ctx, shot); err != nil {
		return Decision{}, services.Wrap(services.ErrTransient, "admission", "regenerate", "reset shot", err)
	}

	q.submit(ctx, shot, variant.ImageURL)
	shot, err = q.store.GetShot(ctx, shot.ID)
	if err != nil {
		return Decision{}, services.Wrap(services.ErrTransient, "admission", "regenerate", "reload shot", err)
	}
	q.publish(shot)
	return Decision{Shot: shot, State: shot.Status}, nil
}

// ApplyCompletion applies an asynchronous video result by shot id, then
// sweeps the project since a slot just opened. Idempotent under repeated and
// out-of-order delivery.
func (q *Queue) ApplyCompletion(ctx context.Context, shotID string, result webhook.CompletionResult) error {
	shot, err := q.mustGetShot(ctx, shotID, "apply_completion")
	if err != nil {
		return err
	}

	if !result.Ready {
		shot.Status = records.ShotFailed
		shot.ErrorMessage = result.ErrorMessage
		if shot.ErrorMessage == "" {
			shot.ErrorMessage = "video generation failed"
		}
		if err := q.store.UpdateShot(ctx, shot); err != nil {
			return services.Wrap(services.ErrTransient, "admission", "apply_completion", "record failure", err)
		}
		q.publish(shot)
		q.notifyVideoFailed(ctx, shot)
	} else {
		transient := result.VideoURL
		if transient == "" {
			transient = result.ImageURL
		}
		shot.VideoURL = q.rehost(ctx, transient, storage.ShotVideoKey(shot.ID))
		shot.ErrorMessage = ""
		if shot.Status != records.ShotApproved {
			shot.Status = records.ShotReady
		}
		if err := q.store.UpdateShot(ctx, shot); err != nil {
			return services.Wrap(services.ErrTransient, "admission", "apply_completion", "record result", err)
		}
		q.publish(shot)
	}

	if _, err := q.Sweep(ctx, shot.ProjectID); err != nil {
		q.logger.Warn("post-completion sweep failed",
			logging.FieldProjectID, shot.ProjectID, logging.Error(err))
	}
	return nil
}

// resolveSourceVariant picks the image a video job renders from: an explicit
// variant id, or the scene's selected image.
func (q *Queue) resolveSourceVariant(ctx context.Context, scene *records.Scene, sourceVariantID string) (*records.Variant, error) {
	if sourceVariantID != "" {
		return q.mustGetVariant(ctx, sourceVariantID)
	}

	all, err := q.store.VariantsByParent(ctx, scene.ID, "")
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "admission", "resolve_source", "load scene variants", err)
	}
	for _, v := range all {
		if v.IsSelected {
			return v, nil
		}
	}
	return nil, services.Wrap(services.ErrPrecondition, "admission", "resolve_source",
		"scene has no selected image to render from", nil)
}

func (q *Queue) submit(ctx context.Context, shot *records.Shot, sourceImageURL string) {
	resp, err := q.gateway.Submit(ctx, generation.SubmitRequest{
		Task:              generation.TaskVideo,
		ProjectID:         shot.ProjectID,
		TargetID:          shot.SceneID,
		Prompt:            shot.Prompt,
		ReferenceImageURL: sourceImageURL,
		CallbackURL:       q.cfg.CallbackURL("/api/callbacks/video?shot_id=" + shot.ID),
	})
	if err == nil && !resp.Accepted {
		err = services.Wrap(services.ErrExternal, "admission", "submit", resp.Message, nil)
	}
	if err != nil {
		q.logger.Warn("video submission failed",
			logging.FieldShotID, shot.ID, logging.Error(err))
		shot.Status = records.ShotFailed
		shot.ErrorMessage = err.Error()
		if updateErr := q.store.UpdateShot(ctx, shot); updateErr != nil {
			q.logger.Error("failed to record submission failure",
				logging.FieldShotID, shot.ID, logging.Error(updateErr))
		}
		return
	}

	if resp.ResultURL != "" {
		shot.VideoURL = q.rehost(ctx, resp.ResultURL, storage.ShotVideoKey(shot.ID))
		shot.Status = records.ShotReady
		if updateErr := q.store.UpdateShot(ctx, shot); updateErr != nil {
			q.logger.Error("failed to record synchronous result",
				logging.FieldShotID, shot.ID, logging.Error(updateErr))
		}
	}
}

func (q *Queue) rehost(ctx context.Context, transientURL, key string) string {
	permanent, err := q.blobs.Rehost(ctx, transientURL, key)
	if err != nil {
		q.logger.Warn("re-host failed, keeping transient url",
			"object", key, logging.Error(err))
		return transientURL
	}
	return permanent
}

func (q *Queue) notifyVideoFailed(ctx context.Context, shot *records.Shot) {
	if q.notifier == nil {
		return
	}
	projectTitle := ""
	sceneTitle := ""
	if project, err := q.store.GetProject(ctx, shot.ProjectID); err == nil && project != nil {
		projectTitle = project.Title
	}
	if scene, err := q.store.GetScene(ctx, shot.SceneID); err == nil && scene != nil {
		sceneTitle = scene.Title
	}
	if err := q.notifier.NotifyVideoFailed(ctx, projectTitle, sceneTitle, shot.ErrorMessage); err != nil {
		q.logger.Warn("notification delivery failed", logging.Error(err))
	}
}

func (q *Queue) publish(shot *records.Shot) {
	q.hub.Publish(events.Event{
		Type:      events.TypeShotUpdated,
		ProjectID: shot.ProjectID,
		RecordID:  shot.ID,
		Status:    string(shot.Status),
		Fields:    map[string]string{"scene_id": shot.SceneID},
	})
}

func (q *Queue) mustGetScene(ctx context.Context, sceneID string) (*records.Scene, error) {
	scene, err := q.store.GetScene(ctx, sceneID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "admission", "request", "load scene", err)
	}
	if scene == nil {
		return nil, services.Wrap(services.ErrNotFound, "admission", "request",
			"scene "+sceneID+" does not exist", nil)
	}
	return scene, nil
}

func (q *Queue) mustGetShot(ctx context.Context, shotID, operation string) (*records.Shot, error) {
	shot, err := q.store.GetShot(ctx, shotID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "admission", operation, "load shot", err)
	}
	if shot == nil {
		return nil, services.Wrap(services.ErrNotFound, "admission", operation,
			"shot "+shotID+" does not exist", nil)
	}
	return shot, nil
}

func (q *Queue) mustGetVariant(ctx context.Context, variantID string) (*records.Variant, error) {
	variant, err := q.store.GetVariant(ctx, variantID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "admission", "resolve_source", "load variant", err)
	}
	if variant == nil {
		return nil, services.Wrap(services.ErrNotFound, "admission", "resolve_source",
			"variant "+variantID+" does not exist", nil)
	}
	return variant, nil
}
