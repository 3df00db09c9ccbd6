// Package variants implements multi-model fan-out generation for bible assets
// and scene images. Every generation attempt is a variant; completions arrive
// asynchronously and are applied by id; at most one variant per parent and
// shot type may be selected at a time.
package variants

import (
	"context"
	"fmt"
	"log/slog"

	"reelsmith/internal/catalog"
	"reelsmith/internal/config"
	"reelsmith/internal/events"
	"reelsmith/internal/logging"
	"reelsmith/internal/records"
	"reelsmith/internal/services"
	"reelsmith/internal/services/generation"
	"reelsmith/internal/storage"
	"reelsmith/internal/webhook"
)

// ParentRef identifies the record a fan-out generates images for.
type ParentRef struct {
	Kind     records.ParentKind
	ID       string
	ShotType string
	Prompt   string
}

// Advancer is notified after an auto-mode selection so the lifecycle can
// approve the parent and advance the project. Wired after construction to
// keep the dependency one-directional.
type Advancer interface {
	VariantAutoSelected(ctx context.Context, variant *records.Variant) error
}

// Engine owns variant creation, completion, and selection.
type Engine struct {
	cfg      *config.Config
	store    *records.Store
	blobs    storage.BlobStore
	gateway  generation.Gateway
	catalog  *catalog.Catalog
	hub      *events.Hub
	advancer Advancer
	logger   *slog.Logger
}

// NewEngine wires the variant engine.
func NewEngine(cfg *config.Config, store *records.Store, blobs storage.BlobStore, gateway generation.Gateway, models *catalog.Catalog, hub *events.Hub, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		blobs:   blobs,
		gateway: gateway,
		catalog: models,
		hub:     hub,
		logger:  logging.NewComponentLogger(logger, "variants"),
	}
}

// SetAdvancer wires the auto-mode hook.
func (e *Engine) SetAdvancer(a Advancer) {
	e.advancer = a
}

// Generate creates one generating variant per model and submits each to the
// gateway. A submission failure marks only its own variant failed; the other
// models proceed. Returns every created variant, failed ones included.
func (e *Engine) Generate(ctx context.Context, parent ParentRef, models []catalog.Model) ([]*records.Variant, error) {
	target, err := e.resolveParent(ctx, parent)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		models, err = e.catalog.Resolve(catalog.KindImage, nil)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "variants", "generate", "resolve models", err)
		}
	}

	prompt := parent.Prompt
	if prompt == "" {
		prompt = target.prompt
	}

	if target.asset != nil && target.asset.ImageStatus != records.ImageApproved {
		target.asset.ImageStatus = records.ImageGenerating
		target.asset.ErrorMessage = ""
		if err := e.store.UpdateAsset(ctx, target.asset); err != nil {
			return nil, services.Wrap(services.ErrTransient, "variants", "generate", "mark asset generating", err)
		}
	}

	created := make([]*records.Variant, 0, len(models))
	for _, model := range models {
		variant, err := e.store.NewVariant(ctx, &records.Variant{
			ProjectID:      target.projectID,
			ParentKind:     parent.Kind,
			ParentID:       parent.ID,
			ShotType:       parent.ShotType,
			Model:          model.Name,
			Status:         records.VariantGenerating,
			Prompt:         prompt,
			ParentImageURL: target.referenceURL,
		})
		if err != nil {
			return created, services.Wrap(services.ErrTransient, "variants", "generate", "insert variant", err)
		}
		created = append(created, variant)
		e.submit(ctx, variant)
	}
	return created, nil
}

// Add runs Generate with exactly one model.
func (e *Engine) Add(ctx context.Context, parent ParentRef, modelName string) (*records.Variant, error) {
	model, ok := e.catalog.Lookup(modelName)
	if !ok || model.Kind != catalog.KindImage {
		return nil, services.Wrap(services.ErrPrecondition, "variants", "add",
			fmt.Sprintf("unknown image model %q", modelName), nil)
	}
	created, err := e.Generate(ctx, parent, []catalog.Model{model})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// Regenerate creates a successor of an existing variant with the same model,
// carrying the source image as lineage, and submits it.
func (e *Engine) Regenerate(ctx context.Context, variantID, prompt string) (*records.Variant, error) {
	source, err := e.mustGetVariant(ctx, variantID, "regenerate")
	if err != nil {
		return nil, err
	}

	if prompt == "" {
		prompt = source.Prompt
	}
	successor, err := e.store.NewVariant(ctx, &records.Variant{
		ProjectID:      source.ProjectID,
		ParentKind:     source.ParentKind,
		ParentID:       source.ParentID,
		ShotType:       source.ShotType,
		Model:          source.Model,
		Status:         records.VariantGenerating,
		Prompt:         prompt,
		ParentImageURL: source.ImageURL,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "variants", "regenerate", "insert successor", err)
	}
	e.submit(ctx, successor)
	return e.store.GetVariant(ctx, successor.ID)
}

// ApplyCompletion applies a gateway result to a variant by id. It is
// idempotent: repeated or out-of-order deliveries overwrite with the same
// final state. Ready results are re-hosted into the blob store under a key
// derived from the variant id; a re-host failure degrades to the transient
// URL instead of losing the result.
func (e *Engine) ApplyCompletion(ctx context.Context, variantID string, result webhook.CompletionResult) error {
	variant, err := e.mustGetVariant(ctx, variantID, "apply_completion")
	if err != nil {
		return err
	}

	if !result.Ready {
		variant.Status = records.VariantFailed
		variant.ErrorMessage = result.ErrorMessage
		if variant.ErrorMessage == "" {
			variant.ErrorMessage = "generation failed"
		}
		if err := e.store.UpdateVariant(ctx, variant); err != nil {
			return services.Wrap(services.ErrTransient, "variants", "apply_completion", "record failure", err)
		}
		e.publish(variant)
		return nil
	}

	variant.SourceURL = result.ImageURL
	variant.ImageURL = e.rehost(ctx, result.ImageURL, storage.VariantImageKey(variant.ID))
	variant.ErrorMessage = ""
	if variant.Status != records.VariantSelected {
		variant.Status = records.VariantReady
	}
	if err := e.store.UpdateVariant(ctx, variant); err != nil {
		return services.Wrap(services.ErrTransient, "variants", "apply_completion", "record result", err)
	}
	e.publish(variant)

	return e.maybeAutoSelect(ctx, variant)
}

// Select marks the variant selected, demoting any previously selected sibling
// of the same parent and shot type in the same transaction, then mirrors the
// chosen image onto the parent asset.
func (e *Engine) Select(ctx context.Context, variantID string) (*records.Variant, error) {
	variant, err := e.mustGetVariant(ctx, variantID, "select")
	if err != nil {
		return nil, err
	}
	if !variant.Selectable() {
		return nil, services.Wrap(services.ErrPrecondition, "variants", "select",
			fmt.Sprintf("variant is %s, not selectable", variant.Status), nil)
	}

	selected, err := e.store.SelectVariant(ctx, variantID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "variants", "select", "select variant", err)
	}
	if selected == nil {
		return nil, services.Wrap(services.ErrNotFound, "variants", "select", "variant vanished", nil)
	}

	if err := e.mirrorSelection(ctx, selected); err != nil {
		return nil, err
	}
	e.publish(selected)
	return selected, nil
}

// Delete removes a variant. Selected variants are protected unless the parent
// already holds more than one selection, the escape hatch for repairing
// imported duplicate-selection data.
func (e *Engine) Delete(ctx context.Context, variantID string) error {
	variant, err := e.mustGetVariant(ctx, variantID, "delete")
	if err != nil {
		return err
	}

	if variant.IsSelected {
		selected, err := e.store.SelectedVariants(ctx, variant.ParentID, variant.ShotType)
		if err != nil {
			return services.Wrap(services.ErrTransient, "variants", "delete", "count selections", err)
		}
		if len(selected) < 2 {
			return services.Wrap(services.ErrPrecondition, "variants", "delete",
				"variant is selected; choose another variant first", nil)
		}
	}

	if _, err := e.store.DeleteVariant(ctx, variantID); err != nil {
		return services.Wrap(services.ErrTransient, "variants", "delete", "delete variant", err)
	}
	return nil
}

// FixDuplicates repairs a duplicate-selection anomaly for a parent, keeping
// the most recently updated selection.
func (e *Engine) FixDuplicates(ctx context.Context, parentID, shotType string) (int, error) {
	repaired, err := e.store.FixDuplicateSelections(ctx, parentID, shotType)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "variants", "fix_duplicates", "repair selections", err)
	}
	if repaired > 0 {
		e.logger.Warn("repaired duplicate variant selections",
			"parent_id", parentID, "cleared", repaired)
	}
	return repaired, nil
}

type resolvedParent struct {
	projectID    string
	prompt       string
	referenceURL string
	asset        *records.BibleAsset
	scene        *records.Scene
}

func (e *Engine) resolveParent(ctx context.Context, parent ParentRef) (*resolvedParent, error) {
	switch parent.Kind {
	case records.ParentCharacter, records.ParentLocation, records.ParentProp:
		asset, err := e.store.GetAsset(ctx, parent.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "variants", "resolve_parent", "load asset", err)
		}
		if asset == nil {
			return nil, services.Wrap(services.ErrNotFound, "variants", "resolve_parent",
				"asset "+parent.ID+" does not exist", nil)
		}
		return &resolvedParent{
			projectID:    asset.ProjectID,
			prompt:       asset.Description,
			referenceURL: asset.ImageURL,
			asset:        asset,
		}, nil
	case records.ParentSceneImage:
		scene, err := e.store.GetScene(ctx, parent.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "variants", "resolve_parent", "load scene", err)
		}
		if scene == nil {
			return nil, services.Wrap(services.ErrNotFound, "variants", "resolve_parent",
				"scene "+parent.ID+" does not exist", nil)
		}
		return &resolvedParent{
			projectID: scene.ProjectID,
			prompt:    scene.Synopsis,
			scene:     scene,
		}, nil
	default:
		return nil, services.Wrap(services.ErrPrecondition, "variants", "resolve_parent",
			fmt.Sprintf("unknown parent kind %q", parent.Kind), nil)
	}
}

// submit sends one variant to the gateway. Errors land on the variant record,
// never on the caller; a synchronous result is applied immediately.
func (e *Engine) submit(ctx context.Context, variant *records.Variant) {
	resp, err := e.gateway.Submit(ctx, generation.SubmitRequest{
		Task:              generation.TaskImage,
		ProjectID:         variant.ProjectID,
		TargetID:          variant.ParentID,
		Model:             variant.Model,
		Prompt:            variant.Prompt,
		ReferenceImageURL: variant.ParentImageURL,
		CallbackURL:       e.cfg.CallbackURL("/api/callbacks/generation?variant_id=" + variant.ID),
	})
	if err == nil && !resp.Accepted {
		err = services.Wrap(services.ErrExternal, "variants", "submit", resp.Message, nil)
	}
	if err != nil {
		e.logger.Warn("variant submission failed",
			logging.FieldVariantID, variant.ID, logging.FieldModel, variant.Model, logging.Error(err))
		variant.Status = records.VariantFailed
		variant.ErrorMessage = err.Error()
		if updateErr := e.store.UpdateVariant(ctx, variant); updateErr != nil {
			e.logger.Error("failed to record submission failure",
				logging.FieldVariantID, variant.ID, logging.Error(updateErr))
		}
		e.publish(variant)
		return
	}

	if resp.ResultURL != "" {
		if err := e.ApplyCompletion(ctx, variant.ID, webhook.CompletionResult{
			Ready:    true,
			ImageURL: resp.ResultURL,
		}); err != nil {
			e.logger.Warn("synchronous completion failed",
				logging.FieldVariantID, variant.ID, logging.Error(err))
		}
	}
}

// mirrorSelection copies the selected image onto the parent asset so listings
// show the chosen reference without joining variants. Scene images have no
// mirror target; shots reference the variant directly.
func (e *Engine) mirrorSelection(ctx context.Context, variant *records.Variant) error {
	if variant.ParentKind == records.ParentSceneImage {
		return nil
	}
	asset, err := e.store.GetAsset(ctx, variant.ParentID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "variants", "select", "load parent asset", err)
	}
	if asset == nil {
		return nil
	}
	asset.ImageURL = variant.ImageURL
	if asset.ImageStatus != records.ImageApproved {
		asset.ImageStatus = records.ImageReady
	}
	if err := e.store.UpdateAsset(ctx, asset); err != nil {
		return services.Wrap(services.ErrTransient, "variants", "select", "mirror selection", err)
	}
	return nil
}

// maybeAutoSelect selects the first ready variant for a parent when the
// project runs in auto mode, then hands off to the lifecycle hook. Selection
// goes through the same transactional path as a manual pick, so a burst of
// completions still yields exactly one selection.
func (e *Engine) maybeAutoSelect(ctx context.Context, variant *records.Variant) error {
	project, err := e.store.GetProject(ctx, variant.ProjectID)
	if err != nil || project == nil || !project.AutoMode {
		return err
	}

	selected, err := e.store.SelectedVariants(ctx, variant.ParentID, variant.ShotType)
	if err != nil {
		return services.Wrap(services.ErrTransient, "variants", "auto_select", "count selections", err)
	}
	if len(selected) > 0 {
		return nil
	}

	chosen, err := e.Select(ctx, variant.ID)
	if err != nil {
		return err
	}
	if e.advancer != nil {
		return e.advancer.VariantAutoSelected(ctx, chosen)
	}
	return nil
}

func (e *Engine) mustGetVariant(ctx context.Context, variantID, operation string) (*records.Variant, error) {
	variant, err := e.store.GetVariant(ctx, variantID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "variants", operation, "load variant", err)
	}
	if variant == nil {
		return nil, services.Wrap(services.ErrNotFound, "variants", operation,
			"variant "+variantID+" does not exist", nil)
	}
	return variant, nil
}

func (e *Engine) rehost(ctx context.Context, transientURL, key string) string {
	permanent, err := e.blobs.Rehost(ctx, transientURL, key)
	if err != nil {
		e.logger.Warn("re-host failed, keeping transient url",
			"object", key, logging.Error(err))
		return transientURL
	}
	return permanent
}

func (e *Engine) publish(variant *records.Variant) {
	e.hub.Publish(events.Event{
		Type:      events.TypeVariantUpdated,
		ProjectID: variant.ProjectID,
		RecordID:  variant.ID,
		Status:    string(variant.Status),
		Fields:    map[string]string{"parent_id": variant.ParentID, "model": variant.Model},
	})
}
