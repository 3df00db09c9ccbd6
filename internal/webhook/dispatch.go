package webhook

import (
	"context"
	"log/slog"

	"reelsmith/internal/logging"
	"reelsmith/internal/records"
	"reelsmith/internal/services"
)

// CompletionResult is the normalized outcome handed to an engine.
type CompletionResult struct {
	Ready        bool
	ImageURL     string
	VideoURL     string
	ErrorMessage string
}

// ParseResult is the normalized outcome of a decomposition callback.
type ParseResult struct {
	Succeeded    bool
	ErrorMessage string
	Characters   []ParsedAsset
	Locations    []ParsedAsset
	Props        []ParsedAsset
	Scenes       []ParsedScene
}

// VariantApplier applies image completion results.
type VariantApplier interface {
	ApplyCompletion(ctx context.Context, variantID string, result CompletionResult) error
}

// ShotApplier applies video completion results.
type ShotApplier interface {
	ApplyCompletion(ctx context.Context, shotID string, result CompletionResult) error
}

// ParseApplier applies decomposition results.
type ParseApplier interface {
	CompleteParsing(ctx context.Context, projectID string, result ParseResult) error
}

// Dispatcher routes normalized payloads to the owning engine. Parent-addressed
// image completions (character or prop id instead of a variant id) are
// resolved here against the record store.
type Dispatcher struct {
	store    *records.Store
	variants VariantApplier
	shots    ShotApplier
	parses   ParseApplier
	logger   *slog.Logger
}

// NewDispatcher wires the callback router.
func NewDispatcher(store *records.Store, variants VariantApplier, shots ShotApplier, parses ParseApplier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Dispatcher{
		store:    store,
		variants: variants,
		shots:    shots,
		parses:   parses,
		logger:   logging.NewComponentLogger(logger, "webhook"),
	}
}

// DispatchGeneration routes an image completion callback.
func (d *Dispatcher) DispatchGeneration(ctx context.Context, payload Payload) error {
	variantID, err := d.resolveVariantID(ctx, payload)
	if err != nil {
		return err
	}

	d.logger.Debug("dispatching image completion",
		logging.FieldVariantID, variantID, logging.FieldStatus, payload.Status)
	return d.variants.ApplyCompletion(ctx, variantID, resultFromPayload(payload))
}

// DispatchVideo routes a video completion callback.
func (d *Dispatcher) DispatchVideo(ctx context.Context, payload Payload) error {
	if payload.ShotID == "" {
		return services.Wrap(services.ErrPrecondition, "webhook", "dispatch_video",
			"video callback names no shot", nil)
	}

	d.logger.Debug("dispatching video completion",
		logging.FieldShotID, payload.ShotID, logging.FieldStatus, payload.Status)
	return d.shots.ApplyCompletion(ctx, payload.ShotID, resultFromPayload(payload))
}

// DispatchParse routes a decomposition callback.
func (d *Dispatcher) DispatchParse(ctx context.Context, payload Payload) error {
	if payload.ProjectID == "" {
		return services.Wrap(services.ErrPrecondition, "webhook", "dispatch_parse",
			"parse callback names no project", nil)
	}

	result := ParseResult{
		Succeeded:    !payload.Failed(),
		ErrorMessage: payload.ErrorMessage,
		Characters:   payload.Characters,
		Locations:    payload.Locations,
		Props:        payload.Props,
		Scenes:       payload.Scenes,
	}
	d.logger.Debug("dispatching parse completion",
		logging.FieldProjectID, payload.ProjectID, logging.FieldStatus, payload.Status)
	return d.parses.CompleteParsing(ctx, payload.ProjectID, result)
}

// resolveVariantID flattens the four image addressing forms to one variant id.
// Parent-addressed completions target the parent's newest in-flight variant.
func (d *Dispatcher) resolveVariantID(ctx context.Context, payload Payload) (string, error) {
	if payload.VariantID != "" {
		return payload.VariantID, nil
	}
	if payload.SceneImageVariantID != "" {
		return payload.SceneImageVariantID, nil
	}

	parentID := payload.CharacterID
	if parentID == "" {
		parentID = payload.PropID
	}
	if parentID == "" {
		return "", services.Wrap(services.ErrPrecondition, "webhook", "resolve_variant",
			"image callback carries no addressable id", nil)
	}

	variants, err := d.store.VariantsByParent(ctx, parentID, payload.ShotType)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "webhook", "resolve_variant",
			"load parent variants", err)
	}
	for i := len(variants) - 1; i >= 0; i-- {
		if variants[i].Status == records.VariantGenerating {
			return variants[i].ID, nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, "webhook", "resolve_variant",
		"no in-flight variant for parent "+parentID, nil)
}

func resultFromPayload(p Payload) CompletionResult {
	return CompletionResult{
		Ready:        !p.Failed(),
		ImageURL:     p.ImageURL,
		VideoURL:     p.VideoURL,
		ErrorMessage: p.ErrorMessage,
	}
}
