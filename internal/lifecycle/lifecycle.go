// Package lifecycle owns project status transitions. Stages advance when an
// aggregate approval predicate over the project's children holds, never on a
// timer: parsing feeds bible review, bible approval feeds scene validation,
// scene approval feeds asset generation, and assembly moves the project to
// exporting.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"reelsmith/internal/catalog"
	"reelsmith/internal/config"
	"reelsmith/internal/events"
	"reelsmith/internal/logging"
	"reelsmith/internal/notifications"
	"reelsmith/internal/records"
	"reelsmith/internal/services"
	"reelsmith/internal/services/generation"
	"reelsmith/internal/tasks"
	"reelsmith/internal/variants"
	"reelsmith/internal/webhook"
)

// Sweeper triggers opportunistic video admission once scene images become
// selectable. Wired after construction.
type Sweeper interface {
	Sweep(ctx context.Context, projectID string) (int, error)
}

// Manager drives project lifecycle transitions.
type Manager struct {
	cfg      *config.Config
	store    *records.Store
	gateway  generation.Gateway
	variants *variants.Engine
	runner   *tasks.Runner
	catalog  *catalog.Catalog
	hub      *events.Hub
	notifier notifications.Service
	sweeper  Sweeper
	logger   *slog.Logger
}

// NewManager wires the lifecycle state machine.
func NewManager(cfg *config.Config, store *records.Store, gateway generation.Gateway, engine *variants.Engine, runner *tasks.Runner, models *catalog.Catalog, hub *events.Hub, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		gateway:  gateway,
		variants: engine,
		runner:   runner,
		catalog:  models,
		hub:      hub,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "lifecycle"),
	}
}

// SetSweeper wires the admission hook used in auto mode.
func (m *Manager) SetSweeper(s Sweeper) {
	m.sweeper = s
}

// CreateProject inserts a project in parsing status and submits the source
// text for decomposition. A gateway refusal marks the project failed; the
// failed project is returned so the caller can show the message.
func (m *Manager) CreateProject(ctx context.Context, title, logline, sourceText string, autoMode bool) (*records.Project, error) {
	if sourceText == "" {
		return nil, services.Wrap(services.ErrPrecondition, "lifecycle", "create_project",
			"source text is empty", nil)
	}

	project, err := m.store.NewProject(ctx, title, logline, sourceText, autoMode)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "lifecycle", "create_project", "insert project", err)
	}

	model := ""
	if parsers := m.catalog.DefaultsFor(catalog.KindParse); len(parsers) > 0 {
		model = parsers[0].Name
	}

	resp, err := m.gateway.Submit(ctx, generation.SubmitRequest{
		Task:        generation.TaskParse,
		ProjectID:   project.ID,
		TargetID:    project.ID,
		Model:       model,
		SourceText:  sourceText,
		CallbackURL: m.cfg.CallbackURL("/api/callbacks/parse?project_id=" + project.ID),
	})
	if err == nil && !resp.Accepted {
		err = fmt.Errorf("gateway refused decomposition: %s", resp.Message)
	}
	if err != nil {
		m.logger.Warn("decomposition submission failed",
			logging.FieldProjectID, project.ID, logging.Error(err))
		project.Status = records.ProjectFailed
		project.ErrorMessage = err.Error()
		if updateErr := m.store.UpdateProject(ctx, project); updateErr != nil {
			return nil, services.Wrap(services.ErrTransient, "lifecycle", "create_project",
				"record submission failure", updateErr)
		}
	}

	m.publishProject(project)
	return project, nil
}

// CompleteParsing applies a decomposition result. Re-delivery on a project
// that already left parsing is a no-op. A failed decomposition is terminal.
func (m *Manager) CompleteParsing(ctx context.Context, projectID string, result webhook.ParseResult) error {
	project, err := m.mustGetProject(ctx, projectID, "complete_parsing")
	if err != nil {
		return err
	}
	if project.Status != records.ProjectParsing {
		m.logger.Debug("ignoring parse completion for advanced project",
			logging.FieldProjectID, projectID, logging.FieldStatus, string(project.Status))
		return nil
	}

	if !result.Succeeded {
		project.Status = records.ProjectFailed
		project.ErrorMessage = result.ErrorMessage
		if project.ErrorMessage == "" {
			project.ErrorMessage = "decomposition failed"
		}
		if err := m.store.UpdateProject(ctx, project); err != nil {
			return services.Wrap(services.ErrTransient, "lifecycle", "complete_parsing", "record failure", err)
		}
		m.publishProject(project)
		m.notify(func() error {
			return m.notifier.NotifyParseFailed(ctx, project.Title, project.ErrorMessage)
		})
		return nil
	}

	assets, err := m.createBibleAssets(ctx, project, result)
	if err != nil {
		return err
	}
	sceneIDs, sceneCount, err := m.createScenes(ctx, project, result.Scenes)
	if err != nil {
		return err
	}

	project.SceneOrderJSON = records.EncodeSceneOrder(sceneIDs)
	project.Status = records.ProjectBibleReview
	project.ErrorMessage = ""
	if err := m.store.UpdateProject(ctx, project); err != nil {
		return services.Wrap(services.ErrTransient, "lifecycle", "complete_parsing", "advance project", err)
	}
	m.publishProject(project)
	m.notify(func() error {
		return m.notifier.NotifyParseComplete(ctx, project.Title, sceneCount)
	})

	m.kickOffBibleImages(project, assets)
	return nil
}

// ApproveAssetImage marks an asset's reference image approved and advances
// the project when every character and location is approved.
func (m *Manager) ApproveAssetImage(ctx context.Context, assetID string) error {
	asset, err := m.mustGetAsset(ctx, assetID, "approve_asset")
	if err != nil {
		return err
	}
	if asset.ImageURL == "" {
		return services.Wrap(services.ErrPrecondition, "lifecycle", "approve_asset",
			"asset has no image to approve", nil)
	}

	asset.ImageStatus = records.ImageApproved
	asset.ErrorMessage = ""
	if err := m.store.UpdateAsset(ctx, asset); err != nil {
		return services.Wrap(services.ErrTransient, "lifecycle", "approve_asset", "update asset", err)
	}
	m.publishAsset(asset)
	return m.maybeAdvanceBible(ctx, asset.ProjectID)
}

// UnapproveAssetImage reverts an approval so the asset can be regenerated.
func (m *Manager) UnapproveAssetImage(ctx context.Context, assetID string) error {
	asset, err := m.mustGetAsset(ctx, assetID, "unapprove_asset")
	if err != nil {
		return err
	}
	if asset.ImageStatus != records.ImageApproved {
		return services.Wrap(services.ErrPrecondition, "lifecycle", "unapprove_asset",
			"asset is not approved", nil)
	}

	if asset.ImageURL != "" {
		asset.ImageStatus = records.ImageReady
	} else {
		asset.ImageStatus = records.ImagePending
	}
	if err := m.store.UpdateAsset(ctx, asset); err != nil {
		return services.Wrap(services.ErrTransient, "lifecycle", "unapprove_asset", "update asset", err)
	}
	m.publishAsset(asset)
	return nil
}

// SkipBibleImages force-approves every asset, images or not, and advances the
// project to scene validation.
func (m *Manager) SkipBibleImages(ctx context.Context, projectID string) error {
	project, err := m.mustGetProject(ctx, projectID, "skip_bible")
	if err != nil {
		return err
	}
	if project.Status != records.ProjectBibleReview {
		return services.Wrap(services.ErrPrecondition, "lifecycle", "skip_bible",
			fmt.Sprintf("project is %s, not in bible review", project.Status), nil)
	}

	assets, err := m.store.AssetsByProject(ctx, projectID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "lifecycle", "skip_bible", "load assets", err)
	}
	for _, asset := range assets {
		if asset.ImageStatus == records.ImageApproved {
			continue
		}
		asset.ImageStatus = records.ImageApproved
		if err := m.store.UpdateAsset(ctx, asset); err != nil {
			return services.Wrap(services.ErrTransient, "lifecycle", "skip_bible", "approve asset", err)
		}
	}
	return m.maybeAdvanceBible(ctx, projectID)
}

// ApproveScene marks a scene approved and advances the project when every
// scene is approved.
func (m *Manager) ApproveScene(ctx context.Context, sceneID string) error {
	scene, err := m.mustGetScene(ctx, sceneID, "approve_scene")
	if err != nil {
		return err
	}

	scene.ValidationStatus = records.SceneApproved
	if err := m.store.UpdateScene(ctx, scene); err != nil {
		return services.Wrap(services.ErrTransient, "lifecycle", "approve_scene", "update scene", err)
	}
	m.publishScene(scene)
	return m.maybeAdvanceScenes(ctx, scene.ProjectID)
}

// RejectScene reverts a scene to pending. Rejecting after the project entered
// asset generation pulls the project back to scene validation.
func (m *Manager) RejectScene(ctx context.Context, sceneID string) error {
	scene, err := m.mustGetScene(ctx, sceneID, "reject_scene")
	if err != nil {
		return err
	}

	scene.ValidationStatus = records.ScenePending
	if err := m.store.UpdateScene(ctx, scene); err != nil {
		return services.Wrap(services.ErrTransient, "lifecycle", "reject_scene", "update scene", err)
	}
	m.publishScene(scene)

	project, err := m.mustGetProject(ctx, scene.ProjectID, "reject_scene")
	if err != nil {
		return err
	}
	if project.Status == records.ProjectAssetGeneration {
		project.Status = records.ProjectSceneValidation
		if err := m.store.UpdateProject(ctx, project); err != nil {
			return services.Wrap(services.ErrTransient, "lifecycle", "reject_scene", "revert project", err)
		}
		m.publishProject(project)
	}
	return nil
}

// VariantAutoSelected is the auto-mode hook invoked by the variant engine
// after it selects a freshly completed variant. Asset parents are approved
// outright; scene-image selections trigger an admission sweep.
func (m *Manager) VariantAutoSelected(ctx context.Context, variant *records.Variant) error {
	switch variant.ParentKind {
	case records.ParentCharacter, records.ParentLocation, records.ParentProp:
		return m.ApproveAssetImage(ctx, variant.ParentID)
	case records.ParentSceneImage:
		if m.sweeper == nil {
			return nil
		}
		if _, err := m.sweeper.Sweep(ctx, variant.ProjectID); err != nil {
			m.logger.Warn("auto-mode sweep failed",
				logging.FieldProjectID, variant.ProjectID, logging.Error(err))
		}
		return nil
	default:
		return nil
	}
}

// maybeAdvanceBible moves bible_review to scene_validation once every
// character and location is approved. Props never block.
func (m *Manager) maybeAdvanceBible(ctx context.Context, projectID string) error {
	project, err := m.mustGetProject(ctx, projectID, "advance_bible")
	if err != nil {
		return err
	}
	if project.Status != records.ProjectBibleReview {
		return nil
	}

	blocking, err := m.store.AssetsByProject(ctx, projectID, records.AssetCharacter, records.AssetLocation)
	if err != nil {
		return services.Wrap(services.ErrTransient, "lifecycle", "advance_bible", "load assets", err)
	}
	for _, asset := range blocking {
		if asset.ImageStatus != records.ImageApproved {
			return nil
		}
	}

	project.Status = records.ProjectSceneValidation
	if err := m.store.UpdateProject(ctx, project); err != nil {
		return services.Wrap(services.ErrTransient, "lifecycle", "advance_bible", "advance project", err)
	}
	m.publishProject(project)
	m.notify(func() error {
		return m.notifier.NotifyBibleReady(ctx, project.Title)
	})

	// Auto mode approves scenes at creation, so the scene gate may already
	// hold by the time the bible closes.
	return m.maybeAdvanceScenes(ctx, projectID)
}

// maybeAdvanceScenes moves scene_validation to asset_generation once every
// scene is approved, then kicks off scene-image generation in the background.
func (m *Manager) maybeAdvanceScenes(ctx context.Context, projectID string) error {
	project, err := m.mustGetProject(ctx, projectID, "advance_scenes")
	if err != nil {
		return err
	}
	if project.Status != records.ProjectSceneValidation {
		return nil
	}

	scenes, err := m.store.ScenesByProject(ctx, projectID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "lifecycle", "advance_scenes", "load scenes", err)
	}
	if len(scenes) == 0 {
		return nil
	}
	for _, scene := range scenes {
		if scene.ValidationStatus != records.SceneApproved {
			return nil
		}
	}

	project.Status = records.ProjectAssetGeneration
	if err := m.store.UpdateProject(ctx, project); err != nil {
		return services.Wrap(services.ErrTransient, "lifecycle", "advance_scenes", "advance project", err)
	}
	m.publishProject(project)
	m.notify(func() error {
		return m.notifier.NotifyScenesApproved(ctx, project.Title, len(scenes))
	})

	m.kickOffSceneImages(project, scenes)
	return nil
}

func (m *Manager) createBibleAssets(ctx context.Context, project *records.Project, result webhook.ParseResult) ([]*records.BibleAsset, error) {
	groups := []struct {
		kind   records.AssetKind
		parsed []webhook.ParsedAsset
	}{
		{records.AssetCharacter, result.Characters},
		{records.AssetLocation, result.Locations},
		{records.AssetProp, result.Props},
	}

	var assets []*records.BibleAsset
	for _, group := range groups {
		for _, parsed := range group.parsed {
			if parsed.Name == "" {
				continue
			}
			asset, err := m.store.NewAsset(ctx, project.ID, group.kind, parsed.Name, parsed.Description)
			if err != nil {
				return nil, services.Wrap(services.ErrTransient, "lifecycle", "complete_parsing", "insert asset", err)
			}
			assets = append(assets, asset)
		}
	}
	return assets, nil
}

func (m *Manager) createScenes(ctx context.Context, project *records.Project, parsed []webhook.ParsedScene) ([]string, int, error) {
	ids := make([]string, 0, len(parsed))
	for i, ps := range parsed {
		number := ps.SceneNumber
		if number <= 0 {
			number = i + 1
		}
		scene, err := m.store.NewScene(ctx, project.ID, number, ps.Title, ps.Synopsis, string(ps.Production))
		if err != nil {
			return nil, 0, services.Wrap(services.ErrTransient, "lifecycle", "complete_parsing", "insert scene", err)
		}
		if project.AutoMode {
			scene.ValidationStatus = records.SceneApproved
			if err := m.store.UpdateScene(ctx, scene); err != nil {
				return nil, 0, services.Wrap(services.ErrTransient, "lifecycle", "complete_parsing", "auto-approve scene", err)
			}
		}
		ids = append(ids, scene.ID)
	}
	return ids, len(ids), nil
}

// kickOffBibleImages fans out reference-image generation for characters and
// locations as one observed background batch. Props wait for an explicit
// request.
func (m *Manager) kickOffBibleImages(project *records.Project, assets []*records.BibleAsset) {
	var fns []func(ctx context.Context) error
	for _, asset := range assets {
		if asset.Kind == records.AssetProp {
			continue
		}
		ref := variants.ParentRef{Kind: records.ParentKind(asset.Kind), ID: asset.ID}
		fns = append(fns, func(ctx context.Context) error {
			_, err := m.variants.Generate(ctx, ref, nil)
			return err
		})
	}
	if len(fns) == 0 {
		return
	}
	m.runner.RunBatch("bible-images:"+project.ID, m.cfg.Tasks.BatchConcurrency, fns...)
}

func (m *Manager) kickOffSceneImages(project *records.Project, scenes []*records.Scene) {
	fns := make([]func(ctx context.Context) error, 0, len(scenes))
	for _, scene := range scenes {
		ref := variants.ParentRef{Kind: records.ParentSceneImage, ID: scene.ID}
		fns = append(fns, func(ctx context.Context) error {
			_, err := m.variants.Generate(ctx, ref, nil)
			return err
		})
	}
	m.runner.RunBatch("scene-images:"+project.ID, m.cfg.Tasks.BatchConcurrency, fns...)
}

func (m *Manager) mustGetProject(ctx context.Context, projectID, operation string) (*records.Project, error) {
	project, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "lifecycle", operation, "load project", err)
	}
	if project == nil {
		return nil, services.Wrap(services.ErrNotFound, "lifecycle", operation,
			"project "+projectID+" does not exist", nil)
	}
	return project, nil
}

func (m *Manager) mustGetAsset(ctx context.Context, assetID, operation string) (*records.BibleAsset, error) {
	asset, err := m.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "lifecycle", operation, "load asset", err)
	}
	if asset == nil {
		return nil, services.Wrap(services.ErrNotFound, "lifecycle", operation,
			"asset "+assetID+" does not exist", nil)
	}
	return asset, nil
}

func (m *Manager) mustGetScene(ctx context.Context, sceneID, operation string) (*records.Scene, error) {
	scene, err := m.store.GetScene(ctx, sceneID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "lifecycle", operation, "load scene", err)
	}
	if scene == nil {
		return nil, services.Wrap(services.ErrNotFound, "lifecycle", operation,
			"scene "+sceneID+" does not exist", nil)
	}
	return scene, nil
}

func (m *Manager) notify(fn func() error) {
	if m.notifier == nil {
		return
	}
	if err := fn(); err != nil {
		m.logger.Warn("notification delivery failed", logging.Error(err))
	}
}

func (m *Manager) publishProject(project *records.Project) {
	m.hub.Publish(events.Event{
		Type:      events.TypeProjectUpdated,
		ProjectID: project.ID,
		RecordID:  project.ID,
		Status:    string(project.Status),
	})
}

func (m *Manager) publishAsset(asset *records.BibleAsset) {
	m.hub.Publish(events.Event{
		Type:      events.TypeAssetUpdated,
		ProjectID: asset.ProjectID,
		RecordID:  asset.ID,
		Status:    string(asset.ImageStatus),
	})
}

func (m *Manager) publishScene(scene *records.Scene) {
	m.hub.Publish(events.Event{
		Type:      events.TypeSceneUpdated,
		ProjectID: scene.ProjectID,
		RecordID:  scene.ID,
		Status:    string(scene.ValidationStatus),
	})
}
