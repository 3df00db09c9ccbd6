package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/api"
	"reelsmith/internal/catalog"
	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/records"
	"reelsmith/internal/services"
	"reelsmith/internal/variants"
	"reelsmith/internal/webhook"
)

const maxRequestBody = 4 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// routes builds the full endpoint table. Callback endpoints bypass bearer
// auth; the external workflows only know the callback URL.
func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/models", s.handleModels)

	mux.HandleFunc("GET /api/projects", s.handleProjectList)
	mux.HandleFunc("POST /api/projects", s.handleProjectCreate)
	mux.HandleFunc("GET /api/projects/{id}", s.handleProjectDetail)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleProjectDelete)
	mux.HandleFunc("POST /api/projects/{id}/skip-bible-images", s.handleSkipBibleImages)
	mux.HandleFunc("POST /api/projects/{id}/sweep", s.handleSweep)
	mux.HandleFunc("GET /api/projects/{id}/assembly/order", s.handleAssemblyOrder)
	mux.HandleFunc("POST /api/projects/{id}/assembly", s.handleAssemble)
	mux.HandleFunc("POST /api/projects/{id}/assembly/retry", s.handleAssemblyRetry)

	mux.HandleFunc("POST /api/assets/{id}/approve", s.handleAssetApprove)
	mux.HandleFunc("POST /api/assets/{id}/unapprove", s.handleAssetUnapprove)

	mux.HandleFunc("GET /api/variants", s.handleVariantList)
	mux.HandleFunc("POST /api/variants", s.handleVariantGenerate)
	mux.HandleFunc("POST /api/variants/fix-duplicates", s.handleVariantFixDuplicates)
	mux.HandleFunc("POST /api/variants/{id}/select", s.handleVariantSelect)
	mux.HandleFunc("POST /api/variants/{id}/regenerate", s.handleVariantRegenerate)
	mux.HandleFunc("DELETE /api/variants/{id}", s.handleVariantDelete)

	mux.HandleFunc("POST /api/scenes/{id}/approve", s.handleSceneApprove)
	mux.HandleFunc("POST /api/scenes/{id}/reject", s.handleSceneReject)

	mux.HandleFunc("POST /api/videos", s.handleVideoRequest)
	mux.HandleFunc("POST /api/shots/{id}/cancel", s.handleShotCancel)
	mux.HandleFunc("POST /api/shots/{id}/regenerate", s.handleShotRegenerate)

	mux.HandleFunc("POST /api/notifications/test", s.handleTestNotification)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	callbacks := http.NewServeMux()
	callbacks.HandleFunc("POST /api/callbacks/generation", s.handleGenerationCallback)
	callbacks.HandleFunc("POST /api/callbacks/video", s.handleVideoCallback)
	callbacks.HandleFunc("POST /api/callbacks/parse", s.handleParseCallback)

	authed := authMiddleware(token, mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/callbacks/") {
			callbacks.ServeHTTP(w, r)
			return
		}
		authed.ServeHTTP(w, r)
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", "address", listener.Addr().String())
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleModels(w http.ResponseWriter, r *http.Request) {
	models := s.daemon.comps.Catalog
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	var listed []catalog.Model
	if kind == "" {
		for _, k := range []catalog.Kind{catalog.KindImage, catalog.KindVideo, catalog.KindParse} {
			listed = append(listed, models.ForKind(k)...)
		}
	} else {
		listed = models.ForKind(catalog.Kind(kind))
	}
	s.writeJSON(w, http.StatusOK, api.ModelListResponse{Models: api.FromModels(listed)})
}

func (s *apiServer) handleProjectList(w http.ResponseWriter, r *http.Request) {
	includeFailed := r.URL.Query().Get("include_failed") == "1" ||
		strings.EqualFold(r.URL.Query().Get("include_failed"), "true")
	projects, err := s.daemon.comps.Store.ListProjects(r.Context(), includeFailed)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ProjectListResponse{Projects: api.FromProjects(projects)})
}

func (s *apiServer) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateProjectRequest
	if !s.decode(w, r, &req) {
		return
	}
	project, err := s.daemon.comps.Lifecycle.CreateProject(r.Context(), req.Title, req.Logline, req.SourceText, req.AutoMode)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.FromProject(project))
}

func (s *apiServer) handleProjectDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := s.daemon.comps.Store

	project, err := store.GetProject(ctx, r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if project == nil {
		s.writeError(w, http.StatusNotFound, "project not found")
		return
	}

	assets, err := store.AssetsByProject(ctx, project.ID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	scenes, err := store.ScenesByProject(ctx, project.ID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	shotsByScene := make(map[string][]*records.Shot, len(scenes))
	for _, scene := range scenes {
		shots, err := store.ShotsByScene(ctx, scene.ID)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		shotsByScene[scene.ID] = shots
	}
	reel, err := store.ReelByProject(ctx, project.ID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromProjectDetail(project, assets, scenes, shotsByScene, reel))
}

func (s *apiServer) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.daemon.comps.Store.DeleteProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleSkipBibleImages(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.comps.Lifecycle.SkipBibleImages(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	admitted, err := s.daemon.comps.Admission.Sweep(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SweepResponse{Admitted: admitted})
}

func (s *apiServer) handleAssemblyOrder(w http.ResponseWriter, r *http.Request) {
	segments, err := s.daemon.comps.Assembly.ResolveOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SegmentListResponse{Segments: api.FromSegments(segments)})
}

func (s *apiServer) handleAssemble(w http.ResponseWriter, r *http.Request) {
	s.assemble(w, r, false)
}

func (s *apiServer) handleAssemblyRetry(w http.ResponseWriter, r *http.Request) {
	s.assemble(w, r, true)
}

func (s *apiServer) assemble(w http.ResponseWriter, r *http.Request, retry bool) {
	var req api.AssembleRequest
	if !s.decode(w, r, &req) {
		return
	}
	assembler := s.daemon.comps.Assembly
	run := assembler.Assemble
	if retry {
		run = assembler.Retry
	}
	reel, err := run(r.Context(), r.PathValue("id"), req.Title, req.Description)
	if err != nil {
		if reel != nil {
			// Composition failed but the reel row records the failure.
			s.writeJSON(w, httpStatusFor(err), api.FromReel(reel))
			return
		}
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromReel(reel))
}

func (s *apiServer) handleAssetApprove(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.comps.Lifecycle.ApproveAssetImage(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleAssetUnapprove(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.comps.Lifecycle.UnapproveAssetImage(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleVariantList(w http.ResponseWriter, r *http.Request) {
	parentID := strings.TrimSpace(r.URL.Query().Get("parent_id"))
	if parentID == "" {
		s.writeError(w, http.StatusBadRequest, "parent_id is required")
		return
	}
	listed, err := s.daemon.comps.Store.VariantsByParent(r.Context(), parentID, strings.TrimSpace(r.URL.Query().Get("shot_type")))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.VariantListResponse{Variants: api.FromVariants(listed)})
}

func (s *apiServer) handleVariantGenerate(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateVariantsRequest
	if !s.decode(w, r, &req) {
		return
	}
	parent := variants.ParentRef{
		Kind:     records.ParentKind(req.ParentKind),
		ID:       req.ParentID,
		ShotType: req.ShotType,
		Prompt:   req.Prompt,
	}

	var models []catalog.Model
	if len(req.Models) > 0 {
		resolved, err := s.daemon.comps.Catalog.Resolve(catalog.KindImage, req.Models)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		models = resolved
	}

	created, err := s.daemon.comps.Variants.Generate(r.Context(), parent, models)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.VariantListResponse{Variants: api.FromVariants(created)})
}

func (s *apiServer) handleVariantFixDuplicates(w http.ResponseWriter, r *http.Request) {
	parentID := strings.TrimSpace(r.URL.Query().Get("parent_id"))
	if parentID == "" {
		s.writeError(w, http.StatusBadRequest, "parent_id is required")
		return
	}
	repaired, err := s.daemon.comps.Variants.FixDuplicates(r.Context(), parentID, strings.TrimSpace(r.URL.Query().Get("shot_type")))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"repaired": repaired})
}

func (s *apiServer) handleVariantSelect(w http.ResponseWriter, r *http.Request) {
	variant, err := s.daemon.comps.Variants.Select(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromVariant(variant))
}

func (s *apiServer) handleVariantRegenerate(w http.ResponseWriter, r *http.Request) {
	var req api.RegenerateVariantRequest
	if !s.decode(w, r, &req) {
		return
	}
	variant, err := s.daemon.comps.Variants.Regenerate(r.Context(), r.PathValue("id"), req.Prompt)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.FromVariant(variant))
}

func (s *apiServer) handleVariantDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.comps.Variants.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleSceneApprove(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.comps.Lifecycle.ApproveScene(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleSceneReject(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.comps.Lifecycle.RejectScene(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleVideoRequest(w http.ResponseWriter, r *http.Request) {
	var req api.VideoRequest
	if !s.decode(w, r, &req) {
		return
	}
	decision, err := s.daemon.comps.Admission.Request(r.Context(), req.SceneID, req.SourceVariantID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	out := api.VideoDecision{State: string(decision.State), Queued: decision.Queued}
	if decision.Shot != nil {
		converted := api.FromShot(decision.Shot)
		out.Shot = &converted
	}
	status := http.StatusOK
	if decision.Queued {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, out)
}

func (s *apiServer) handleShotCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.comps.Admission.Cancel(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleShotRegenerate(w http.ResponseWriter, r *http.Request) {
	decision, err := s.daemon.comps.Admission.Regenerate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	out := api.VideoDecision{State: string(decision.State), Queued: decision.Queued}
	if decision.Shot != nil {
		converted := api.FromShot(decision.Shot)
		out.Shot = &converted
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	notifier := s.daemon.comps.Notifier
	if notifier == nil {
		s.writeError(w, http.StatusConflict, "notifications are not configured")
		return
	}
	if err := notifier.TestNotification(r.Context()); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleGenerationCallback(w http.ResponseWriter, r *http.Request) {
	s.handleCallback(w, r, func(ctx context.Context, payload webhook.Payload) error {
		if payload.VariantID == "" {
			payload.VariantID = strings.TrimSpace(r.URL.Query().Get("variant_id"))
		}
		return s.daemon.comps.Dispatcher.DispatchGeneration(ctx, payload)
	})
}

func (s *apiServer) handleVideoCallback(w http.ResponseWriter, r *http.Request) {
	s.handleCallback(w, r, func(ctx context.Context, payload webhook.Payload) error {
		if payload.ShotID == "" {
			payload.ShotID = strings.TrimSpace(r.URL.Query().Get("shot_id"))
		}
		return s.daemon.comps.Dispatcher.DispatchVideo(ctx, payload)
	})
}

func (s *apiServer) handleParseCallback(w http.ResponseWriter, r *http.Request) {
	s.handleCallback(w, r, func(ctx context.Context, payload webhook.Payload) error {
		if payload.ProjectID == "" {
			payload.ProjectID = strings.TrimSpace(r.URL.Query().Get("project_id"))
		}
		return s.daemon.comps.Dispatcher.DispatchParse(ctx, payload)
	})
}

func (s *apiServer) handleCallback(w http.ResponseWriter, r *http.Request, dispatch func(context.Context, webhook.Payload) error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read callback body")
		return
	}
	var payload webhook.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid callback payload")
		return
	}
	if err := dispatch(r.Context(), payload); err != nil {
		s.log().Warn("callback dispatch failed", logging.Error(err))
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, services.ErrExternal):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	s.writeError(w, httpStatusFor(err), err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
