// Package api exposes the export platform over HTTP: export submission and
// status, the compliance trail, module entitlements, paper-form intake, and
// signed artifact downloads.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/harborcare/careexport/internal/config"
	"github.com/harborcare/careexport/internal/exportapi"
	"github.com/harborcare/careexport/internal/model"
	"github.com/harborcare/careexport/internal/queue"
	"github.com/harborcare/careexport/internal/repository"
	"github.com/harborcare/careexport/internal/s3storage"
	"github.com/harborcare/careexport/internal/signing"
)

// Server wires the HTTP routes to repositories, object storage, the task
// queue, and the URL signer.
type Server struct {
	cfg          *config.Config
	exports      *repository.ExportRepository
	audit        *repository.AuditRepository
	entitlements *repository.EntitlementRepository
	forms        *repository.FormRepository
	store        *s3storage.Storage
	queue        *asynq.Client
	signer       *signing.Signer
	server       *http.Server
	once         sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, exports *repository.ExportRepository, audit *repository.AuditRepository,
	entitlements *repository.EntitlementRepository, forms *repository.FormRepository,
	store *s3storage.Storage, queueClient *asynq.Client) *Server {
	return &Server{
		cfg:          cfg,
		exports:      exports,
		audit:        audit,
		entitlements: entitlements,
		forms:        forms,
		store:        store,
		queue:        queueClient,
		signer:       signing.NewSigner(cfg.SigningSecret),
	}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", s.handleHealth)
		mux.HandleFunc("/v1/exports", s.handleExports)
		mux.HandleFunc("/v1/exports/", s.handleExportRoute)
		mux.HandleFunc("/v1/export-types", s.handleExportTypes)
		mux.HandleFunc("/v1/audit-events", s.handleAuditEvents)
		mux.HandleFunc("/v1/entitlements", s.handleEntitlements)
		mux.HandleFunc("/v1/forms", s.handleForms)
		mux.HandleFunc("/v1/forms/", s.handleFormRoute)
		mux.HandleFunc("/download", s.handleDownload)
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: corsMiddleware(loggingMiddleware(mux)),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	logrus.WithField("addr", s.cfg.Address).Info("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.handleStartExport(w, r)
}

func (s *Server) handleExportRoute(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/exports/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.handleExportStatus(w, r, id)
}

// handleStartExport validates, persists, and queues an export job. The
// request carries a client-generated job id; the server enforces the same
// allow-list the client checks so a hand-rolled caller cannot bypass tiers.
func (s *Server) handleStartExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req exportapi.StartExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.KnownExportType(req.ExportType) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown export type %q", req.ExportType))
		return
	}
	if !model.PermittedExportType(req.ExportType, actorTier(r)) {
		respondError(w, http.StatusForbidden, fmt.Sprintf("export type %q requires elevated access", req.ExportType))
		return
	}
	if len(req.Filters.Categories) > 0 {
		if _, ok := model.CategoryFilterable(req.ExportType); !ok {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("export type %q does not support category filters", req.ExportType))
			return
		}
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	if req.Filters.Format == "" {
		req.Filters.Format = model.FormatCSV
	}
	requestedBy := req.RequestedBy
	if requestedBy == "" {
		requestedBy = actorID(r)
	}

	estimated, err := s.exports.EstimateRecords(ctx, req.ExportType, req.Filters)
	if err != nil {
		logrus.WithError(err).Error("estimate records failed")
		respondError(w, http.StatusInternalServerError, "failed to estimate export size")
		return
	}
	rec := &repository.ExportRecord{
		ID:           req.JobID,
		ExportType:   req.ExportType,
		TotalRecords: estimated,
		RequestedBy:  requestedBy,
		Filters:      req.Filters,
	}
	if err := s.exports.Create(ctx, rec); err != nil {
		respondError(w, http.StatusConflict, "export job already exists")
		return
	}
	if err := queue.EnqueueGenerate(ctx, s.queue, queue.GeneratePayload{
		JobID:       req.JobID,
		ExportType:  req.ExportType,
		Filters:     req.Filters,
		RequestedBy: requestedBy,
	}); err != nil {
		logrus.WithError(err).Error("enqueue export failed")
		_ = s.exports.MarkFailed(ctx, req.JobID, "failed to queue export job")
		respondError(w, http.StatusInternalServerError, "failed to queue export job")
		return
	}
	if err := s.exports.MarkProcessing(ctx, req.JobID, estimated); err != nil {
		logrus.WithError(err).Warn("mark processing failed")
	}
	respondJSON(w, http.StatusAccepted, exportapi.StartExportResponse{EstimatedRecords: estimated})
}

func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := s.exports.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "export job not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load export job")
		return
	}
	resp := exportapi.ExportStatusResponse{
		Status:           rec.Status,
		Progress:         rec.Progress,
		TotalRecords:     rec.TotalRecords,
		ProcessedRecords: rec.ProcessedRecords,
		CompletedAt:      rec.CompletedAt,
		Error:            rec.ErrorMessage,
	}
	if rec.Status == model.StatusCompleted && rec.ObjectKey != nil {
		url := s.signedDownloadURL(rec.ID)
		resp.DownloadURL = &url
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExportTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tier":  actorTier(r),
		"types": model.PermittedExportTypes(actorTier(r)),
	})
}

func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var event model.AuditEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if event.ActorID == "" {
			event.ActorID = actorID(r)
		}
		if event.Action == "" || event.ResourceType == "" || event.ResourceID == "" {
			respondError(w, http.StatusBadRequest, "action, resourceType, and resourceId are required")
			return
		}
		if err := s.audit.Insert(r.Context(), &event); err != nil {
			logrus.WithError(err).Error("insert audit event failed")
			respondError(w, http.StatusInternalServerError, "failed to record audit event")
			return
		}
		respondJSON(w, http.StatusCreated, event)
	case http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		events, err := s.audit.Recent(r.Context(), limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load audit events")
			return
		}
		if events == nil {
			events = []model.AuditEvent{}
		}
		respondJSON(w, http.StatusOK, events)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ents, err := s.entitlements.List(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load entitlements")
			return
		}
		respondJSON(w, http.StatusOK, ents)
	case http.MethodPut:
		var req struct {
			Module  string `json:"module"`
			Enabled bool   `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Module == "" {
			respondError(w, http.StatusBadRequest, "module is required")
			return
		}
		ent, err := s.entitlements.Set(r.Context(), req.Module, req.Enabled, actorID(r))
		if err != nil {
			respondError(w, http.StatusNotFound, fmt.Sprintf("unknown module %q", req.Module))
			return
		}
		s.recordAudit(r, model.ActionEntitlementSet, "module", req.Module, map[string]string{
			"enabled": strconv.FormatBool(req.Enabled),
		})
		respondJSON(w, http.StatusOK, ent)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// signedDownloadURL builds the capability URL handed out in status responses.
// Expiry is enforced by handleDownload, not by the client.
func (s *Server) signedDownloadURL(jobID string) string {
	expiry := time.Now().Add(s.cfg.SignedURLTTL).Unix()
	signature := s.signer.Sign(signing.KindExport, jobID, expiry)
	return fmt.Sprintf("%s/download?job=%s&expires=%d&signature=%s", s.cfg.PublicBaseURL, jobID, expiry, signature)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jobID := r.URL.Query().Get("job")
	expires := r.URL.Query().Get("expires")
	signature := r.URL.Query().Get("signature")
	if jobID == "" || expires == "" || signature == "" {
		respondError(w, http.StatusBadRequest, "missing parameters")
		return
	}
	expiryUnix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid expires")
		return
	}
	if time.Unix(expiryUnix, 0).Before(time.Now()) {
		respondError(w, http.StatusUnauthorized, "url expired")
		return
	}
	if !s.signer.Validate(signing.KindExport, jobID, expires, signature) {
		respondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	rec, err := s.exports.Get(r.Context(), jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "export job not found")
		return
	}
	if rec.Status != model.StatusCompleted || rec.ObjectKey == nil {
		respondError(w, http.StatusConflict, "export artifact not ready")
		return
	}
	obj, err := s.store.OpenExport(r.Context(), *rec.ObjectKey)
	if err != nil {
		logrus.WithError(err).Error("open export artifact failed")
		respondError(w, http.StatusInternalServerError, "artifact unavailable")
		return
	}
	defer obj.Close()
	w.Header().Set("Content-Type", artifactContentType(rec.Filters))
	w.Header().Set("Content-Disposition", "attachment; filename=\""+artifactName(rec)+"\"")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		logrus.WithError(err).Warn("artifact stream interrupted")
	}
}

// recordAudit writes a server-side compliance event, best-effort.
func (s *Server) recordAudit(r *http.Request, action model.AuditAction, resourceType, resourceID string, metadata map[string]string) {
	event := model.AuditEvent{
		ActorID:      actorID(r),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
	}
	if err := s.audit.Insert(r.Context(), &event); err != nil {
		logrus.WithError(err).WithField("action", action).Warn("audit event dropped")
	}
}

func artifactName(rec *repository.ExportRecord) string {
	job := model.ExportJob{
		ExportType: rec.ExportType,
		Filters:    rec.Filters,
		StartedAt:  rec.CreatedAt,
	}
	return job.ArtifactName()
}

func artifactContentType(filters model.ExportFilters) string {
	if filters.Compress {
		return "application/gzip"
	}
	if filters.Format == model.FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

func actorID(r *http.Request) string {
	if actor := r.Header.Get("X-Actor-ID"); actor != "" {
		return actor
	}
	return "unknown"
}

func actorTier(r *http.Request) model.AccessTier {
	if r.Header.Get("X-Actor-Tier") == string(model.TierElevated) {
		return model.TierElevated
	}
	return model.TierStandard
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Warn("encode response failed")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Actor-ID,X-Actor-Tier")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}
