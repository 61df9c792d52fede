// Package api exposes the HTTP control and CRUD surface: queue
// management, catalog verification, the staging workflow, and worker
// control.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/kiranraju/barcodescout/internal/config"
	"github.com/kiranraju/barcodescout/internal/docstore"
	"github.com/kiranraju/barcodescout/internal/model"
	"github.com/kiranraju/barcodescout/internal/repository"
	"github.com/kiranraju/barcodescout/internal/worker"
)

// Server exposes the HTTP API over the repositories and the worker.
type Server struct {
	cfg     config.ServerConfig
	unfound *repository.UnfoundRepository
	catalog *repository.CatalogRepository
	staging *repository.StagingRepository
	proc    *worker.Processor
	tracker *worker.StatusTracker
	log     zerolog.Logger

	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg config.ServerConfig, unfound *repository.UnfoundRepository, catalog *repository.CatalogRepository, staging *repository.StagingRepository, proc *worker.Processor, tracker *worker.StatusTracker, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		unfound: unfound,
		catalog: catalog,
		staging: staging,
		proc:    proc,
		tracker: tracker,
		log:     log.With().Str("component", "api").Logger(),
	}
}

// Router builds the route tree. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/unfound-barcodes", func(r chi.Router) {
			r.Get("/", s.handleListUnfound)
			r.Post("/", s.handleEnqueue)
			r.Delete("/{barcode}", s.handleDequeue)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/unverified", s.handleUnverified)
			r.Post("/bulk-verify", s.handleBulkVerify)
			r.Post("/update-missing-images", s.handleBackfillImages)
		})

		r.Route("/recently-added", func(r chi.Router) {
			r.Get("/", s.handleListStaging)
			r.Post("/", s.handleAddStaging)
			r.Post("/{id}/verify", s.handlePromoteStaging)
			r.Post("/clear", s.handleClearStaging)
		})

		r.Route("/worker", func(r chi.Router) {
			r.Get("/status", s.handleWorkerStatus)
			r.Post("/start", s.handleWorkerStart)
			r.Post("/stop", s.handleWorkerStop)
			r.Post("/run-now", s.handleWorkerRunNow)
			r.Get("/history", s.handleWorkerHistory)
			r.Post("/clear-history", s.handleWorkerClearHistory)
		})
	})

	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Router(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("address", s.cfg.Address).Msg("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- queue ---

func (s *Server) handleListUnfound(w http.ResponseWriter, r *http.Request) {
	records, err := s.unfound.List(r.Context())
	if err != nil {
		s.internalError(w, "list queue", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"barcodes": records,
		"count":    len(records),
	})
}

type enqueueRequest struct {
	Barcode  string `json:"barcode"`
	Source   string `json:"source"`
	DeviceID string `json:"deviceId"`
	Location string `json:"location"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Barcode == "" {
		respondError(w, http.StatusBadRequest, "barcode is required")
		return
	}
	rec := model.BarcodeRecord{
		Barcode:  req.Barcode,
		Source:   model.BarcodeSource(req.Source),
		DeviceID: req.DeviceID,
		Location: req.Location,
	}
	if err := s.unfound.Upsert(r.Context(), rec); err != nil {
		s.internalError(w, "enqueue", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"barcode": req.Barcode,
		"status":  "queued",
	})
}

func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")
	if _, err := s.unfound.Get(r.Context(), barcode); err != nil {
		if errors.Is(err, docstore.ErrKeyNotFound) {
			respondError(w, http.StatusNotFound, "barcode not queued")
			return
		}
		s.internalError(w, "dequeue lookup", err)
		return
	}
	if err := s.unfound.Delete(r.Context(), barcode); err != nil {
		s.internalError(w, "dequeue", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"barcode": barcode,
		"status":  "removed",
	})
}

// --- catalog ---

func (s *Server) handleUnverified(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.Unverified(r.Context())
	if err != nil {
		s.internalError(w, "list unverified", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"products": products,
		"count":    len(products),
	})
}

type bulkVerifyRequest struct {
	Barcodes []string `json:"barcodes"`
}

func (s *Server) handleBulkVerify(w http.ResponseWriter, r *http.Request) {
	var req bulkVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.Barcodes) == 0 {
		respondError(w, http.StatusBadRequest, "barcodes is required")
		return
	}
	now := time.Now().UTC()
	verified := 0
	missing := 0
	for _, barcode := range req.Barcodes {
		err := s.catalog.Verify(r.Context(), barcode, now)
		switch {
		case errors.Is(err, docstore.ErrKeyNotFound):
			missing++
		case err != nil:
			s.internalError(w, "bulk verify", err)
			return
		default:
			verified++
		}
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"verified": verified,
		"missing":  missing,
	})
}

func (s *Server) handleBackfillImages(w http.ResponseWriter, r *http.Request) {
	updated, err := s.catalog.BackfillMissingImages(r.Context(), time.Now().UTC())
	if err != nil {
		s.internalError(w, "backfill images", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// --- staging ---

func (s *Server) handleListStaging(w http.ResponseWriter, r *http.Request) {
	products, err := s.staging.List(r.Context())
	if err != nil {
		s.internalError(w, "list staging", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"products": products,
		"count":    len(products),
	})
}

type addStagingRequest struct {
	Barcode     string `json:"barcode"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	MRP         string `json:"mrp"`
	Image       string `json:"image"`
	Brand       string `json:"brand"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func (s *Server) handleAddStaging(w http.ResponseWriter, r *http.Request) {
	var req addStagingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Barcode == "" {
		respondError(w, http.StatusBadRequest, "barcode is required")
		return
	}
	id, err := s.staging.Add(r.Context(), model.StagingRecord{
		Barcode:     req.Barcode,
		Name:        req.Name,
		Price:       req.Price,
		MRP:         req.MRP,
		Image:       req.Image,
		Brand:       req.Brand,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		s.internalError(w, "add staging", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"id":      id,
		"barcode": req.Barcode,
	})
}

// handlePromoteStaging moves a staging record into the catalog as a
// verified product. An already-cataloged barcode is not overwritten,
// but the staging row is consumed either way.
func (s *Server) handlePromoteStaging(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.staging.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, docstore.ErrKeyNotFound) {
			respondError(w, http.StatusNotFound, "staging record not found")
			return
		}
		s.internalError(w, "staging lookup", err)
		return
	}

	exists, err := s.catalog.Exists(r.Context(), rec.Barcode)
	if err != nil {
		s.internalError(w, "catalog lookup", err)
		return
	}
	if !exists {
		now := time.Now().UTC()
		product := model.CatalogRecord{
			Barcode:           rec.Barcode,
			Name:              rec.Name,
			Price:             rec.Price,
			MRP:               rec.MRP,
			Image:             rec.Image,
			Brand:             rec.Brand,
			Category:          rec.Category,
			Description:       rec.Description,
			Verified:          true,
			Source:            model.CatalogSourcePromoted,
			CreatedAt:         now,
			ScrapedAt:         rec.ScrapedAt,
			VerifiedAt:        &now,
			OriginalUnfoundID: rec.OriginalUnfoundID,
			StagingID:         rec.ID,
		}
		if err := s.catalog.Put(r.Context(), product); err != nil {
			s.internalError(w, "catalog write", err)
			return
		}
	}
	if err := s.staging.Delete(r.Context(), id); err != nil {
		s.internalError(w, "staging delete", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"barcode":  rec.Barcode,
		"promoted": !exists,
	})
}

func (s *Server) handleClearStaging(w http.ResponseWriter, r *http.Request) {
	removed, err := s.staging.Clear(r.Context())
	if err != nil {
		s.internalError(w, "clear staging", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// --- worker ---

func (s *Server) handleWorkerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) handleWorkerStart(w http.ResponseWriter, r *http.Request) {
	started := s.proc.Start()
	message := "worker started"
	if !started {
		message = "worker already running"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"running": true,
		"message": message,
	})
}

func (s *Server) handleWorkerStop(w http.ResponseWriter, r *http.Request) {
	stopped := s.proc.Stop()
	message := "worker stopped"
	if !stopped {
		message = "worker was not running"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"running": false,
		"message": message,
	})
}

func (s *Server) handleWorkerRunNow(w http.ResponseWriter, r *http.Request) {
	pending, err := s.proc.TriggerDrain(r.Context())
	if err != nil {
		if errors.Is(err, worker.ErrNotRunning) {
			respondError(w, http.StatusConflict, "worker is not running")
			return
		}
		s.internalError(w, "run now", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"triggered":  true,
		"itemsFound": pending,
	})
}

func (s *Server) handleWorkerHistory(w http.ResponseWriter, r *http.Request) {
	history := s.tracker.History()
	respondJSON(w, http.StatusOK, map[string]any{
		"history": history,
		"count":   len(history),
	})
}

func (s *Server) handleWorkerClearHistory(w http.ResponseWriter, r *http.Request) {
	removed := s.tracker.ClearHistory()
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// --- plumbing ---

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.log.Error().Err(err).Str("operation", what).Msg("request failed")
	respondError(w, http.StatusInternalServerError, "internal error")
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
