// Package api exposes the job engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/finreports/reportd/pkg/errcode"
	"github.com/finreports/reportd/pkg/files"
	"github.com/finreports/reportd/pkg/gateway"
	"github.com/finreports/reportd/pkg/models"
	"github.com/finreports/reportd/pkg/report"
	"github.com/finreports/reportd/pkg/store"
)

// Handler handles the engine's API requests
type Handler struct {
	store     *store.MemoryStore
	gateway   *gateway.Gateway
	files     *files.Manager
	registry  *report.Registry
	startTime time.Time
}

// NewHandler creates a new API handler
func NewHandler(st *store.MemoryStore, gw *gateway.Gateway, fm *files.Manager, reg *report.Registry) *Handler {
	return &Handler{
		store:     st,
		gateway:   gw,
		files:     fm,
		registry:  reg,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Job routes (specific routes before parameterized routes)
	r.HandleFunc("/jobs", h.CreateJob).Methods("POST")
	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")
	r.HandleFunc("/jobs/{id}", h.CancelJob).Methods("DELETE")
	r.HandleFunc("/jobs/{id}/status", h.GetJobStatus).Methods("GET")
	r.HandleFunc("/jobs/{id}/files", h.ListJobFiles).Methods("GET")
	r.HandleFunc("/jobs/{id}/files/{filename}", h.GetJobFile).Methods("GET")

	// Report catalog
	r.HandleFunc("/reports", h.ListReports).Methods("GET")

	// Other routes
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/system", h.SystemInfo).Methods("GET")
}

// writeError writes a coded error response as {code, message, details}
func writeError(w http.ResponseWriter, err error) {
	ce, ok := errcode.FromError(err)
	if !ok {
		if errors.Is(err, store.ErrJobNotFound) {
			ce = errcode.New(errcode.CodeNotFound, "job not found")
		} else {
			log.Printf("Internal error: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errcode.HTTPStatus(ce.Code))
	json.NewEncoder(w).Encode(ce)
}

// CreateJob submits a new report job
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errcode.New(errcode.CodeValidation, "invalid request body"))
		return
	}

	job, err := h.gateway.Submit(&req)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Job created: %s (%s)", job.ID, job.ReportID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":          job.ID,
		"status":      job.Status,
		"polling_url": fmt.Sprintf("/jobs/%s/status", job.ID),
	})
}

// ListJobs returns all jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.store.GetAllJobs()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJob retrieves a full job record by ID
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	job, err := h.store.GetJob(vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// GetJobStatus returns the compact status document pollers consume
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	job, err := h.store.GetJob(vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"progress":   job.Progress,
		"error":      job.Error,
		"error_code": job.ErrorCode,
	})
}

// ListJobFiles returns the output files of a job
func (h *Handler) ListJobFiles(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["id"]

	if _, err := h.store.GetJob(jobID); err != nil {
		writeError(w, err)
		return
	}

	list := h.files.ListFiles(jobID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"files": list,
		"count": len(list),
	})
}

// GetJobFile streams one output file
func (h *Handler) GetJobFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	data, meta, err := h.files.GetFile(vars["id"], vars["filename"])
	if err != nil {
		writeError(w, err)
		return
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.Filename))
	w.Write(data)
}

// CancelJob cancels a job if it is still cancellable
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["id"]

	if err := h.gateway.Cancel(jobID); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Job %s cancelled", jobID)
	w.WriteHeader(http.StatusNoContent)
}

// ListReports returns the registered report ids
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports := h.registry.List()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

// Health returns the health status of the engine
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startTime).String(),
	})
}
