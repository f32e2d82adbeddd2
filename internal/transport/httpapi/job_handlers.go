package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	"creatorguard/internal/usecase/jobworker"
	"creatorguard/internal/usecase/moderation"
)

type cronResponse struct {
	Success    bool                 `json:"success"`
	WorkerID   string               `json:"worker_id"`
	Recovered  int                  `json:"recovered"`
	Exhausted  int                  `json:"exhausted"`
	Processed  int                  `json:"processed"`
	Failed     int                  `json:"failed"`
	Remaining  int64                `json:"remaining"`
	Stats      jobworker.QueueStats `json:"stats"`
	DurationMS int64                `json:"duration_ms"`
	Error      string               `json:"error,omitempty"`
}

func (h *handler) runCron(w http.ResponseWriter, r *http.Request) {
	worker, err := h.newWorker("")
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := worker.RunCycle(r.Context())
	resp := cronResponse{
		Success:    err == nil,
		WorkerID:   summary.WorkerID,
		Recovered:  summary.Recovery.Recovered,
		Exhausted:  summary.Recovery.Exhausted,
		Processed:  summary.Process.Processed,
		Failed:     summary.Process.Failed,
		Remaining:  summary.Process.Remaining,
		Stats:      summary.Stats,
		DurationMS: summary.DurationMS,
	}
	if err != nil {
		logging.Error(r.Context(), "moderation cycle failed", slog.Any("err", errs.Loggable(err)))
		status, _ := statusFor(err)
		resp.Error = err.Error()
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type scanNowResponse struct {
	JobID    string   `json:"job_id"`
	Status   string   `json:"status"`
	TimedOut bool     `json:"timed_out"`
	Error    string   `json:"error,omitempty"`
	Scan     scanView `json:"scan"`
}

func (h *handler) scanNow(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	worker, err := h.newWorker("")
	if err != nil {
		writeError(w, r, err)
		return
	}

	outcome, err := worker.TriggerImmediateScan(r.Context(), scanID, actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	scan, err := h.svc.GetScan(r.Context(), scanID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	switch {
	case outcome.TimedOut:
		status = http.StatusGatewayTimeout
	case outcome.Status != domain.JobCompleted:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, scanNowResponse{
		JobID:    outcome.JobID,
		Status:   string(outcome.Status),
		TimedOut: outcome.TimedOut,
		Error:    outcome.Error,
		Scan:     toScanView(scan),
	})
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		writeError(w, r, err)
		return
	}

	jobs, err := h.svc.ListJobs(r.Context(), moderation.JobListFilter{
		Statuses: queryList(r, "status"),
		ScanID:   r.URL.Query().Get("scan_id"),
		Page:     page,
		PerPage:  perPage,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobPageView(jobs))
}

func (h *handler) cancelJob(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, func(worker QueueWorker, jobID string) error {
		return worker.CancelJob(r.Context(), jobID)
	})
}

func (h *handler) retryJob(w http.ResponseWriter, r *http.Request) {
	h.jobAction(w, r, func(worker QueueWorker, jobID string) error {
		return worker.RetryJob(r.Context(), jobID)
	})
}

type prioritizeRequest struct {
	Priority int `json:"priority"`
}

func (h *handler) prioritizeJob(w http.ResponseWriter, r *http.Request) {
	var req prioritizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.jobAction(w, r, func(worker QueueWorker, jobID string) error {
		return worker.PrioritizeJob(r.Context(), jobID, req.Priority)
	})
}

func (h *handler) jobAction(w http.ResponseWriter, r *http.Request, action func(QueueWorker, string) error) {
	jobID := chi.URLParam(r, "jobID")
	worker, err := h.newWorker("")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := action(worker, jobID); err != nil {
		writeError(w, r, err)
		return
	}

	job, err := h.svc.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}
