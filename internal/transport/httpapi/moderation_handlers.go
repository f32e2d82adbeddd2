package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"creatorguard/internal/usecase/moderation"
)

type enqueueScanRequest struct {
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	ModelID    string `json:"model_id"`
	CreatorID  string `json:"creator_id"`
	StorageKey string `json:"storage_key"`
	StorageURL string `json:"storage_url"`
	Priority   *int   `json:"priority"`
}

func (h *handler) enqueueScan(w http.ResponseWriter, r *http.Request) {
	var req enqueueScanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	scanID, err := h.svc.QueueUploadForModeration(r.Context(), moderation.UploadInput{
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ModelID:    req.ModelID,
		CreatorID:  req.CreatorID,
		StorageKey: req.StorageKey,
		StorageURL: req.StorageURL,
		Priority:   req.Priority,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"scan_id": scanID})
}

func (h *handler) listQueue(w http.ResponseWriter, r *http.Request) {
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

	queue, err := h.svc.ListQueue(r.Context(), moderation.ListFilter{
		Statuses:    queryList(r, "status"),
		TargetTypes: queryList(r, "target_type"),
		ModelID:     r.URL.Query().Get("model_id"),
		Page:        page,
		PerPage:     perPage,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueView(queue))
}

func (h *handler) getScan(w http.ResponseWriter, r *http.Request) {
	scan, err := h.svc.GetScan(r.Context(), chi.URLParam(r, "scanID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toScanView(scan))
}

type reviewRequest struct {
	Action      string `json:"action"`
	Notes       string `json:"notes"`
	AddAsAnchor bool   `json:"add_as_anchor"`
}

type reviewResponse struct {
	Scan        scanView    `json:"scan"`
	Anchor      *anchorView `json:"anchor,omitempty"`
	AnchorError string      `json:"anchor_error,omitempty"`
}

func (h *handler) reviewScan(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.svc.ReviewScan(r.Context(), moderation.ReviewInput{
		ScanID:      chi.URLParam(r, "scanID"),
		ReviewerID:  actorOf(r),
		Action:      req.Action,
		Notes:       req.Notes,
		AddAsAnchor: req.AddAsAnchor,
	})
	if err != nil && result.Scan.ScanID == "" {
		writeError(w, r, err)
		return
	}

	resp := reviewResponse{Scan: toScanView(result.Scan)}
	if err != nil {
		resp.AnchorError = err.Error()
	}
	if result.Anchor != nil {
		anchor := toAnchorView(*result.Anchor)
		resp.Anchor = &anchor
	}
	writeJSON(w, http.StatusOK, resp)
}

type rescanRequest struct {
	Priority *int `json:"priority"`
}

func (h *handler) rescanScan(w http.ResponseWriter, r *http.Request) {
	var req rescanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	jobID, err := h.svc.RequestRescan(r.Context(), moderation.RescanInput{
		ScanID:      chi.URLParam(r, "scanID"),
		RequestedBy: actorOf(r),
		Priority:    req.Priority,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

type bulkRescanRequest struct {
	ModelID  string   `json:"model_id"`
	ScanIDs  []string `json:"scan_ids"`
	Priority *int     `json:"priority"`
}

type bulkRescanResponse struct {
	JobID   string   `json:"job_id,omitempty"`
	ScanIDs []string `json:"scan_ids"`
	Skipped []string `json:"skipped"`
}

func (h *handler) bulkRescan(w http.ResponseWriter, r *http.Request) {
	var req bulkRescanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.svc.BulkRescan(r.Context(), moderation.BulkRescanInput{
		ModelID:     req.ModelID,
		ScanIDs:     req.ScanIDs,
		RequestedBy: actorOf(r),
		Priority:    req.Priority,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := bulkRescanResponse{JobID: result.JobID, ScanIDs: result.ScanIDs, Skipped: result.Skipped}
	if resp.ScanIDs == nil {
		resp.ScanIDs = []string{}
	}
	if resp.Skipped == nil {
		resp.Skipped = []string{}
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetModerationStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) listAnchors(w http.ResponseWriter, r *http.Request) {
	anchors, err := h.svc.GetModelAnchors(r.Context(), chi.URLParam(r, "modelID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toAnchorViews(anchors)})
}

type addAnchorRequest struct {
	StorageKey   string `json:"storage_key"`
	StorageURL   string `json:"storage_url"`
	Note         string `json:"note"`
	SourceScanID string `json:"source_scan_id"`
}

func (h *handler) addAnchor(w http.ResponseWriter, r *http.Request) {
	var req addAnchorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	anchor, err := h.svc.AddModelAnchor(r.Context(), moderation.AddAnchorInput{
		ModelID:      chi.URLParam(r, "modelID"),
		StorageKey:   req.StorageKey,
		StorageURL:   req.StorageURL,
		AddedBy:      actorOf(r),
		Note:         req.Note,
		SourceScanID: req.SourceScanID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAnchorView(anchor))
}

func (h *handler) removeAnchor(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RemoveModelAnchor(r.Context(), chi.URLParam(r, "modelID"), chi.URLParam(r, "anchorID"), actorOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
