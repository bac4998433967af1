package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/http/response"
	"github.com/HusseinTALL/GARBAKING-POS-sub001/internal/repository"
)

// ScanAuditHandler exposes the scan audit trail for security review. Entries
// are read-only over HTTP; retention is enforced by the cleanup job.
type ScanAuditHandler struct {
	audit repository.ScanAuditRepository
}

func NewScanAuditHandler(audit repository.ScanAuditRepository) *ScanAuditHandler {
	return &ScanAuditHandler{audit: audit}
}

func (h *ScanAuditHandler) ListByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	entries, err := h.audit.ListByOrderID(r.Context(), orderID, auditLimitParam(r))
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load audit entries", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (h *ScanAuditHandler) ListByDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	if deviceID == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "device id is required", nil)
		return
	}
	entries, err := h.audit.ListByDeviceID(r.Context(), deviceID, auditLimitParam(r))
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load audit entries", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// auditLimitParam reads the optional limit query parameter. The repository
// clamps out-of-range values, so 0 just means "use the default page size".
func auditLimitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
