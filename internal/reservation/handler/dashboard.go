package handler

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"reservd/internal/reservation/service"
	httputil "reservd/pkg/http"
	"reservd/pkg/logger"
	"reservd/pkg/model"
)

// Default timeline window when the caller supplies no bounds: today from
// midnight UTC to midnight tomorrow.
func defaultWindow(now time.Time) model.TimeRange {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return model.TimeRange{StartAt: start, EndAt: start.Add(24 * time.Hour)}
}

type DashboardHandler struct {
	availability service.AvailabilityService
	log          *logger.Logger
}

func NewDashboardHandler(availability service.AvailabilityService, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		availability: availability,
		log:          log,
	}
}

func (h *DashboardHandler) Timeline(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := principalOrUnauthorized(w, r, h.log)
	if !ok {
		return
	}

	start, err := httputil.ExtractTime(r, "start_at")
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Timeline", "operation", "WriteError", "error", writeErr)
		}
		return
	}
	end, err := httputil.ExtractTime(r, "end_at")
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Timeline", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	window := defaultWindow(time.Now().UTC())
	if start != nil {
		window.StartAt = *start
	}
	if end != nil {
		window.EndAt = *end
	}

	resourceIDs := r.URL.Query()["resource_id"]

	timeline, err := h.availability.Timeline(r.Context(), principal, window, resourceIDs)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Timeline", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, timeline); err != nil {
		h.log.Error("failed to write success response", "handler", "Timeline", "operation", "WriteSuccess", "error", err)
	}
}

func (h *DashboardHandler) ResourceStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := principalOrUnauthorized(w, r, h.log)
	if !ok {
		return
	}

	statuses, err := h.availability.ResourceStatus(r.Context(), principal)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ResourceStatus", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, statuses); err != nil {
		h.log.Error("failed to write success response", "handler", "ResourceStatus", "operation", "WriteSuccess", "error", err)
	}
}

func (h *DashboardHandler) MyReservations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	principal, ok := principalOrUnauthorized(w, r, h.log)
	if !ok {
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "MyReservations", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	status := model.ReservationStatus(r.URL.Query().Get("status"))

	reservations, total, err := h.availability.MyReservations(r.Context(), principal, status, limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "MyReservations", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, reservations, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "MyReservations", "operation", "WritePaginated", "error", err)
	}
}

func (h *DashboardHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/dashboard/timeline", h.Timeline)
	router.GET("/api/v1/dashboard/status", h.ResourceStatus)
	router.GET("/api/v1/dashboard/my-reservations", h.MyReservations)
}
