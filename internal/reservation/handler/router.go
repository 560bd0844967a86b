package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	apperrors "reservd/pkg/errors"
	httputil "reservd/pkg/http"
	"reservd/pkg/logger"
	"reservd/pkg/middleware"
	"reservd/pkg/model"
)

// Router bundles the reservation and dashboard handlers into the single
// contracts.Handler the application harness expects.
type Router struct {
	reservations *ReservationHandler
	dashboard    *DashboardHandler
}

func NewRouter(reservations *ReservationHandler, dashboard *DashboardHandler) *Router {
	return &Router{
		reservations: reservations,
		dashboard:    dashboard,
	}
}

func (r *Router) RegisterRoutes(router *httprouter.Router) {
	r.reservations.RegisterRoutes(router)
	r.dashboard.RegisterRoutes(router)
}

func principalOrUnauthorized(w http.ResponseWriter, r *http.Request, log *logger.Logger) (model.Principal, bool) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		if writeErr := httputil.WriteError(w, apperrors.Unauthorized("Missing authenticated identity")); writeErr != nil {
			log.Error("failed to write error response", "operation", "WriteError", "error", writeErr)
		}
		return model.Principal{}, false
	}
	return principal, true
}
