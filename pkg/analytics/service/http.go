package service

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/tokenfolio/portfolio-api/pkg/app/errors"
	apphttp "github.com/tokenfolio/portfolio-api/pkg/app/http"
	"github.com/tokenfolio/portfolio-api/pkg/auth"
)

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers HTTP endpoints for the analytics service on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/portfolio/{portfolioID}", apphttp.HandleError(h.portfolioAnalytics))
		r.Get("/user", apphttp.HandleError(h.userAnalytics))
		r.Get("/transactions", apphttp.HandleError(h.transactionStats))
	})

	r.Get("/leaderboard", apphttp.HandleError(h.leaderboard))
	r.Post("/portfolios/{portfolioID}/snapshot", apphttp.HandleError(h.createSnapshot))
}

func identity(r *http.Request) (*auth.Identity, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil, apperrors.UnAuthorizedError(nil, "authentication required")
	}
	return id, nil
}

func (h *HTTP) portfolioAnalytics(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	result, err := h.service.PortfolioAnalytics(r.Context(), chi.URLParam(r, "portfolioID"), id.UserID)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, result)
}

func (h *HTTP) userAnalytics(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	result, err := h.service.UserAnalytics(r.Context(), id.UserID)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, result)
}

func (h *HTTP) transactionStats(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 {
			return apperrors.BadRequestError(err, "days must be a positive integer")
		}
	}

	result, err := h.service.TransactionStats(r.Context(), id.UserID, days)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, result)
}

func (h *HTTP) leaderboard(w http.ResponseWriter, r *http.Request) error {
	// Leaderboard still requires a valid token but is not scoped to the
	// caller; it ranks every portfolio in the system.
	if _, err := identity(r); err != nil {
		return err
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return apperrors.BadRequestError(err, "limit must be an integer")
		}
	}

	result, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, result)
}

func (h *HTTP) createSnapshot(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	snap, err := h.service.CreateSnapshot(r.Context(), chi.URLParam(r, "portfolioID"), id.UserID)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusCreated, snap)
}
