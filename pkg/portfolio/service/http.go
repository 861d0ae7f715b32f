package service

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/tokenfolio/portfolio-api/pkg/app/errors"
	apphttp "github.com/tokenfolio/portfolio-api/pkg/app/http"
	"github.com/tokenfolio/portfolio-api/pkg/auth"
	"github.com/tokenfolio/portfolio-api/pkg/portfolio"
)

const maxBodyBytes = 1 << 20 // 1MB

var validate = validator.New()

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers HTTP endpoints for the portfolio service on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Route("/portfolios", func(r chi.Router) {
		r.Post("/", apphttp.HandleError(h.createPortfolio))
		r.Get("/", apphttp.HandleError(h.listPortfolios))
		r.Route("/{portfolioID}", func(r chi.Router) {
			r.Get("/", apphttp.HandleError(h.getPortfolio))
			r.Put("/", apphttp.HandleError(h.updatePortfolio))
			r.Delete("/", apphttp.HandleError(h.deletePortfolio))
			r.Put("/default", apphttp.HandleError(h.setDefaultPortfolio))
			r.Post("/assets", apphttp.HandleError(h.addAsset))
			r.Get("/assets", apphttp.HandleError(h.listAssets))
		})
	})

	r.Route("/assets/{assetID}", func(r chi.Router) {
		r.Put("/balance", apphttp.HandleError(h.updateAssetBalance))
		r.Delete("/", apphttp.HandleError(h.removeAsset))
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", apphttp.HandleError(h.recordTransaction))
		r.Get("/", apphttp.HandleError(h.listTransactions))
	})

	r.Route("/watchlist", func(r chi.Router) {
		r.Post("/", apphttp.HandleError(h.addWatchlistItem))
		r.Get("/", apphttp.HandleError(h.listWatchlist))
		r.Put("/{itemID}", apphttp.HandleError(h.updateWatchlistItem))
		r.Delete("/{itemID}", apphttp.HandleError(h.removeWatchlistItem))
	})
}

func identity(r *http.Request) (*auth.Identity, error) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil, apperrors.UnAuthorizedError(nil, "authentication required")
	}
	return id, nil
}

// decodeBody reads and validates a JSON request payload.
func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err = json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err = validate.Struct(dst); err != nil {
		return apperrors.BadRequestError(err, err.Error())
	}
	return nil
}

func (h *HTTP) createPortfolio(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	var in portfolio.CreatePortfolioInput
	if err = decodeBody(r, &in); err != nil {
		return err
	}

	p, err := h.service.CreatePortfolio(r.Context(), id.UserID, in)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusCreated, p)
}

func (h *HTTP) listPortfolios(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	portfolios, err := h.service.ListPortfolios(r.Context(), id.UserID)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, portfolios)
}

func (h *HTTP) getPortfolio(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	p, err := h.service.GetPortfolio(r.Context(), chi.URLParam(r, "portfolioID"), id.UserID)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, p)
}

func (h *HTTP) updatePortfolio(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	var in portfolio.UpdatePortfolioInput
	if err = decodeBody(r, &in); err != nil {
		return err
	}

	p, err := h.service.UpdatePortfolio(r.Context(), chi.URLParam(r, "portfolioID"), id.UserID, in)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, p)
}

func (h *HTTP) deletePortfolio(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	if err = h.service.DeletePortfolio(r.Context(), chi.URLParam(r, "portfolioID"), id.UserID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) setDefaultPortfolio(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	p, err := h.service.SetDefaultPortfolio(r.Context(), chi.URLParam(r, "portfolioID"), id.UserID)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, p)
}

func (h *HTTP) addAsset(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	var in portfolio.AddAssetInput
	if err = decodeBody(r, &in); err != nil {
		return err
	}

	a, err := h.service.AddAsset(r.Context(), chi.URLParam(r, "portfolioID"), id.UserID, in)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusCreated, a)
}

func (h *HTTP) listAssets(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	assets, err := h.service.ListAssets(r.Context(), chi.URLParam(r, "portfolioID"), id.UserID)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, assets)
}

func (h *HTTP) updateAssetBalance(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	var in struct {
		Balance string `json:"balance" validate:"required"`
	}
	if err = decodeBody(r, &in); err != nil {
		return err
	}

	a, err := h.service.UpdateAssetBalance(r.Context(), chi.URLParam(r, "assetID"), id.UserID, in.Balance)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, a)
}

func (h *HTTP) removeAsset(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	if err = h.service.RemoveAsset(r.Context(), chi.URLParam(r, "assetID"), id.UserID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *HTTP) recordTransaction(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	var in portfolio.RecordTransactionInput
	if err = decodeBody(r, &in); err != nil {
		return err
	}

	tx, err := h.service.RecordTransaction(r.Context(), id.UserID, in)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusCreated, tx)
}

func (h *HTTP) listTransactions(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	filter, err := parseTransactionFilter(r)
	if err != nil {
		return err
	}

	txs, err := h.service.ListTransactions(r.Context(), id.UserID, filter)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, txs)
}

func parseTransactionFilter(r *http.Request) (TransactionFilter, error) {
	filter := TransactionFilter{
		PortfolioID: r.URL.Query().Get("portfolio_id"),
	}

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperrors.BadRequestError(err, "since must be RFC3339")
		}
		filter.Since = &since
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, apperrors.BadRequestError(err, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, apperrors.BadRequestError(err, "offset must be a non-negative integer")
		}
		filter.Offset = offset
	}
	return filter, nil
}

func (h *HTTP) addWatchlistItem(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	var in portfolio.AddWatchlistItemInput
	if err = decodeBody(r, &in); err != nil {
		return err
	}

	item, err := h.service.AddWatchlistItem(r.Context(), id.UserID, in)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusCreated, item)
}

func (h *HTTP) listWatchlist(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	items, err := h.service.ListWatchlist(r.Context(), id.UserID)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, items)
}

func (h *HTTP) updateWatchlistItem(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	var in portfolio.UpdateWatchlistItemInput
	if err = decodeBody(r, &in); err != nil {
		return err
	}

	item, err := h.service.UpdateWatchlistItem(r.Context(), chi.URLParam(r, "itemID"), id.UserID, in)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, item)
}

func (h *HTTP) removeWatchlistItem(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	if err = h.service.RemoveWatchlistItem(r.Context(), chi.URLParam(r, "itemID"), id.UserID); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
