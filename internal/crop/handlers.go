package crop

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/antonminaichev/agroconnect/internal/logger"
	"github.com/antonminaichev/agroconnect/internal/middleware"
	"github.com/antonminaichev/agroconnect/internal/respond"
	"github.com/antonminaichev/agroconnect/internal/storage"
	"github.com/antonminaichev/agroconnect/internal/types/crop"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes serves the public catalog. Posting a review goes through reviewer,
// which is expected to authenticate a customer.
func (h *Handler) Routes(reviewer ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/reviews", h.Reviews)
	r.With(reviewer...).Post("/{id}/reviews", h.AddReview)
	return r
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrPriceTooHigh),
		errors.Is(err, ErrAlreadyReviewed):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotVerifiedBuyer):
		respond.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		respond.Error(w, http.StatusNotFound, "crop not found")
	case errors.Is(err, storage.ErrCropInUse):
		respond.Error(w, http.StatusConflict, "crop is part of existing orders")
	default:
		logger.Log.Error(op, zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func cropID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respond.Error(w, http.StatusNotFound, "crop not found")
		return 0, false
	}
	return id, true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	farmerID := middleware.UserIDFromContext(r.Context())

	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c, err := h.svc.Create(r.Context(), farmerID, in)
	if err != nil {
		h.writeError(w, "create crop", err)
		return
	}
	respond.JSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := cropID(w, r)
	if !ok {
		return
	}
	var in UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c, err := h.svc.Update(r.Context(), middleware.UserIDFromContext(r.Context()), id, in)
	if err != nil {
		h.writeError(w, "update crop", err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := cropID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), middleware.UserIDFromContext(r.Context()), id); err != nil {
		h.writeError(w, "delete crop", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	crops, err := h.svc.ListByFarmer(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeError(w, "list farmer crops", err)
		return
	}
	respond.JSON(w, http.StatusOK, crops)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := crop.Filter{Search: q.Get("search"), Category: q.Get("category")}
	for param, dst := range map[string]*decimal.NullDecimal{"min_price": &f.MinPrice, "max_price": &f.MaxPrice} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, param+" must be a number")
			return
		}
		*dst = decimal.NewNullDecimal(d)
	}

	crops, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.writeError(w, "list crops", err)
		return
	}
	respond.JSON(w, http.StatusOK, crops)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := cropID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "get crop", err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}

func (h *Handler) Reviews(w http.ResponseWriter, r *http.Request) {
	id, ok := cropID(w, r)
	if !ok {
		return
	}
	reviews, err := h.svc.Reviews(r.Context(), id)
	if err != nil {
		h.writeError(w, "list reviews", err)
		return
	}
	respond.JSON(w, http.StatusOK, reviews)
}

func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request) {
	id, ok := cropID(w, r)
	if !ok {
		return
	}
	var in ReviewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	review, err := h.svc.AddReview(r.Context(), middleware.UserIDFromContext(r.Context()), id, in)
	if err != nil {
		h.writeError(w, "add review", err)
		return
	}
	respond.JSON(w, http.StatusCreated, review)
}
