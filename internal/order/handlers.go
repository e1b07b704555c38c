package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antonminaichev/agroconnect/internal/logger"
	"github.com/antonminaichev/agroconnect/internal/middleware"
	"github.com/antonminaichev/agroconnect/internal/respond"
	"github.com/antonminaichev/agroconnect/internal/types/order"
	"github.com/antonminaichev/agroconnect/internal/types/user"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	svc      *Service
	streamer *Streamer
	auth     TokenAuthenticator
}

func NewHandler(svc *Service, streamer *Streamer, auth TokenAuthenticator) *Handler {
	return &Handler{svc: svc, streamer: streamer, auth: auth}
}

// CustomerRoutes expects JWT and customer role middleware in front.
func (h *Handler) CustomerRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/place", h.PlaceOrder)
	r.Get("/", h.ListOrders)
	return r
}

// FarmerRoutes expects JWT and farmer role middleware in front.
func (h *Handler) FarmerRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListFarmerOrders)
	r.Patch("/{orderID}/status", h.UpdateStatus)
	r.Get("/{orderID}/history", h.History)
	return r
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var missing *MissingFieldsError
	switch {
	case errors.As(err, &missing),
		errors.Is(err, ErrInvalidPaymentMethod),
		errors.Is(err, ErrNoItems),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrTotalTooLarge),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrStatusLocked),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrInvalidPage):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotOrderFarmer):
		respond.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrCropNotFound):
		respond.Error(w, http.StatusNotFound, err.Error())
	default:
		logger.Log.Error("order request failed", zap.Error(err))
		respond.Error(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.UserIDFromContext(r.Context())

	var in PlaceInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	o, err := h.svc.PlaceOrder(r.Context(), customerID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, o)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.UserIDFromContext(r.Context())
	pr, err := ParsePageRequest(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	if !pr.Paginated {
		orders, err := h.svc.CustomerOrders(r.Context(), customerID)
		if err != nil {
			writeError(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, orders)
		return
	}
	page, err := h.svc.CustomerOrdersPage(r.Context(), customerID, pr)
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, page)
}

func (h *Handler) ListFarmerOrders(w http.ResponseWriter, r *http.Request) {
	farmerID := middleware.UserIDFromContext(r.Context())
	q := r.URL.Query()
	pr, err := ParsePageRequest(q)
	if err != nil {
		writeError(w, err)
		return
	}
	fq := FarmerQuery{Status: q.Get("status"), Search: q.Get("search"), Sort: q.Get("sort")}

	if !pr.Paginated {
		rows, err := h.svc.FarmerOrders(r.Context(), farmerID, fq)
		if err != nil {
			writeError(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, rows)
		return
	}
	page, err := h.svc.FarmerOrdersPage(r.Context(), farmerID, fq, pr)
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, page)
}

type statusReq struct {
	Status string `json:"status"`
}

type statusResp struct {
	Message string            `json:"message"`
	OrderID int64             `json:"order_id"`
	Status  order.OrderStatus `json:"status"`
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	farmerID := middleware.UserIDFromContext(r.Context())
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, ErrOrderNotFound)
		return
	}

	var req statusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	target, err := ParseTargetStatus(req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	o, err := h.svc.UpdateStatus(r.Context(), farmerID, orderID, target)
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, statusResp{
		Message: "Order " + strings.ToLower(string(o.Status)) + " successfully",
		OrderID: o.ID,
		Status:  o.Status,
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	farmerID := middleware.UserIDFromContext(r.Context())
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		writeError(w, ErrOrderNotFound)
		return
	}
	history, err := h.svc.History(r.Context(), farmerID, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, history)
}

type dashboardResp[T any] struct {
	Metrics T `json:"metrics"`
}

func (h *Handler) FarmerDashboard(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.FarmerDashboard(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, dashboardResp[order.FarmerStats]{Metrics: st})
}

func (h *Handler) CustomerDashboard(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.CustomerDashboard(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, dashboardResp[order.CustomerStats]{Metrics: st})
}

// Stream authenticates on its own because browser EventSource clients can only
// pass the token as a query parameter.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		http.Error(w, "Authentication required", http.StatusForbidden)
		return
	}
	u, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusForbidden)
		return
	}
	if u.Role != user.RoleFarmer {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// the server write timeout must not cut a long-lived stream
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	logger.Log.Debug("order stream opened", zap.Int64("farmer_id", u.ID))
	if err := h.streamer.Serve(r.Context(), u.ID, newSSESink(w)); err != nil {
		logger.Log.Debug("order stream closed", zap.Int64("farmer_id", u.ID), zap.Error(err))
		return
	}
	logger.Log.Debug("order stream closed", zap.Int64("farmer_id", u.ID))
}
