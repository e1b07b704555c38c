package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/antonminaichev/agroconnect/internal/respond"
	"github.com/antonminaichev/agroconnect/internal/types/user"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	return r
}

type registerReq struct {
	Login    string    `json:"login"`
	Password string    `json:"password"`
	Role     user.Role `json:"role"`
}
type loginReq struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type tokenResp struct {
	Access string `json:"access"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.svc.Register(r.Context(), req.Login, req.Password, req.Role); err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, ErrPasswordTooShort), errors.Is(err, ErrEmptyLogin), errors.Is(err, ErrInvalidRole):
			code = http.StatusBadRequest
		case errors.Is(err, ErrUserExists):
			code = http.StatusConflict
		}
		respond.Error(w, code, err.Error())
		return
	}

	token, err := h.svc.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "authentication after registration failed")
		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	respond.JSON(w, http.StatusOK, tokenResp{Access: token})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := h.svc.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		respond.Error(w, http.StatusUnauthorized, err.Error())
		return
	}
	w.Header().Set("Authorization", "Bearer "+token)
	respond.JSON(w, http.StatusOK, tokenResp{Access: token})
}
