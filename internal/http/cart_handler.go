package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/cart"
	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/fjod/go_cart/cart-service/internal/notify"
	"github.com/fjod/go_cart/cart-service/internal/session"
	"github.com/go-chi/chi/v5"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// Sessions runs cart operations for a session id and reports the resulting
// view with the notices they raised.
type Sessions interface {
	Do(ctx context.Context, id string, fn func(c *cart.Store)) (session.Snapshot, error)
}

type CartHandler struct {
	sessions Sessions
	timeout  time.Duration
}

func NewCartHandler(sessions Sessions, timeout time.Duration) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		timeout:  timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  *int            `json:"quantity,omitempty"`
	ImageRef  string          `json:"imageRef,omitempty"`
	Brand     string          `json:"brand,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type ApplyCouponRequestDTO struct {
	Code string `json:"code"`
}

// CartResponse is the cart view plus the notices raised since the last
// response for this session.
type CartResponse struct {
	SessionID string `json:"sessionId"`
	cart.View
	Notifications []notify.Notice `json:"notifications"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, http.StatusOK, nil)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "productId is required")
		return
	}
	if req.UnitPrice.IsNegative() {
		respondError(w, http.StatusBadRequest, "invalid_price", "unitPrice must not be negative")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1")
		return
	}

	item := domain.Item{
		ProductID: req.ProductID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		ImageRef:  req.ImageRef,
		Brand:     req.Brand,
	}
	h.run(w, r, http.StatusCreated, func(c *cart.Store) {
		c.AddToCart(item, quantity)
	})
}

// UpdateQuantity sets the line's quantity; anything below 1 removes it.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	h.run(w, r, http.StatusOK, func(c *cart.Store) {
		c.UpdateQuantity(productID, *req.Quantity)
	})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	h.run(w, r, http.StatusOK, func(c *cart.Store) {
		c.RemoveFromCart(productID)
	})
}

func (h *CartHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req ApplyCouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var applied bool
	snap, ok := h.do(w, r, func(c *cart.Store) {
		applied = c.ApplyCoupon(req.Code)
	})
	if !ok {
		return
	}
	status := http.StatusOK
	if !applied {
		status = http.StatusUnprocessableEntity
	}
	respondCart(w, status, snap)
}

func (h *CartHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, http.StatusOK, func(c *cart.Store) {
		c.RemoveCoupon()
	})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.run(w, r, http.StatusOK, func(c *cart.Store) {
		if err := c.ClearCart(ctx, true); err != nil {
			// the in-memory cart is already empty; only the write failed
			zlog.Ctx(r.Context()).Warn().Err(err).Str("session_id", getSessionID(r.Context())).Msg("cleared cart not persisted")
		}
	})
}

// run applies fn to the session's cart and responds with the result.
func (h *CartHandler) run(w http.ResponseWriter, r *http.Request, status int, fn func(c *cart.Store)) {
	if snap, ok := h.do(w, r, fn); ok {
		respondCart(w, status, snap)
	}
}

func (h *CartHandler) do(w http.ResponseWriter, r *http.Request, fn func(c *cart.Store)) (session.Snapshot, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := getSessionID(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_session", "missing session id")
		return session.Snapshot{}, false
	}

	snap, err := h.sessions.Do(ctx, sessionID, fn)
	if err != nil {
		handleSessionError(w, err)
		return session.Snapshot{}, false
	}
	return snap, true
}

func handleSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrClosed), errors.Is(err, gobreaker.ErrOpenState):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "service is shutting down")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "loading cart timed out")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func respondCart(w http.ResponseWriter, status int, snap session.Snapshot) {
	respondJSON(w, status, CartResponse{
		SessionID:     snap.SessionID,
		View:          snap.View,
		Notifications: snap.Notices,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zlog.Warn().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
