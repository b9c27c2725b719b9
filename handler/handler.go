package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	models "storefront/model"
	"storefront/service"
)

// Handler is the HTTP layer that talks to service.Service
type Handler struct {
	svc    service.ServiceInterface
	logger *zap.Logger
}

// NewHandler returns a Handler instance
func NewHandler(s service.ServiceInterface, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: s, logger: logger}
}

// RegisterRoutes registers all routes on the provided router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Use(h.logRequests, h.withSession)

	r.HandleFunc("/ping", h.Ping).Methods("GET")

	// Auth
	r.HandleFunc("/auth/signin", h.SignIn).Methods("POST")
	r.HandleFunc("/auth/signup", h.SignUp).Methods("POST")
	r.HandleFunc("/auth/signout", h.SignOut).Methods("POST")
	r.HandleFunc("/users", h.Users).Methods("GET")

	// Catalog
	r.HandleFunc("/products", h.ListProducts).Methods("GET")
	r.HandleFunc("/products/{id:[0-9]+}", h.GetProduct).Methods("GET")

	// Cart
	r.HandleFunc("/cart", h.GetCart).Methods("GET")
	r.HandleFunc("/cart/load", h.LoadCart).Methods("POST")
	r.HandleFunc("/cart/add", h.AddToCart).Methods("POST")
	r.HandleFunc("/cart/items/{id:[0-9]+}/increase", h.IncreaseQuantity).Methods("POST")
	r.HandleFunc("/cart/items/{id:[0-9]+}/decrease", h.DecreaseQuantity).Methods("POST")
	r.HandleFunc("/cart/items/{id:[0-9]+}", h.RemoveItem).Methods("DELETE")

	// Checkout
	r.HandleFunc("/checkout/stage", h.StageCheckout).Methods("POST")
	r.HandleFunc("/checkout", h.GetCheckout).Methods("GET")
	r.HandleFunc("/checkout/payment-session", h.BeginPayment).Methods("POST")
	r.HandleFunc("/checkout/confirm", h.ConfirmCheckout).Methods("POST")
}

// --- request / response shapes ---
type signInReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type addToCartReq struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity,omitempty"` // defaults to 1
}

type mutationResp struct {
	ItemID int64            `json:"itemId"`
	Op     string           `json:"op"`
	Cart   service.CartView `json:"cart"`
	Error  string           `json:"error,omitempty"`
}

// --- helpers ---
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrSession):
		return http.StatusPreconditionFailed
	case errors.Is(err, models.ErrRemote):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrMutationPending), errors.Is(err, models.ErrStagingMismatch):
		return http.StatusConflict
	case errors.Is(err, service.ErrNothingStaged):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmptyCheckout),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	if code == http.StatusUnauthorized {
		writeJSON(w, code, map[string]string{"error": err.Error(), "redirect": "/login"})
		return
	}
	writeErr(w, code, err.Error())
}

func itemID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// --- Handler ---

// Ping handles GET /ping
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SignIn handles POST /auth/signin
// body: { "email": "...", "password": "..." }
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.svc.SignIn(r.Context(), sessionOf(r), req.Email, req.Password); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed in"})
}

// SignUp handles POST /auth/signup
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req service.SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.svc.SignUp(r.Context(), sessionOf(r), req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "account created"})
}

// SignOut handles POST /auth/signout
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SignOut(r.Context(), sessionOf(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// Users handles GET /users
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Users(r.Context(), sessionOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// ListProducts handles GET /products?category=...&q=...
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.svc.Browse(r.Context(), service.Filter{Category: q.Get("category"), Query: q.Get("q")})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetProduct handles GET /products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid product id")
		return
	}
	p, err := h.svc.Product(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetCart handles GET /cart. It serves the cached view without a remote call.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Cart(sessionOf(r)))
}

// LoadCart handles POST /cart/load
func (h *Handler) LoadCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.LoadCart(r.Context(), sessionOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AddToCart handles POST /cart/add
// body: { "productId": 1, "quantity": 2 }
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID <= 0 {
		writeErr(w, http.StatusBadRequest, "productId is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	view, err := h.svc.AddToCart(r.Context(), sessionOf(r), req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type mutateFn func(r *http.Request, session string, id int64) (*service.Mutation, error)

// mutate answers 202 with the optimistic cart as soon as the local change
// is applied. With ?wait=true it answers once the remote store has decided.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn mutateFn) {
	id, ok := itemID(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid item id")
		return
	}
	session := sessionOf(r)
	m, err := fn(r, session, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	code := http.StatusAccepted
	if m.Op == service.OpNone {
		code = http.StatusOK
	}
	resp := mutationResp{ItemID: id, Op: m.Op.String()}
	if r.URL.Query().Get("wait") == "true" {
		if err := m.Wait(r.Context()); err != nil {
			resp.Cart = h.svc.Cart(session)
			resp.Error = err.Error()
			writeJSON(w, statusFor(err), resp)
			return
		}
		code = http.StatusOK
	}
	resp.Cart = h.svc.Cart(session)
	writeJSON(w, code, resp)
}

// IncreaseQuantity handles POST /cart/items/{id}/increase
func (h *Handler) IncreaseQuantity(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(r *http.Request, session string, id int64) (*service.Mutation, error) {
		return h.svc.IncreaseQuantity(r.Context(), session, id)
	})
}

// DecreaseQuantity handles POST /cart/items/{id}/decrease
func (h *Handler) DecreaseQuantity(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(r *http.Request, session string, id int64) (*service.Mutation, error) {
		return h.svc.DecreaseQuantity(r.Context(), session, id)
	})
}

// RemoveItem handles DELETE /cart/items/{id}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(r *http.Request, session string, id int64) (*service.Mutation, error) {
		return h.svc.RemoveItem(r.Context(), session, id)
	})
}

// StageCheckout handles POST /checkout/stage
func (h *Handler) StageCheckout(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.StageCheckout(r.Context(), sessionOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// GetCheckout handles GET /checkout
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.StagedCheckout(r.Context(), sessionOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// BeginPayment handles POST /checkout/payment-session
func (h *Handler) BeginPayment(w http.ResponseWriter, r *http.Request) {
	ref, err := h.svc.BeginPayment(r.Context(), sessionOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": ref})
}

// ConfirmCheckout handles POST /checkout/confirm
func (h *Handler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ConfirmCheckout(r.Context(), sessionOf(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(res.Raw) == 0 {
		writeJSON(w, http.StatusCreated, map[string]string{"status": "order placed"})
		return
	}
	writeJSON(w, http.StatusCreated, res.Raw)
}
