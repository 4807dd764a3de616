// Package api exposes the paper ledger over HTTP: the four mutating
// commands plus read-only account and position queries.
//
// Amounts on the wire are integer micros (6-decimal fixed point); responses
// add shopspring/decimal renderings for display.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/atmx/paper-ledger/internal/auth"
	"github.com/atmx/paper-ledger/internal/fixedpoint"
	"github.com/atmx/paper-ledger/internal/ledger"
	"github.com/atmx/paper-ledger/internal/model"
)

// Handler serves the ledger commands and queries.
type Handler struct {
	ledger   *ledger.Ledger
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a Handler over l.
func NewHandler(l *ledger.Ledger, logger *slog.Logger) *Handler {
	return &Handler{
		ledger:   l,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "api")),
	}
}

// --- Request/Response types ---

// InitConfigRequest is the JSON body for POST /config.
type InitConfigRequest struct {
	Treasury string `json:"treasury" validate:"required"`
}

// CreateAccountRequest is the JSON body for POST /accounts.
type CreateAccountRequest struct {
	EntryFee *uint64 `json:"entry_fee" validate:"required"` // payment units
}

// BuyRequest is the JSON body for POST /positions.
type BuyRequest struct {
	Owner         string  `json:"owner,omitempty"` // defaults to the caller
	Side          string  `json:"side" validate:"required"`
	MarketID      string  `json:"market_id"`
	AmountUSDC    *uint64 `json:"amount_usdc" validate:"required"`
	PricePerShare *uint64 `json:"price_per_share" validate:"required"`
}

// CloseRequest is the JSON body for POST /positions/{positionID}/close.
type CloseRequest struct {
	Owner        string  `json:"owner,omitempty"` // defaults to the caller
	CurrentPrice *uint64 `json:"current_price" validate:"required"`
}

// AccountResponse renders an account with a decimal balance.
type AccountResponse struct {
	model.Account
	BalanceUSD decimal.Decimal `json:"balance_usd"`
}

// PositionResponse renders a position with decimal amounts.
type PositionResponse struct {
	model.Position
	Amount      decimal.Decimal `json:"amount"`
	Price       decimal.Decimal `json:"price"`
	ShareAmount decimal.Decimal `json:"share_amount"`
}

// CloseResponse is returned from a successful close.
type CloseResponse struct {
	Position   PositionResponse `json:"position"`
	Payout     uint64           `json:"payout"`
	PayoutUSD  decimal.Decimal  `json:"payout_usd"`
	Balance    uint64           `json:"balance"`
	BalanceUSD decimal.Decimal  `json:"balance_usd"`
}

func accountResponse(a *model.Account) AccountResponse {
	return AccountResponse{Account: *a, BalanceUSD: fixedpoint.ToDecimal(a.Balance)}
}

func positionResponse(p *model.Position) PositionResponse {
	return PositionResponse{
		Position:    *p,
		Amount:      fixedpoint.ToDecimal(p.AmountUSDC),
		Price:       fixedpoint.ToDecimal(p.PricePerShare),
		ShareAmount: fixedpoint.ToDecimal(p.Shares),
	}
}

// --- HTTP Handlers ---

// InitConfig handles POST /api/v1/config
func (h *Handler) InitConfig(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req InitConfigRequest
	if !h.decode(w, r, &req) {
		return
	}

	cfg, err := h.ledger.Registry.Initialize(r.Context(), caller, req.Treasury)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// GetConfig handles GET /api/v1/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.ledger.Registry.Get(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// CreateAccount handles POST /api/v1/accounts
// The account is opened for the authenticated caller.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CreateAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	acct, err := h.ledger.Accounts.Create(r.Context(), caller, *req.EntryFee)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse(acct))
}

// GetAccount handles GET /api/v1/accounts/{owner}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := h.ledger.Accounts.Get(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse(acct))
}

// Buy handles POST /api/v1/positions
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req BuyRequest
	if !h.decode(w, r, &req) {
		return
	}
	owner := req.Owner
	if owner == "" {
		owner = caller
	}

	pos, err := h.ledger.Positions.Buy(r.Context(), caller, ledger.BuyRequest{
		Owner:    owner,
		Side:     model.Side(req.Side),
		MarketID: req.MarketID,
		Amount:   *req.AmountUSDC,
		Price:    *req.PricePerShare,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, positionResponse(pos))
}

// Close handles POST /api/v1/positions/{positionID}/close
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := positionID(w, r)
	if !ok {
		return
	}
	var req CloseRequest
	if !h.decode(w, r, &req) {
		return
	}
	owner := req.Owner
	if owner == "" {
		owner = caller
	}

	res, err := h.ledger.Positions.Close(r.Context(), caller, owner, id, *req.CurrentPrice)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CloseResponse{
		Position:   positionResponse(res.Position),
		Payout:     res.Payout,
		PayoutUSD:  fixedpoint.ToDecimal(res.Payout),
		Balance:    res.Balance,
		BalanceUSD: fixedpoint.ToDecimal(res.Balance),
	})
}

// ListPositions handles GET /api/v1/accounts/{owner}/positions
// Optional ?status=active|closed filter.
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.ledger.Positions.List(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	status := model.PositionStatus(r.URL.Query().Get("status"))
	out := make([]PositionResponse, 0, len(positions))
	for i := range positions {
		if status != "" && positions[i].Status != status {
			continue
		}
		out = append(out, positionResponse(&positions[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetPosition handles GET /api/v1/accounts/{owner}/positions/{positionID}
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := positionID(w, r)
	if !ok {
		return
	}
	pos, err := h.ledger.Positions.Get(r.Context(), chi.URLParam(r, "owner"), id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse(pos))
}

// --- helpers ---

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.CallerFrom(r.Context())
	if !ok {
		writeError(w, "authentication required", "Unauthenticated", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, "invalid request body", "InvalidRequest", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, validationMessage(err), "InvalidRequest", http.StatusBadRequest)
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fe.Field() + " failed " + fe.Tag()
	}
	return err.Error()
}

func positionID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "positionID"), 10, 64)
	if err != nil {
		writeError(w, "position id must be an unsigned integer", "InvalidRequest", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// statusFor maps a ledger error kind to an HTTP status.
func statusFor(kind string) int {
	switch kind {
	case "Unauthorized":
		return http.StatusForbidden
	case "NotFound":
		return http.StatusNotFound
	case "AlreadyInitialized", "NotInitialized", "AlreadyExists", "PositionNotActive":
		return http.StatusConflict
	case "EntryFeeTooLow", "InsufficientBalance", "InvalidPrice", "InvalidMarketID", "InvalidSide", "InvalidTreasury":
		return http.StatusUnprocessableEntity
	case "PaymentFailed":
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// writeLedgerError writes err with its ledger kind. Internal failures are
// not echoed to the client.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	kind := ledger.Kind(err)
	msg := err.Error()
	if kind == "Internal" {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		msg = "internal error"
	}
	writeError(w, msg, kind, statusFor(kind))
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message, kind string, status int) {
	writeJSON(w, status, map[string]string{"error": message, "kind": kind})
}
