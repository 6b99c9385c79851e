package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/partsledger/internal/platform/httpx"
	"github.com/odyssey-erp/partsledger/internal/rbac"
	"github.com/odyssey-erp/partsledger/internal/shared"
)

// TokenIssuer hands out single-use action tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, scope, action string) (string, error)
	TTL() time.Duration
}

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	tokens    TokenIssuer
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, tokens TokenIssuer, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, tokens: tokens, validator: validator.New(), rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryView))
		r.Get("/balances", h.handleBalances)
		r.Get("/movements", h.handleMovements)
		r.Get("/transfers/{id}", h.handleGetTransfer)
		r.Get("/temp-stock", h.handleListTempStock)
		r.Get("/temp-stock/{id}", h.handleGetTempStock)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInventoryEdit, shared.PermTempStock))
		r.Post("/tokens/{action}", h.handleIssueToken)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInventoryEdit))
		r.Post("/adjustments", h.handleAdjustment)
		r.Post("/transfers", h.handleTransfer)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermTempStock))
		r.Post("/temp-stock", h.handleOpenTempStock)
		r.Post("/temp-stock/{id}/resolve", h.handleResolveTempStock)
		r.Post("/temp-stock/{id}/link-purchase", h.handleLinkTempStock)
	})
}

type adjustmentRequest struct {
	Token         string          `json:"token" validate:"required"`
	LocationID    int64           `json:"location_id" validate:"required,gt=0"`
	PartID        int64           `json:"part_id" validate:"required,gt=0"`
	Operation     string          `json:"operation" validate:"required,oneof=IN OUT ADJUST"`
	Quantity      decimal.Decimal `json:"quantity"`
	AllowNegative bool            `json:"allow_negative"`
	Notes         string          `json:"notes" validate:"max=500"`
}

type transferRequest struct {
	Token               string          `json:"token" validate:"required"`
	FromLocationID      int64           `json:"from_location_id" validate:"required,gt=0"`
	ToLocationID        int64           `json:"to_location_id" validate:"required,gt=0,nefield=FromLocationID"`
	PartID              int64           `json:"part_id" validate:"required,gt=0"`
	Quantity            decimal.Decimal `json:"quantity"`
	AllowNegativeSource bool            `json:"allow_negative_source"`
	Notes               string          `json:"notes" validate:"max=500"`
}

type tempStockRequest struct {
	Token      string          `json:"token" validate:"required"`
	LocationID int64           `json:"location_id" validate:"required,gt=0"`
	PartID     int64           `json:"part_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity"`
	Notes      string          `json:"notes" validate:"max=500"`
}

type resolveRequest struct {
	Token           string `json:"token" validate:"required"`
	Resolution      string `json:"resolution" validate:"required,oneof=RETURNED PURCHASED CONSUMED"`
	Notes           string `json:"notes" validate:"max=500"`
	ConfirmConsumed bool   `json:"confirm_consumed"`
}

type linkRequest struct {
	Token string `json:"token" validate:"required"`
}

type tokenResponse struct {
	Action    string    `json:"action"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type balanceResponse struct {
	LocationID int64           `json:"location_id"`
	PartID     int64           `json:"part_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
}

type movementResponse struct {
	ID             int64           `json:"id"`
	LocationID     int64           `json:"location_id"`
	PartID         int64           `json:"part_id"`
	Kind           MovementKind    `json:"kind"`
	Quantity       decimal.Decimal `json:"quantity"`
	ReferenceKind  ReferenceKind   `json:"reference_kind"`
	ReferenceID    int64           `json:"reference_id,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	Notes          string          `json:"notes,omitempty"`
	ActorID        int64           `json:"actor_id,omitempty"`
	PostedAt       time.Time       `json:"posted_at"`
}

type transferResponse struct {
	ID             int64           `json:"id"`
	Reference      string          `json:"reference"`
	FromLocationID int64           `json:"from_location_id"`
	ToLocationID   int64           `json:"to_location_id"`
	PartID         int64           `json:"part_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	Status         TransferStatus  `json:"status"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type tempStockResponse struct {
	ID               int64           `json:"id"`
	Reference        string          `json:"reference"`
	LocationID       int64           `json:"location_id"`
	PartID           int64           `json:"part_id"`
	Quantity         decimal.Decimal `json:"quantity"`
	Status           TempStockStatus `json:"status"`
	Notes            string          `json:"notes,omitempty"`
	ResolvedBy       int64           `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
	ResolutionNotes  string          `json:"resolution_notes,omitempty"`
	LinkedPurchaseID int64           `json:"linked_purchase_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type tempStockEventResponse struct {
	ID               int64              `json:"id"`
	Type             TempStockEventType `json:"type"`
	Quantity         decimal.Decimal    `json:"quantity"`
	FromStatus       TempStockStatus    `json:"from_status,omitempty"`
	ToStatus         TempStockStatus    `json:"to_status"`
	LinkedPurchaseID int64              `json:"linked_purchase_id,omitempty"`
	ActorID          int64              `json:"actor_id,omitempty"`
	At               time.Time          `json:"at"`
}

func (h *Handler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if !knownAction(action) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "Unknown action.")
		return
	}
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	token, err := h.tokens.Issue(r.Context(), actor.TokenScope(), action)
	if err != nil {
		h.logger.Error("issue action token", slog.String("action", action), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tokenResponse{Action: action, Token: token, ExpiresAt: time.Now().UTC().Add(h.tokens.TTL())})
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.PostAdjustment(r.Context(), AdjustmentInput{
		Token:         req.Token,
		LocationID:    req.LocationID,
		PartID:        req.PartID,
		Operation:     MovementKind(req.Operation),
		Quantity:      req.Quantity,
		AllowNegative: req.AllowNegative,
		Notes:         strings.TrimSpace(req.Notes),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"movement":    toMovementResponse(result.Movement),
		"balance":     result.Balance,
		"purchase_id": result.PurchaseID,
	})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.PostTransfer(r.Context(), TransferInput{
		Token:               req.Token,
		FromLocationID:      req.FromLocationID,
		ToLocationID:        req.ToLocationID,
		PartID:              req.PartID,
		Quantity:            req.Quantity,
		AllowNegativeSource: req.AllowNegativeSource,
		Notes:               strings.TrimSpace(req.Notes),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"transfer":       toTransferResponse(result.Transfer),
		"source_balance": result.SourceBalance,
		"target_balance": result.TargetBalance,
		"movements":      []movementResponse{toMovementResponse(result.Out), toMovementResponse(result.In)},
	})
}

func (h *Handler) handleOpenTempStock(w http.ResponseWriter, r *http.Request) {
	var req tempStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.OpenTempStock(r.Context(), TempStockInput{
		Token:      req.Token,
		LocationID: req.LocationID,
		PartID:     req.PartID,
		Quantity:   req.Quantity,
		Notes:      strings.TrimSpace(req.Notes),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTempStockResult(result))
}

func (h *Handler) handleResolveTempStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.ResolveTempStock(r.Context(), ResolveTempStockInput{
		Token:           req.Token,
		EntryID:         id,
		Resolution:      TempStockStatus(req.Resolution),
		Notes:           strings.TrimSpace(req.Notes),
		ConfirmConsumed: req.ConfirmConsumed,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTempStockResult(result))
}

func (h *Handler) handleLinkTempStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req linkRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.LinkConsumedToPurchase(r.Context(), LinkPurchaseInput{Token: req.Token, EntryID: id})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTempStockResult(result))
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	locationID, err := queryInt(q.Get("location_id"))
	if err != nil || locationID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "location_id is required.")
		return
	}
	partID, err := queryInt(q.Get("part_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "part_id must be a number.")
		return
	}
	if partID > 0 {
		bal, err := h.service.GetBalance(r.Context(), BalanceKey{LocationID: locationID, PartID: partID})
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, toBalanceResponse(bal))
		return
	}
	balances, err := h.service.ListBalances(r.Context(), locationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, toBalanceResponse(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balances": out})
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter MovementFilter
	var err error
	if filter.LocationID, err = queryInt(q.Get("location_id")); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "location_id must be a number.")
		return
	}
	if filter.PartID, err = queryInt(q.Get("part_id")); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "part_id must be a number.")
		return
	}
	if from := q.Get("from"); from != "" {
		if filter.From, err = time.Parse("2006-01-02", from); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD.")
			return
		}
	}
	if to := q.Get("to"); to != "" {
		if filter.To, err = time.Parse("2006-01-02", to); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD.")
			return
		}
		filter.To = filter.To.AddDate(0, 0, 1)
	}
	page, _ := queryInt(q.Get("page"))
	perPage, _ := queryInt(q.Get("per_page"))
	window := shared.NewPagination(int(page), int(perPage), 0)
	filter.Limit = window.PerPage
	filter.Offset = window.Offset()

	movements, pagination, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, toMovementResponse(m))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"movements":  out,
		"pagination": pagination,
	})
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	transfer, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransferResponse(transfer))
}

func (h *Handler) handleListTempStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	locationID, err := queryInt(q.Get("location_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "location_id must be a number.")
		return
	}
	entries, err := h.service.ListTempStock(r.Context(), TempStockFilter{
		LocationID: locationID,
		Status:     TempStockStatus(strings.ToUpper(q.Get("status"))),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]tempStockResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toTempStockResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) handleGetTempStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entry, events, err := h.service.GetTempStock(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	trail := make([]tempStockEventResponse, 0, len(events))
	for _, evt := range events {
		trail = append(trail, toTempStockEventResponse(evt))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entry": toTempStockResponse(entry), "events": trail})
}

// decode reads and validates a request body, writing a problem response on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fieldMessage(fe))
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Invalid request.")
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required."
	case "oneof":
		return field + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ") + "."
	case "nefield":
		return "Source and destination locations must differ."
	case "max":
		return field + " is too long."
	default:
		return field + " is invalid."
	}
}

func knownAction(action string) bool {
	switch action {
	case ActionAdjustment, ActionTransfer, ActionTempStockIn:
		return true
	}
	for _, prefix := range []string{"resolve_temp_stock_", "link_temp_stock_"} {
		if rest, ok := strings.CutPrefix(action, prefix); ok {
			id, err := strconv.ParseInt(rest, 10, 64)
			return err == nil && id > 0
		}
	}
	return false
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "Invalid id.")
		return 0, false
	}
	return id, true
}

func queryInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func toBalanceResponse(b Balance) balanceResponse {
	resp := balanceResponse{LocationID: b.LocationID, PartID: b.PartID, Quantity: b.Qty}
	if !b.UpdatedAt.IsZero() {
		at := b.UpdatedAt
		resp.UpdatedAt = &at
	}
	return resp
}

func toMovementResponse(m Movement) movementResponse {
	return movementResponse{
		ID:             m.ID,
		LocationID:     m.LocationID,
		PartID:         m.PartID,
		Kind:           m.Kind,
		Quantity:       m.Qty,
		ReferenceKind:  m.RefKind,
		ReferenceID:    m.RefID,
		IdempotencyKey: m.IdempotencyKey,
		Notes:          m.Notes,
		ActorID:        m.ActorID,
		PostedAt:       m.PostedAt,
	}
}

func toTransferResponse(t Transfer) transferResponse {
	return transferResponse{
		ID:             t.ID,
		Reference:      t.Reference,
		FromLocationID: t.FromLocationID,
		ToLocationID:   t.ToLocationID,
		PartID:         t.PartID,
		Quantity:       t.Qty,
		Status:         t.Status,
		Notes:          t.Notes,
		CreatedAt:      t.CreatedAt,
	}
}

func toTempStockResponse(e TempStockEntry) tempStockResponse {
	resp := tempStockResponse{
		ID:               e.ID,
		Reference:        e.Reference,
		LocationID:       e.LocationID,
		PartID:           e.PartID,
		Quantity:         e.Qty,
		Status:           e.Status,
		Notes:            e.Notes,
		ResolvedBy:       e.ResolvedBy,
		ResolutionNotes:  e.ResolutionNotes,
		LinkedPurchaseID: e.LinkedPurchaseID,
		CreatedAt:        e.CreatedAt,
	}
	if !e.ResolvedAt.IsZero() {
		at := e.ResolvedAt
		resp.ResolvedAt = &at
	}
	return resp
}

func toTempStockEventResponse(evt TempStockEvent) tempStockEventResponse {
	return tempStockEventResponse{
		ID:               evt.ID,
		Type:             evt.Type,
		Quantity:         evt.Qty,
		FromStatus:       evt.FromStatus,
		ToStatus:         evt.ToStatus,
		LinkedPurchaseID: evt.LinkedPurchaseID,
		ActorID:          evt.ActorID,
		At:               evt.At,
	}
}

func toTempStockResult(result TempStockResult) map[string]any {
	out := map[string]any{
		"entry": toTempStockResponse(result.Entry),
		"event": toTempStockEventResponse(result.Event),
	}
	if result.PurchaseID != 0 {
		out["purchase_id"] = result.PurchaseID
	}
	if result.Movement != nil {
		out["movement"] = toMovementResponse(*result.Movement)
	}
	if result.Balance != nil {
		out["balance"] = *result.Balance
	}
	return out
}
