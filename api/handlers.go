/*
handlers.go - HTTP API handlers for the shop ledger

PURPOSE:
  Exposes the ledger service via REST API. Handles HTTP request/response,
  JSON serialization and validation, and delegates to the ledger package.

ENDPOINTS:
  Customers:
    GET    /api/customers                      List view with balances
    POST   /api/customers/local                Add a local contact
    POST   /api/customers/registered           Link a platform user
    GET    /api/profiles/search?q=             Find platform users
    GET    /api/customers/{id}?q=              Detail view (optional search)
    POST   /api/customers/{id}/movements       Quick-add movement (+commission)
    POST   /api/customers/{id}/reset           Delete every movement, keep customer
    DELETE /api/customers/{id}?confirm=true    Delete customer
    GET    /api/customers/{id}/statement       Statement (html or json)

  Movements:
    PATCH  /api/movements/{id}                 Edit amount/direction/note
    DELETE /api/movements/{id}                 Delete with its commission pair
    GET    /api/movements/{id}/receipt         Receipt (html or json)
    POST   /api/transfers                      Internal transfer

  Reports:
    GET    /api/profit-loss                    Commission account view
    GET    /api/reports/summary                Owner totals
    GET    /api/reports/snapshots              Cached balances

  Settings & admin:
    GET    /api/settings, PUT /api/settings    Shop branding
    POST   /api/admin/profiles                 Create a platform profile (dev)

ERROR HANDLING:
  Errors are returned as ErrorResponse with status:
  - 400: validation
  - 403: profit-and-loss protection, read-only commission rows
  - 404: unknown customer, movement or profile
  - 409: duplicate customer, adding yourself, taken username,
         outstanding balance (balances included in the body)
  - 500: partial write (rolled_back tells whether the primary was undone)
  - 503: storage temporarily unavailable, retry is safe

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/shop-ledger/ledger"
	"github.com/warp/shop-ledger/logger"
	"github.com/warp/shop-ledger/statement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// ShopStore is what the HTTP layer needs beyond the ledger core.
type ShopStore interface {
	ledger.SnapshotStore
	ledger.SettingsStore
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *ledger.Service
	Shop     ShopStore
	Renderer *statement.Renderer
	Location *time.Location
	Language string

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. loc and lang control statement dates and labels.
func NewHandler(svc *ledger.Service, shop ShopStore, loc *time.Location, lang string) (*Handler, error) {
	renderer, err := statement.NewRenderer()
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		Service:  svc,
		Shop:     shop,
		Renderer: renderer,
		Location: loc,
		Language: lang,
		validate: newValidator(),
	}, nil
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

// ListCustomers returns every customer with its non-zero balances.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	owner := mustOwner(r)
	list, err := h.Service.LoadCustomerList(r.Context(), owner)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	dtos := make([]CustomerSummaryDTO, len(list))
	for i, s := range list {
		dtos[i] = toCustomerSummaryDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateLocalCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateLocalCustomerRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.Service.AddLocalCustomer(r.Context(), mustOwner(r), ledger.LocalCustomerInput{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
		Note:        req.Note,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(c))
}

func (h *Handler) CreateRegisteredCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateRegisteredCustomerRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.Service.AddRegisteredCustomer(r.Context(), mustOwner(r), ledger.ProfileID(req.ProfileID))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(c))
}

// SearchProfiles matches by exact account number or username substring.
func (h *Handler) SearchProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Service.SearchProfiles(r.Context(), mustOwner(r), r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	dtos := make([]ProfileDTO, len(profiles))
	for i, p := range profiles {
		dtos[i] = toProfileDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCustomer returns the detail view. ?q= filters movements.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.LoadCustomerView(r.Context(), mustOwner(r), linkParam(r), ledger.ViewOptions{
		Location: h.Location,
		Query:    r.URL.Query().Get("q"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerViewDTO(view))
}

// RecordMovement is the quick-add entry, optionally split with a commission.
func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var req RecordMovementRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := ledger.ParseAmount("amount", req.Amount.String())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	currency, err := ledger.ParseCurrency(req.Currency)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	var commission *decimal.Decimal
	if req.Commission != nil {
		c, err := decimal.NewFromString(req.Commission.String())
		if err != nil {
			writeDomainError(w, r, &ledger.ValidationError{Field: "commission", Message: "is not a number"})
			return
		}
		commission = &c
	}

	res, err := h.Service.RecordMovement(r.Context(), ledger.MovementInput{
		OwnerID:        mustOwner(r),
		CustomerLinkID: linkParam(r),
		Direction:      ledger.Direction(req.MovementType),
		Amount:         amount,
		Currency:       currency,
		Note:           req.Note,
		Commission:     commission,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := RecordMovementResponse{Movement: toMovementDTO(res.Primary)}
	if res.Commission != nil {
		c := toMovementDTO(*res.Commission)
		resp.Commission = &c
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ResetAccount deletes every movement of a customer and keeps the customer.
func (h *Handler) ResetAccount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.ResetAccount(r.Context(), mustOwner(r), linkParam(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"movements_deleted": n})
}

// DeleteCustomer needs ?confirm=true when balances are outstanding.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	confirm := r.URL.Query().Get("confirm") == "true"
	n, err := h.Service.DeleteCustomer(r.Context(), mustOwner(r), linkParam(r), confirm)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"movements_deleted": n})
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

func (h *Handler) EditMovement(w http.ResponseWriter, r *http.Request) {
	var req EditMovementRequest
	if !h.decode(w, r, &req) {
		return
	}

	var edit ledger.MovementEdit
	if req.Amount != nil {
		a, err := ledger.ParseAmount("amount", req.Amount.String())
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		edit.Amount = &a
	}
	if req.MovementType != nil {
		d := ledger.Direction(*req.MovementType)
		edit.Direction = &d
	}
	edit.Note = req.Note

	m, err := h.Service.EditMovement(r.Context(), mustOwner(r), movementParam(r), edit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(m))
}

// DeleteMovement also deletes the commission movements split from it.
func (h *Handler) DeleteMovement(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Service.DeleteMovement(r.Context(), mustOwner(r), movementParam(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	deleted := make([]string, len(ids))
	for i, id := range ids {
		deleted[i] = string(id)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"deleted": deleted})
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount, err := ledger.ParseAmount("amount", req.Amount.String())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	currency, err := ledger.ParseCurrency(req.Currency)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res, err := h.Service.Transfer(r.Context(), ledger.TransferInput{
		OwnerID:  mustOwner(r),
		FromLink: ledger.LinkID(req.FromCustomerID),
		ToLink:   ledger.LinkID(req.ToCustomerID),
		Amount:   amount,
		Currency: currency,
		Note:     req.Note,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, TransferResponse{
		TransferGroupID: res.GroupID,
		Outgoing:        toMovementDTO(res.Outgoing),
		Incoming:        toMovementDTO(res.Incoming),
	})
}

// =============================================================================
// DOCUMENT HANDLERS
// =============================================================================

// GetStatement renders a customer statement. Query: format=html|json,
// from/to as YYYY-MM-DD (to is inclusive), lang=ar|en.
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := h.parseDay("from", q.Get("from"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	to, err := h.parseDay("to", q.Get("to"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		writeDomainError(w, r, &ledger.ValidationError{Field: "from", Message: "must not be after to"})
		return
	}

	owner := mustOwner(r)
	view, err := h.Service.LoadCustomerView(r.Context(), owner, linkParam(r), ledger.ViewOptions{
		Location: h.Location,
		From:     from,
		To:       to,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	branding, err := h.branding(r.Context(), owner)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	st := statement.BuildStatement(view, branding, from, to, h.documentOptions(r))
	if q.Get("format") == "json" {
		writeJSON(w, http.StatusOK, st)
		return
	}
	h.writeHTML(w, r, func(w *strings.Builder) error { return h.Renderer.RenderStatement(w, st) })
}

// GetReceipt renders the receipt of one movement.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	owner := mustOwner(r)
	id := movementParam(r)

	m, err := h.Service.Store().GetMovement(r.Context(), owner, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	view, err := h.Service.LoadCustomerView(r.Context(), owner, m.CustomerLinkID, ledger.ViewOptions{Location: h.Location})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	branding, err := h.branding(r.Context(), owner)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	rc, err := statement.BuildReceipt(view, id, branding, h.documentOptions(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, rc)
		return
	}
	h.writeHTML(w, r, func(w *strings.Builder) error { return h.Renderer.RenderReceipt(w, rc) })
}

func (h *Handler) branding(ctx context.Context, owner ledger.OwnerID) (statement.Branding, error) {
	s, err := h.Shop.GetSettings(ctx, owner)
	if err != nil {
		return statement.Branding{}, &ledger.TransientError{Op: "load settings", Err: err}
	}
	return statement.BrandingFrom(s), nil
}

func (h *Handler) documentOptions(r *http.Request) statement.Options {
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = h.Language
	}
	return statement.Options{
		Labels:      statement.NewLabels(lang),
		Location:    h.Location,
		GeneratedAt: h.Service.Now(),
	}
}

func (h *Handler) parseDay(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, h.Location)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: field, Message: "must be a date in YYYY-MM-DD format"}
	}
	return t, nil
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetProfitLoss returns the commission account, creating it on first use.
func (h *Handler) GetProfitLoss(w http.ResponseWriter, r *http.Request) {
	owner := mustOwner(r)
	pl, err := h.Service.ProfitLossCustomer(r.Context(), owner)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	view, err := h.Service.LoadCustomerView(r.Context(), owner, pl.ID, ledger.ViewOptions{Location: h.Location})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerViewDTO(view))
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.LoadOwnerReport(r.Context(), mustOwner(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOwnerReportDTO(report))
}

// ListSnapshots returns cached balances. They may lag behind the ledger.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.Shop.ListSnapshots(r.Context(), mustOwner(r))
	if err != nil {
		writeDomainError(w, r, &ledger.TransientError{Op: "list snapshots", Err: err})
		return
	}
	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toSnapshotDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SETTINGS & ADMIN
// =============================================================================

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Shop.GetSettings(r.Context(), mustOwner(r))
	if err != nil {
		writeDomainError(w, r, &ledger.TransientError{Op: "load settings", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(s))
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !h.decode(w, r, &req) {
		return
	}

	saved, err := h.Shop.SaveSettings(r.Context(), ledger.ShopSettings{
		OwnerID:     mustOwner(r),
		ShopName:    strings.TrimSpace(req.ShopName),
		ShopPhone:   strings.TrimSpace(req.ShopPhone),
		ShopAddress: strings.TrimSpace(req.ShopAddress),
		LogoDataURI: req.LogoDataURI,
		UpdatedAt:   h.Service.Now(),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(saved))
}

// CreateProfile registers a platform profile. Development only.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req CreateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.Service.CreateProfile(r.Context(), ledger.ProfileDraft{
		Username: req.Username,
		FullName: req.FullName,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfileDTO(p))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeHTML(w http.ResponseWriter, r *http.Request, render func(*strings.Builder) error) {
	var buf strings.Builder
	if err := render(&buf); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(buf.String()))
}

// decode reads and validates a JSON body. It writes the 400 itself.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "invalid_body",
			Details: err.Error(),
		})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, validationResponse(err))
		return false
	}
	return true
}

func mustOwner(r *http.Request) ledger.OwnerID {
	owner, _ := OwnerFromContext(r.Context())
	return owner
}

func linkParam(r *http.Request) ledger.LinkID {
	return ledger.LinkID(chi.URLParam(r, "id"))
}

func movementParam(r *http.Request) ledger.MovementID {
	return ledger.MovementID(chi.URLParam(r, "id"))
}

// writeDomainError maps ledger errors to HTTP responses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	var (
		verr  *ledger.ValidationError
		nf    *ledger.NotFoundError
		obe   *ledger.OutstandingBalanceError
		pwerr *ledger.PartialWriteError
	)
	switch {
	case errors.As(err, &verr):
		resp := ErrorResponse{Error: err.Error(), Code: "validation_failed"}
		if verr.Field != "" {
			resp.Fields = []FieldErrorDTO{{Field: verr.Field, Message: verr.Message}}
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: nf.Resource + "_not_found"})
	case errors.As(err, &obe):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:    err.Error(),
			Code:     "outstanding_balance",
			Details:  "repeat the request with confirm=true to delete anyway",
			Balances: toBalanceDTOs(obe.Balances),
		})
	case errors.Is(err, ledger.ErrDuplicateCustomer):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "duplicate_customer"})
	case errors.Is(err, ledger.ErrCannotAddSelf):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "cannot_add_self"})
	case errors.Is(err, ledger.ErrUsernameTaken):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "username_taken"})
	case errors.Is(err, ledger.ErrProfitLossProtected):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "profit_loss_protected"})
	case errors.Is(err, ledger.ErrCommissionReadOnly):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "commission_read_only"})
	case errors.As(err, &pwerr):
		log.Error("partial write", zap.String("primary_id", string(pwerr.PrimaryID)),
			zap.Bool("rolled_back", pwerr.RolledBack), zap.Error(err))
		rolledBack := pwerr.RolledBack
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:      "Failed to record commission",
			Code:       "partial_write",
			Details:    err.Error(),
			RolledBack: &rolledBack,
		})
	case ledger.IsRetryable(err):
		log.Warn("storage unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Storage temporarily unavailable", Code: "transient", Details: err.Error()})
	default:
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal error", Code: "internal"})
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Use JSON tag names for field names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationResponse(err error) ErrorResponse {
	resp := ErrorResponse{Error: "Request validation failed", Code: "validation_failed"}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		resp.Details = err.Error()
		return resp
	}
	for _, e := range verrs {
		resp.Fields = append(resp.Fields, FieldErrorDTO{Field: e.Field(), Message: validationMessage(e)})
	}
	return resp
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "len":
		return "Must be exactly " + e.Param() + " characters"
	case "min":
		return "Must be at least " + e.Param() + " characters"
	case "max":
		return "Must be at most " + e.Param() + " characters"
	case "startswith":
		return "Must start with " + e.Param()
	case "nefield":
		return "Must differ from " + e.Param()
	default:
		return "Invalid value"
	}
}
