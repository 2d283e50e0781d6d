/**
 * @description
 * This file contains the HTTP handler functions for the billing service.
 * Handlers parse incoming requests, call into the app layer, and write the
 * response; all billing decisions live in the evaluator and the ledger.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spexafrica/billing-service/internal/domain"
	"github.com/spexafrica/billing-service/internal/store"
)

// BillingChecker runs one synchronous evaluation pass.
type BillingChecker interface {
	RunBillingCheck(ctx context.Context) error
}

// LedgerService records confirmed payments and exposes the current cycle.
type LedgerService interface {
	RecordInstallment(ctx context.Context, tenantID, planName string, amount int64, reference string) (*domain.PaymentRecord, error)
	CurrentCycle(ctx context.Context, tenantID string) (*domain.PaymentRecord, error)
}

// PlanStore is the slice of the repository the catalog handlers need.
type PlanStore interface {
	CreatePlan(ctx context.Context, plan *domain.Plan) error
	ListPlans(ctx context.Context) ([]domain.Plan, error)
}

// Handler holds the application services that handlers interact with.
type Handler struct {
	checker BillingChecker
	ledger  LedgerService
	plans   PlanStore
}

// NewHandler creates a new Handler.
func NewHandler(checker BillingChecker, ledger LedgerService, plans PlanStore) *Handler {
	return &Handler{checker: checker, ledger: ledger, plans: plans}
}

// handleBillingCheck runs one evaluation pass synchronously.
func (h *Handler) handleBillingCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.checker.RunBillingCheck(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "billing check complete"})
}

// handleRecordPayment is the inbound payment-confirmation webhook, invoked by
// the payment-gateway verification flow after a transaction succeeds.
func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID  string `json:"tenant_id"`
		Plan      string `json:"plan"`
		Amount    int64  `json:"amount"`
		Reference string `json:"reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.Plan == "" || req.Reference == "" {
		http.Error(w, "tenant_id, plan and reference are required", http.StatusBadRequest)
		return
	}

	rec, err := h.ledger.RecordInstallment(r.Context(), req.TenantID, req.Plan, req.Amount, req.Reference)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

// handleCurrentCycle returns a tenant's current payment cycle.
func (h *Handler) handleCurrentCycle(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	rec, err := h.ledger.CurrentCycle(r.Context(), tenantID)
	if err != nil {
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

// handleCreatePlan adds a plan to the subscription catalog.
func (h *Handler) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string   `json:"name"`
		Price          int64    `json:"price"`
		PaymentType    string   `json:"payment_type"`
		DurationMonths int      `json:"duration_months"`
		Staff          int      `json:"staff"`
		Features       []string `json:"features"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Price <= 0 {
		http.Error(w, "name and a positive price are required", http.StatusBadRequest)
		return
	}
	switch domain.PaymentType(req.PaymentType) {
	case domain.PaymentTypeOneTime, domain.PaymentTypeInstallment, domain.PaymentTypeCustom:
	default:
		http.Error(w, "payment_type must be one-time, installment or custom", http.StatusBadRequest)
		return
	}

	plan := &domain.Plan{
		ID:             uuid.New().String(),
		Name:           req.Name,
		Price:          req.Price,
		PaymentType:    domain.PaymentType(req.PaymentType),
		DurationMonths: req.DurationMonths,
		Staff:          req.Staff,
		Features:       req.Features,
	}
	if err := h.plans.CreatePlan(r.Context(), plan); err != nil {
		respondWithStoreError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, plan)
}

// handleListPlans returns the plan catalog.
func (h *Handler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.ListPlans(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if plans == nil {
		plans = []domain.Plan{}
	}
	respondWithJSON(w, http.StatusOK, plans)
}

func respondWithStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrPlanNotFound),
		errors.Is(err, store.ErrTenantNotFound),
		errors.Is(err, store.ErrCycleNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrPlanExists),
		errors.Is(err, store.ErrDuplicateReference):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// respondWithJSON is a helper function to write JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
