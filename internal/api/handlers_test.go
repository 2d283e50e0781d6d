package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/spexafrica/billing-service/internal/domain"
	"github.com/spexafrica/billing-service/internal/store"
)

const testSecret = "test-admin-secret"

type checkerStub struct {
	calls int
	err   error
}

func (c *checkerStub) RunBillingCheck(ctx context.Context) error {
	c.calls++
	return c.err
}

type ledgerStub struct {
	rec *domain.PaymentRecord
	err error
}

func (l *ledgerStub) RecordInstallment(ctx context.Context, tenantID, planName string, amount int64, reference string) (*domain.PaymentRecord, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.rec, nil
}

func (l *ledgerStub) CurrentCycle(ctx context.Context, tenantID string) (*domain.PaymentRecord, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.rec, nil
}

type planStoreStub struct {
	plans     []domain.Plan
	createErr error
}

func (p *planStoreStub) CreatePlan(ctx context.Context, plan *domain.Plan) error {
	return p.createErr
}

func (p *planStoreStub) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	return p.plans, nil
}

func testToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "admin"})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func doRequest(t *testing.T, router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestBillingCheck_RunsOnePass(t *testing.T) {
	checker := &checkerStub{}
	router := NewRouter(NewHandler(checker, &ledgerStub{}, &planStoreStub{}), testSecret)

	rec := doRequest(t, router, http.MethodPost, "/billing/check", testToken(t), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if checker.calls != 1 {
		t.Fatalf("expected one evaluation pass, got %d", checker.calls)
	}
}

func TestBillingCheck_ReportsFailure(t *testing.T) {
	checker := &checkerStub{err: errors.New("db unavailable")}
	router := NewRouter(NewHandler(checker, &ledgerStub{}, &planStoreStub{}), testSecret)

	rec := doRequest(t, router, http.MethodPost, "/billing/check", testToken(t), "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestAdminRoutes_RequireAuth(t *testing.T) {
	checker := &checkerStub{}
	router := NewRouter(NewHandler(checker, &ledgerStub{}, &planStoreStub{}), testSecret)

	rec := doRequest(t, router, http.MethodPost, "/billing/check", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/billing/check", "not-a-jwt", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a malformed token, got %d", rec.Code)
	}
	if checker.calls != 0 {
		t.Fatal("unauthenticated requests must not trigger an evaluation pass")
	}
}

func TestRecordPayment_ValidatesBody(t *testing.T) {
	router := NewRouter(NewHandler(&checkerStub{}, &ledgerStub{}, &planStoreStub{}), testSecret)

	rec := doRequest(t, router, http.MethodPost, "/payments/record", testToken(t), `{"plan":"Silver","amount":100}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing tenant_id, got %d", rec.Code)
	}
}

func TestRecordPayment_MapsStoreErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{store.ErrPlanNotFound, http.StatusNotFound},
		{store.ErrTenantNotFound, http.StatusNotFound},
		{store.ErrDuplicateReference, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	body := `{"tenant_id":"tenant-1","plan":"Silver","amount":100,"reference":"ref-001"}`
	for _, tc := range cases {
		router := NewRouter(NewHandler(&checkerStub{}, &ledgerStub{err: tc.err}, &planStoreStub{}), testSecret)
		rec := doRequest(t, router, http.MethodPost, "/payments/record", testToken(t), body)
		if rec.Code != tc.want {
			t.Fatalf("expected %d for %v, got %d", tc.want, tc.err, rec.Code)
		}
	}
}

func TestRecordPayment_ReturnsRecord(t *testing.T) {
	ledger := &ledgerStub{rec: &domain.PaymentRecord{ID: "cycle-1", Balance: 200, Phase: domain.PhaseInProgress}}
	router := NewRouter(NewHandler(&checkerStub{}, ledger, &planStoreStub{}), testSecret)

	body := `{"tenant_id":"tenant-1","plan":"Silver","amount":100,"reference":"ref-001"}`
	rec := doRequest(t, router, http.MethodPost, "/payments/record", testToken(t), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"cycle-1"`) {
		t.Fatalf("expected the recorded cycle in the response, got %s", rec.Body.String())
	}
}

func TestCreatePlan_RejectsUnknownPaymentType(t *testing.T) {
	router := NewRouter(NewHandler(&checkerStub{}, &ledgerStub{}, &planStoreStub{}), testSecret)

	body := `{"name":"Silver","price":300,"payment_type":"weekly"}`
	rec := doRequest(t, router, http.MethodPost, "/plans", testToken(t), body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown payment type, got %d", rec.Code)
	}
}

func TestCreatePlan_ConflictsOnDuplicate(t *testing.T) {
	plans := &planStoreStub{createErr: store.ErrPlanExists}
	router := NewRouter(NewHandler(&checkerStub{}, &ledgerStub{}, plans), testSecret)

	body := `{"name":"Silver","price":300,"payment_type":"installment","duration_months":3,"staff":5}`
	rec := doRequest(t, router, http.MethodPost, "/plans", testToken(t), body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a duplicate plan, got %d", rec.Code)
	}
}

func TestListPlans_ReturnsEmptyArray(t *testing.T) {
	router := NewRouter(NewHandler(&checkerStub{}, &ledgerStub{}, &planStoreStub{}), testSecret)

	rec := doRequest(t, router, http.MethodGet, "/plans", testToken(t), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected an empty array, got %s", rec.Body.String())
	}
}
