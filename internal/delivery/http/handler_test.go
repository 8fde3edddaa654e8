package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"yieldvault/internal/delivery/ws"
	"yieldvault/internal/domain"
	"yieldvault/internal/infra"
	custommiddleware "yieldvault/internal/middleware"
	"yieldvault/internal/service"
	"yieldvault/internal/testutil"
	"yieldvault/internal/usecase"
	"yieldvault/internal/utils"
)

const testAddress = "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8"

type stubOpener struct{}

func (stubOpener) Check(context.Context, *domain.BackupDatabase) error { return nil }

func (stubOpener) Open(context.Context, *domain.BackupDatabase) (domain.ReplicaTarget, error) {
	return &testutil.FakeReplica{}, nil
}

type stubSwitcher struct{}

func (stubSwitcher) SwitchTo(context.Context, string) error { return nil }
func (stubSwitcher) Ping(context.Context) error { return nil }
func (stubSwitcher) Fence() func() { return func() {} }

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

type apiFixture struct {
	e       *echo.Echo
	ledger  *testutil.MemoryLedger
	auth    *custommiddleware.Auth
	root    *domain.User
	support *domain.User
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ledger := testutil.NewMemoryLedger()
	ledger.AddPlan(&domain.InvestmentPlan{
		ID:              "starter",
		Name:            "Starter",
		DailyReturnRate: decimal.RequireFromString("0.01"),
		DurationDays:    10,
		MinAmount:       decimal.NewFromInt(10),
		IsActive:        true,
	})
	logger := testutil.Logger()
	clock := utils.NewManualClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	metrics := infra.NewMetrics(prometheus.NewRegistry())

	hub := ws.NewHub(metrics, logger)
	notifications := service.NewNotificationService(ledger.Notifications(), metrics, logger, hub)
	replication := service.NewReplicationService(testutil.NewMemoryBackups(), ledger.Snapshots(), stubOpener{}, stubSwitcher{},
		nil, nil, clock, metrics, logger)
	transactions := usecase.NewTransactionUsecase(ledger, ledger.Plans(), ledger.Transactions(), ledger.Investments(), ledger.Users(),
		notifications, clock, metrics, logger, usecase.TransactionConfig{
			MinDeposit:             decimal.NewFromInt(10),
			MinWithdrawal:          decimal.NewFromInt(10),
			AutoConfirmInvestments: true,
		})
	admin := usecase.NewAdminUsecase(ledger, ledger.Users(), ledger.Plans(), ledger.Settings(), ledger.Stats(),
		transactions, notifications, clock, logger)

	auth := custommiddleware.NewAuth("handler-test-secret", time.Hour, ledger.Users())
	e := NewEcho()
	SetupRoutes(e, &RouterConfig{
		Auth:          auth,
		AuthHandler:   NewAuthHandler(ledger.Users(), auth, clock, false),
		UserHandler:   NewUserHandler(transactions, notifications, ledger.Plans(), hub, logger),
		AdminHandler:  NewAdminHandler(admin, logger),
		BackupHandler: NewBackupHandler(replication),
		Logger:        logger,
	})

	f := &apiFixture{e: e, ledger: ledger, auth: auth}
	f.root = f.staff(t, "root", true, false)
	f.support = f.staff(t, "helpdesk", false, true)
	return f
}

func (f *apiFixture) staff(t *testing.T, name string, admin, support bool) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Username: name, IsAdmin: admin, IsSupportAdmin: support}
	if err := f.ledger.Users().Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func (f *apiFixture) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := f.auth.GenerateJWT(userID)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestRegisterAndLogin(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "password": "correct-horse", "wallet_address": testAddress,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Username string          `json:"username"`
		Balance  decimal.Decimal `json:"balance"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil || created.Username != "alice" || !created.Balance.IsZero() {
		t.Errorf("created = %+v, %v", created, err)
	}

	rec, _ = f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "alice", "password": "another-pass"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate username = %d", rec.Code)
	}

	rec, _ = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "wrong-horse"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password = %d", rec.Code)
	}

	rec, env = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "correct-horse"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), custommiddleware.TokenCookie+"=") {
		t.Error("login did not set the session cookie")
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &login); err != nil || login.Token == "" {
		t.Fatalf("login payload = %s", env.Data)
	}

	rec, _ = f.do(t, http.MethodGet, "/api/user/me", login.Token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("me = %d", rec.Code)
	}
}

func TestRegisterFieldErrors(t *testing.T) {
	f := newAPIFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "ab", "password": "short"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var fields []FieldError
	if err := json.Unmarshal(env.Error, &fields); err != nil {
		t.Fatalf("error payload = %s", env.Error)
	}
	got := map[string]bool{}
	for _, fe := range fields {
		got[fe.Field] = true
	}
	if !got["username"] || !got["password"] {
		t.Errorf("fields = %+v", fields)
	}

	rec, _ = f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "bobby", "password": "long-enough", "wallet_address": "0x123",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad wallet = %d", rec.Code)
	}
}

func TestDepositConfirmFlow(t *testing.T) {
	f := newAPIFixture(t)
	user := f.ledger.AddUser("carol", decimal.Zero)
	userToken := f.token(t, user.ID)
	rootToken := f.token(t, f.root.ID)

	rec, env := f.do(t, http.MethodPost, "/api/user/deposits", userToken, map[string]string{"amount": "100"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("deposit = %d %s", rec.Code, rec.Body.String())
	}
	var dep domain.Transaction
	if err := json.Unmarshal(env.Data, &dep); err != nil {
		t.Fatal(err)
	}

	rec, _ = f.do(t, http.MethodGet, "/api/admin/transactions", f.token(t, f.support.ID), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("support reading queue = %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPost, "/api/admin/transactions/"+dep.ID.String()+"/confirm", f.token(t, f.support.ID), nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("support confirming = %d", rec.Code)
	}

	rec, _ = f.do(t, http.MethodPost, "/api/admin/transactions/"+dep.ID.String()+"/confirm", rootToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm = %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = f.do(t, http.MethodPost, "/api/admin/transactions/"+dep.ID.String()+"/confirm", rootToken, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second confirm = %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPost, "/api/user/transactions/"+dep.ID.String()+"/cancel", userToken, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel after confirm = %d", rec.Code)
	}

	_, env = f.do(t, http.MethodGet, "/api/user/me", userToken, nil)
	var portfolio struct {
		Available decimal.Decimal `json:"available_balance"`
	}
	if err := json.Unmarshal(env.Data, &portfolio); err != nil || !portfolio.Available.Equal(decimal.NewFromInt(100)) {
		t.Errorf("portfolio = %s", env.Data)
	}

	_, env = f.do(t, http.MethodGet, "/api/user/notifications/unread-count", userToken, nil)
	var unread struct {
		Unread int `json:"unread"`
	}
	if err := json.Unmarshal(env.Data, &unread); err != nil || unread.Unread != 2 {
		t.Errorf("unread = %s", env.Data)
	}
}

func TestWithdrawalStatuses(t *testing.T) {
	f := newAPIFixture(t)
	user := f.ledger.AddUser("dan", decimal.NewFromInt(30))
	token := f.token(t, user.ID)

	rec, _ := f.do(t, http.MethodPost, "/api/user/withdrawals", token, map[string]string{"amount": "50", "address": testAddress})
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("over balance = %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPost, "/api/user/withdrawals", token, map[string]string{"amount": "20"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing address = %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPost, "/api/user/transactions/"+uuid.NewString()+"/cancel", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cancel unknown = %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodGet, "/api/user/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous = %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodGet, "/api/admin/statistics", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("user reading statistics = %d", rec.Code)
	}
}

func TestExportImport(t *testing.T) {
	f := newAPIFixture(t)
	f.ledger.AddUser("erin", decimal.NewFromInt(12))
	rootToken := f.token(t, f.root.ID)

	rec, _ := f.do(t, http.MethodGet, "/api/admin/export", f.token(t, f.support.ID), nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("support export = %d", rec.Code)
	}

	rec, _ = f.do(t, http.MethodGet, "/api/admin/export", rootToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get(echo.HeaderContentDisposition), "attachment;") {
		t.Errorf("content disposition = %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Users) != 3 {
		t.Errorf("exported users = %d", len(snap.Users))
	}

	rec, _ = f.do(t, http.MethodPost, "/api/admin/import", rootToken, snap)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unconfirmed import = %d", rec.Code)
	}
	rec, env := f.do(t, http.MethodPost, "/api/admin/import?confirm=true", rootToken, snap)
	if rec.Code != http.StatusOK {
		t.Fatalf("import = %d %s", rec.Code, rec.Body.String())
	}
	var counts map[string]int
	if err := json.Unmarshal(env.Data, &counts); err != nil || counts["users"] != 3 {
		t.Errorf("counts = %s", env.Data)
	}
}

func TestHandleErrorStatuses(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("bad"), http.StatusBadRequest},
		{domain.NewNotFoundError("transaction", uuid.New()), http.StatusNotFound},
		{domain.NewInsufficientFundsError(decimal.NewFromInt(5), decimal.NewFromInt(1)), http.StatusPaymentRequired},
		{domain.NewTransitionError("transaction", "confirmed", "cancelled"), http.StatusConflict},
		{domain.NewConflictError(errors.New("serialization failure")), http.StatusConflict},
		{domain.NewReplicationError("sync failed", errors.New("timeout")), http.StatusBadGateway},
		{domain.ErrForbidden, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	e := echo.New()
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if err := HandleError(c, tt.err); err != nil {
			t.Fatal(err)
		}
		if rec.Code != tt.want {
			t.Errorf("HandleError(%v) = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}
