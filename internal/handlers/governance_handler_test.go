package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"deposit-governance/internal/access"
	"deposit-governance/internal/auth"
	"deposit-governance/internal/governance"
	"deposit-governance/internal/ledger"
	"deposit-governance/internal/metrics"
	"deposit-governance/internal/models"
	"deposit-governance/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testServer struct {
	router *gin.Engine
	engine *governance.Engine
	ledger *ledger.DBLedger
	clock  *testClock
}

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Proposal{},
		&models.ProposalVote{},
		&models.VetoHolder{},
		&models.GovernanceEvent{},
		&models.LedgerAccount{},
		&models.LedgerAllowance{},
		&models.LedgerTransfer{},
		&models.WhitelistEntry{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func newTestServer(t *testing.T, openIssue bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth.InitJWT("handler-test-secret")

	ctx := context.Background()
	db := setupTestDB(t)

	tokens := ledger.NewDBLedger(db, "treasury")
	for who, amount := range map[string]int64{"alice": 500, "bob": 300, "carol": 200} {
		require.NoError(t, tokens.SeedBalance(ctx, who, decimal.NewFromInt(amount)))
	}
	require.NoError(t, tokens.SeedBalance(ctx, "treasury", decimal.Zero))
	require.NoError(t, tokens.Approve(ctx, "alice", "treasury", decimal.NewFromInt(500)))
	require.NoError(t, tokens.Approve(ctx, "bob", "treasury", decimal.NewFromInt(300)))

	registry := access.NewRegistry(db)
	for _, who := range []string{"alice", "bob", "carol"} {
		require.NoError(t, registry.Add(ctx, who, ""))
	}

	repo := repository.NewRepository(db)
	clock := &testClock{now: t0}
	m := metrics.NewMetrics()

	engine, err := governance.NewEngine(ctx, governance.Params{
		Admin:         "admin",
		Treasury:      "treasury",
		BurnAddress:   "burn",
		DepositLimit:  decimal.NewFromInt(100),
		DepositPeriod: time.Hour,
		VotingPeriod:  time.Hour,
	}, tokens, registry, repo, governance.WithClock(clock), governance.WithEventHook(m.ObserveEvent))
	require.NoError(t, err)

	router := SetupRouter(
		RouterConfig{CORSOrigins: []string{"*"}, OpenTokenIssue: openIssue},
		NewGovernanceHandler(engine, repo),
		NewAuthHandler(time.Hour, nil),
		m,
	)

	return &testServer{router: router, engine: engine, ledger: tokens, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path, caller string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		token, err := auth.GenerateToken(caller, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestProposalLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/proposals", "alice", gin.H{"description": "fund the audit"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, float64(1), created["id"])
	assert.Equal(t, "deposit", created["phase"])
	assert.Equal(t, "PENDING", created["status"])

	w = s.do(t, http.MethodPost, "/api/proposals/1/deposit", "alice", gin.H{"amount": "60"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/proposals/1/deposit", "bob", gin.H{"amount": 50})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	funded := decode(t, w)
	assert.Equal(t, "APPROVED", funded["status"])
	assert.Equal(t, "100", funded["deposit_total"])

	s.clock.Set(t0.Add(90 * time.Minute))

	w = s.do(t, http.MethodPost, "/api/proposals/1/vote", "carol", gin.H{"approval": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s.clock.Set(t0.Add(91 * time.Minute))
	w = s.do(t, http.MethodPost, "/api/proposals/1/vote", "bob", gin.H{"approval": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// bob holds 250 after depositing 50, carol 200
	w = s.do(t, http.MethodPost, "/api/proposals/1/finalize", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	final := decode(t, w)
	assert.Equal(t, "DENIED", final["status"])
	assert.Equal(t, "voting", final["phase"])

	burned, err := s.ledger.BalanceOf(context.Background(), "burn")
	require.NoError(t, err)
	assert.True(t, burned.Equal(decimal.NewFromInt(100)))

	w = s.do(t, http.MethodGet, "/api/proposals/1/events", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	// created, two deposits, two votes, denied
	events := decode(t, w)["events"].([]interface{})
	assert.Len(t, events, 6)

	w = s.do(t, http.MethodGet, "/api/proposals/1/votes", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	votes := decode(t, w)["votes"].([]interface{})
	require.Len(t, votes, 2)
	first := votes[0].(map[string]interface{})
	assert.Equal(t, "carol", first["voter"])
	assert.Equal(t, true, first["approval"])
	second := votes[1].(map[string]interface{})
	assert.Equal(t, "bob", second["voter"])
	assert.Equal(t, false, second["approval"])

	w = s.do(t, http.MethodGet, "/api/proposals/9/votes", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/proposals?limit=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)
	assert.Equal(t, float64(1), list["total"])
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/proposals", "alice", gin.H{"description": "p1"})
	require.Equal(t, http.StatusCreated, w.Code)

	tests := []struct {
		name   string
		method string
		path   string
		caller string
		body   interface{}
		status int
		code   string
	}{
		{"no token", http.MethodPost, "/api/proposals", "", gin.H{"description": "x"}, http.StatusUnauthorized, ""},
		{"outsider creates", http.MethodPost, "/api/proposals", "mallory", gin.H{"description": "x"}, http.StatusForbidden, "unauthorized"},
		{"missing description", http.MethodPost, "/api/proposals", "alice", gin.H{}, http.StatusBadRequest, ""},
		{"null description", http.MethodPost, "/api/proposals", "alice", gin.H{"description": nil}, http.StatusBadRequest, ""},
		{"zero deposit", http.MethodPost, "/api/proposals/1/deposit", "alice", gin.H{"amount": "0"}, http.StatusBadRequest, "invalid_amount"},
		{"over-limit deposit", http.MethodPost, "/api/proposals/1/deposit", "alice", gin.H{"amount": "101"}, http.StatusBadRequest, "invalid_amount"},
		{"too many decimals", http.MethodPost, "/api/proposals/1/deposit", "alice", gin.H{"amount": "0.0000000000000000001"}, http.StatusBadRequest, "invalid_amount"},
		{"unknown proposal", http.MethodPost, "/api/proposals/9/deposit", "alice", gin.H{"amount": "1"}, http.StatusNotFound, "not_found"},
		{"bad id", http.MethodGet, "/api/proposals/abc", "", nil, http.StatusBadRequest, ""},
		{"zero id", http.MethodGet, "/api/proposals/0", "", nil, http.StatusBadRequest, ""},
		{"no allowance", http.MethodPost, "/api/proposals/1/deposit", "carol", gin.H{"amount": "5"}, http.StatusBadGateway, "ledger_transfer_failed"},
		{"vote during deposit", http.MethodPost, "/api/proposals/1/vote", "alice", gin.H{"approval": true}, http.StatusConflict, "phase_violation"},
		{"vote without choice", http.MethodPost, "/api/proposals/1/vote", "alice", gin.H{}, http.StatusBadRequest, ""},
		{"non-admin finalize", http.MethodPost, "/api/proposals/1/finalize", "alice", nil, http.StatusForbidden, "unauthorized"},
		{"non-admin veto", http.MethodPut, "/api/admin/veto-holders/bob", "alice", gin.H{"enabled": true}, http.StatusForbidden, "unauthorized"},
		{"token issue disabled", http.MethodPost, "/auth/token", "", gin.H{"address": "alice"}, http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decode(t, w)["code"])
			}
		})
	}

	// Window and vote conflicts
	s.clock.Set(t0.Add(90 * time.Minute))
	w = s.do(t, http.MethodPost, "/api/proposals/1/vote", "alice", gin.H{"approval": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/proposals/1/vote", "alice", gin.H{"approval": false})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_voted", decode(t, w)["code"])

	w = s.do(t, http.MethodPost, "/api/proposals/1/deposit", "alice", gin.H{"amount": "5"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "phase_violation", decode(t, w)["code"])

	// One approving vote outweighs no denial
	w = s.do(t, http.MethodPost, "/api/proposals/1/finalize", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "APPROVED", decode(t, w)["status"])

	s.clock.Set(t0.Add(3 * time.Hour))
	w = s.do(t, http.MethodPost, "/api/proposals/1/finalize", "admin", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "phase_violation", decode(t, w)["code"])
}

func TestFinalizeDeniedProposalIsInvalidStatus(t *testing.T) {
	s := newTestServer(t, false)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/proposals", "alice", gin.H{"description": "p"}).Code)
	s.clock.Set(t0.Add(90 * time.Minute))

	// No votes is a tie, which denies
	w := s.do(t, http.MethodPost, "/api/proposals/1/finalize", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENIED", decode(t, w)["status"])

	w = s.do(t, http.MethodPost, "/api/proposals/1/finalize", "admin", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_status", decode(t, w)["code"])
}

func TestGovernanceAndAccessReads(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPut, "/api/admin/veto-holders/vera", "admin", gin.H{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["enabled"])

	w = s.do(t, http.MethodGet, "/api/governance", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode(t, w)
	assert.Equal(t, "admin", info["admin"])
	assert.Equal(t, "treasury", info["treasury"])
	assert.Equal(t, "burn", info["burn_address"])
	assert.Equal(t, "100", info["deposit_limit"])
	assert.Equal(t, "1h0m0s", info["deposit_period"])
	assert.Equal(t, []interface{}{"vera"}, info["veto_holders"])

	w = s.do(t, http.MethodGet, "/api/access/alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	alice := decode(t, w)
	assert.Equal(t, true, alice["whitelisted"])
	assert.Equal(t, false, alice["veto_holder"])

	w = s.do(t, http.MethodGet, "/api/access/vera", "", nil)
	vera := decode(t, w)
	assert.Equal(t, false, vera["whitelisted"])
	assert.Equal(t, true, vera["veto_holder"])

	w = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListProposalsPagination(t *testing.T) {
	s := newTestServer(t, false)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/proposals", "alice", gin.H{"description": fmt.Sprintf("p%d", i)}).Code)
	}

	w := s.do(t, http.MethodGet, "/api/proposals?limit=2&offset=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)
	assert.Equal(t, float64(5), page["total"])

	proposals := page["proposals"].([]interface{})
	require.Len(t, proposals, 2)
	assert.Equal(t, float64(4), proposals[0].(map[string]interface{})["id"])
	assert.Equal(t, float64(3), proposals[1].(map[string]interface{})["id"])
}

func TestIssueToken(t *testing.T) {
	s := newTestServer(t, true)

	w := s.do(t, http.MethodPost, "/auth/token", "", gin.H{"address": "alice"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := decode(t, w)["token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode(t, rec)["address"])

	w = s.do(t, http.MethodPost, "/auth/token", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIssueTokenValidatesAddress(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth.InitJWT("handler-test-secret")

	h := NewAuthHandler(time.Hour, func(addr string) bool { return len(addr) == 5 })
	router := gin.New()
	router.POST("/auth/token", h.IssueToken)

	req := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewBufferString(`{"address":"toolong"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateProposalWithEmptyDescription(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/proposals", "alice", gin.H{"description": ""})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, float64(1), created["id"])
	assert.Equal(t, "", created["description"])
}
