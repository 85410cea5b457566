package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"deposit-governance/internal/governance"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveEvent(t *testing.T) {
	m := NewMetrics()

	m.ObserveEvent(governance.ProposalCreated{ID: 1, Creator: "alice"})
	m.ObserveEvent(governance.DepositMade{ID: 1, Depositor: "alice", Amount: decimal.NewFromInt(60)})
	m.ObserveEvent(governance.DepositMade{ID: 1, Depositor: "bob", Amount: decimal.NewFromInt(50)})
	m.ObserveEvent(governance.VoteCasted{ID: 1, Voter: "carol", Weight: decimal.NewFromInt(7), Approval: true})
	m.ObserveEvent(governance.VoteCasted{ID: 1, Voter: "dave", Weight: decimal.NewFromInt(3), Approval: false})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("ProposalCreated")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues("DepositMade")))
	assert.Equal(t, 110.0, testutil.ToFloat64(m.depositedTokens))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.voteWeightTotal.WithLabelValues("approval")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.voteWeightTotal.WithLabelValues("denial")))
}

func TestGauges(t *testing.T) {
	m := NewMetrics()

	m.SetProposalPhases([]PhaseCount{
		{Phase: governance.PhaseDeposit, Status: "PENDING", Count: 2},
		{Phase: governance.PhaseVoting, Status: "APPROVED", Count: 1},
	})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.proposalsByPhase.WithLabelValues("deposit", "PENDING")))

	// A later pass drops phases that emptied out
	m.SetProposalPhases([]PhaseCount{{Phase: governance.PhaseClosed, Status: "DENIED", Count: 3}})
	assert.Equal(t, 1, testutil.CollectAndCount(m.proposalsByPhase))

	m.SetLapsedProposals(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.lapsedProposals))

	m.RecordRelay(5, 1, 2)
	m.RecordRelay(1, 0, 0)
	assert.Equal(t, 6.0, testutil.ToFloat64(m.relayPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.outboxPending))
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/api/proposals/:id", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/proposals/9", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/proposals/:id", "404")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_requests_total"))
}
