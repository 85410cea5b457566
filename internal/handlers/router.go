package handlers

import (
	"net/http"
	"slices"
	"time"

	"deposit-governance/internal/auth"
	"deposit-governance/internal/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig holds HTTP surface settings
type RouterConfig struct {
	CORSOrigins    []string
	OpenTokenIssue bool
}

// SetupRouter wires every governance route. m may be nil.
func SetupRouter(cfg RouterConfig, gov *GovernanceHandler, authHandler *AuthHandler, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if m != nil {
		router.Use(m.GinMiddleware())
	}

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 || slices.Contains(cfg.CORSOrigins, "*") {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	authRoutes := router.Group("/auth")
	{
		if cfg.OpenTokenIssue {
			authRoutes.POST("/token", authHandler.IssueToken)
		}
		authRoutes.GET("/me", auth.AuthMiddleware(), authHandler.Me)
	}

	// Public reads
	public := router.Group("/api")
	{
		public.GET("/governance", gov.GetGovernance)
		public.GET("/proposals", gov.ListProposals)
		public.GET("/proposals/:id", gov.GetProposal)
		public.GET("/proposals/:id/events", gov.GetProposalEvents)
		public.GET("/proposals/:id/votes", gov.GetProposalVotes)
		public.GET("/access/:address", gov.GetAccess)
	}

	// Caller-identified writes
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		api.POST("/proposals", gov.CreateProposal)
		api.POST("/proposals/:id/deposit", gov.Deposit)
		api.POST("/proposals/:id/vote", gov.Vote)
		api.POST("/proposals/:id/finalize", gov.Finalize)
		api.PUT("/admin/veto-holders/:address", gov.SetVetoHolder)
	}

	return router
}
