package handlers

import (
	"net/http"
	"time"

	"deposit-governance/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	tokenTTL        time.Duration
	validateAddress func(string) bool
}

// NewAuthHandler creates a new AuthHandler. validateAddress may be nil to accept any identity.
func NewAuthHandler(tokenTTL time.Duration, validateAddress func(string) bool) *AuthHandler {
	return &AuthHandler{
		tokenTTL:        tokenTTL,
		validateAddress: validateAddress,
	}
}

// IssueToken issues a bearer token for an identity without proof of ownership.
// Only mounted when open issuance is enabled.
// POST /auth/token
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if h.validateAddress != nil && !h.validateAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}

	token, err := auth.GenerateToken(req.Address, h.tokenTTL)
	if err != nil {
		log.Error().Err(err).Msg("[Auth] failed to issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"address":    req.Address,
		"expires_at": time.Now().Add(h.tokenTTL).UTC().Format(time.RFC3339),
	})
}

// Me returns the caller identity
// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	address, ok := auth.GetAddress(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address})
}
