package handler

import (
	"net/http"

	"github.com/Alakazam-211/nsimaterials/internal/identity"
	"github.com/Alakazam-211/nsimaterials/internal/service"
	"github.com/gin-gonic/gin"
)

// AuthHandler wraps the identity provider's credential flows. Session
// persistence and refresh belong to Firebase; the server keeps no state.
type AuthHandler struct {
	idp    *identity.Client
	access *service.AccessService
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(idp *identity.Client, access *service.AccessService) *AuthHandler {
	return &AuthHandler{idp: idp, access: access}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login signs in with email/password and runs the access gate on the result,
// so the form learns both things in one round trip.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	tokens, err := h.idp.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RenderError(c, err)
		return
	}

	gate, err := h.access.CheckAccess(c.Request.Context(), req.Email)
	if err != nil {
		RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"idToken":      tokens.IDToken,
		"refreshToken": tokens.RefreshToken,
		"expiresIn":    tokens.ExpiresIn,
		"email":        tokens.Email,
		"hasAccess":    gate.HasAccess,
		"reason":       gate.Reason,
	})
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Confirm  string `json:"confirm" binding:"required"`
}

// Signup creates an account. Confirmation match is checked here, password
// length inside the adapter, both before any network call.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email, password and confirm are required"})
		return
	}
	if req.Password != req.Confirm {
		c.JSON(http.StatusBadRequest, gin.H{"error": "passwords do not match"})
		return
	}

	tokens, err := h.idp.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RenderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"idToken":      tokens.IDToken,
		"refreshToken": tokens.RefreshToken,
		"expiresIn":    tokens.ExpiresIn,
		"email":        tokens.Email,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Refresh exchanges a refresh token for a fresh ID token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refreshToken is required"})
		return
	}

	tokens, err := h.idp.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		RenderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"idToken":      tokens.IDToken,
		"refreshToken": tokens.RefreshToken,
		"expiresIn":    tokens.ExpiresIn,
	})
}

// Me echoes the authenticated caller's identity.
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"email": UserEmail(c)})
}
