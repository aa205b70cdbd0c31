// Package identity wraps the Firebase Identity Toolkit REST API. Credential
// and session management belong to Firebase; this adapter only exchanges
// credentials for tokens and verifies the ID tokens the SPA sends back.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	identityToolkitURL = "https://identitytoolkit.googleapis.com/v1"
	secureTokenURL     = "https://securetoken.googleapis.com/v1"

	// Firebase's own minimum; re-checked here so a bad password fails before
	// the network call.
	minPasswordLength = 6
)

// Client talks to the Firebase Identity Toolkit for one project.
type Client struct {
	apiKey         string
	toolkitBaseURL string
	tokenBaseURL   string
	httpClient     *http.Client
	logger         *zap.Logger
}

// NewClient creates an identity client for the given web API key.
func NewClient(apiKey string, logger *zap.Logger) *Client {
	return &Client{
		apiKey:         apiKey,
		toolkitBaseURL: identityToolkitURL,
		tokenBaseURL:   secureTokenURL,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		logger:         logger,
	}
}

// WithBaseURLs overrides the Google endpoints. Tests point these at fakes.
func (c *Client) WithBaseURLs(toolkit, token string) *Client {
	c.toolkitBaseURL = toolkit
	c.tokenBaseURL = token
	return c
}

// Tokens is the credential set Firebase hands back on sign-in/sign-up.
type Tokens struct {
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
	Email        string `json:"email"`
	LocalID      string `json:"localId"`
}

// AuthError is a failed Identity Toolkit call, carrying Firebase's error code
// (for example EMAIL_NOT_FOUND or INVALID_PASSWORD).
type AuthError struct {
	StatusCode int
	Code       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("identity provider rejected the request: %s", e.Code)
}

// SignIn exchanges an email/password pair for tokens.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Tokens, error) {
	return c.credentialCall(ctx, "accounts:signInWithPassword", email, password)
}

// SignUp creates a new account. Password length is validated before the call.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Tokens, error) {
	if len(password) < minPasswordLength {
		return nil, &AuthError{StatusCode: http.StatusBadRequest, Code: "WEAK_PASSWORD"}
	}
	return c.credentialCall(ctx, "accounts:signUp", email, password)
}

func (c *Client) credentialCall(ctx context.Context, action, email, password string) (*Tokens, error) {
	body := map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}
	var tokens Tokens
	endpoint := fmt.Sprintf("%s/%s?key=%s", c.toolkitBaseURL, action, url.QueryEscape(c.apiKey))
	if err := c.post(ctx, endpoint, body, &tokens); err != nil {
		return nil, err
	}
	c.logger.Info("identity provider call succeeded",
		zap.String("action", action),
		zap.String("email", email),
	)
	return &tokens, nil
}

// Refresh exchanges a refresh token for a fresh ID token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	body := map[string]any{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}
	var result struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
		UserID       string `json:"user_id"`
	}
	endpoint := fmt.Sprintf("%s/token?key=%s", c.tokenBaseURL, url.QueryEscape(c.apiKey))
	if err := c.post(ctx, endpoint, body, &result); err != nil {
		return nil, err
	}
	return &Tokens{
		IDToken:      result.IDToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    result.ExpiresIn,
		LocalID:      result.UserID,
	}, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body, result any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read identity response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var parsed struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		code := "UNKNOWN"
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error.Message != "" {
			code = parsed.Error.Message
		}
		return &AuthError{StatusCode: resp.StatusCode, Code: code}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode identity response: %w", err)
		}
	}
	return nil
}
