// Package testutil holds the shared test harness: a gin router factory,
// request helpers and an in-process fake of the QuickBase records API.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter returns a quiet gin engine for handler tests.
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// Logger returns a no-op logger for constructing services under test.
func Logger() *zap.Logger {
	return zap.NewNop()
}

// DoRequest performs one request against the router and returns the recorder.
// A non-nil body is JSON encoded; a non-empty token goes into Authorization.
func DoRequest(router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reqBody = bytes.NewReader(encoded)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ParseResponse decodes a JSON response body into a generic map.
func ParseResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
	return resp
}

// RequireStatus fails the test when the recorder's status differs.
func RequireStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}
