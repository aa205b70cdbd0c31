package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const certsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

// Claims are the Firebase ID-token claims the portal cares about.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	UserID        string `json:"user_id"`
	jwt.RegisteredClaims
}

// Verifier checks Firebase ID tokens offline against Google's securetoken
// signing certs. Certs are cached until the Cache-Control max-age expires.
type Verifier struct {
	projectID string
	certsURL  string

	mu          sync.RWMutex
	certs       map[string]*rsa.PublicKey
	certsExpire time.Time

	httpClient *http.Client
}

// NewVerifier creates a verifier for one Firebase project.
func NewVerifier(projectID string) *Verifier {
	return &Verifier{
		projectID:  projectID,
		certsURL:   certsURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithCertsURL overrides the cert endpoint. Tests point this at a fake.
func (v *Verifier) WithCertsURL(u string) *Verifier {
	v.certsURL = u
	return v
}

// Verify parses and validates an ID token, returning its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
		jwt.WithAudience(v.projectID),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid ID token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid ID token")
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("ID token carries no email claim")
	}
	return claims, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("token header has no kid")
	}
	certs, err := v.signingCerts()
	if err != nil {
		return nil, err
	}
	key, ok := certs[kid]
	if !ok {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}
	return key, nil
}

// signingCerts returns the current cert set, refreshing from Google when the
// cached copy has expired.
func (v *Verifier) signingCerts() (map[string]*rsa.PublicKey, error) {
	v.mu.RLock()
	if v.certs != nil && time.Now().Before(v.certsExpire) {
		certs := v.certs
		v.mu.RUnlock()
		return certs, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.certs != nil && time.Now().Before(v.certsExpire) {
		return v.certs, nil
	}

	resp, err := v.httpClient.Get(v.certsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch signing certs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signing cert fetch returned %d", resp.StatusCode)
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode signing certs: %w", err)
	}

	certs := make(map[string]*rsa.PublicKey, len(raw))
	for kid, pemText := range raw {
		key, err := parseCertPublicKey(pemText)
		if err != nil {
			return nil, fmt.Errorf("bad signing cert %q: %w", kid, err)
		}
		certs[kid] = key
	}

	v.certs = certs
	v.certsExpire = time.Now().Add(certMaxAge(resp.Header.Get("Cache-Control")))
	return certs, nil
}

func parseCertPublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("not PEM encoded")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA key")
	}
	return key, nil
}

// certMaxAge pulls max-age out of a Cache-Control header, with a one hour
// floor so a missing header does not cause a fetch per request.
func certMaxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.TrimSpace(part)
		if rest, found := strings.CutPrefix(part, "max-age="); found {
			if seconds, err := strconv.Atoi(rest); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}
	return time.Hour
}
