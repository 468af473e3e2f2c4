package upstream

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTokenURL = "https://oauth2.googleapis.com/token"

	// refreshSkew is how long before expiry a cached credential is considered
	// stale and refreshed.
	refreshSkew = time.Minute
)

var driveScopes = []string{
	"https://www.googleapis.com/auth/drive.readonly",
	"https://www.googleapis.com/auth/drive.metadata.readonly",
}

// ServiceAccountConfig holds the fields of a service-account key file needed
// to mint upstream bearer credentials.
type ServiceAccountConfig struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// LoadServiceAccountConfig parses service-account JSON from the inline value
// when provided, otherwise from the file at path.
func LoadServiceAccountConfig(inline, path string) (ServiceAccountConfig, error) {
	raw := strings.TrimSpace(inline)
	if raw == "" && strings.TrimSpace(path) != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return ServiceAccountConfig{}, fmt.Errorf("read service account file: %w", err)
		}
		raw = string(contents)
	}

	if raw == "" {
		return ServiceAccountConfig{}, errors.New("service account JSON is not configured")
	}

	var cfg ServiceAccountConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return ServiceAccountConfig{}, fmt.Errorf("parse service account JSON: %w", err)
	}

	if cfg.ClientEmail == "" || cfg.PrivateKey == "" {
		return ServiceAccountConfig{}, errors.New("service account JSON missing client_email or private_key")
	}

	return cfg, nil
}

// ServiceAccountSource exchanges a signed service-account assertion for
// short-lived bearer credentials and caches the result process-wide. A
// single in-flight exchange is shared by concurrent callers; a cached
// credential that has not reached the refresh skew is served without
// synchronizing on the refresh path.
type ServiceAccountSource struct {
	clientEmail string
	key         *rsa.PrivateKey
	tokenURL    string
	scopes      []string
	httpClient  *http.Client
	now         func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	flight singleflight.Group
}

// NewServiceAccountSource validates the key material and returns a credential
// source for it.
func NewServiceAccountSource(cfg ServiceAccountConfig, timeout time.Duration) (*ServiceAccountSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse service account private key: %w", err)
	}

	tokenURL := cfg.TokenURI
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ServiceAccountSource{
		clientEmail: cfg.ClientEmail,
		key:         key,
		tokenURL:    tokenURL,
		scopes:      driveScopes,
		httpClient:  &http.Client{Timeout: timeout},
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithNowFunc overrides the time source. Useful for tests.
func (s *ServiceAccountSource) WithNowFunc(now func() time.Time) *ServiceAccountSource {
	if now != nil {
		s.now = now
	}
	return s
}

// Token returns a bearer credential for the upstream store, refreshing the
// cached one when it is within the refresh skew of expiring.
func (s *ServiceAccountSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	token, expiresAt := s.token, s.expiresAt
	s.mu.RUnlock()

	if token != "" && expiresAt.Sub(s.now()) > refreshSkew {
		return token, nil
	}

	value, err, _ := s.flight.Do("token", func() (any, error) {
		s.mu.RLock()
		token, expiresAt := s.token, s.expiresAt
		s.mu.RUnlock()
		if token != "" && expiresAt.Sub(s.now()) > refreshSkew {
			return token, nil
		}

		fresh, freshExpiry, err := s.exchange(ctx)
		if err != nil {
			return "", err
		}

		s.mu.Lock()
		s.token, s.expiresAt = fresh, freshExpiry
		s.mu.Unlock()

		return fresh, nil
	})
	if err != nil {
		return "", err
	}

	return value.(string), nil
}

func (s *ServiceAccountSource) exchange(ctx context.Context) (string, time.Time, error) {
	assertion, err := s.signAssertion()
	if err != nil {
		return "", time.Time{}, err
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("exchange service account assertion: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("read token response: %w", err)
	}

	var payload struct {
		AccessToken      string `json:"access_token"`
		ExpiresIn        int    `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || payload.AccessToken == "" {
		message := payload.ErrorDescription
		if message == "" {
			message = payload.Error
		}
		if message == "" {
			message = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", time.Time{}, fmt.Errorf("token exchange failed: %s", message)
	}

	return payload.AccessToken, s.now().Add(time.Duration(payload.ExpiresIn) * time.Second), nil
}

func (s *ServiceAccountSource) signAssertion() (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss":   s.clientEmail,
		"scope": strings.Join(s.scopes, " "),
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign service account assertion: %w", err)
	}
	return assertion, nil
}
