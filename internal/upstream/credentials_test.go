package upstream

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func generateKeyPEM(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	encoded := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return string(encoded), key
}

func serviceAccountJSON(t *testing.T, keyPEM, tokenURI string) string {
	t.Helper()
	raw, err := json.Marshal(map[string]string{
		"client_email": "streamer@project.iam.gserviceaccount.com",
		"private_key":  keyPEM,
		"token_uri":    tokenURI,
	})
	if err != nil {
		t.Fatalf("marshal service account: %v", err)
	}
	return string(raw)
}

func TestLoadServiceAccountConfig(t *testing.T) {
	keyPEM, _ := generateKeyPEM(t)
	raw := serviceAccountJSON(t, keyPEM, "https://token.example/token")

	cfg, err := LoadServiceAccountConfig(raw, "")
	if err != nil {
		t.Fatalf("load inline: %v", err)
	}
	if cfg.ClientEmail != "streamer@project.iam.gserviceaccount.com" {
		t.Fatalf("unexpected client email %q", cfg.ClientEmail)
	}

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	if _, err := LoadServiceAccountConfig("", path); err != nil {
		t.Fatalf("load from file: %v", err)
	}

	if _, err := LoadServiceAccountConfig("", ""); err == nil {
		t.Fatal("expected error when nothing is configured")
	}
	if _, err := LoadServiceAccountConfig(`{"client_email":"x"}`, ""); err == nil {
		t.Fatal("expected error for missing private key")
	}
	if _, err := LoadServiceAccountConfig(`not json`, ""); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestServiceAccountSourceExchangesAndCaches(t *testing.T) {
	keyPEM, key := generateKeyPEM(t)

	var exchanges atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)

		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			t.Errorf("unexpected grant type %q", got)
		}

		assertion := r.PostForm.Get("assertion")
		parsed, err := jwt.Parse(assertion, func(*jwt.Token) (any, error) { return &key.PublicKey, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
		if err != nil || !parsed.Valid {
			t.Errorf("assertion does not verify: %v", err)
		}
		if claims, ok := parsed.Claims.(jwt.MapClaims); ok {
			if claims["iss"] != "streamer@project.iam.gserviceaccount.com" {
				t.Errorf("unexpected issuer %v", claims["iss"])
			}
		}

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("bearer-%d", exchanges.Load()),
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	cfg, err := LoadServiceAccountConfig(serviceAccountJSON(t, keyPEM, server.URL), "")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	current := time.Now().UTC()
	source, err := NewServiceAccountSource(cfg, time.Second)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	source.WithNowFunc(func() time.Time { return current })

	ctx := context.Background()

	token, err := source.Token(ctx)
	if err != nil {
		t.Fatalf("first token: %v", err)
	}
	if token != "bearer-1" {
		t.Fatalf("unexpected token %q", token)
	}

	// Still fresh, so the cached credential is served.
	if token, err = source.Token(ctx); err != nil || token != "bearer-1" {
		t.Fatalf("cached token: %q err=%v", token, err)
	}
	if got := exchanges.Load(); got != 1 {
		t.Fatalf("expected one exchange, got %d", got)
	}

	// Within the refresh skew of expiry the credential is replaced.
	current = current.Add(time.Hour - 30*time.Second)
	if token, err = source.Token(ctx); err != nil || token != "bearer-2" {
		t.Fatalf("refreshed token: %q err=%v", token, err)
	}
	if got := exchanges.Load(); got != 2 {
		t.Fatalf("expected two exchanges, got %d", got)
	}
}

func TestServiceAccountSourceSharesInflightExchange(t *testing.T) {
	keyPEM, _ := generateKeyPEM(t)

	var exchanges atomic.Int64
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		<-release
		json.NewEncoder(w).Encode(map[string]any{"access_token": "shared", "expires_in": 3600})
	}))
	defer server.Close()

	cfg, err := LoadServiceAccountConfig(serviceAccountJSON(t, keyPEM, server.URL), "")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	source, err := NewServiceAccountSource(cfg, 5*time.Second)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	const callers = 8
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer done.Done()
			started.Done()
			token, err := source.Token(context.Background())
			if err != nil || token != "shared" {
				t.Errorf("token: %q err=%v", token, err)
			}
		}()
	}

	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()

	if got := exchanges.Load(); got != 1 {
		t.Fatalf("expected a single shared exchange, got %d", got)
	}
}

func TestServiceAccountSourceSurfacesExchangeErrors(t *testing.T) {
	keyPEM, _ := generateKeyPEM(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Invalid JWT signature.",
		})
	}))
	defer server.Close()

	cfg, err := LoadServiceAccountConfig(serviceAccountJSON(t, keyPEM, server.URL), "")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	source, err := NewServiceAccountSource(cfg, time.Second)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	if _, err := source.Token(context.Background()); err == nil {
		t.Fatal("expected exchange error")
	}
}
