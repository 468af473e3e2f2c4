package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/videovault/backend/internal/tokens"
)

func newLinkFixture(t *testing.T) (LinkHandler, *tokens.Manager) {
	t.Helper()
	manager := tokens.NewManager(7*24*time.Hour, 1, tokens.NewInMemoryStore())
	return LinkHandler{Tokens: manager}, manager
}

func postJSON(handler http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestLinkCreateAppliesDefaults(t *testing.T) {
	handler, manager := newLinkFixture(t)

	rec := postJSON(handler.Create, "/api/v1/admin/links", `{"videoId":"video-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Token tokenRow `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Token.Token == "" {
		t.Fatal("expected a generated token value")
	}
	if body.Token.MaxSessions != 1 || body.Token.SessionCount != 0 {
		t.Fatalf("unexpected quota defaults: %+v", body.Token)
	}
	if !body.Token.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected a future default expiry, got %v", body.Token.ExpiresAt)
	}

	if _, err := manager.Find(context.Background(), body.Token.Token); err != nil {
		t.Fatalf("created token not persisted: %v", err)
	}
}

func TestLinkCreateValidation(t *testing.T) {
	handler, _ := newLinkFixture(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing video", `{}`},
		{"malformed expiry", `{"videoId":"video-1","expiresAt":"tomorrow"}`},
		{"past expiry", `{"videoId":"video-1","expiresAt":"2020-01-01T00:00:00Z"}`},
		{"negative quota", `{"videoId":"video-1","maxSessions":-2}`},
		{"bad json", `{"videoId":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(handler.Create, "/api/v1/admin/links", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestLinkResetReleasesLock(t *testing.T) {
	handler, manager := newLinkFixture(t)
	ctx := context.Background()

	record, err := manager.Create(ctx, "video-1", time.Time{}, 2)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if _, err := manager.TryLock(ctx, record.Token, "session-a"); err != nil {
		t.Fatalf("lock: %v", err)
	}

	rec := postJSON(handler.Reset, "/api/v1/admin/links/reset", `{"token":"`+record.Token+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	after, err := manager.Find(ctx, record.Token)
	if err != nil {
		t.Fatalf("find token: %v", err)
	}
	if after.SessionID != nil {
		t.Fatalf("expected lock released, still held by %q", *after.SessionID)
	}
	if after.SessionCount != 1 {
		t.Fatalf("reset must not refund quota, got count %d", after.SessionCount)
	}
}

func TestLinkRevokeUnknownToken(t *testing.T) {
	handler, _ := newLinkFixture(t)

	rec := postJSON(handler.Revoke, "/api/v1/admin/links/revoke", `{"token":"missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLinkMutateValidation(t *testing.T) {
	handler, _ := newLinkFixture(t)

	if rec := postJSON(handler.Reset, "/api/v1/admin/links/reset", `{"token":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank token, got %d", rec.Code)
	}
	if rec := postJSON(handler.Revoke, "/api/v1/admin/links/revoke", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/links/reset", nil)
	rec := httptest.NewRecorder()
	handler.Reset(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", rec.Code)
	}
}
