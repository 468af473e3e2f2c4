package viewer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/videovault/backend/internal/models"
	"github.com/videovault/backend/internal/tokens"
	"github.com/videovault/backend/internal/upstream"
)

type fakeUpstream struct {
	object   *upstream.Object
	err      error
	fileID   string
	rangeHdr string
	calls    int
}

func (f *fakeUpstream) Fetch(_ context.Context, fileID, byteRange string) (*upstream.Object, error) {
	f.calls++
	f.fileID = fileID
	f.rangeHdr = byteRange
	if f.err != nil {
		return nil, f.err
	}
	return f.object, nil
}

func newGateFixture(t *testing.T, client upstream.Client) (*Gate, *tokens.Manager, string) {
	t.Helper()

	store := tokens.NewInMemoryStore()
	manager := tokens.NewManager(time.Hour, 1, store)
	finder := &fakeVideoFinder{videos: map[string]models.Video{
		"video-1": {ID: "video-1", Title: "Launch teaser", BackingFileID: "file-1"},
	}}

	record, err := manager.Create(context.Background(), "video-1", time.Time{}, 1)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	return NewGate(manager, finder, client), manager, record.Token
}

func TestGateStreamsRangedBytes(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, 100)
	header := make(http.Header)
	header.Set("Content-Type", "video/mp4")
	header.Set("Content-Length", "100")
	header.Set("Accept-Ranges", "bytes")
	header.Set("Content-Range", "bytes 100-199/4096")

	fake := &fakeUpstream{object: &upstream.Object{
		Status: http.StatusPartialContent,
		Header: header,
		Body:   io.NopCloser(bytes.NewReader(body)),
	}}

	gate, manager, token := newGateFixture(t, fake)
	ctx := context.Background()

	if result, err := manager.TryLock(ctx, token, "session-a"); err != nil || result != models.LockGranted {
		t.Fatalf("lock: result=%v err=%v", result, err)
	}

	object, err := gate.Stream(ctx, token, "session-a", "bytes=100-199")
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer object.Body.Close()

	if fake.fileID != "file-1" {
		t.Fatalf("expected backing file id to be fetched, got %q", fake.fileID)
	}
	if fake.rangeHdr != "bytes=100-199" {
		t.Fatalf("expected range to pass through verbatim, got %q", fake.rangeHdr)
	}
	if object.Status != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", object.Status)
	}
	if got := object.Header.Get("Content-Range"); got != "bytes 100-199/4096" {
		t.Fatalf("expected content-range passthrough, got %q", got)
	}

	streamed, err := io.ReadAll(object.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if len(streamed) != 100 {
		t.Fatalf("expected 100 body bytes, got %d", len(streamed))
	}
}

func TestGateRequiresExistingLock(t *testing.T) {
	fake := &fakeUpstream{}
	gate, manager, token := newGateFixture(t, fake)
	ctx := context.Background()

	// The gate never acquires locks, even on an unlocked token.
	if _, err := gate.Stream(ctx, token, "session-a", ""); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("expected session locked for unlocked token, got %v", err)
	}

	if result, err := manager.TryLock(ctx, token, "session-a"); err != nil || result != models.LockGranted {
		t.Fatalf("lock: result=%v err=%v", result, err)
	}

	if _, err := gate.Stream(ctx, token, "", ""); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("expected session locked for missing cookie, got %v", err)
	}
	if _, err := gate.Stream(ctx, token, "session-b", ""); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("expected session locked for mismatched cookie, got %v", err)
	}

	if fake.calls != 0 {
		t.Fatalf("upstream must not be touched on denial, got %d calls", fake.calls)
	}

	record, _ := manager.Find(ctx, token)
	if record.SessionCount != 1 {
		t.Fatalf("gate denials must not consume quota, got count %d", record.SessionCount)
	}
}

func TestGateDeniesAfterRevocation(t *testing.T) {
	fake := &fakeUpstream{object: &upstream.Object{
		Status: http.StatusOK,
		Header: make(http.Header),
		Body:   io.NopCloser(bytes.NewReader(nil)),
	}}

	gate, manager, token := newGateFixture(t, fake)
	ctx := context.Background()

	if result, err := manager.TryLock(ctx, token, "session-a"); err != nil || result != models.LockGranted {
		t.Fatalf("lock: result=%v err=%v", result, err)
	}

	if _, err := gate.Stream(ctx, token, "session-a", ""); err != nil {
		t.Fatalf("stream before revoke: %v", err)
	}

	if err := manager.Revoke(ctx, token); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// Revocation wins over lock ownership, with no re-resolve required.
	if _, err := gate.Stream(ctx, token, "session-a", ""); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected invalid link after revocation, got %v", err)
	}
}

func TestGateMissingTokenIsInvalidLink(t *testing.T) {
	gate, _, _ := newGateFixture(t, &fakeUpstream{})

	if _, err := gate.Stream(context.Background(), "missing", "session-a", ""); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected invalid link, got %v", err)
	}
}

func TestGateUpstreamFailureIsTransient(t *testing.T) {
	fake := &fakeUpstream{err: errors.New("connection reset")}
	gate, manager, token := newGateFixture(t, fake)
	ctx := context.Background()

	if result, err := manager.TryLock(ctx, token, "session-a"); err != nil || result != models.LockGranted {
		t.Fatalf("lock: result=%v err=%v", result, err)
	}

	if _, err := gate.Stream(ctx, token, "session-a", ""); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}

	// A transient upstream failure never mutates lock state.
	record, _ := manager.Find(ctx, token)
	if !record.HeldBy("session-a") || record.SessionCount != 1 {
		t.Fatalf("lock state changed on upstream failure: %+v", record)
	}
}
