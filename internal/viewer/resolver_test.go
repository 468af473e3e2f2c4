package viewer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/videovault/backend/internal/models"
	"github.com/videovault/backend/internal/repositories"
	"github.com/videovault/backend/internal/tokens"
)

type fakeVideoFinder struct {
	videos map[string]models.Video
}

func (f *fakeVideoFinder) GetByID(_ context.Context, id string) (models.Video, error) {
	video, ok := f.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return video, nil
}

func newResolverFixture(t *testing.T) (*Resolver, *tokens.Manager) {
	t.Helper()

	store := tokens.NewInMemoryStore()
	manager := tokens.NewManager(time.Hour, 1, store)
	finder := &fakeVideoFinder{videos: map[string]models.Video{
		"video-1": {ID: "video-1", Title: "Launch teaser", BackingFileID: "file-1"},
	}}

	return NewResolver(manager, finder), manager
}

func TestResolverIssuesSessionOnFirstVisit(t *testing.T) {
	resolver, manager := newResolverFixture(t)
	ctx := context.Background()

	record, err := manager.Create(ctx, "video-1", time.Time{}, 1)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	resolution, err := resolver.Resolve(ctx, record.Token, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if !resolution.IssuedSession || resolution.SessionID == "" {
		t.Fatalf("expected a fresh session to be issued, got %+v", resolution)
	}
	if resolution.Video.ID != "video-1" {
		t.Fatalf("expected video metadata, got %+v", resolution.Video)
	}
	if resolution.Result != models.LockGranted {
		t.Fatalf("expected granted, got %v", resolution.Result)
	}
}

func TestResolverIdempotentForLockedSession(t *testing.T) {
	resolver, manager := newResolverFixture(t)
	ctx := context.Background()

	record, err := manager.Create(ctx, "video-1", time.Time{}, 1)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	first, err := resolver.Resolve(ctx, record.Token, "")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	for i := 0; i < 5; i++ {
		again, err := resolver.Resolve(ctx, record.Token, first.SessionID)
		if err != nil {
			t.Fatalf("repeat resolve %d: %v", i, err)
		}
		if again.IssuedSession {
			t.Fatal("expected existing cookie to be reused")
		}
		if again.Result != models.LockAlreadyHeld {
			t.Fatalf("expected already-held, got %v", again.Result)
		}
	}

	stored, _ := manager.Find(ctx, record.Token)
	if stored.SessionCount != 1 {
		t.Fatalf("repeat resolves must not consume quota, got count %d", stored.SessionCount)
	}
}

func TestResolverDeniesSecondSession(t *testing.T) {
	resolver, manager := newResolverFixture(t)
	ctx := context.Background()

	record, err := manager.Create(ctx, "video-1", time.Time{}, 1)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	if _, err := resolver.Resolve(ctx, record.Token, "session-a"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	if _, err := resolver.Resolve(ctx, record.Token, "session-b"); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("expected session locked, got %v", err)
	}
}

func TestResolverQuotaExhaustedReportsSessionLocked(t *testing.T) {
	resolver, manager := newResolverFixture(t)
	ctx := context.Background()

	record, err := manager.Create(ctx, "video-1", time.Time{}, 1)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	if _, err := resolver.Resolve(ctx, record.Token, "session-a"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if err := manager.Reset(ctx, record.Token); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// Quota spent: a new session is denied even though the token is unlocked.
	if _, err := resolver.Resolve(ctx, record.Token, "session-b"); !errors.Is(err, ErrSessionLocked) {
		t.Fatalf("expected session locked after quota exhaustion, got %v", err)
	}
}

func TestResolverInvalidLinkVariants(t *testing.T) {
	resolver, manager := newResolverFixture(t)
	ctx := context.Background()

	if _, err := resolver.Resolve(ctx, "missing-token", ""); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected invalid link for missing token, got %v", err)
	}

	expired, err := manager.Create(ctx, "video-1", time.Now().UTC().Add(50*time.Millisecond), 1)
	if err != nil {
		t.Fatalf("create expired token: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := resolver.Resolve(ctx, expired.Token, ""); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected invalid link for expired token, got %v", err)
	}

	revoked, err := manager.Create(ctx, "video-1", time.Time{}, 1)
	if err != nil {
		t.Fatalf("create revoked token: %v", err)
	}
	if err := manager.Revoke(ctx, revoked.Token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := resolver.Resolve(ctx, revoked.Token, ""); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected invalid link for revoked token, got %v", err)
	}

	orphan, err := manager.Create(ctx, "missing-video", time.Time{}, 1)
	if err != nil {
		t.Fatalf("create orphan token: %v", err)
	}
	if _, err := resolver.Resolve(ctx, orphan.Token, ""); !errors.Is(err, ErrInvalidLink) {
		t.Fatalf("expected invalid link for missing video, got %v", err)
	}
}
