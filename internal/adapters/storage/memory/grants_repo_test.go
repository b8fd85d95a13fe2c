package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"funding-share-gateway/internal/domain/grants"
)

var repoNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func storedGrant(id, token string, max int) grants.Grant {
	return grants.Grant{
		ID:            id,
		Token:         token,
		ApplicationID: "app-1",
		AccessLevel:   grants.LevelSummary,
		ExpiresAt:     repoNow.Add(time.Hour),
		MaxDownloads:  max,
		CreatedAt:     repoNow.Add(-time.Hour),
	}
}

func TestGrantsRepo_CreateRejectsTokenCollision(t *testing.T) {
	repo := NewGrantsRepo()
	ctx := context.Background()
	token := strings.Repeat("ab12", 16)

	if err := repo.Create(ctx, storedGrant("g-1", token, 3)); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := repo.Create(ctx, storedGrant("g-2", token, 3)); !errors.Is(err, grants.ErrTokenTaken) {
		t.Fatalf("err = %v, want ErrTokenTaken", err)
	}

	// El grant original no fue pisado.
	g, err := repo.GetByToken(ctx, token)
	if err != nil || g.ID != "g-1" {
		t.Fatalf("GetByToken = %q/%v, want g-1", g.ID, err)
	}
}

func TestGrantsRepo_ConsumeDownloadStates(t *testing.T) {
	ctx := context.Background()
	revokedAt := repoNow.Add(-time.Minute)

	cases := []struct {
		name    string
		mutate  func(*grants.Grant)
		wantErr error
	}{
		{"revoked", func(g *grants.Grant) { g.RevokedAt = &revokedAt }, grants.ErrRevoked},
		{"expired", func(g *grants.Grant) { g.ExpiresAt = repoNow.Add(-time.Second) }, grants.ErrExpired},
		{"exhausted", func(g *grants.Grant) { g.DownloadCount = g.MaxDownloads }, grants.ErrQuotaExceeded},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewGrantsRepo()
			g := storedGrant("g-1", strings.Repeat("cd34", 16), 3)
			tc.mutate(&g)
			if err := repo.Create(ctx, g); err != nil {
				t.Fatalf("Create error: %v", err)
			}
			if _, err := repo.ConsumeDownload(ctx, g.ID, repoNow); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}

	if _, err := NewGrantsRepo().ConsumeDownload(ctx, "missing", repoNow); !errors.Is(err, grants.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGrantsRepo_ConcurrentConsumeRespectsCeiling(t *testing.T) {
	const max = 8
	repo := NewGrantsRepo()
	ctx := context.Background()
	g := storedGrant("g-1", strings.Repeat("ef56", 16), max)
	if err := repo.Create(ctx, g); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 3*max)

	for i := 0; i < 3*max; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.ConsumeDownload(ctx, "g-1", repoNow)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, grants.ErrQuotaExceeded):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != max {
		t.Fatalf("successful consumes = %d, want exactly %d", ok, max)
	}

	final, err := repo.GetByID(ctx, "g-1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if final.DownloadCount != max {
		t.Fatalf("DownloadCount = %d, want %d", final.DownloadCount, max)
	}
}

func TestGrantsRepo_RevokeIsIdempotent(t *testing.T) {
	repo := NewGrantsRepo()
	ctx := context.Background()
	g := storedGrant("g-1", strings.Repeat("0a1b", 16), 3)
	if err := repo.Create(ctx, g); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	first := repoNow
	if err := repo.Revoke(ctx, "g-1", first); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	// Segunda revocación con otro timestamp: conserva el primero.
	if err := repo.Revoke(ctx, "g-1", first.Add(time.Hour)); err != nil {
		t.Fatalf("second Revoke error: %v", err)
	}

	got, _ := repo.GetByID(ctx, "g-1")
	if got.RevokedAt == nil || !got.RevokedAt.Equal(first) {
		t.Fatalf("RevokedAt = %v, want %v", got.RevokedAt, first)
	}
}
