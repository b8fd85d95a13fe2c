package grants

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"funding-share-gateway/internal/domain/audit"
)

// fakeRepo implementa Repository en memoria, con inyección de fallos para
// ejercitar colisiones de token y errores transitorios.
type fakeRepo struct {
	mu      sync.Mutex
	byID    map[string]Grant
	byToken map[string]string

	createErrs  []error // se consumen en orden en cada Create
	consumeErrs []error // se consumen en orden en cada ConsumeDownload
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byID:    map[string]Grant{},
		byToken: map[string]string{},
	}
}

func (r *fakeRepo) Create(_ context.Context, g Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.createErrs) > 0 {
		err := r.createErrs[0]
		r.createErrs = r.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := r.byToken[g.Token]; ok {
		return ErrTokenTaken
	}
	r.byID[g.ID] = g
	r.byToken[g.Token] = g.ID
	return nil
}

func (r *fakeRepo) GetByToken(_ context.Context, token string) (Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byToken[token]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.byID[id]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

func (r *fakeRepo) ListByApplication(_ context.Context, applicationID string) ([]Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Grant
	for _, g := range r.byID {
		if g.ApplicationID == applicationID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *fakeRepo) Revoke(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if g.RevokedAt == nil {
		g.RevokedAt = &at
		r.byID[id] = g
	}
	return nil
}

func (r *fakeRepo) ConsumeDownload(_ context.Context, id string, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.consumeErrs) > 0 {
		err := r.consumeErrs[0]
		r.consumeErrs = r.consumeErrs[1:]
		if err != nil {
			return 0, err
		}
	}

	g, ok := r.byID[id]
	if !ok {
		return 0, ErrNotFound
	}
	switch {
	case g.RevokedAt != nil:
		return 0, ErrRevoked
	case !now.Before(g.ExpiresAt):
		return 0, ErrExpired
	case g.DownloadCount >= g.MaxDownloads:
		return 0, ErrQuotaExceeded
	}
	g.DownloadCount++
	r.byID[id] = g
	return g.MaxDownloads - g.DownloadCount, nil
}

func (r *fakeRepo) seed(g Grant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[g.ID] = g
	r.byToken[g.Token] = g.ID
}

// recordingAudit captura entradas para verificar exactamente-una-por-intento.
type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAudit) Append(_ context.Context, e audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return nil
}

func (a *recordingAudit) ListByGrant(_ context.Context, grantID string) ([]audit.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.Entry
	for _, e := range a.entries {
		if e.GrantID == grantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *recordingAudit) last(t *testing.T) audit.Entry {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.entries) == 0 {
		t.Fatal("no audit entries recorded")
	}
	return a.entries[len(a.entries)-1]
}

func (a *recordingAudit) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *fakeRepo, *recordingAudit) {
	repo := newFakeRepo()
	rec := &recordingAudit{}
	svc := NewService(repo, audit.NewService(rec, nil))
	svc.now = func() time.Time { return testNow }
	svc.sleep = func(time.Duration) {}
	return svc, repo, rec
}

func seedGrant(repo *fakeRepo, mutate func(*Grant)) Grant {
	g := Grant{
		ID:             "g-1",
		Token:          strings.Repeat("ab12", 16),
		ApplicationID:  "app-1",
		RecipientEmail: "analyst@lender.test",
		AccessLevel:    LevelSummary,
		ExpiresAt:      testNow.Add(24 * time.Hour),
		MaxDownloads:   3,
		CreatedAt:      testNow.Add(-time.Hour),
	}
	if mutate != nil {
		mutate(&g)
	}
	repo.seed(g)
	return g
}

func TestIssue_Defaults(t *testing.T) {
	svc, _, rec := newTestService()

	g, err := svc.Issue(context.Background(), IssueInput{
		ApplicationID:  "app-1",
		RecipientEmail: "analyst@lender.test",
	})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if !ValidToken(g.Token) {
		t.Errorf("issued token is malformed: %q", g.Token)
	}
	if g.AccessLevel != LevelSummary {
		t.Errorf("default level = %q, want summary", g.AccessLevel)
	}
	if g.MaxDownloads != defaultMaxDownloads {
		t.Errorf("MaxDownloads = %d, want %d", g.MaxDownloads, defaultMaxDownloads)
	}
	if want := testNow.Add(defaultTTL); !g.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", g.ExpiresAt, want)
	}
	if got := rec.last(t).Action; got != audit.ActionGrantIssued {
		t.Errorf("audit action = %q, want %q", got, audit.ActionGrantIssued)
	}
}

func TestIssue_ExplicitZeroDownloads(t *testing.T) {
	svc, _, _ := newTestService()

	zero := 0
	g, err := svc.Issue(context.Background(), IssueInput{
		ApplicationID:  "app-1",
		RecipientEmail: "analyst@lender.test",
		MaxDownloads:   &zero,
	})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if g.MaxDownloads != 0 {
		t.Errorf("MaxDownloads = %d, want 0 (explicit zero is not the default)", g.MaxDownloads)
	}
}

func TestIssue_RejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService()
	negative := -1

	cases := []struct {
		name string
		in   IssueInput
	}{
		{"empty application", IssueInput{RecipientEmail: "a@b.test"}},
		{"empty email", IssueInput{ApplicationID: "app-1"}},
		{"email without at", IssueInput{ApplicationID: "app-1", RecipientEmail: "nope"}},
		{"unknown level", IssueInput{ApplicationID: "app-1", RecipientEmail: "a@b.test", AccessLevel: "admin"}},
		{"negative downloads", IssueInput{ApplicationID: "app-1", RecipientEmail: "a@b.test", MaxDownloads: &negative}},
	}

	for _, tc := range cases {
		if _, err := svc.Issue(context.Background(), tc.in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", tc.name, err)
		}
	}
}

func TestIssue_RetriesOnTokenCollision(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.createErrs = []error{ErrTokenTaken, ErrTokenTaken}

	g, err := svc.Issue(context.Background(), IssueInput{
		ApplicationID:  "app-1",
		RecipientEmail: "a@b.test",
	})
	if err != nil {
		t.Fatalf("Issue should regenerate past two collisions: %v", err)
	}
	if _, err := repo.GetByToken(context.Background(), g.Token); err != nil {
		t.Fatalf("grant not persisted after retry: %v", err)
	}
}

func TestIssue_GivesUpAfterMaxCollisions(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.createErrs = []error{ErrTokenTaken, ErrTokenTaken, ErrTokenTaken}

	if _, err := svc.Issue(context.Background(), IssueInput{
		ApplicationID:  "app-1",
		RecipientEmail: "a@b.test",
	}); !errors.Is(err, ErrTokenTaken) {
		t.Fatalf("err = %v, want ErrTokenTaken after exhausting attempts", err)
	}
}

func TestVerify_Branches(t *testing.T) {
	revokedAt := testNow.Add(-time.Minute)

	cases := []struct {
		name    string
		mutate  func(*Grant)
		token   func(Grant) string
		wantErr error
		reason  string
	}{
		{
			name:    "malformed token",
			token:   func(Grant) string { return "not-a-token" },
			wantErr: ErrMalformedToken,
			reason:  audit.ReasonMalformed,
		},
		{
			name:    "well formed but unknown",
			token:   func(Grant) string { return strings.Repeat("ff00", 16) },
			wantErr: ErrNotFound,
			reason:  audit.ReasonNotFound,
		},
		{
			name:    "revoked",
			mutate:  func(g *Grant) { g.RevokedAt = &revokedAt },
			wantErr: ErrRevoked,
			reason:  audit.ReasonRevoked,
		},
		{
			name:    "expired",
			mutate:  func(g *Grant) { g.ExpiresAt = testNow.Add(-time.Second) },
			wantErr: ErrExpired,
			reason:  audit.ReasonExpired,
		},
		{
			name:    "ip outside allow list",
			mutate:  func(g *Grant) { g.AllowedIPPrefixes = []string{"10.0."} },
			wantErr: ErrIPNotAllowed,
			reason:  audit.ReasonIPNotAllowed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, rec := newTestService()
			g := seedGrant(repo, tc.mutate)

			token := g.Token
			if tc.token != nil {
				token = tc.token(g)
			}

			_, err := svc.Verify(context.Background(), token, Actor{Address: "203.0.113.7:1234"})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if rec.count() != 1 {
				t.Fatalf("audit entries = %d, want exactly 1", rec.count())
			}
			if got, want := rec.last(t).Action, audit.ActionVerifyFailure(tc.reason); got != want {
				t.Errorf("audit action = %q, want %q", got, want)
			}
		})
	}
}

func TestVerify_Success(t *testing.T) {
	svc, repo, rec := newTestService()
	g := seedGrant(repo, func(g *Grant) {
		g.AllowedIPPrefixes = []string{"203.0.113."}
	})

	got, err := svc.Verify(context.Background(), g.Token, Actor{Address: "203.0.113.7:1234"})
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if got.ID != g.ID {
		t.Errorf("resolved grant %q, want %q", got.ID, g.ID)
	}
	if rec.count() != 1 || rec.last(t).Action != audit.ActionVerifySuccess {
		t.Errorf("want exactly one verify_success entry, got %d (%q)", rec.count(), rec.last(t).Action)
	}
}

func TestVerify_ExhaustedGrantStillReadable(t *testing.T) {
	svc, repo, _ := newTestService()
	g := seedGrant(repo, func(g *Grant) {
		g.MaxDownloads = 2
		g.DownloadCount = 2
	})

	// La cuota agota descargas, no la vista de lectura.
	if _, err := svc.Verify(context.Background(), g.Token, Actor{}); err != nil {
		t.Fatalf("exhausted grant should still verify for reading: %v", err)
	}
}

func TestVerifyLevel_InsufficientAccess(t *testing.T) {
	svc, repo, rec := newTestService()
	g := seedGrant(repo, nil) // summary

	_, err := svc.VerifyLevel(context.Background(), g.Token, Actor{}, LevelFull)
	if !errors.Is(err, ErrInsufficientAccess) {
		t.Fatalf("err = %v, want ErrInsufficientAccess", err)
	}
	if got, want := rec.last(t).Action, audit.ActionVerifyFailure(audit.ReasonInsufficient); got != want {
		t.Errorf("audit action = %q, want %q", got, want)
	}
}

func TestConsume_DecrementsQuota(t *testing.T) {
	svc, repo, rec := newTestService()
	g := seedGrant(repo, func(g *Grant) { g.MaxDownloads = 2 })

	_, remaining, err := svc.Consume(context.Background(), g.Token, Actor{})
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if remaining != 1 {
		t.Errorf("remaining = %d, want 1", remaining)
	}
	if got := rec.last(t); got.Action != audit.ActionDownload || got.Detail != "remaining=1" {
		t.Errorf("audit entry = %q/%q, want download/remaining=1", got.Action, got.Detail)
	}

	_, remaining, err = svc.Consume(context.Background(), g.Token, Actor{})
	if err != nil || remaining != 0 {
		t.Fatalf("second consume: remaining=%d err=%v, want 0/nil", remaining, err)
	}

	_, _, err = svc.Consume(context.Background(), g.Token, Actor{})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("third consume err = %v, want ErrQuotaExceeded", err)
	}
	if got, want := rec.last(t).Action, audit.ActionVerifyFailure(audit.ReasonQuota); got != want {
		t.Errorf("audit action = %q, want %q", got, want)
	}
}

func TestConsume_RetriesTransientWithBackoff(t *testing.T) {
	svc, repo, _ := newTestService()
	g := seedGrant(repo, nil)
	repo.consumeErrs = []error{ErrTransient, ErrTransient}

	var slept []time.Duration
	svc.sleep = func(d time.Duration) { slept = append(slept, d) }

	_, remaining, err := svc.Consume(context.Background(), g.Token, Actor{})
	if err != nil {
		t.Fatalf("Consume should succeed on third attempt: %v", err)
	}
	if remaining != g.MaxDownloads-1 {
		t.Errorf("remaining = %d, want %d", remaining, g.MaxDownloads-1)
	}
	want := []time.Duration{consumeBackoff, consumeBackoff << 1}
	if len(slept) != len(want) || slept[0] != want[0] || slept[1] != want[1] {
		t.Errorf("backoff = %v, want %v", slept, want)
	}
}

func TestConsume_DenialsAreFinal(t *testing.T) {
	svc, repo, _ := newTestService()
	g := seedGrant(repo, func(g *Grant) { g.MaxDownloads = 0 })

	attempts := 0
	svc.sleep = func(time.Duration) { attempts++ }

	if _, _, err := svc.Consume(context.Background(), g.Token, Actor{}); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if attempts != 0 {
		t.Errorf("denial must not retry, slept %d times", attempts)
	}
}

func TestConsume_ConcurrentNeverExceedsQuota(t *testing.T) {
	const max = 5
	svc, repo, _ := newTestService()
	g := seedGrant(repo, func(g *Grant) { g.MaxDownloads = max })

	var wg sync.WaitGroup
	results := make(chan error, 2*max)

	for i := 0; i < 2*max; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Consume(context.Background(), g.Token, Actor{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, exceeded int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrQuotaExceeded):
			exceeded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != max || exceeded != max {
		t.Fatalf("successes=%d exceeded=%d, want %d/%d", ok, exceeded, max, max)
	}

	final, _ := repo.GetByID(context.Background(), g.ID)
	if final.DownloadCount != max {
		t.Fatalf("DownloadCount = %d, want %d", final.DownloadCount, max)
	}
}

func TestConsumeDocument_Checks(t *testing.T) {
	svc, repo, rec := newTestService()
	full := seedGrant(repo, func(g *Grant) {
		g.AccessLevel = LevelFull
	})

	dt := DocumentToken(full.Token, "doc-1", testNow)

	// Firma válida con nivel full: consume cuota.
	if _, _, err := svc.ConsumeDocument(context.Background(), full.Token, "doc-1", dt, Actor{}); err != nil {
		t.Fatalf("ConsumeDocument error: %v", err)
	}
	if got := rec.last(t); got.Action != audit.ActionDownload || !strings.Contains(got.Detail, "document=doc-1") {
		t.Errorf("audit entry = %q/%q, want download with document detail", got.Action, got.Detail)
	}

	// Firma de otro documento: rechazo sin gastar cuota.
	before, _ := repo.GetByID(context.Background(), full.ID)
	if _, _, err := svc.ConsumeDocument(context.Background(), full.Token, "doc-2", dt, Actor{}); !errors.Is(err, ErrBadDocumentToken) {
		t.Fatalf("err = %v, want ErrBadDocumentToken", err)
	}
	after, _ := repo.GetByID(context.Background(), full.ID)
	if after.DownloadCount != before.DownloadCount {
		t.Errorf("rejected download consumed quota: %d -> %d", before.DownloadCount, after.DownloadCount)
	}

	// Grant summary: nivel insuficiente aunque la firma cierre.
	summary := Grant{
		ID:             "g-2",
		Token:          strings.Repeat("cd34", 16),
		ApplicationID:  "app-1",
		RecipientEmail: "a@b.test",
		AccessLevel:    LevelSummary,
		ExpiresAt:      testNow.Add(time.Hour),
		MaxDownloads:   3,
	}
	repo.seed(summary)
	dt2 := DocumentToken(summary.Token, "doc-1", testNow)
	if _, _, err := svc.ConsumeDocument(context.Background(), summary.Token, "doc-1", dt2, Actor{}); !errors.Is(err, ErrInsufficientAccess) {
		t.Fatalf("err = %v, want ErrInsufficientAccess", err)
	}
}

func TestRevoke_IdempotentAndTerminal(t *testing.T) {
	svc, repo, rec := newTestService()
	g := seedGrant(repo, nil)

	first, err := svc.Revoke(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	if first.RevokedAt == nil {
		t.Fatal("RevokedAt not set")
	}
	entriesAfterFirst := rec.count()

	// Segunda revocación: no-op, sin nueva entrada de auditoría.
	second, err := svc.Revoke(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("second Revoke error: %v", err)
	}
	if second.RevokedAt == nil || rec.count() != entriesAfterFirst {
		t.Errorf("repeat revoke must be a no-op (entries %d -> %d)", entriesAfterFirst, rec.count())
	}

	// Terminal: el token ya no verifica.
	if _, err := svc.Verify(context.Background(), g.Token, Actor{}); !errors.Is(err, ErrRevoked) {
		t.Fatalf("verify after revoke err = %v, want ErrRevoked", err)
	}

	if _, err := svc.Revoke(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("revoke of unknown id err = %v, want ErrNotFound", err)
	}
}

func TestGrantStatus_Derivation(t *testing.T) {
	revokedAt := testNow

	cases := []struct {
		name   string
		mutate func(*Grant)
		want   Status
	}{
		{"active", nil, StatusActive},
		{"expired", func(g *Grant) { g.ExpiresAt = testNow.Add(-time.Second) }, StatusExpired},
		{"exhausted", func(g *Grant) { g.DownloadCount = g.MaxDownloads }, StatusExhausted},
		{"revoked wins over expired", func(g *Grant) {
			g.RevokedAt = &revokedAt
			g.ExpiresAt = testNow.Add(-time.Second)
		}, StatusRevoked},
	}

	for _, tc := range cases {
		g := Grant{ExpiresAt: testNow.Add(time.Hour), MaxDownloads: 3}
		if tc.mutate != nil {
			tc.mutate(&g)
		}
		if got := g.Status(testNow); got != tc.want {
			t.Errorf("%s: Status = %q, want %q", tc.name, got, tc.want)
		}
	}
}
