package tenantcache

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRepo struct {
	bySlug   map[string]*domain.Tenant
	byDomain map[string]*domain.Tenant

	mu      sync.Mutex
	lookups int
}

func (r *fakeRepo) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	for _, t := range r.bySlug {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, &domain.TenantAccessError{Kind: domain.TenantAccessNotFound, Identifier: id}
}

func (r *fakeRepo) GetBySlug(_ context.Context, slug string) (*domain.Tenant, error) {
	r.mu.Lock()
	r.lookups++
	r.mu.Unlock()
	if t, ok := r.bySlug[slug]; ok {
		return t, nil
	}
	return nil, &domain.TenantAccessError{Kind: domain.TenantAccessNotFound, Identifier: slug}
}

func (r *fakeRepo) GetByCustomDomain(_ context.Context, domainName string) (*domain.Tenant, error) {
	r.mu.Lock()
	r.lookups++
	r.mu.Unlock()
	if t, ok := r.byDomain[domainName]; ok {
		return t, nil
	}
	return nil, &domain.TenantAccessError{Kind: domain.TenantAccessNotFound, Identifier: domainName}
}

func (r *fakeRepo) ListActive(context.Context) ([]domain.Tenant, error) {
	var out []domain.Tenant
	for _, t := range r.bySlug {
		out = append(out, *t)
	}
	return out, nil
}

func (r *fakeRepo) lookupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups
}

func activeTenant(id, slug string) *domain.Tenant {
	return &domain.Tenant{
		ID:                 id,
		Slug:               slug,
		Status:             domain.TenantStatusActive,
		SubscriptionStatus: domain.SubscriptionActive,
	}
}

type countingOpener struct {
	mu    sync.Mutex
	opens int
}

func (o *countingOpener) open(domain.DataStoreCredentials) (*sql.DB, error) {
	o.mu.Lock()
	o.opens++
	o.mu.Unlock()
	return sql.Open("sqlite3", ":memory:")
}

func (o *countingOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func testConfig() config.TenantCacheConfig {
	return config.TenantCacheConfig{
		ResolveTTL:    5 * time.Minute,
		IdleThreshold: 15 * time.Minute,
		SweepInterval: time.Minute,
		BaseDomain:    "clubenavi.com",
	}
}

func TestIdentifyPriority(t *testing.T) {
	svc := New(&fakeRepo{}, testConfig(), nil, nil, zerolog.Nop())

	tests := []struct {
		header, host     string
		wantSlug, wantCD string
	}{
		{"club-one", "other.clubenavi.com", "club-one", ""},
		{"", "club-two.clubenavi.com", "club-two", ""},
		{"", "club-two.clubenavi.com:8080", "club-two", ""},
		{"", "shop.example.com", "", "shop.example.com"},
		{"", "shop.example.com:443", "", "shop.example.com"},
	}
	for _, tt := range tests {
		slug, cd := svc.Identify(tt.header, tt.host)
		if slug != tt.wantSlug || cd != tt.wantCD {
			t.Errorf("Identify(%q, %q) = (%q, %q), want (%q, %q)",
				tt.header, tt.host, slug, cd, tt.wantSlug, tt.wantCD)
		}
	}
}

func TestResolveCachesWithinTTL(t *testing.T) {
	repo := &fakeRepo{bySlug: map[string]*domain.Tenant{"club-one": activeTenant("t1", "club-one")}}
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := New(repo, testConfig(), clock, nil, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Resolve(ctx, "club-one", ""); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if repo.lookupCount() != 1 {
		t.Fatalf("lookups = %d, want 1 within TTL", repo.lookupCount())
	}

	clock.Advance(6 * time.Minute)
	if _, err := svc.Resolve(ctx, "club-one", ""); err != nil {
		t.Fatalf("resolve after TTL: %v", err)
	}
	if repo.lookupCount() != 2 {
		t.Fatalf("lookups = %d, want 2 after TTL expiry", repo.lookupCount())
	}
}

func TestResolveDistinguishesAccessErrors(t *testing.T) {
	suspended := activeTenant("t1", "sus")
	suspended.Status = domain.TenantStatusSuspended
	pastDue := activeTenant("t2", "due")
	pastDue.SubscriptionStatus = domain.SubscriptionPastDue
	cancelled := activeTenant("t3", "gone")
	cancelled.Status = domain.TenantStatusCancelled

	repo := &fakeRepo{bySlug: map[string]*domain.Tenant{
		"sus": suspended, "due": pastDue, "gone": cancelled,
	}}
	svc := New(repo, testConfig(), &fakeClock{now: time.Now()}, nil, zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		slug string
		kind domain.TenantAccessKind
	}{
		{"sus", domain.TenantAccessSuspended},
		{"due", domain.TenantAccessPaymentRequired},
		{"gone", domain.TenantAccessInactive},
		{"missing", domain.TenantAccessNotFound},
	}
	for _, tt := range tests {
		_, err := svc.Resolve(ctx, tt.slug, "")
		var accessErr *domain.TenantAccessError
		if !errors.As(err, &accessErr) {
			t.Errorf("Resolve(%q) err = %v, want TenantAccessError", tt.slug, err)
			continue
		}
		if accessErr.Kind != tt.kind {
			t.Errorf("Resolve(%q) kind = %s, want %s", tt.slug, accessErr.Kind, tt.kind)
		}
	}
}

func TestResolveRechecksAccessibilityOnCacheHit(t *testing.T) {
	tenant := activeTenant("t1", "club-one")
	repo := &fakeRepo{bySlug: map[string]*domain.Tenant{"club-one": tenant}}
	svc := New(repo, testConfig(), &fakeClock{now: time.Now()}, nil, zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, "club-one", ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Suspension lands while the entry is still cached.
	tenant.Status = domain.TenantStatusSuspended
	_, err := svc.Resolve(ctx, "club-one", "")
	var accessErr *domain.TenantAccessError
	if !errors.As(err, &accessErr) || accessErr.Kind != domain.TenantAccessSuspended {
		t.Errorf("err = %v, want suspended access error", err)
	}
}

func TestConnectionReusedUntilIdleSweep(t *testing.T) {
	tenant := activeTenant("t1", "club-one")
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	opener := &countingOpener{}
	svc := New(&fakeRepo{}, testConfig(), clock, opener.open, zerolog.Nop())
	t.Cleanup(svc.Shutdown)

	for i := 0; i < 3; i++ {
		if _, err := svc.Connection(tenant); err != nil {
			t.Fatalf("connection %d: %v", i, err)
		}
	}
	if opener.count() != 1 {
		t.Fatalf("opens = %d, want 1 for repeated access", opener.count())
	}

	// Recent use survives the sweep.
	clock.Advance(10 * time.Minute)
	svc.SweepIdleNow()
	if _, err := svc.Connection(tenant); err != nil {
		t.Fatalf("connection after benign sweep: %v", err)
	}
	if opener.count() != 1 {
		t.Fatalf("opens = %d, the sweep evicted a live handle", opener.count())
	}

	// Idle past the threshold is evicted; next access redials.
	clock.Advance(16 * time.Minute)
	svc.SweepIdleNow()
	if _, err := svc.Connection(tenant); err != nil {
		t.Fatalf("connection after eviction: %v", err)
	}
	if opener.count() != 2 {
		t.Fatalf("opens = %d, want redial after idle eviction", opener.count())
	}
}

func TestInvalidateDropsTenantState(t *testing.T) {
	tenant := activeTenant("t1", "club-one")
	repo := &fakeRepo{bySlug: map[string]*domain.Tenant{"club-one": tenant}}
	opener := &countingOpener{}
	svc := New(repo, testConfig(), &fakeClock{now: time.Now()}, opener.open, zerolog.Nop())
	t.Cleanup(svc.Shutdown)
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, "club-one", ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := svc.Connection(tenant); err != nil {
		t.Fatalf("connection: %v", err)
	}

	svc.Invalidate("t1")

	if _, err := svc.Resolve(ctx, "club-one", ""); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if repo.lookupCount() != 2 {
		t.Errorf("lookups = %d, want refetch after invalidate", repo.lookupCount())
	}
	if _, err := svc.Connection(tenant); err != nil {
		t.Fatalf("connection after invalidate: %v", err)
	}
	if opener.count() != 2 {
		t.Errorf("opens = %d, want redial after invalidate", opener.count())
	}
}
