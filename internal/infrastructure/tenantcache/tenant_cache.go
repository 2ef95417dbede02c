package tenantcache

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/juan-silveira/clube-navi-sub003/internal/domain"
	"github.com/juan-silveira/clube-navi-sub003/internal/repositories/tenantrepo"
	"github.com/juan-silveira/clube-navi-sub003/pkg/config"
	"github.com/juan-silveira/clube-navi-sub003/pkg/db"
)

// Clock is injected so eviction and TTL behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

// Opener builds a store handle from tenant credentials. The default opener
// dials postgres; tests swap it out.
type Opener func(creds domain.DataStoreCredentials) (*sql.DB, error)

func defaultOpener(creds domain.DataStoreCredentials) (*sql.DB, error) {
	dsn := db.GetDBDSN(&config.DatabaseConfig{
		Host:     creds.Host,
		Port:     creds.Port,
		User:     creds.User,
		Password: creds.Password,
		DBName:   creds.DBName,
		SSLMode:  creds.SSLMode,
	})
	handle, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, err
	}
	return handle, nil
}

type resolveEntry struct {
	tenant   *domain.Tenant
	cachedAt time.Time
}

type connEntry struct {
	handle     *sql.DB
	lastUsedAt time.Time
}

// Service is the tenant router and per-tenant connection pool. One instance
// is constructed at process start and passed to handlers; there is no
// package-level state.
type Service struct {
	repo   tenantrepo.ITenantRepository
	cfg    config.TenantCacheConfig
	clock  Clock
	open   Opener
	logger zerolog.Logger

	mu       sync.Mutex
	resolved map[string]*resolveEntry
	conns    map[string]*connEntry

	stopSweep chan struct{}
	sweepOnce sync.Once
}

func New(repo tenantrepo.ITenantRepository, cfg config.TenantCacheConfig, clock Clock, open Opener, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = systemClock{}
	}
	if open == nil {
		open = defaultOpener
	}
	return &Service{
		repo:      repo,
		cfg:       cfg,
		clock:     clock,
		open:      open,
		logger:    logger,
		resolved:  make(map[string]*resolveEntry),
		conns:     make(map[string]*connEntry),
		stopSweep: make(chan struct{}),
	}
}

// Identify derives the tenant identifier for a request. Priority is the
// explicit header override, then a subdomain of the base domain, then the
// full host as a custom domain.
func (s *Service) Identify(headerValue, host string) (slug, customDomain string) {
	if headerValue != "" {
		return headerValue, ""
	}
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	if s.cfg.BaseDomain != "" && strings.HasSuffix(host, "."+s.cfg.BaseDomain) {
		return strings.TrimSuffix(host, "."+s.cfg.BaseDomain), ""
	}
	return "", host
}

// Resolve returns the tenant for an identifier, consulting the TTL cache
// first. Accessibility is re-checked on every call so a cached tenant that
// was suspended since still fails.
func (s *Service) Resolve(ctx context.Context, headerValue, host string) (*domain.Tenant, error) {
	slug, customDomain := s.Identify(headerValue, host)
	key := slug
	if key == "" {
		key = "domain:" + customDomain
	}

	s.mu.Lock()
	entry, ok := s.resolved[key]
	if ok && s.clock.Now().Sub(entry.cachedAt) < s.cfg.ResolveTTL {
		tenant := entry.tenant
		s.mu.Unlock()
		if err := tenant.Accessible(); err != nil {
			return nil, err
		}
		return tenant, nil
	}
	s.mu.Unlock()

	var tenant *domain.Tenant
	var err error
	if slug != "" {
		tenant, err = s.repo.GetBySlug(ctx, slug)
	} else {
		tenant, err = s.repo.GetByCustomDomain(ctx, customDomain)
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.resolved[key] = &resolveEntry{tenant: tenant, cachedAt: s.clock.Now()}
	s.mu.Unlock()

	if err := tenant.Accessible(); err != nil {
		return nil, err
	}
	return tenant, nil
}

// Connection returns the tenant's store handle, opening one lazily from the
// stored credentials. Access refreshes lastUsedAt.
func (s *Service) Connection(tenant *domain.Tenant) (*sql.DB, error) {
	s.mu.Lock()
	if entry, ok := s.conns[tenant.ID]; ok {
		entry.lastUsedAt = s.clock.Now()
		handle := entry.handle
		s.mu.Unlock()
		return handle, nil
	}
	s.mu.Unlock()

	handle, err := s.open(tenant.Credentials)
	if err != nil {
		s.logger.Err(err).Str("tenant_id", tenant.ID).Msg("Failed to open tenant store")
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have opened one while we dialed.
	if entry, ok := s.conns[tenant.ID]; ok {
		handle.Close()
		entry.lastUsedAt = s.clock.Now()
		return entry.handle, nil
	}
	s.conns[tenant.ID] = &connEntry{handle: handle, lastUsedAt: s.clock.Now()}
	return handle, nil
}

// StartSweeper runs the idle-eviction loop until Shutdown. Only handles
// that have not been touched within the idle threshold are closed.
func (s *Service) StartSweeper() {
	go func() {
		ticker := time.NewTicker(s.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweepIdle()
			case <-s.stopSweep:
				return
			}
		}
	}()
}

func (s *Service) sweepIdle() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for tenantID, entry := range s.conns {
		if now.Sub(entry.lastUsedAt) > s.cfg.IdleThreshold {
			entry.handle.Close()
			delete(s.conns, tenantID)
			s.logger.Info().Str("tenant_id", tenantID).Msg("Closed idle tenant store handle")
		}
	}
}

// SweepIdleNow is the sweep body exposed for reconciliation jobs and tests.
func (s *Service) SweepIdleNow() {
	s.sweepIdle()
}

func (s *Service) Invalidate(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.resolved {
		if entry.tenant.ID == tenantID {
			delete(s.resolved, key)
		}
	}
	if entry, ok := s.conns[tenantID]; ok {
		entry.handle.Close()
		delete(s.conns, tenantID)
	}
}

func (s *Service) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = make(map[string]*resolveEntry)
	for tenantID, entry := range s.conns {
		entry.handle.Close()
		delete(s.conns, tenantID)
	}
}

// Shutdown stops the sweeper and closes every cached handle.
func (s *Service) Shutdown() {
	s.sweepOnce.Do(func() { close(s.stopSweep) })
	s.InvalidateAll()
}
