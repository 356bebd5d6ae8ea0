package database

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

var (
	// ErrTenantNotConfigured means no storage descriptor is registered for
	// the tenant. Requests for that tenant cannot succeed until the
	// descriptor set is fixed.
	ErrTenantNotConfigured = errors.New("tenant not configured")
	// ErrTenantUnreachable means the tenant's database could not be reached
	// within the retry budget.
	ErrTenantUnreachable = errors.New("tenant storage unreachable")
)

// OpenFunc establishes a repository for a tenant DSN. Injected so tests can
// run the registry without a live database.
type OpenFunc func(dsn string) (TenantRepository, error)

const (
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

type tenantConn struct {
	repo    TenantRepository
	err     error
	healthy bool
	// ready is closed once the connection attempt settles; concurrent
	// callers wait on it instead of racing independent attempts.
	ready chan struct{}
}

// Registry resolves tenant ids to cached storage handles. Connections are
// established lazily on first use, retried with a fixed backoff, cached for
// the process lifetime and re-established transparently after a handle is
// marked unhealthy.
type Registry struct {
	log       *log.Logger
	open      OpenFunc
	attempts  int
	backoff   time.Duration
	onConnect func()

	mu      sync.Mutex
	tenants map[string]string
	conns   map[string]*tenantConn
}

func NewRegistry(logger *log.Logger, tenants map[string]string, open OpenFunc) *Registry {
	return &Registry{
		log:      logger,
		open:     open,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		tenants:  tenants,
		conns:    make(map[string]*tenantConn),
	}
}

// SetRetryBudget overrides the connection attempt count and backoff.
func (r *Registry) SetRetryBudget(attempts int, backoff time.Duration) {
	if attempts > 0 {
		r.attempts = attempts
	}
	r.backoff = backoff
}

// SetConnectHook registers a callback invoked after each successful dial.
// Used to feed the tenant-connect counter.
func (r *Registry) SetConnectHook(hook func()) {
	r.onConnect = hook
}

// Acquire returns the tenant's storage handle, establishing it if needed.
// At most one connection attempt per tenant is in flight at a time.
func (r *Registry) Acquire(tenantId string) (TenantRepository, error) {
	for {
		r.mu.Lock()
		dsn, ok := r.tenants[tenantId]
		if !ok {
			r.mu.Unlock()
			return nil, fmt.Errorf("tenant %q: %w", tenantId, ErrTenantNotConfigured)
		}

		conn, exists := r.conns[tenantId]
		if exists {
			select {
			case <-conn.ready:
				if conn.err == nil && conn.healthy {
					r.mu.Unlock()
					return conn.repo, nil
				}
				// settled but failed or unhealthy: discard and redial
				delete(r.conns, tenantId)
				r.mu.Unlock()
				if conn.repo != nil {
					conn.repo.Close()
				}
				continue
			default:
				// attempt in flight, wait for it to settle
				r.mu.Unlock()
				<-conn.ready
				continue
			}
		}

		conn = &tenantConn{ready: make(chan struct{})}
		r.conns[tenantId] = conn
		r.mu.Unlock()

		repo, err := r.dial(tenantId, dsn)

		r.mu.Lock()
		conn.repo = repo
		conn.err = err
		conn.healthy = err == nil
		close(conn.ready)
		if err != nil {
			delete(r.conns, tenantId)
		}
		r.mu.Unlock()

		if err != nil {
			return nil, err
		}

		return repo, nil
	}
}

func (r *Registry) dial(tenantId, dsn string) (TenantRepository, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		repo, err := r.open(dsn)
		if err == nil {
			r.log.Printf("connected to storage for tenant %q", tenantId)
			if r.onConnect != nil {
				r.onConnect()
			}
			return repo, nil
		}

		lastErr = err
		r.log.Printf("tenant %q connection attempt %d/%d failed: %v", tenantId, attempt, r.attempts, err)
		if attempt < r.attempts {
			time.Sleep(r.backoff)
		}
	}

	return nil, fmt.Errorf("tenant %q after %d attempts: %w: %v", tenantId, r.attempts, ErrTenantUnreachable, lastErr)
}

// MarkUnhealthy flags a tenant's handle so the next Acquire reconnects.
// Called when the storage layer reports a transport-level disruption.
func (r *Registry) MarkUnhealthy(tenantId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[tenantId]; ok {
		select {
		case <-conn.ready:
			conn.healthy = false
		default:
			// still dialing, leave it alone
		}
	}
}

// Healthy reports whether the tenant currently has a settled, usable handle.
func (r *Registry) Healthy(tenantId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[tenantId]
	if !ok {
		return false
	}

	select {
	case <-conn.ready:
		return conn.err == nil && conn.healthy
	default:
		return false
	}
}

// Close tears down every cached handle. Used at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*tenantConn)
	r.mu.Unlock()

	for tenantId, conn := range conns {
		select {
		case <-conn.ready:
			if conn.repo != nil {
				if err := conn.repo.Close(); err != nil {
					r.log.Printf("closing storage for tenant %q: %v", tenantId, err)
				}
			}
		default:
		}
	}
}
