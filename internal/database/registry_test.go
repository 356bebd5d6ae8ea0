package database

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edulink/classchat/internal/testutil"
)

func TestRegistryAcquire(t *testing.T) {
	tenants := map[string]string{"school-1": "postgres://school-1"}

	t.Run("caches the handle across acquires", func(t *testing.T) {
		var opened int
		repo := NewMemoryTenantRepository()
		reg := NewRegistry(testutil.TestLogger(t), tenants, func(dsn string) (TenantRepository, error) {
			opened++
			return repo, nil
		})

		first, err := reg.Acquire("school-1")
		assert.NoError(t, err)
		second, err := reg.Acquire("school-1")
		assert.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, opened)
		assert.True(t, reg.Healthy("school-1"))
	})

	t.Run("unknown tenant", func(t *testing.T) {
		reg := NewRegistry(testutil.TestLogger(t), tenants, func(dsn string) (TenantRepository, error) {
			t.Fatal("open should not be called")
			return nil, nil
		})

		_, err := reg.Acquire("school-2")
		assert.ErrorIs(t, err, ErrTenantNotConfigured)
	})

	t.Run("retries within the budget", func(t *testing.T) {
		var attempts int
		repo := NewMemoryTenantRepository()
		reg := NewRegistry(testutil.TestLogger(t), tenants, func(dsn string) (TenantRepository, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("connection refused")
			}
			return repo, nil
		})
		reg.SetRetryBudget(3, 0)

		got, err := reg.Acquire("school-1")
		assert.NoError(t, err)
		assert.Same(t, repo, got)
		assert.Equal(t, 3, attempts)
	})

	t.Run("exhausted budget surfaces unreachable", func(t *testing.T) {
		var attempts int
		reg := NewRegistry(testutil.TestLogger(t), tenants, func(dsn string) (TenantRepository, error) {
			attempts++
			return nil, errors.New("connection refused")
		})
		reg.SetRetryBudget(2, 0)

		_, err := reg.Acquire("school-1")
		assert.ErrorIs(t, err, ErrTenantUnreachable)
		assert.Equal(t, 2, attempts)
		assert.False(t, reg.Healthy("school-1"))
	})

	t.Run("failed attempt does not poison later acquires", func(t *testing.T) {
		var attempts int
		repo := NewMemoryTenantRepository()
		reg := NewRegistry(testutil.TestLogger(t), tenants, func(dsn string) (TenantRepository, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("connection refused")
			}
			return repo, nil
		})
		reg.SetRetryBudget(1, 0)

		_, err := reg.Acquire("school-1")
		assert.ErrorIs(t, err, ErrTenantUnreachable)

		got, err := reg.Acquire("school-1")
		assert.NoError(t, err)
		assert.Same(t, repo, got)
	})

	t.Run("reconnects after MarkUnhealthy", func(t *testing.T) {
		var opened int
		reg := NewRegistry(testutil.TestLogger(t), tenants, func(dsn string) (TenantRepository, error) {
			opened++
			return NewMemoryTenantRepository(), nil
		})

		first, err := reg.Acquire("school-1")
		assert.NoError(t, err)

		reg.MarkUnhealthy("school-1")
		assert.False(t, reg.Healthy("school-1"))

		second, err := reg.Acquire("school-1")
		assert.NoError(t, err)
		assert.NotSame(t, first, second)
		assert.Equal(t, 2, opened)
		assert.True(t, reg.Healthy("school-1"))
	})
}

func TestRegistrySingleFlight(t *testing.T) {
	tenants := map[string]string{"school-1": "postgres://school-1"}

	var opened atomic.Int32
	release := make(chan struct{})
	repo := NewMemoryTenantRepository()
	reg := NewRegistry(testutil.TestLogger(t), tenants, func(dsn string) (TenantRepository, error) {
		opened.Add(1)
		<-release
		return repo, nil
	})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]TenantRepository, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := reg.Acquire("school-1")
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), opened.Load(), "concurrent acquires must share one connection attempt")
	for _, got := range results {
		assert.Same(t, repo, got)
	}
}
