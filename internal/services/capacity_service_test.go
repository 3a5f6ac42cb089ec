package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sitecraft/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapacityService(env *testEnv, admins ...string) *CapacityService {
	return NewCapacityService(env.store, env.ledger, 3, admins, zerolog.Nop())
}

func TestCapacityService_Boundary(t *testing.T) {
	ctx := context.Background()

	t.Run("full gate waitlists", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.SetCapacity(models.BetaCapacity{MaxFreeUsers: 100, CurrentFreeUsers: 100})
		svc := newCapacityService(env)

		adm, err := svc.Admit(ctx, "acct-new", "new@example.com")
		require.NoError(t, err)
		assert.False(t, adm.Admitted)
		assert.Equal(t, 1, adm.Position)

		_, err = env.store.GetAccount(ctx, "acct-new")
		assert.Error(t, err)

		c, err := svc.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, 100, c.CurrentFreeUsers)
	})

	t.Run("last slot admits", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.SetCapacity(models.BetaCapacity{MaxFreeUsers: 100, CurrentFreeUsers: 99})
		svc := newCapacityService(env)

		adm, err := svc.Admit(ctx, "acct-new", "new@example.com")
		require.NoError(t, err)
		assert.True(t, adm.Admitted)
		assert.Equal(t, int64(3), adm.Balance)

		c, err := svc.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, 100, c.CurrentFreeUsers)

		acct, err := env.store.GetAccount(ctx, "acct-new")
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, acct.Role)
		assert.Equal(t, int64(3), acct.Balance)
	})
}

func TestCapacityService_ConcurrentLastSlot(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetCapacity(models.BetaCapacity{MaxFreeUsers: 100, CurrentFreeUsers: 99})
	svc := newCapacityService(env)

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, waitlisted := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("acct-%d", i)
			adm, err := svc.Admit(context.Background(), id, id+"@example.com")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if adm.Admitted {
				admitted++
			} else {
				waitlisted++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, 9, waitlisted)

	c, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, c.CurrentFreeUsers)
}

func TestCapacityService_ExistingAccount(t *testing.T) {
	env := newTestEnv(t)
	svc := newCapacityService(env)
	ctx := context.Background()

	first, err := svc.Admit(ctx, "acct-1", "a@example.com")
	require.NoError(t, err)
	require.True(t, first.Admitted)

	second, err := svc.Admit(ctx, "acct-1", "a@example.com")
	require.NoError(t, err)
	assert.True(t, second.Admitted)
	assert.True(t, second.Existing)
	assert.Equal(t, int64(3), second.Balance)

	c, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, c.CurrentFreeUsers)
	assert.Equal(t, int64(3), env.balance(t, "acct-1"))
}

func TestCapacityService_AdminBootstrap(t *testing.T) {
	env := newTestEnv(t)
	svc := newCapacityService(env, "acct-ops")
	ctx := context.Background()

	_, err := svc.Admit(ctx, "acct-ops", "ops@example.com")
	require.NoError(t, err)

	acct, err := env.store.GetAccount(ctx, "acct-ops")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, acct.Role)
}

func TestCapacityService_SetLimit(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetCapacity(models.BetaCapacity{MaxFreeUsers: 100, CurrentFreeUsers: 40})
	svc := newCapacityService(env)
	ctx := context.Background()

	c, err := svc.SetLimit(ctx, 150)
	require.NoError(t, err)
	assert.Equal(t, 150, c.MaxFreeUsers)
	assert.Equal(t, 110, c.Remaining())

	_, err = svc.SetLimit(ctx, 39)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.SetLimit(ctx, -1)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
