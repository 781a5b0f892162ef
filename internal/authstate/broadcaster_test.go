package authstate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalmarketplace/trybuy-front/internal/storage"
)

func newBroadcaster() (*Broadcaster, *storage.MemoryStore) {
	sessions := storage.NewMemoryStore()
	return New(sessions, "s1", nil), sessions
}

func TestLoginLogoutRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, _ := newBroadcaster()

	assert.False(t, b.IsAuthenticated(ctx))

	require.NoError(t, b.Login(ctx, "trial-token"))
	assert.True(t, b.IsAuthenticated(ctx))

	tok, ok := b.Token(ctx)
	require.True(t, ok)
	assert.Equal(t, "trial-token", tok)

	b.Logout(ctx)
	assert.False(t, b.IsAuthenticated(ctx))
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b, _ := newBroadcaster()

	require.NoError(t, b.Login(ctx, "trial-token"))

	var calls []bool
	unsubscribe := b.Subscribe(ctx, func(authenticated bool) {
		calls = append(calls, authenticated)
	})
	defer unsubscribe()
	require.Equal(t, []bool{true}, calls)

	b.Logout(ctx)
	b.Logout(ctx)

	// Second logout observes no token and stays quiet
	assert.Equal(t, []bool{true, false}, calls)
	assert.False(t, b.IsAuthenticated(ctx))
}

func TestSubscribeInvokesImmediately(t *testing.T) {
	ctx := context.Background()
	b, _ := newBroadcaster()

	var got []bool
	unsubscribe := b.Subscribe(ctx, func(authenticated bool) {
		got = append(got, authenticated)
	})
	defer unsubscribe()

	require.Equal(t, []bool{false}, got)

	require.NoError(t, b.Login(ctx, "trial-token"))
	assert.Equal(t, []bool{false, true}, got)

	b.Logout(ctx)
	assert.Equal(t, []bool{false, true, false}, got)
}

func TestSubscribeWhenAlreadyAuthenticated(t *testing.T) {
	ctx := context.Background()
	b, _ := newBroadcaster()
	require.NoError(t, b.Login(ctx, "trial-token"))

	var got []bool
	unsubscribe := b.Subscribe(ctx, func(authenticated bool) {
		got = append(got, authenticated)
	})
	defer unsubscribe()

	require.Equal(t, []bool{true}, got)

	b.Logout(ctx)
	assert.Equal(t, []bool{true, false}, got)
}

func TestNotificationOrder(t *testing.T) {
	ctx := context.Background()
	b, _ := newBroadcaster()

	var order []string
	u1 := b.Subscribe(ctx, func(bool) { order = append(order, "first") })
	defer u1()
	u2 := b.Subscribe(ctx, func(bool) { order = append(order, "second") })
	defer u2()
	order = nil

	require.NoError(t, b.Login(ctx, "trial-token"))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()
	b, _ := newBroadcaster()

	calls := 0
	unsubscribe := b.Subscribe(ctx, func(bool) { calls++ })
	require.Equal(t, 1, calls)

	unsubscribe()
	unsubscribe() // calling twice is harmless

	require.NoError(t, b.Login(ctx, "trial-token"))
	assert.Equal(t, 1, calls)
}

func TestPanickingListenerDoesNotStopDelivery(t *testing.T) {
	ctx := context.Background()
	b, _ := newBroadcaster()

	u1 := b.Subscribe(ctx, func(bool) { panic("broken consumer") })
	defer u1()

	survived := false
	u2 := b.Subscribe(ctx, func(authenticated bool) {
		if authenticated {
			survived = true
		}
	})
	defer u2()

	require.NoError(t, b.Login(ctx, "trial-token"))
	assert.True(t, survived)
}

// rejectAll fails every token it sees
type rejectAll struct{}

func (rejectAll) Validate(string) error { return errors.New("expired") }

func TestValidatorClearsBadTokens(t *testing.T) {
	ctx := context.Background()
	sessions := storage.NewMemoryStore()
	b := New(sessions, "s1", rejectAll{})

	require.NoError(t, sessions.Set(ctx, "s1", storage.KeyAuthToken, "dead-token"))

	assert.False(t, b.IsAuthenticated(ctx))

	// The dead token was removed on read
	_, err := sessions.Get(ctx, "s1", storage.KeyAuthToken)
	assert.True(t, storage.IsNotFound(err))
}

func TestManagerReturnsSameBroadcasterPerSession(t *testing.T) {
	sessions := storage.NewMemoryStore()
	m := NewManager(sessions, nil)

	a := m.For("s1")
	assert.Same(t, a, m.For("s1"))
	assert.NotSame(t, a, m.For("s2"))
	assert.Equal(t, 2, m.Len())

	m.Forget("s1")
	assert.Equal(t, 1, m.Len())
	assert.NotSame(t, a, m.For("s1"))
}
