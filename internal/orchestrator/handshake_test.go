package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialpulse/backend/pkg/models"
)

// fakeSurface is an in-memory external surface.
type fakeSurface struct {
	mu         sync.Mutex
	open       bool
	navigated  string
	focused    bool
	closeCount int
}

func newFakeSurface() *fakeSurface { return &fakeSurface{open: true} }

func (s *fakeSurface) Navigate(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigated = url
	return nil
}

func (s *fakeSurface) Focus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focused = true
}

func (s *fakeSurface) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSurface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.closeCount++
}

func (s *fakeSurface) userCloses() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
}

func (s *fakeSurface) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

func credentialResponse() map[string]any {
	return map[string]any{
		"url":   "https://connect.example.com/session/abc",
		"token": "opaque-token",
	}
}

func newTestHandshake(gw *fakeInvoker, opener SurfaceOpener, opts ...HandshakeOption) *HandshakeManager {
	opts = append([]HandshakeOption{WithSurfacePollInterval(10 * time.Millisecond)}, opts...)
	return NewHandshakeManager(gw, opener, "https://app.example.com/return", nopLogger{}, opts...)
}

func TestHandshakeSuccess(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		require.Equal(t, "generate_jwt", op)
		return credentialResponse(), nil
	}}
	surface := newFakeSurface()
	m := newTestHandshake(gw, func() (ExternalSurface, error) { return surface, nil })
	defer m.Stop()

	session := namedSession("acme")
	err := m.Start(context.Background(), session, []models.Platform{models.PlatformInstagram})

	require.NoError(t, err)
	assert.Equal(t, models.HandshakeAwaitingCompletion, m.State())
	assert.Equal(t, "https://connect.example.com/session/abc", surface.navigated)
	assert.True(t, surface.focused)
	// an existing username means no init_profile call
	assert.Equal(t, []string{"generate_jwt"}, gw.ops())
}

func TestHandshakeInitializesMissingProfile(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		if op == "init_profile" {
			return map[string]any{"username": "acme-7f3"}, nil
		}
		return credentialResponse(), nil
	}}
	surface := newFakeSurface()
	m := newTestHandshake(gw, func() (ExternalSurface, error) { return surface, nil })
	defer m.Stop()

	session := &Session{Company: "Acme Inc"}
	err := m.Start(context.Background(), session, []models.Platform{models.PlatformInstagram})

	require.NoError(t, err)
	assert.Equal(t, "acme-7f3", session.Username())
	assert.Equal(t, []string{"init_profile", "generate_jwt"}, gw.ops())
}

func TestHandshakeRetriesCredentialOncePreconditionMissing(t *testing.T) {
	var jwtCalls atomic.Int32
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		switch op {
		case "generate_jwt":
			if jwtCalls.Add(1) == 1 {
				return nil, preconditionErr(op)
			}
			return credentialResponse(), nil
		default:
			return map[string]any{"username": "acme"}, nil
		}
	}}
	surface := newFakeSurface()
	m := newTestHandshake(gw, func() (ExternalSurface, error) { return surface, nil })
	defer m.Stop()

	session := namedSession("acme")
	err := m.Start(context.Background(), session, []models.Platform{models.PlatformInstagram})

	require.NoError(t, err)
	assert.Equal(t, models.HandshakeAwaitingCompletion, m.State())
	// self-heal happened exactly once between the two credential attempts
	assert.Equal(t, []string{"generate_jwt", "init_profile", "generate_jwt"}, gw.ops())
}

func TestHandshakeSecondCredentialFailureIsTerminal(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		if op == "generate_jwt" {
			return nil, preconditionErr(op)
		}
		return map[string]any{}, nil
	}}
	surface := newFakeSurface()
	m := newTestHandshake(gw, func() (ExternalSurface, error) { return surface, nil })

	session := namedSession("acme")
	err := m.Start(context.Background(), session, []models.Platform{models.PlatformInstagram})

	require.Error(t, err)
	// exactly two credential attempts and one heal attempt, never a third
	assert.Equal(t, 2, gw.countOp("generate_jwt"))
	assert.Equal(t, 1, gw.countOp("init_profile"))
	assert.Equal(t, 1, surface.closes())
	assert.Equal(t, models.HandshakeIdle, m.State())
}

func TestHandshakeLimitReachedIsTerminal(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		return nil, rejectedErr(op)
	}}
	surface := newFakeSurface()
	m := newTestHandshake(gw, func() (ExternalSurface, error) { return surface, nil })

	session := &Session{} // no username: init_profile runs first and is rejected
	err := m.Start(context.Background(), session, []models.Platform{models.PlatformInstagram})

	require.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, 1, gw.countOp("init_profile"))
	assert.Equal(t, 0, gw.countOp("generate_jwt"))
	assert.Equal(t, 1, surface.closes())
}

func TestHandshakeLimitReachedDuringSelfHealIsTerminal(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		if op == "generate_jwt" {
			return nil, preconditionErr(op)
		}
		// the self-heal init_profile hits the connection quota
		return nil, rejectedErr(op)
	}}
	surface := newFakeSurface()
	m := newTestHandshake(gw, func() (ExternalSurface, error) { return surface, nil })

	session := namedSession("acme")
	err := m.Start(context.Background(), session, []models.Platform{models.PlatformInstagram})

	require.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, 1, gw.countOp("generate_jwt"))
	assert.Equal(t, 1, gw.countOp("init_profile"))
	assert.Equal(t, 1, surface.closes())
	assert.Equal(t, models.HandshakeIdle, m.State())
}

func TestHandshakeSurfaceCloseFiresRefresh(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		return credentialResponse(), nil
	}}
	surface := newFakeSurface()
	refreshed := make(chan struct{}, 1)
	m := newTestHandshake(gw,
		func() (ExternalSurface, error) { return surface, nil },
		WithRefreshCallback(func() { refreshed <- struct{}{} }))

	session := namedSession("acme")
	require.NoError(t, m.Start(context.Background(), session, []models.Platform{models.PlatformInstagram}))

	surface.userCloses()

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("refresh callback was not invoked after the surface closed")
	}
	assert.Equal(t, models.HandshakeClosed, m.State())
}

func TestHandshakeRestartSupersedesPreviousAttempt(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		return credentialResponse(), nil
	}}
	first := newFakeSurface()
	second := newFakeSurface()
	surfaces := []*fakeSurface{first, second}
	var opened atomic.Int32

	var refreshes atomic.Int32
	m := newTestHandshake(gw,
		func() (ExternalSurface, error) {
			return surfaces[opened.Add(1)-1], nil
		},
		WithRefreshCallback(func() { refreshes.Add(1) }))
	defer m.Stop()

	session := namedSession("acme")
	require.NoError(t, m.Start(context.Background(), session, []models.Platform{models.PlatformInstagram}))
	require.NoError(t, m.Start(context.Background(), session, []models.Platform{models.PlatformInstagram}))

	// the first surface was closed by the supersede, with its loop cancelled
	assert.GreaterOrEqual(t, first.closes(), 1)

	// only the second attempt's lifecycle loop is live: one refresh total
	second.userCloses()
	assert.Eventually(t, func() bool { return refreshes.Load() == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, refreshes.Load(), "exactly one lifecycle loop may be live per manager")
}

func TestHandshakeStopWithoutStartIsSafe(t *testing.T) {
	gw := &fakeInvoker{}
	m := newTestHandshake(gw, func() (ExternalSurface, error) { return newFakeSurface(), nil })
	m.Stop()
	m.Stop()
	assert.Equal(t, models.HandshakeIdle, m.State())
}
