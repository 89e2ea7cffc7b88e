package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"socialpulse/backend/internal/gateway"
	"socialpulse/backend/pkg/models"
)

// DefaultSurfacePollInterval is how often the lifecycle loop checks whether
// the external surface is still open.
const DefaultSurfacePollInterval = time.Second

// ErrLimitReached is returned when the provider refuses a handshake because a
// connection quota or limit is exhausted. Terminal, not retryable.
var ErrLimitReached = errors.New("connection limit reached")

// ExternalSurface is the detached authorization window, abstracted so the
// handshake logic stays platform-agnostic. The handshake manager is the only
// writer; other components observe completion via the refresh callback.
type ExternalSurface interface {
	Navigate(url string) error
	Focus()
	IsOpen() bool
	Close()
}

// SurfaceOpener opens a new external surface in a blank/loading state. It is
// injected by the platform layer and must be cheap enough to call
// synchronously from the triggering user action.
type SurfaceOpener func() (ExternalSurface, error)

// HandshakeManager runs the external authorization flow: open a surface,
// obtain an access credential through the gateway with a one-shot retry on a
// missing precondition, navigate the surface, and watch its lifecycle until
// the user closes it.
type HandshakeManager struct {
	gw           gateway.Invoker
	opener       SurfaceOpener
	logger       Logger
	returnURL    string
	pollInterval time.Duration
	onRefresh    func()

	mu          sync.Mutex
	state       models.HandshakeState
	surface     ExternalSurface
	cancelWatch context.CancelFunc
}

// HandshakeOption customizes a HandshakeManager.
type HandshakeOption func(*HandshakeManager)

// WithSurfacePollInterval overrides the lifecycle poll interval.
func WithSurfacePollInterval(d time.Duration) HandshakeOption {
	return func(m *HandshakeManager) { m.pollInterval = d }
}

// WithRefreshCallback registers the callback invoked after the surface
// closes, so the controller can re-query connection state.
func WithRefreshCallback(fn func()) HandshakeOption {
	return func(m *HandshakeManager) { m.onRefresh = fn }
}

// NewHandshakeManager creates a new HandshakeManager.
func NewHandshakeManager(gw gateway.Invoker, opener SurfaceOpener, returnURL string, logger Logger, opts ...HandshakeOption) *HandshakeManager {
	m := &HandshakeManager{
		gw:           gw,
		opener:       opener,
		logger:       logger,
		returnURL:    returnURL,
		pollInterval: DefaultSurfacePollInterval,
		state:        models.HandshakeIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *HandshakeManager) State() models.HandshakeState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start runs one handshake attempt. The external surface opens synchronously
// before any remote call. Starting a new handshake supersedes a previous one:
// its lifecycle loop is cancelled and its surface closed, so at most one
// surface and one loop are ever live.
func (m *HandshakeManager) Start(ctx context.Context, session *Session, platforms []models.Platform) error {
	m.mu.Lock()
	if m.cancelWatch != nil {
		m.cancelWatch()
		m.cancelWatch = nil
	}
	if m.surface != nil {
		m.surface.Close()
		m.surface = nil
	}
	m.state = models.HandshakeOpening
	m.mu.Unlock()

	surface, err := m.opener()
	if err != nil {
		m.setState(models.HandshakeIdle)
		handshakes.Add(ctx, 1, outcomeAttrs("surface_error"))
		return fmt.Errorf("open external surface: %w", err)
	}
	m.mu.Lock()
	m.surface = surface
	m.mu.Unlock()

	if session.Username() == "" {
		if err := m.initProfile(ctx, session); err != nil {
			surface.Close()
			m.setState(models.HandshakeIdle)
			if gateway.IsRejected(err) {
				handshakes.Add(ctx, 1, outcomeAttrs("limit_reached"))
				return fmt.Errorf("%w: %v", ErrLimitReached, err)
			}
			handshakes.Add(ctx, 1, outcomeAttrs("init_failed"))
			return err
		}
	}

	m.setState(models.HandshakeAwaitingCredential)
	accessURL, token, err := m.generateCredential(ctx, session, platforms)
	if gateway.IsPreconditionMissing(err) {
		// The provider lost or never had the profile. Self-heal exactly once,
		// then retry the credential request exactly once.
		m.logger.Info("credential precondition missing, re-initializing profile once", "username", session.Username())
		if ierr := m.initProfile(ctx, session); ierr != nil {
			surface.Close()
			m.setState(models.HandshakeIdle)
			if gateway.IsRejected(ierr) {
				handshakes.Add(ctx, 1, outcomeAttrs("limit_reached"))
				return fmt.Errorf("%w: %v", ErrLimitReached, ierr)
			}
			handshakes.Add(ctx, 1, outcomeAttrs("init_failed"))
			return ierr
		}
		accessURL, token, err = m.generateCredential(ctx, session, platforms)
	}
	if err != nil {
		surface.Close()
		m.setState(models.HandshakeIdle)
		handshakes.Add(ctx, 1, outcomeAttrs("credential_failed"))
		return fmt.Errorf("generate access credential: %w", err)
	}

	m.inspectCredential(token)

	if err := surface.Navigate(accessURL); err != nil {
		surface.Close()
		m.setState(models.HandshakeIdle)
		handshakes.Add(ctx, 1, outcomeAttrs("surface_error"))
		return fmt.Errorf("navigate external surface: %w", err)
	}
	surface.Focus()

	m.setState(models.HandshakeAwaitingCompletion)
	handshakes.Add(ctx, 1, outcomeAttrs("awaiting_completion"))

	wctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancelWatch = cancel
	m.mu.Unlock()
	go m.watchSurface(wctx, surface)

	return nil
}

// Stop cancels the lifecycle loop and closes the surface, without invoking
// the refresh callback. Safe to call at any time.
func (m *HandshakeManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelWatch != nil {
		m.cancelWatch()
		m.cancelWatch = nil
	}
	if m.surface != nil {
		m.surface.Close()
		m.surface = nil
	}
	m.state = models.HandshakeIdle
}

func (m *HandshakeManager) initProfile(ctx context.Context, session *Session) error {
	data, err := m.gw.Invoke(ctx, "init_profile", map[string]any{
		"username": session.Username(),
		"company":  session.Company,
	})
	if err != nil {
		return err
	}
	if username, ok := data["username"].(string); ok && username != "" {
		session.SetUsername(username)
	}
	return nil
}

func (m *HandshakeManager) generateCredential(ctx context.Context, session *Session, platforms []models.Platform) (string, string, error) {
	names := make([]string, 0, len(platforms))
	for _, p := range platforms {
		names = append(names, string(p))
	}
	data, err := m.gw.Invoke(ctx, "generate_jwt", map[string]any{
		"username":     session.Username(),
		"redirect_url": m.returnURL,
		"platforms":    names,
	})
	if err != nil {
		return "", "", err
	}
	accessURL, _ := data["url"].(string)
	if accessURL == "" {
		return "", "", &gateway.RemoteError{Op: "generate_jwt", Class: gateway.ClassUnknown, Message: "response carries no access url"}
	}
	token, _ := data["token"].(string)
	return accessURL, token, nil
}

// inspectCredential decodes the returned credential without verifying it (the
// signing key belongs to the provider) and logs its expiry. An unreadable
// token is not an error; the provider-hosted surface is the authority.
func (m *HandshakeManager) inspectCredential(token string) {
	if token == "" {
		return
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		m.logger.Debug("access credential is not a readable JWT", "error", err)
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if time.Until(exp.Time) <= 0 {
		m.logger.Warn("access credential is already expired", "expires_at", exp.Time)
		return
	}
	m.logger.Debug("access credential decoded", "expires_at", exp.Time)
}

// watchSurface polls the surface until the user closes it, then transitions
// to Closed and fires the refresh callback. A cancelled loop fires nothing.
func (m *HandshakeManager) watchSurface(ctx context.Context, surface ExternalSurface) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if surface.IsOpen() {
				continue
			}
			m.mu.Lock()
			if ctx.Err() != nil {
				// superseded or stopped while observing the close; the newer
				// attempt owns the callback now
				m.mu.Unlock()
				return
			}
			m.state = models.HandshakeClosed
			if m.cancelWatch != nil {
				m.cancelWatch()
				m.cancelWatch = nil
			}
			if m.surface == surface {
				m.surface = nil
			}
			m.mu.Unlock()

			m.logger.Info("external surface closed, refreshing connection state")
			if m.onRefresh != nil {
				m.onRefresh()
			}
			return
		}
	}
}

func (m *HandshakeManager) setState(s models.HandshakeState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}
