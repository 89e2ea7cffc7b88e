package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialpulse/backend/pkg/models"
)

func testConnections() []models.PlatformConnection {
	return []models.PlatformConnection{
		{Platform: models.PlatformInstagram, ProfileURL: "https://instagram.com/acme", HasAccount: models.HasAccountYes},
		{Platform: models.PlatformLinkedIn, HasAccount: models.HasAccountNo},
		{Platform: models.PlatformTikTok, ProfileURL: "https://tiktok.com/@acme", HasAccount: models.HasAccountYes},
	}
}

func newTestExecutor(gw *fakeInvoker) *TaskExecutor {
	return NewTaskExecutor(gw, nopLogger{}, WithPlatformDelay(0))
}

func TestRunAllSkipsUnconnectedPlatforms(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		return map[string]any{"postsFound": 3}, nil
	}}
	e := newTestExecutor(gw)
	session := namedSession("acme")

	results := e.RunAll(context.Background(), session, testConnections(), models.PhaseIngest)

	require.Len(t, results, 2)
	assert.Equal(t, models.PlatformInstagram, results[0].Platform)
	assert.Equal(t, models.PlatformTikTok, results[1].Platform)
	assert.Equal(t, []string{"get_posts", "get_videos"}, gw.ops())
	for i, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, 3, r.ItemsProcessed)
		assert.Equal(t, i+1, r.Seq)
	}
}

func TestRunAllIsolatesSingleFailure(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		if op == "get_page_posts" {
			return nil, transportErr(op)
		}
		return map[string]any{"postsFound": 1}, nil
	}}
	e := newTestExecutor(gw)
	session := namedSession("acme")
	conns := []models.PlatformConnection{
		{Platform: models.PlatformInstagram, ProfileURL: "https://instagram.com/acme", HasAccount: models.HasAccountYes},
		{Platform: models.PlatformFacebook, ProfileURL: "https://facebook.com/pages/acme/123456789", HasAccount: models.HasAccountYes},
		{Platform: models.PlatformTikTok, ProfileURL: "https://tiktok.com/@acme", HasAccount: models.HasAccountYes},
	}

	results := e.RunAll(context.Background(), session, conns, models.PhaseIngest)

	require.Len(t, results, 3)
	var failures int
	for _, r := range results {
		if !r.Success {
			failures++
			assert.Equal(t, models.PlatformFacebook, r.Platform)
			assert.Contains(t, r.Error, "connection refused")
		}
	}
	assert.Equal(t, 1, failures)
	// original order preserved despite the failure
	assert.Equal(t, models.PlatformInstagram, results[0].Platform)
	assert.Equal(t, models.PlatformFacebook, results[1].Platform)
	assert.Equal(t, models.PlatformTikTok, results[2].Platform)
}

func TestRunAllEmptyInput(t *testing.T) {
	gw := &fakeInvoker{}
	e := newTestExecutor(gw)

	results := e.RunAll(context.Background(), &Session{}, nil, models.PhaseIngest)

	assert.Empty(t, results)
	assert.Empty(t, gw.ops(), "no remote call may happen for an empty input")
}

func TestRunAllMalformedURLIsPerPlatformFailure(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		return map[string]any{"postsFound": 2}, nil
	}}
	e := newTestExecutor(gw)
	conns := []models.PlatformConnection{
		// connected, but the URL yields no numeric page id
		{Platform: models.PlatformFacebook, ProfileURL: "https://facebook.com/acmepage", HasAccount: models.HasAccountYes},
		{Platform: models.PlatformInstagram, ProfileURL: "https://instagram.com/acme", HasAccount: models.HasAccountYes},
	}

	results := e.RunAll(context.Background(), namedSession("acme"), conns, models.PhaseIngest)

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "page id")
	assert.True(t, results[1].Success)
	// the malformed platform never reached the gateway
	assert.Equal(t, []string{"get_posts"}, gw.ops())
}

func TestRunAllAnalyzePhaseUsesAnalyzeOps(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}}
	e := newTestExecutor(gw)
	conns := []models.PlatformConnection{
		{Platform: models.PlatformInstagram, ProfileURL: "https://instagram.com/acme", HasAccount: models.HasAccountYes},
		{Platform: models.PlatformFacebook, ProfileURL: "https://facebook.com/pages/acme/987654321", HasAccount: models.HasAccountYes},
		{Platform: models.PlatformLinkedIn, ProfileURL: "https://linkedin.com/company/acme-inc", HasAccount: models.HasAccountYes},
	}

	e.RunAll(context.Background(), namedSession("acme"), conns, models.PhaseAnalyze)

	assert.Equal(t, []string{"analyze_posts", "analyze_page", "analyze_company"}, gw.ops())
}

func TestRunAllExtractsPlatformIdentifiers(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}}
	e := newTestExecutor(gw)
	conns := []models.PlatformConnection{
		{Platform: models.PlatformInstagram, ProfileURL: "https://instagram.com/acme", HasAccount: models.HasAccountYes},
		{Platform: models.PlatformFacebook, ProfileURL: "https://facebook.com/pages/acme/123456789", HasAccount: models.HasAccountYes},
		{Platform: models.PlatformLinkedIn, ProfileURL: "https://www.linkedin.com/company/acme-inc/about", HasAccount: models.HasAccountYes},
		{Platform: models.PlatformTikTok, ProfileURL: "https://www.tiktok.com/@acme", HasAccount: models.HasAccountYes},
	}

	e.RunAll(context.Background(), namedSession("acme"), conns, models.PhaseIngest)

	require.Len(t, gw.calls, 4)
	assert.Equal(t, "acme", gw.calls[0].Input["ig_handle"])
	assert.Equal(t, "123456789", gw.calls[1].Input["page_id"])
	assert.Equal(t, "acme-inc", gw.calls[2].Input["company_slug"])
	assert.Equal(t, "acme", gw.calls[3].Input["handle"])
	for _, c := range gw.calls {
		assert.Equal(t, "acme", c.Input["username"])
	}
}

func TestRunAllSurfacesProgress(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}}
	var seen []models.Platform
	e := NewTaskExecutor(gw, nopLogger{},
		WithPlatformDelay(0),
		WithProgress(func(p models.Platform) { seen = append(seen, p) }))

	e.RunAll(context.Background(), namedSession("acme"), testConnections(), models.PhaseIngest)

	assert.Equal(t, []models.Platform{models.PlatformInstagram, models.PlatformTikTok}, seen)
}

func TestRunAllHonorsCancellationBetweenPlatforms(t *testing.T) {
	gw := &fakeInvoker{handler: func(op string, input map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	}}
	e := NewTaskExecutor(gw, nopLogger{}, WithPlatformDelay(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	results := e.RunAll(ctx, namedSession("acme"), testConnections(), models.PhaseIngest)

	// the first platform ran; the cancelled delay stopped the batch early
	require.Len(t, results, 1)
	assert.Equal(t, models.PlatformInstagram, results[0].Platform)
}
