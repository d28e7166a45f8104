package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/area-listing-scraper/internal/config"
	"github.com/JakeFAU/area-listing-scraper/internal/progress"
	"github.com/JakeFAU/area-listing-scraper/internal/scraper"
	"github.com/JakeFAU/area-listing-scraper/internal/server"
)

type fakeApp struct {
	events    []progress.Event
	areas     []scraper.AreaRef
	cancelErr error
	swept     int
	seeded    int

	ranArea    string
	cancelled  string
	seededPath string
	served     bool
	closed     bool
}

func (f *fakeApp) Run(_ context.Context, areaID string, emit progress.Emitter) progress.Event {
	f.ranArea = areaID
	var last progress.Event
	for _, evt := range f.events {
		emit.Emit(evt)
		last = evt
	}
	return last
}

func (f *fakeApp) Serve(context.Context) error {
	f.served = true
	return nil
}

func (f *fakeApp) SweepSignals(context.Context) (int, error) { return f.swept, nil }

func (f *fakeApp) RequestCancel(_ context.Context, token string) error {
	f.cancelled = token
	return f.cancelErr
}

func (f *fakeApp) ListAreas(context.Context) ([]scraper.AreaRef, error) { return f.areas, nil }

func (f *fakeApp) SeedAreas(_ context.Context, path string) (int, error) {
	f.seededPath = path
	return f.seeded, nil
}

func (f *fakeApp) Close(context.Context) error {
	f.closed = true
	return nil
}

// useFakeApp swaps the application factory for the duration of the test.
func useFakeApp(t *testing.T, app *fakeApp) *[]server.Option {
	t.Helper()
	var seen []server.Option
	orig := newApp
	newApp = func(_ context.Context, _ *config.Config, _ *zap.Logger, opts ...server.Option) (appService, error) {
		seen = opts
		return app, nil
	}
	t.Cleanup(func() { newApp = orig })
	return &seen
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScrapePrintsEventsAndUsesLocalPublisher(t *testing.T) {
	app := &fakeApp{events: []progress.Event{
		progress.JobID("abc"),
		progress.Progress("abc", 1, 2),
		progress.Done("abc", progress.Result{FileName: "x_20240102.xlsx", TargetCount: 1}),
	}}
	opts := useFakeApp(t, app)

	out, err := execute(t, "scrape", "7")
	require.NoError(t, err)
	assert.Equal(t, "7", app.ranArea)
	assert.True(t, app.closed)
	assert.Len(t, *opts, 1)
	assert.Contains(t, out, "job_id       abc")
	assert.Contains(t, out, `{"current":1,"total":2}`)
	assert.Contains(t, out, "x_20240102.xlsx")
}

func TestScrapeFailsOnTerminalError(t *testing.T) {
	app := &fakeApp{events: []progress.Event{progress.Error("", "area not found")}}
	useFakeApp(t, app)

	_, err := execute(t, "scrape", "99")
	require.ErrorContains(t, err, "job ended with error")
	assert.True(t, app.closed)
}

func TestScrapeCancelledIsNotAFailure(t *testing.T) {
	useFakeApp(t, &fakeApp{events: []progress.Event{progress.JobID("t"), progress.Cancelled("t")}})

	_, err := execute(t, "scrape", "1")
	require.NoError(t, err)
}

func TestScrapeRequiresArea(t *testing.T) {
	useFakeApp(t, &fakeApp{})

	_, err := execute(t, "scrape")
	require.Error(t, err)
}

func TestAreasListsRows(t *testing.T) {
	useFakeApp(t, &fakeApp{areas: []scraper.AreaRef{
		{ID: 1, Prefecture: "東京都", Name: "青山/表参道", StartURL: "https://example.com/a"},
	}})

	out, err := execute(t, "areas")
	require.NoError(t, err)
	assert.Contains(t, out, "PREFECTURE")
	assert.Contains(t, out, "青山/表参道")
	assert.Contains(t, out, "https://example.com/a")
}

func TestSeedUsesFlagOverConfig(t *testing.T) {
	app := &fakeApp{seeded: 3}
	useFakeApp(t, app)
	cfg := writeConfig(t, "areas:\n  csv_path: from-config.csv\n")

	out, err := execute(t, "--config", cfg, "seed", "--csv", "flag.csv")
	require.NoError(t, err)
	assert.Equal(t, "flag.csv", app.seededPath)
	assert.Contains(t, out, "seeded 3 areas")
}

func TestSeedFallsBackToConfig(t *testing.T) {
	app := &fakeApp{}
	useFakeApp(t, app)
	cfg := writeConfig(t, "areas:\n  csv_path: from-config.csv\n")

	_, err := execute(t, "--config", cfg, "seed")
	require.NoError(t, err)
	assert.Equal(t, "from-config.csv", app.seededPath)
}

func TestSeedWithoutSource(t *testing.T) {
	useFakeApp(t, &fakeApp{})

	_, err := execute(t, "seed")
	require.ErrorContains(t, err, "no CSV given")
}

func TestCancelForwardsToken(t *testing.T) {
	app := &fakeApp{}
	useFakeApp(t, app)

	out, err := execute(t, "cancel", "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", app.cancelled)
	assert.Contains(t, out, "cancellation requested")
}

func TestCancelPropagatesError(t *testing.T) {
	useFakeApp(t, &fakeApp{cancelErr: errors.New("invalid job token")})

	_, err := execute(t, "cancel", "../x")
	require.ErrorContains(t, err, "invalid job token")
}

func TestSweepReportsCount(t *testing.T) {
	useFakeApp(t, &fakeApp{swept: 4})

	out, err := execute(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 4 stale signals")
}

func TestServeRunsApp(t *testing.T) {
	app := &fakeApp{}
	useFakeApp(t, app)

	_, err := execute(t, "serve")
	require.NoError(t, err)
	assert.True(t, app.served)
	assert.True(t, app.closed)
}

func TestBadConfigFails(t *testing.T) {
	useFakeApp(t, &fakeApp{})
	cfg := writeConfig(t, "scraper:\n  max_workers: 0\n")

	_, err := execute(t, "--config", cfg, "areas")
	require.ErrorContains(t, err, "max_workers")
}

func TestFactoryErrorIsWrapped(t *testing.T) {
	orig := newApp
	newApp = func(context.Context, *config.Config, *zap.Logger, ...server.Option) (appService, error) {
		return nil, errors.New("boom")
	}
	t.Cleanup(func() { newApp = orig })

	_, err := execute(t, "sweep")
	require.ErrorContains(t, err, "failed to initialize application services: boom")
}
