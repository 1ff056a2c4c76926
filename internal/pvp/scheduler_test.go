package pvp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	content  string
	uploaded []string
	failDL   bool
}

func (f *fakeTransport) Download(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDL {
		return nil, context.DeadlineExceeded
	}
	return []byte(f.content), nil
}

func (f *fakeTransport) Upload(ctx context.Context, path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = string(data)
	f.uploaded = append(f.uploaded, f.content)
	return nil
}

type fakeRcon struct {
	mu            sync.Mutex
	broadcasts    []string
	failRestart   bool
	failQuick     bool
	restartCalled bool
	quickCalled   bool
}

func (f *fakeRcon) Broadcast(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, message)
	return nil
}

func (f *fakeRcon) RestartNow(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restartCalled = true
	if f.failRestart {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeRcon) QuickRestart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quickCalled = true
	if f.failQuick {
		return context.DeadlineExceeded
	}
	return nil
}

func baseConfig() Config {
	return Config{
		Default:      Window{Start: 18 * 60, End: 22 * 60},
		RestartDelay: 10,
		ConfigPath:   "/config/settings.ini",
		Location:     time.UTC,
	}
}

func TestNew_RejectsEqualStartAndEnd(t *testing.T) {
	cfg := baseConfig()
	cfg.Default = Window{Start: 60, End: 60}
	_, err := New(cfg, &fakeTransport{}, &fakeRcon{}, nil, nil)
	require.Error(t, err)
}

func TestInit_ReadsCurrentPvpFromConfigLine(t *testing.T) {
	tr := &fakeTransport{content: "PVP=1\nServerName=\"My Box\"\n"}
	s, err := New(baseConfig(), tr, &fakeRcon{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Init(context.Background()))
	require.NotNil(t, s.CurrentPvp())
	require.True(t, *s.CurrentPvp())
}

func TestInit_DownloadFailureLeavesUnknown(t *testing.T) {
	tr := &fakeTransport{failDL: true}
	s, err := New(baseConfig(), tr, &fakeRcon{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Init(context.Background()))
	require.Nil(t, s.CurrentPvp())
}

func TestTick_SkipsWhenTransitioning(t *testing.T) {
	tr := &fakeTransport{content: "PVP=0\n"}
	s, err := New(baseConfig(), tr, &fakeRcon{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))

	s.mu.Lock()
	s.transitioning = true
	s.mu.Unlock()

	// now = 17:55, well within restartDelay of the 18:00 start, but the
	// transitioning flag must short-circuit before any countdown starts.
	now := time.Date(2026, 7, 31, 17, 55, 0, 0, time.UTC)
	s.Tick(context.Background(), now)

	require.Empty(t, tr.uploaded)
}

func TestTick_UnknownStateTriggersReread(t *testing.T) {
	tr := &fakeTransport{content: "PVP=1\n"}
	s, err := New(baseConfig(), tr, &fakeRcon{}, nil, nil)
	require.NoError(t, err)
	// currentPvp starts nil (never Init'd).

	s.Tick(context.Background(), time.Now())
	require.NotNil(t, s.CurrentPvp())
	require.True(t, *s.CurrentPvp())
}

func TestTick_NoOpWhenTargetMatchesCurrent(t *testing.T) {
	// current is already off, and 19:00 falls inside the window, whose
	// next transition (at window end) also computes to off — target
	// equals current, so the FSM must do nothing regardless of how far
	// away that transition is.
	tr := &fakeTransport{content: "PVP=0\n"}
	s, err := New(baseConfig(), tr, &fakeRcon{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))

	now := time.Date(2026, 7, 31, 19, 0, 0, 0, time.UTC)
	s.Tick(context.Background(), now)

	s.mu.Lock()
	transitioning := s.transitioning
	s.mu.Unlock()
	require.False(t, transitioning)
}

func TestTick_WithinRestartDelayStartsCountdown(t *testing.T) {
	tr := &fakeTransport{content: "PVP=0\n"}
	rcon := &fakeRcon{}
	s, err := New(baseConfig(), tr, rcon, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))

	// 17:55 is 5 minutes before the 18:00 start, within the 10-minute
	// restart delay: a countdown must begin (transitioning flips true).
	now := time.Date(2026, 7, 31, 17, 55, 0, 0, time.UTC)
	s.Tick(context.Background(), now)

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.transitioning
	}, time.Second, time.Millisecond)
}

func TestToggle_RewritesPvpLineAndRestarts(t *testing.T) {
	tr := &fakeTransport{content: "PVP=0\nServerName=\"Box\"\n"}
	rcon := &fakeRcon{}
	s, err := New(baseConfig(), tr, rcon, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))

	require.NoError(t, s.toggle(context.Background(), true))

	require.Contains(t, tr.content, "PVP=1")
	require.True(t, rcon.restartCalled)
	require.False(t, rcon.quickCalled)
	require.NotNil(t, s.CurrentPvp())
	require.True(t, *s.CurrentPvp())
}

func TestToggle_RewritesServerNameWhenEnabled(t *testing.T) {
	cfg := baseConfig()
	cfg.RewriteServerName = true
	tr := &fakeTransport{content: "PVP=0\nServerName=\"My Box\"\n"}
	rcon := &fakeRcon{}
	s, err := New(cfg, tr, rcon, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))

	require.NoError(t, s.toggle(context.Background(), true))
	require.Contains(t, tr.content, "My Box - PVP Enabled 18:00-22:00 UTC")

	// Toggling back off must restore the cached clean base name.
	require.NoError(t, s.toggle(context.Background(), false))
	require.Contains(t, tr.content, `ServerName="My Box"`)
}

func TestToggle_MissingPvpLineFailsWithConfigShapeInvalid(t *testing.T) {
	tr := &fakeTransport{content: "ServerName=\"Box\"\n"}
	s, err := New(baseConfig(), tr, &fakeRcon{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))

	err = s.toggle(context.Background(), true)
	require.ErrorIs(t, err, ErrConfigShapeInvalid)
}

func TestToggle_FallsBackToQuickRestartOnRestartNowFailure(t *testing.T) {
	tr := &fakeTransport{content: "PVP=0\n"}
	rcon := &fakeRcon{failRestart: true}
	s, err := New(baseConfig(), tr, rcon, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))

	require.NoError(t, s.toggle(context.Background(), true))
	require.True(t, rcon.restartCalled)
	require.True(t, rcon.quickCalled)
}

func TestToggle_BothRestartCommandsFailLeavesCurrentPvpUnchanged(t *testing.T) {
	tr := &fakeTransport{content: "PVP=0\n"}
	rcon := &fakeRcon{failRestart: true, failQuick: true}
	s, err := New(baseConfig(), tr, rcon, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))

	err = s.toggle(context.Background(), true)
	require.Error(t, err)
	require.NotNil(t, s.CurrentPvp())
	require.False(t, *s.CurrentPvp(), "unchanged on double restart failure so the next tick retries")
}
