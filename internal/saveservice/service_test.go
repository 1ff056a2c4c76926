package saveservice

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/savecore/humanitz-core/internal/model"
)

// --- minimal valid-GVAS byte builders (package-local; gvas's own test
// helpers are unexported in that package) ---

func appendI32(buf []byte, v int32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	return append(buf, tmp[:]...)
}

func appendFStringUTF8(buf []byte, s string) []byte {
	buf = appendI32(buf, int32(len(s)+1))
	buf = append(buf, s...)
	return append(buf, 0)
}

func emptyGvasSave() []byte {
	var buf []byte
	buf = append(buf, 'G', 'V', 'A', 'S')
	buf = appendI32(buf, 2)
	buf = appendI32(buf, 0)
	buf = append(buf, 5, 0, 3, 0, 0, 0)
	buf = appendI32(buf, 0)
	buf = appendFStringUTF8(buf, "++UE5")
	buf = appendI32(buf, 0)
	buf = appendI32(buf, 0)
	buf = appendFStringUTF8(buf, "/Game/Blueprints/BP_SaveGame.BP_SaveGame_C")
	buf = appendFStringUTF8(buf, "None")
	return buf
}

// --- fakes ---

type fakeStore struct {
	mu          sync.Mutex
	syncCount   int
	deadCount   int
	clanCount   int
	lastPlayers []*model.PlayerRecord
	failSync    bool
}

func (f *fakeStore) SyncFromSave(ctx context.Context, players []*model.PlayerRecord, worldState map[string]string, structures []model.Structure, vehicles []model.Vehicle, companions []model.Companion) error {
	if f.failSync {
		return errors.New("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCount++
	f.lastPlayers = players
	return nil
}
func (f *fakeStore) ReplaceDeadBodies(ctx context.Context, bodies []model.DeadBody) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadCount++
	return nil
}
func (f *fakeStore) ReplaceContainers(ctx context.Context, containers []model.Container) error {
	return nil
}
func (f *fakeStore) ReplaceLootActors(ctx context.Context, actors []model.LootActor) error { return nil }
func (f *fakeStore) ReplaceQuests(ctx context.Context, quests []model.Quest) error         { return nil }
func (f *fakeStore) UpsertClan(ctx context.Context, clan model.Clan, members []model.ClanMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clanCount++
	return nil
}

type fakeFile struct {
	data  []byte
	mtime time.Time
}

type fakeTransport struct {
	mu       sync.Mutex
	files    map[string]fakeFile
	probeOK  bool
	execFn   func(cmd string) (string, int, error)
	uploaded map[string][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{files: map[string]fakeFile{}, uploaded: map[string][]byte{}}
}

func (f *fakeTransport) Stat(ctx context.Context, path string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[path]
	if !ok {
		return time.Time{}, errors.New("not found")
	}
	return ff.mtime, nil
}
func (f *fakeTransport) Download(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ff, ok := f.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return ff.data, nil
}
func (f *fakeTransport) Upload(ctx context.Context, path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded[path] = data
	f.files[path] = fakeFile{data: data, mtime: f.files[path].mtime.Add(time.Second)}
	return nil
}
func (f *fakeTransport) Exec(ctx context.Context, command string, timeout time.Duration) (string, int, error) {
	if f.execFn != nil {
		return f.execFn(command)
	}
	return "", 0, nil
}
func (f *fakeTransport) Probe(ctx context.Context) bool { return f.probeOK }

func (f *fakeTransport) set(path string, data []byte, mtime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = fakeFile{data: data, mtime: mtime}
}

type fakePanel struct {
	available bool
	sent      []string
	failSend  bool
}

func (p *fakePanel) Available(ctx context.Context) bool { return p.available }
func (p *fakePanel) SendCommand(ctx context.Context, command string) error {
	if p.failSend {
		return errors.New("panel rejected")
	}
	p.sent = append(p.sent, command)
	return nil
}

type fakeScripts struct{ built int }

func (f *fakeScripts) Build() ([]byte, error) {
	f.built++
	return []byte("// agent script"), nil
}

// --- tests ---

func TestPollDirect_SkipsWhenMtimeUnchanged(t *testing.T) {
	tr := newFakeTransport()
	mtime := time.Now().Truncate(time.Second)
	tr.set("/saves/world.sav", emptyGvasSave(), mtime)
	st := &fakeStore{}

	svc := New(Config{Mode: ModeDirect, SavePath: "/saves/world.sav", PollInterval: time.Hour}, st, tr, nil, nil, nil)

	require.NoError(t, svc.pollDirect(context.Background(), true))
	require.Equal(t, 1, st.syncCount)

	require.NoError(t, svc.pollDirect(context.Background(), false))
	require.Equal(t, 1, st.syncCount, "unchanged mtime must not re-sync")
}

func TestPollDirect_ForcedBypassesUnchangedCheck(t *testing.T) {
	tr := newFakeTransport()
	mtime := time.Now().Truncate(time.Second)
	tr.set("/saves/world.sav", emptyGvasSave(), mtime)
	st := &fakeStore{}

	svc := New(Config{Mode: ModeDirect, SavePath: "/saves/world.sav"}, st, tr, nil, nil, nil)
	require.NoError(t, svc.pollDirect(context.Background(), true))
	require.NoError(t, svc.pollDirect(context.Background(), true))
	require.Equal(t, 2, st.syncCount)
}

func TestPollDirect_NoClanPathConfigured_SkipsClanSync(t *testing.T) {
	tr := newFakeTransport()
	tr.set("/saves/world.sav", emptyGvasSave(), time.Now())
	st := &fakeStore{}

	svc := New(Config{
		Mode:          ModeDirect,
		SavePath:      "/saves/world.sav",
		NameOverrides: map[string]string{"76561198000000010": "Renamed"},
	}, st, tr, nil, nil, nil)

	require.NoError(t, svc.pollDirect(context.Background(), true))
	require.Equal(t, 0, st.clanCount)
}

func TestPollAgent_CacheHitSkipsTrigger(t *testing.T) {
	tr := newFakeTransport()
	cache := `{"v":1,"ts":"2026-01-01T00:00:00Z","mtime":1,"players":{},"worldState":{},"structures":[],"vehicles":[],"companions":[],"deadBodies":[],"containers":[],"lootActors":[],"quests":[]}`
	tr.set("/saves/humanitz-cache.json", []byte(cache), time.Now())
	st := &fakeStore{}
	scripts := &fakeScripts{}

	svc := New(Config{Mode: ModeAgent, Trigger: TriggerSSH, SavePath: "/saves/world.sav"}, st, tr, nil, scripts, nil)
	require.NoError(t, svc.pollAgent(context.Background(), true))
	require.Equal(t, 1, st.syncCount)
	require.Equal(t, 0, scripts.built, "fresh cache must not trigger the agent")
}

func TestPollAgent_StaleCacheRunsSSHTriggerOnce(t *testing.T) {
	tr := newFakeTransport()
	cache := `{"v":1,"ts":"t","mtime":1,"players":{},"worldState":{}}`
	triggerCount := 0
	tr.execFn = func(cmd string) (string, int, error) {
		triggerCount++
		tr.set("/saves/humanitz-cache.json", []byte(cache), time.Now().Add(time.Duration(triggerCount)*time.Second))
		return "", 0, nil
	}
	st := &fakeStore{}
	scripts := &fakeScripts{}

	svc := New(Config{Mode: ModeAgent, Trigger: TriggerSSH, SavePath: "/saves/world.sav", AgentScriptPath: "/tmp/agent.js"}, st, tr, nil, scripts, nil)

	require.NoError(t, svc.pollAgent(context.Background(), true))
	require.Equal(t, 1, scripts.built)
	require.Equal(t, 1, triggerCount)
	require.Equal(t, 1, st.syncCount)

	// Second poll: the cache file now exists, so the forced poll reads it
	// directly without running the trigger, and the script is not
	// re-uploaded.
	require.NoError(t, svc.pollAgent(context.Background(), true))
	require.Equal(t, 1, triggerCount)
	require.Equal(t, 1, scripts.built, "agent script uploads only once per deployment")
}

func TestAutoMode_FallsBackToDirectAndRemembers(t *testing.T) {
	tr := newFakeTransport()
	// No cache file present at all -> agent poll fails; ssh probe also
	// fails (Probe returns false), so runTrigger returns TriggerNone's
	// "unavailable" error -> ErrAgentUnavailable -> auto fallback.
	tr.set("/saves/world.sav", emptyGvasSave(), time.Now())
	st := &fakeStore{}

	svc := New(Config{Mode: ModeAuto, Trigger: TriggerAuto, SavePath: "/saves/world.sav"}, st, tr, nil, nil, nil)

	require.NoError(t, svc.runOnce(context.Background(), true))
	require.Equal(t, 1, st.syncCount)
	require.Equal(t, ModeDirect, svc.Stats().Mode)

	// Subsequent polls go straight to direct without re-probing agent.
	require.NoError(t, svc.runOnce(context.Background(), true))
	require.Equal(t, 2, st.syncCount)
}

func TestStats_ReflectsSyncCountAndLastError(t *testing.T) {
	tr := newFakeTransport()
	st := &fakeStore{failSync: true}
	tr.set("/saves/world.sav", emptyGvasSave(), time.Now())

	svc := New(Config{Mode: ModeDirect, SavePath: "/saves/world.sav"}, st, tr, nil, nil, nil)
	svc.poll(context.Background(), true)

	stats := svc.Stats()
	require.Equal(t, int64(0), stats.SyncCount)
	require.NotEmpty(t, stats.LastError)
}

func TestForceSync_IsNonBlockingAndCoalesces(t *testing.T) {
	svc := New(Config{Mode: ModeDirect, SavePath: "/x"}, &fakeStore{}, newFakeTransport(), nil, nil, nil)
	svc.ForceSync()
	svc.ForceSync() // must not block even though the channel has capacity 1
	require.Len(t, svc.forceCh, 1)
}
