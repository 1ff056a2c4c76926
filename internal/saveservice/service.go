// Package saveservice implements the polled ingestion pipeline described in
// spec §4.5: fetch or trigger a save parse, then hand the result to the
// store inside one atomic sync.
package saveservice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/savecore/humanitz-core/internal/gvas"
	"github.com/savecore/humanitz-core/internal/model"
)

// Mode selects how the service obtains a fresh parse.
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeAgent  Mode = "agent"
	ModeAuto   Mode = "auto"
)

// Sentinel errors named after spec §7's error taxonomy.
var (
	ErrAgentUnavailable      = errors.New("saveservice: agent cache unavailable")
	ErrAgentExited           = errors.New("saveservice: remote agent exited non-zero")
	ErrStoreTransactionFailed = errors.New("saveservice: store transaction failed")
)

// Store is the subset of *store.Store the service needs, kept as an
// interface so tests can substitute a fake.
type Store interface {
	SyncFromSave(ctx context.Context, players []*model.PlayerRecord, worldState map[string]string, structures []model.Structure, vehicles []model.Vehicle, companions []model.Companion) error
	ReplaceDeadBodies(ctx context.Context, bodies []model.DeadBody) error
	ReplaceContainers(ctx context.Context, containers []model.Container) error
	ReplaceLootActors(ctx context.Context, actors []model.LootActor) error
	ReplaceQuests(ctx context.Context, quests []model.Quest) error
	UpsertClan(ctx context.Context, clan model.Clan, members []model.ClanMember) error
}

// Transport is the remote file-transfer/exec surface (internal/transport.Client
// satisfies this structurally).
type Transport interface {
	Stat(ctx context.Context, path string) (time.Time, error)
	Download(ctx context.Context, path string) ([]byte, error)
	Upload(ctx context.Context, path string, data []byte) error
	Exec(ctx context.Context, command string, timeout time.Duration) (stdout string, exitCode int, err error)
	Probe(ctx context.Context) bool
}

// Panel is the control-plane command surface (internal/transport.PanelClient
// satisfies this structurally).
type Panel interface {
	SendCommand(ctx context.Context, command string) error
	Available(ctx context.Context) bool
}

// ScriptBuilder produces the remote agent script's bytes on demand
// (internal/agent.Builder satisfies this structurally).
type ScriptBuilder interface {
	Build() ([]byte, error)
}

// Config is the service's static configuration (spec §4.5, §6).
type Config struct {
	Mode            Mode
	Trigger         TriggerStrategy
	SavePath        string
	ClanPath        string // optional
	CachePath       string // optional override of the derived default
	AgentScriptPath string // remote deploy path used by the ssh trigger
	ConsoleCommand  string // command sent by the panel trigger
	PollInterval    time.Duration
	PanelPostDelay  time.Duration
	NameOverrides   map[string]string // accountId -> displayName
}

// SyncEvent is emitted after every successful sync (spec §4.5 step 7).
type SyncEvent struct {
	PlayerCount    int
	StructureCount int
	VehicleCount   int
	CompanionCount int
	ClanCount      int
	WorldState     map[string]string
	Elapsed        time.Duration
	AccountIDs     []string
	Mode           Mode
}

// Stats is the observability view named in spec §4.5.
type Stats struct {
	SyncCount       int64
	LastError       string
	LastSaveMTime   time.Time
	Syncing         bool
	Mode            Mode
	AgentDeployed   bool
	AgentCapable    bool
	PanelCapable    bool
	ResolvedTrigger TriggerStrategy
}

// Service runs the poll loop. Grounded on the teacher's cmd/gameserver
// main.go errgroup-supervised-loop style, generalized from "supervise N
// long-running servers" to "supervise one ticking poll"; reentrancy is a
// golang.org/x/sync/singleflight group rather than a hand-rolled
// mutex-and-bool, since the teacher's module already depends on
// golang.org/x/sync for its errgroup subpackage.
type Service struct {
	cfg       Config
	store     Store
	transport Transport
	panel     Panel
	scripts   ScriptBuilder
	logger    *zap.SugaredLogger

	sf      singleflight.Group
	forceCh chan struct{}

	onSync  func(SyncEvent)
	onError func(error)

	mu              sync.Mutex
	lastSaveMTime   time.Time
	lastClanMTime   time.Time
	lastCacheMTime  time.Time
	effectiveMode   Mode
	agentDeployed   bool
	resolvedTrigger TriggerStrategy
	stats           Stats
}

// New builds a Service. transport/panel/scripts may be nil when the
// configured Mode/Trigger never needs them; a nil dependency used at
// runtime surfaces as a plain error from that poll rather than a panic.
func New(cfg Config, store Store, transport Transport, panel Panel, scripts ScriptBuilder, logger *zap.SugaredLogger) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.PanelPostDelay <= 0 {
		cfg.PanelPostDelay = 5 * time.Second
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		transport: transport,
		panel:     panel,
		scripts:   scripts,
		logger:    logger,
		forceCh:   make(chan struct{}, 1),
	}
}

// OnSync registers a callback invoked after each successful sync.
func (s *Service) OnSync(fn func(SyncEvent)) { s.onSync = fn }

// OnError registers a callback invoked whenever a poll fails.
func (s *Service) OnError(fn func(error)) { s.onError = fn }

// ForceSync schedules an immediate poll on the next tick boundary (spec
// §4.5 "Poll loop"). Non-blocking: a forced sync already pending is not
// queued twice.
func (s *Service) ForceSync() {
	select {
	case s.forceCh <- struct{}{}:
	default:
	}
}

// Run drives the poll loop until ctx is canceled: fires immediately, then
// on cfg.PollInterval, honoring ForceSync requests in between (spec §4.5
// "fires immediately on start, then on a configured interval").
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.poll(ctx, true)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.poll(ctx, false)
		case <-s.forceCh:
			s.poll(ctx, true)
		}
	}
}

// poll runs one reentrancy-guarded cycle. A poll already in flight absorbs
// a concurrent caller (ForceSync racing a tick) rather than running twice,
// matching spec §5 "a forced sync still waits its turn behind any
// in-flight poll".
func (s *Service) poll(ctx context.Context, forced bool) {
	s.setSyncing(true)
	_, _, _ = s.sf.Do("poll", func() (any, error) {
		err := s.runOnce(ctx, forced)
		if err != nil {
			s.recordError(err)
			if s.onError != nil {
				s.onError(err)
			}
			if s.logger != nil {
				s.logger.Errorw("saveservice: poll failed", "err", err)
			}
		}
		return nil, nil
	})
	s.setSyncing(false)
}

func (s *Service) runOnce(ctx context.Context, forced bool) error {
	mode := s.cfg.Mode
	if mode == ModeAuto {
		s.mu.Lock()
		if s.effectiveMode != "" {
			mode = s.effectiveMode
		} else {
			mode = ModeAgent
		}
		s.mu.Unlock()
	}

	switch mode {
	case ModeAgent:
		err := s.pollAgent(ctx, forced)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrAgentUnavailable) || s.cfg.Mode != ModeAuto {
			return err
		}
		// auto: fall through to direct and remember the fallback (spec
		// §4.5 "remember the fallback for subsequent polls").
		if directErr := s.pollDirect(ctx, true); directErr != nil {
			return directErr
		}
		s.mu.Lock()
		s.effectiveMode = ModeDirect
		s.mu.Unlock()
		return nil
	case ModeDirect:
		return s.pollDirect(ctx, forced)
	default:
		return fmt.Errorf("saveservice: unknown mode %q", s.cfg.Mode)
	}
}

func (s *Service) pollDirect(ctx context.Context, forced bool) error {
	start := time.Now()

	mtime, err := s.transport.Stat(ctx, s.cfg.SavePath)
	if err != nil {
		return fmt.Errorf("stat save: %w", err)
	}
	s.mu.Lock()
	unchanged := !forced && !mtime.After(s.lastSaveMTime)
	s.mu.Unlock()
	if unchanged {
		return nil
	}

	data, err := s.transport.Download(ctx, s.cfg.SavePath)
	if err != nil {
		return fmt.Errorf("downloading save: %w", err)
	}
	s.mu.Lock()
	s.lastSaveMTime = mtime
	s.mu.Unlock()

	clanEntries := s.maybeParseClanFile(ctx, forced)

	result, err := gvas.ParseSave(data, gvas.ReaderOptions{})
	if err != nil {
		return fmt.Errorf("parsing save: %w", err)
	}

	players := playersToSlice(result.Players, s.cfg.NameOverrides)
	worldState := stringifyWorldState(result.WorldState)

	if err := s.store.SyncFromSave(ctx, players, worldState, result.Structures, result.Vehicles, result.Companions); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransactionFailed, err)
	}
	if err := s.store.ReplaceDeadBodies(ctx, result.DeadBodies); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransactionFailed, err)
	}
	if err := s.store.ReplaceContainers(ctx, result.Containers); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransactionFailed, err)
	}
	if err := s.store.ReplaceLootActors(ctx, result.LootActors); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransactionFailed, err)
	}
	if err := s.store.ReplaceQuests(ctx, result.Quests); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreTransactionFailed, err)
	}

	clanCount := 0
	for _, entry := range clanEntries {
		if err := s.store.UpsertClan(ctx, entry.Clan, entry.Members); err != nil {
			return fmt.Errorf("%w: syncing clan %q: %v", ErrStoreTransactionFailed, entry.Clan.Name, err)
		}
		clanCount++
	}

	s.recordSync(SyncEvent{
		PlayerCount:    len(players),
		StructureCount: len(result.Structures),
		VehicleCount:   len(result.Vehicles),
		CompanionCount: len(result.Companions),
		ClanCount:      clanCount,
		WorldState:     worldState,
		Elapsed:        time.Since(start),
		AccountIDs:     accountIDs(players),
		Mode:           ModeDirect,
	})
	return nil
}

// maybeParseClanFile downloads and parses the optional clan file using the
// same change-detection as the main save (spec §4.5 step 3). Failures here
// are logged but never fail the overall poll: the clan roster is
// supplementary to the player sync.
func (s *Service) maybeParseClanFile(ctx context.Context, forced bool) []gvas.ClanEntry {
	if s.cfg.ClanPath == "" {
		return nil
	}
	cmtime, err := s.transport.Stat(ctx, s.cfg.ClanPath)
	if err != nil {
		if s.logger != nil {
			s.logger.Warnw("saveservice: stat clan file failed", "err", err)
		}
		return nil
	}
	s.mu.Lock()
	unchanged := !forced && cmtime.Equal(s.lastClanMTime)
	s.mu.Unlock()
	if unchanged {
		return nil
	}

	data, err := s.transport.Download(ctx, s.cfg.ClanPath)
	if err != nil {
		if s.logger != nil {
			s.logger.Warnw("saveservice: downloading clan file failed", "err", err)
		}
		return nil
	}
	cf, err := gvas.ParseClanFile(data, gvas.ReaderOptions{})
	if err != nil {
		if s.logger != nil {
			s.logger.Warnw("saveservice: parsing clan file failed", "err", err)
		}
		return nil
	}
	s.mu.Lock()
	s.lastClanMTime = cmtime
	s.mu.Unlock()
	return cf.Clans
}

// Stats returns a snapshot of the observability view (spec §4.5
// "Observability").
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.LastSaveMTime = s.lastSaveMTime
	st.AgentDeployed = s.agentDeployed
	st.ResolvedTrigger = s.resolvedTrigger
	if s.cfg.Mode == ModeAuto && s.effectiveMode != "" {
		st.Mode = s.effectiveMode
	} else {
		st.Mode = s.cfg.Mode
	}
	return st
}

func (s *Service) setSyncing(v bool) {
	s.mu.Lock()
	s.stats.Syncing = v
	s.mu.Unlock()
}

func (s *Service) recordError(err error) {
	s.mu.Lock()
	s.stats.LastError = err.Error()
	s.mu.Unlock()
}

func (s *Service) recordSync(ev SyncEvent) {
	s.mu.Lock()
	s.stats.SyncCount++
	s.stats.LastError = ""
	s.mu.Unlock()
	if s.onSync != nil {
		s.onSync(ev)
	}
}

func (s *Service) setAgentDeployed(v bool) {
	s.mu.Lock()
	s.agentDeployed = v
	s.mu.Unlock()
}

func (s *Service) agentIsDeployed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentDeployed
}

func (s *Service) setResolvedTrigger(t TriggerStrategy) {
	s.mu.Lock()
	s.resolvedTrigger = t
	s.mu.Unlock()
}

func (s *Service) resolveCachePath() string {
	if s.cfg.CachePath != "" {
		return s.cfg.CachePath
	}
	return dirOf(s.cfg.SavePath) + "/humanitz-cache.json"
}

// playersToSlice converts the parser's account-id-keyed map to a slice,
// applying an externally-supplied display-name override (spec §4.5 step 5)
// and sorting by account id so output order is deterministic.
func playersToSlice(players map[string]*model.PlayerRecord, overrides map[string]string) []*model.PlayerRecord {
	out := make([]*model.PlayerRecord, 0, len(players))
	for id, p := range players {
		if name, ok := overrides[id]; ok && name != "" {
			p.Name = name
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

func accountIDs(players []*model.PlayerRecord) []string {
	ids := make([]string, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.AccountID)
	}
	return ids
}

// stringifyWorldState renders the parser's untyped scalar map into the
// string-valued map the Store's world_state table expects (spec §3
// "value is always stored as a string").
func stringifyWorldState(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case string:
			out[k] = t
		case bool:
			if t {
				out[k] = "true"
			} else {
				out[k] = "false"
			}
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
