package pvp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrConfigShapeInvalid is returned when the remote config file has no
// `PVP=` line to rewrite (spec §7 "ConfigFileShapeInvalid").
var ErrConfigShapeInvalid = errors.New("pvp: PVP= line missing from config file")

// Transport abstracts the remote config file's read/write path so the
// scheduler can be exercised without a live file-transfer session.
type Transport interface {
	Download(ctx context.Context, path string) ([]byte, error)
	Upload(ctx context.Context, path string, data []byte) error
}

// RconCommander is the slice of RconClient the scheduler needs: an
// in-game broadcast plus the two restart commands (spec §4.7 "Toggle").
type RconCommander interface {
	Broadcast(ctx context.Context, message string) error
	RestartNow(ctx context.Context) error
	QuickRestart(ctx context.Context) error
}

var (
	pvpLineRe    = regexp.MustCompile(`(?m)^PVP\s*=\s*(\d)`)
	pvpRewriteRe = regexp.MustCompile(`(?m)^(PVP\s*=\s*)\d`)
	serverNameRe = regexp.MustCompile(`(?m)^(ServerName\s*=\s*"?)([^"\r\n]*?)("?\s*)$`)
	pvpSuffixRe  = regexp.MustCompile(`\s*-\s*PVP Enabled \d{2}:\d{2}-\d{2}:\d{2}\s*\S*$`)
)

// Scheduler is the PvP window FSM described in spec §4.7. Grounded on no
// direct teacher analog (this logic is novel to the source spec); the
// mutex-guarded state struct and RconCommander/Transport seams follow the
// same small-interface-over-concrete-client shape the teacher uses for
// gslistener.GSConnection.
type Scheduler struct {
	cfg       Config
	transport Transport
	rcon      RconCommander
	logger    *zap.SugaredLogger
	announce  func(string)

	mu             sync.Mutex
	currentPvp     *bool
	transitioning  bool
	cachedBaseName string
}

// New builds a Scheduler. announce may be nil (it then does nothing).
func New(cfg Config, transport Transport, rcon RconCommander, logger *zap.SugaredLogger, announce func(string)) (*Scheduler, error) {
	if cfg.Default.Start == cfg.Default.End {
		return nil, fmt.Errorf("pvp: start and end minutes must differ")
	}
	if announce == nil {
		announce = func(string) {}
	}
	return &Scheduler{cfg: cfg, transport: transport, rcon: rcon, logger: logger, announce: announce}, nil
}

// Run seeds the scheduler's state and ticks it every minute via
// robfig/cron (matching the pack's scheduled-job idiom) until ctx is
// canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	c := cron.New()
	if _, err := c.AddFunc("@every 1m", func() { s.Tick(ctx, time.Now()) }); err != nil {
		return fmt.Errorf("scheduling pvp ticker: %w", err)
	}
	c.Start()
	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

// Init reads the remote config file and seeds currentPvp (spec §4.7
// "Initialization"): a download failure leaves currentPvp unknown rather
// than failing the call.
func (s *Scheduler) Init(ctx context.Context) error {
	data, err := s.transport.Download(ctx, s.cfg.ConfigPath)
	if err != nil {
		s.setCurrentPvp(nil)
		if s.logger != nil {
			s.logger.Warnw("pvp: config read failed, state unknown", "err", err)
		}
		return nil
	}
	m := pvpLineRe.FindStringSubmatch(string(data))
	v := false
	if m != nil {
		v = m[1] == "1"
	}
	s.setCurrentPvp(&v)
	return nil
}

func (s *Scheduler) setCurrentPvp(v *bool) {
	s.mu.Lock()
	s.currentPvp = v
	s.mu.Unlock()
}

// CurrentPvp returns the last observed flag value, nil if unknown.
func (s *Scheduler) CurrentPvp() *bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPvp
}

// Tick runs one evaluation of the FSM (spec §4.7 "Tick (every minute)").
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if s.transitioning {
		s.mu.Unlock()
		return
	}
	current := s.currentPvp
	s.mu.Unlock()

	if current == nil {
		if err := s.Init(ctx); err != nil && s.logger != nil {
			s.logger.Warnw("pvp: re-read failed", "err", err)
		}
		return
	}

	if s.cfg.Location != nil {
		now = now.In(s.cfg.Location)
	}
	target, minutes := s.cfg.minutesUntilTransition(now)
	if target == *current {
		return
	}
	if minutes <= s.cfg.RestartDelay {
		s.mu.Lock()
		s.transitioning = true
		s.mu.Unlock()
		go s.runCountdown(ctx, target, minutes)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// runCountdown issues the staged warnings then performs the toggle (spec
// §4.7 "Countdown").
func (s *Scheduler) runCountdown(ctx context.Context, target bool, remaining int) {
	defer func() {
		s.mu.Lock()
		s.transitioning = false
		s.mu.Unlock()
	}()

	warnings := buildWarnings(remaining)
	elapsed := 0
	for _, w := range warnings {
		wait := (remaining - elapsed) - w
		if wait > 0 {
			select {
			case <-time.After(time.Duration(wait) * time.Minute):
			case <-ctx.Done():
				return
			}
		}
		msg := fmt.Sprintf("PvP turning %s in %d minute(s)", onOff(target), w)
		s.announce(msg)
		if err := s.rcon.Broadcast(ctx, msg); err != nil && s.logger != nil {
			s.logger.Warnw("pvp: countdown broadcast failed", "err", err)
		}
		elapsed = remaining - w
	}

	if err := s.toggle(ctx, target); err != nil && s.logger != nil {
		s.logger.Errorw("pvp: toggle failed", "err", err, "target", target)
	}
}

// toggle applies the config-file rewrite and restart (spec §4.7 "Toggle").
func (s *Scheduler) toggle(ctx context.Context, target bool) error {
	data, err := s.transport.Download(ctx, s.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("downloading config for toggle: %w", err)
	}
	content := string(data)
	if !pvpRewriteRe.MatchString(content) {
		return ErrConfigShapeInvalid
	}
	digit := "0"
	if target {
		digit = "1"
	}
	newContent := pvpRewriteRe.ReplaceAllString(content, "${1}"+digit)

	if s.cfg.RewriteServerName {
		newContent = s.rewriteServerName(newContent, target)
	}

	if newContent != content {
		if err := s.transport.Upload(ctx, s.cfg.ConfigPath, []byte(newContent)); err != nil {
			return fmt.Errorf("uploading rewritten config: %w", err)
		}
	}

	msg := fmt.Sprintf("PvP is now %s", onOff(target))
	s.announce(msg)
	if err := s.rcon.Broadcast(ctx, msg); err != nil && s.logger != nil {
		s.logger.Warnw("pvp: toggle broadcast failed", "err", err)
	}

	if err := s.rcon.RestartNow(ctx); err != nil {
		if err2 := s.rcon.QuickRestart(ctx); err2 != nil {
			return fmt.Errorf("both restart commands failed: RestartNow=%v QuickRestart=%w", err, err2)
		}
	}

	s.setCurrentPvp(&target)
	return nil
}

// rewriteServerName applies spec §4.7 "Toggle" step 3: cache the clean
// base name on first observation, then rewrite to base (+ PvP suffix when
// target is on).
func (s *Scheduler) rewriteServerName(content string, target bool) string {
	loc := serverNameRe.FindStringSubmatchIndex(content)
	if loc == nil {
		return content
	}
	prefix := content[loc[2]:loc[3]]
	current := content[loc[4]:loc[5]]
	suffix := content[loc[6]:loc[7]]

	s.mu.Lock()
	if s.cachedBaseName == "" {
		s.cachedBaseName = pvpSuffixRe.ReplaceAllString(current, "")
	}
	base := s.cachedBaseName
	s.mu.Unlock()

	newName := base
	if target {
		tz := "UTC"
		if s.cfg.Location != nil {
			tz = s.cfg.Location.String()
		}
		newName = fmt.Sprintf("%s - PVP Enabled %02d:%02d-%02d:%02d %s",
			base,
			s.cfg.Default.Start/60, s.cfg.Default.Start%60,
			s.cfg.Default.End/60, s.cfg.Default.End%60,
			tz)
	}
	// Spliced directly rather than via ReplaceAllString, since newName is
	// arbitrary text that must not be reinterpreted as replacement syntax.
	return content[:loc[0]] + prefix + newName + suffix + content[loc[1]:]
}
