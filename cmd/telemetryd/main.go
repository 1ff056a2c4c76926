// Command telemetryd runs the save-ingestion, RCON, and PvP-scheduling
// daemon described across spec §4.4-§4.7: a single process that polls a
// hosted game server's save file into an embedded store, serves RCON
// commands, and toggles a PvP window on a timer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/savecore/humanitz-core/internal/agent"
	"github.com/savecore/humanitz-core/internal/config"
	"github.com/savecore/humanitz-core/internal/pvp"
	"github.com/savecore/humanitz-core/internal/rcon"
	"github.com/savecore/humanitz-core/internal/saveservice"
	"github.com/savecore/humanitz-core/internal/store"
	"github.com/savecore/humanitz-core/internal/transport"
)

const defaultConfigPath = "config/telemetryd.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "telemetryd: fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := defaultConfigPath
	if p := os.Getenv("TELEMETRYD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	sugar := logger.Sugar()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
	}

	sugar.Infow("telemetryd starting", "timezone", cfg.Timezone, "log_level", cfg.LogLevel)

	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close() //nolint:errcheck
	sugar.Infow("store opened", "path", cfg.Store.Path)

	dialTimeout, err := config.ParseDuration(cfg.Transport.DialTimeout, 15*time.Second)
	if err != nil {
		return fmt.Errorf("parsing transport.dial_timeout: %w", err)
	}
	tr, err := transport.New(transport.Config{
		Host:        cfg.Transport.Host,
		Port:        cfg.Transport.Port,
		User:        cfg.Transport.User,
		Password:    cfg.Transport.Password,
		KeyPath:     cfg.Transport.KeyPath,
		DialTimeout: dialTimeout,
	}, sugar)
	if err != nil {
		return fmt.Errorf("building transport client: %w", err)
	}

	// panel is left as a nil interface (not a nil *transport.PanelClient)
	// when unconfigured, so saveservice's own `s.panel == nil` checks see
	// a true nil rather than a non-nil interface wrapping a nil pointer.
	var panel saveservice.Panel
	if cfg.Agent.PanelBaseURL != "" {
		panelTimeout, perr := config.ParseDuration(cfg.Agent.PanelTimeout, 10*time.Second)
		if perr != nil {
			return fmt.Errorf("parsing agent.panel_timeout: %w", perr)
		}
		panel = transport.NewPanelClient(transport.PanelConfig{
			BaseURL: cfg.Agent.PanelBaseURL,
			APIKey:  cfg.Agent.PanelAPIKey,
			Timeout: panelTimeout,
		})
	}

	scriptBuilder, err := agent.New()
	if err != nil {
		return fmt.Errorf("building agent script assembler: %w", err)
	}

	pollInterval, err := config.ParseDuration(cfg.Save.PollInterval, 60*time.Second)
	if err != nil {
		return fmt.Errorf("parsing save.poll_interval: %w", err)
	}
	panelDelay, err := config.ParseDuration(cfg.Agent.PanelDelay, 5*time.Second)
	if err != nil {
		return fmt.Errorf("parsing agent.panel_delay: %w", err)
	}

	svc := saveservice.New(saveservice.Config{
		Mode:            saveservice.Mode(cfg.Agent.Mode),
		Trigger:         saveservice.TriggerStrategy(cfg.Agent.Trigger),
		SavePath:        cfg.Save.SavePath,
		ClanPath:        cfg.Save.ClanPath,
		CachePath:       cfg.Agent.CachePath,
		AgentScriptPath: cfg.Agent.ScriptPath,
		ConsoleCommand:  cfg.Agent.ConsoleCommand,
		PollInterval:    pollInterval,
		PanelPostDelay:  panelDelay,
	}, st, tr, panel, scriptBuilder, sugar)

	svc.OnSync(func(evt saveservice.SyncEvent) {
		sugar.Infow("save synced",
			"mode", evt.Mode,
			"players", evt.PlayerCount,
			"structures", evt.StructureCount,
			"vehicles", evt.VehicleCount,
			"companions", evt.CompanionCount,
			"clans", evt.ClanCount,
			"elapsed", evt.Elapsed,
		)
	})
	svc.OnError(func(err error) {
		sugar.Errorw("save sync failed", "err", err)
	})

	rconClient := rcon.New(cfg.Rcon.Host, cfg.Rcon.Port, cfg.Rcon.Password, sugar)
	rconClient.OnDisconnect(func(err error) {
		sugar.Warnw("rcon disconnected", "err", err)
	})
	rconClient.OnReconnect(func(downtime time.Duration) {
		sugar.Infow("rcon reconnected", "downtime", downtime)
	})

	scheduler, err := pvp.New(pvp.Config{
		Default:           pvp.Window{Start: cfg.Pvp.StartMinutes, End: cfg.Pvp.EndMinutes},
		PerDay:            perDayWindows(cfg.Pvp.PerDay),
		Days:              weekdaySet(cfg.Pvp.Days),
		RestartDelay:      cfg.Pvp.RestartDelay,
		RewriteServerName: cfg.Pvp.RewriteName,
		ConfigPath:        cfg.Pvp.ConfigPath,
		Location:          loc,
	}, tr, rconClient, sugar, func(msg string) {
		sugar.Infow("pvp announcement", "message", msg)
	})
	if err != nil {
		return fmt.Errorf("building pvp scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting rcon client", "host", cfg.Rcon.Host, "port", cfg.Rcon.Port)
		if err := rconClient.Run(gctx); err != nil {
			return fmt.Errorf("rcon client: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting save service", "mode", cfg.Agent.Mode, "interval", pollInterval)
		if err := svc.Run(gctx); err != nil {
			return fmt.Errorf("save service: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting pvp scheduler", "start", cfg.Pvp.StartMinutes, "end", cfg.Pvp.EndMinutes)
		if err := scheduler.Run(gctx); err != nil {
			return fmt.Errorf("pvp scheduler: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("component error: %w", err)
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if l, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = l
	}
	return cfg.Build()
}

func perDayWindows(in map[string]config.DayWindow) map[time.Weekday]pvp.Window {
	out := make(map[time.Weekday]pvp.Window, len(in))
	for name, w := range in {
		if day, ok := parseWeekday(name); ok {
			out[day] = pvp.Window{Start: w.Start, End: w.End}
		}
	}
	return out
}

func weekdaySet(names []string) map[time.Weekday]bool {
	if len(names) == 0 {
		return nil
	}
	out := make(map[time.Weekday]bool, len(names))
	for _, name := range names {
		if day, ok := parseWeekday(name); ok {
			out[day] = true
		}
	}
	return out
}

func parseWeekday(name string) (time.Weekday, bool) {
	switch name {
	case "sunday", "Sunday":
		return time.Sunday, true
	case "monday", "Monday":
		return time.Monday, true
	case "tuesday", "Tuesday":
		return time.Tuesday, true
	case "wednesday", "Wednesday":
		return time.Wednesday, true
	case "thursday", "Thursday":
		return time.Thursday, true
	case "friday", "Friday":
		return time.Friday, true
	case "saturday", "Saturday":
		return time.Saturday, true
	default:
		return 0, false
	}
}
