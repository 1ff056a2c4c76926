package saveservice

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TriggerStrategy selects how agent mode causes the remote parser to run
// (spec §4.5 "Trigger strategy for agent mode").
type TriggerStrategy string

const (
	TriggerPanel TriggerStrategy = "panel"
	TriggerSSH   TriggerStrategy = "ssh"
	TriggerNone  TriggerStrategy = "none"
	TriggerAuto  TriggerStrategy = "auto"
)

// pollAgent implements spec §4.5 "Agent poll". A nil error means the poll
// either found nothing new or synced successfully; ErrAgentUnavailable
// means the cache could not be produced this cycle, the signal ModeAuto
// uses to fall through to direct mode.
func (s *Service) pollAgent(ctx context.Context, forced bool) error {
	start := time.Now()
	cachePath := s.resolveCachePath()

	if cache, ok := s.tryReadCache(ctx, cachePath, forced); ok {
		if cache == nil {
			return nil // unchanged since last poll
		}
		return s.syncFromCache(ctx, cache, start)
	}

	if err := s.runTrigger(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}

	data, err := s.transport.Download(ctx, cachePath)
	if err != nil {
		return fmt.Errorf("%w: downloading cache after trigger: %v", ErrAgentUnavailable, err)
	}
	cache, err := decodeAgentCache(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAgentUnavailable, err)
	}
	if mtime, statErr := s.transport.Stat(ctx, cachePath); statErr == nil {
		s.mu.Lock()
		s.lastCacheMTime = mtime
		s.mu.Unlock()
	}
	return s.syncFromCache(ctx, cache, start)
}

// tryReadCache reports ok=true when the existing cache file was usable
// as-is: (nil, true) means unchanged (nothing to do); (cache, true) means
// a fresh decoded cache; (nil, false) means the trigger must run.
func (s *Service) tryReadCache(ctx context.Context, cachePath string, forced bool) (*agentCache, bool) {
	mtime, err := s.transport.Stat(ctx, cachePath)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	unchanged := !forced && !mtime.After(s.lastCacheMTime)
	s.mu.Unlock()
	if unchanged {
		return nil, true
	}

	data, err := s.transport.Download(ctx, cachePath)
	if err != nil {
		return nil, false
	}
	cache, err := decodeAgentCache(data)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	s.lastCacheMTime = mtime
	s.mu.Unlock()
	return cache, true
}

// runTrigger causes the remote agent to refresh the cache file (spec §4.5
// step 3).
func (s *Service) runTrigger(ctx context.Context) error {
	strategy := s.cfg.Trigger
	if strategy == TriggerAuto {
		strategy = s.resolveTriggerAuto(ctx)
	}
	s.setResolvedTrigger(strategy)

	switch strategy {
	case TriggerPanel:
		return s.triggerPanel(ctx)
	case TriggerSSH:
		return s.triggerSSH(ctx)
	case TriggerNone:
		return fmt.Errorf("saveservice: no trigger configured, cache unavailable this poll")
	default:
		return fmt.Errorf("saveservice: unknown trigger strategy %q", strategy)
	}
}

func (s *Service) triggerPanel(ctx context.Context) error {
	if s.panel == nil {
		return fmt.Errorf("saveservice: panel trigger configured but no panel client set")
	}
	if err := s.panel.SendCommand(ctx, s.cfg.ConsoleCommand); err != nil {
		return err
	}
	select {
	case <-time.After(s.cfg.PanelPostDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) triggerSSH(ctx context.Context) error {
	if s.transport == nil {
		return fmt.Errorf("saveservice: ssh trigger configured but no transport set")
	}
	if !s.agentIsDeployed() {
		script, err := s.scripts.Build()
		if err != nil {
			return fmt.Errorf("building agent script: %w", err)
		}
		if err := s.transport.Upload(ctx, s.cfg.AgentScriptPath, script); err != nil {
			return fmt.Errorf("uploading agent script: %w", err)
		}
		s.setAgentDeployed(true)
	}

	cmd := fmt.Sprintf("node %s --save %s --output %s",
		shellQuoteArg(s.cfg.AgentScriptPath), shellQuoteArg(s.cfg.SavePath), shellQuoteArg(s.resolveCachePath()))
	out, code, err := s.transport.Exec(ctx, cmd, 120*time.Second)
	if err != nil {
		return fmt.Errorf("executing agent script: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("%w: exit %d: %s", ErrAgentExited, code, out)
	}
	return nil
}

// resolveTriggerAuto probes panel then ssh availability, degrading to none
// (spec §4.5 "auto probes panel availability first... on failure probes
// ssh... on failure degrades to none").
func (s *Service) resolveTriggerAuto(ctx context.Context) TriggerStrategy {
	panelCapable := s.panel != nil && s.panel.Available(ctx)
	s.mu.Lock()
	s.stats.PanelCapable = panelCapable
	s.mu.Unlock()
	if panelCapable {
		return TriggerPanel
	}

	agentCapable := s.transport != nil && s.transport.Probe(ctx)
	s.mu.Lock()
	s.stats.AgentCapable = agentCapable
	s.mu.Unlock()
	if agentCapable {
		return TriggerSSH
	}
	return TriggerNone
}

// shellQuoteArg wraps an argument in single quotes for the remote node
// invocation, escaping any embedded single quote.
func shellQuoteArg(arg string) string {
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
