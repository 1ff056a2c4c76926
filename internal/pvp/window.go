// Package pvp implements the time-windowed PvP toggle scheduler (spec §4.7):
// a finite state machine that flips a boolean in a remote config file on a
// recurring daily window, then restarts the server to apply it.
package pvp

import "time"

// Window is a [Start, End) range in minutes-from-midnight. Start > End
// means the window wraps past midnight.
type Window struct {
	Start int
	End   int
}

// Config is the scheduler's static configuration (spec §4.7 "Inputs").
type Config struct {
	Default           Window
	PerDay            map[time.Weekday]Window
	Days              map[time.Weekday]bool // empty/nil means every day
	RestartDelay      int                   // minutes of warning before toggling
	RewriteServerName bool
	ConfigPath        string
	Location          *time.Location
}

func (c Config) windowFor(day time.Weekday) Window {
	if w, ok := c.PerDay[day]; ok {
		return w
	}
	return c.Default
}

func (c Config) allowsDay(day time.Weekday) bool {
	if len(c.Days) == 0 {
		return true
	}
	return c.Days[day]
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func isInsideWindow(w Window, minuteOfDay int) bool {
	if w.Start == w.End {
		return false
	}
	if w.Start < w.End {
		return minuteOfDay >= w.Start && minuteOfDay < w.End
	}
	// Overnight window: active from Start through midnight, then until End.
	return minuteOfDay >= w.Start || minuteOfDay < w.End
}

// insideWindow reports whether now falls inside today's window, also
// honoring yesterday's overnight window bleeding past midnight (spec
// §4.7 "Minutes-until computation").
func (c Config) insideWindow(now time.Time) bool {
	day := now.Weekday()
	minute := minutesOfDay(now)
	if isInsideWindow(c.windowFor(day), minute) {
		return true
	}
	prevDay := (day + 6) % 7
	prevW := c.windowFor(prevDay)
	if prevW.Start > prevW.End && minute < prevW.End {
		return true
	}
	return false
}

// minutesUntilTransition computes the next target boolean and how many
// minutes remain until it should take effect (spec §4.7).
func (c Config) minutesUntilTransition(now time.Time) (target bool, minutes int) {
	day := now.Weekday()
	minute := minutesOfDay(now)
	w := c.windowFor(day)

	if c.insideWindow(now) {
		if w.End > minute {
			return false, w.End - minute
		}
		return false, (1440 - minute) + w.End
	}

	if len(c.Days) == 0 {
		if w.Start > minute {
			return true, w.Start - minute
		}
		return true, (1440 - minute) + w.Start
	}

	for d := 0; d <= 7; d++ {
		candidate := time.Weekday((int(day) + d) % 7)
		if !c.allowsDay(candidate) {
			continue
		}
		cw := c.windowFor(candidate)
		if d == 0 {
			if minute < cw.Start {
				return true, cw.Start - minute
			}
			continue
		}
		return true, (1440-minute)+(d-1)*1440 + cw.Start
	}
	// No day in the next week allows PvP; nothing to schedule.
	return true, 7 * 1440
}

// buildWarnings derives the descending warning schedule from the fixed
// set [10, 5, 3, 2, 1] minutes (spec §4.7 "Countdown").
func buildWarnings(remaining int) []int {
	base := []int{10, 5, 3, 2, 1}
	var out []int
	for _, w := range base {
		if w <= remaining {
			out = append(out, w)
		}
	}
	if len(out) == 0 || out[0] < remaining {
		out = append([]int{remaining}, out...)
	}
	return out
}
