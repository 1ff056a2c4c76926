package pvp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsInsideWindow_Simple(t *testing.T) {
	w := Window{Start: 600, End: 900} // 10:00-15:00
	require.True(t, isInsideWindow(w, 700))
	require.False(t, isInsideWindow(w, 900))
	require.False(t, isInsideWindow(w, 59))
}

func TestIsInsideWindow_Overnight(t *testing.T) {
	w := Window{Start: 1320, End: 120} // 22:00-02:00
	require.True(t, isInsideWindow(w, 1350))
	require.True(t, isInsideWindow(w, 30))
	require.False(t, isInsideWindow(w, 600))
}

func TestMinutesUntilTransition_InsideWindowComputesOff(t *testing.T) {
	cfg := Config{Default: Window{Start: 1080, End: 1320}, RestartDelay: 10} // 18:00-22:00
	now := time.Date(2026, 1, 5, 21, 55, 0, 0, time.UTC)                    // Monday, inside window
	target, minutes := cfg.minutesUntilTransition(now)
	require.False(t, target)
	require.Equal(t, 5, minutes)
}

func TestMinutesUntilTransition_OutsideWindowNoDayRestriction(t *testing.T) {
	cfg := Config{Default: Window{Start: 1080, End: 1320}}
	now := time.Date(2026, 1, 5, 16, 55, 0, 0, time.UTC) // 16:55, before 18:00
	target, minutes := cfg.minutesUntilTransition(now)
	require.True(t, target)
	require.Equal(t, 65, minutes)
}

func TestMinutesUntilTransition_WithDayRestriction(t *testing.T) {
	cfg := Config{
		Default: Window{Start: 1080, End: 1320},
		Days:    map[time.Weekday]bool{time.Friday: true},
	}
	// Monday 17:55 -> next allowed day is Friday.
	now := time.Date(2026, 1, 5, 17, 55, 0, 0, time.UTC)
	require.Equal(t, time.Monday, now.Weekday())
	target, minutes := cfg.minutesUntilTransition(now)
	require.True(t, target)
	// 4 days away (Mon->Fri) at 18:00, plus the remainder of Monday.
	expected := (1440 - (17*60 + 55)) + 3*1440 + 1080
	require.Equal(t, expected, minutes)
}

func TestBuildWarnings_DropsLargerThanRemainingAndPrependsIt(t *testing.T) {
	// 10 is dropped (> 7); since the new first entry (5) is smaller than
	// the full remaining window, 7 itself is prepended back.
	require.Equal(t, []int{7, 5, 3, 2, 1}, buildWarnings(7))
}

func TestBuildWarnings_PrependsRemainingWhenSmallerThanFirst(t *testing.T) {
	require.Equal(t, []int{4, 3, 2, 1}, buildWarnings(4))
}

func TestBuildWarnings_PrependsWhenNoneFit(t *testing.T) {
	require.Equal(t, []int{0}, buildWarnings(0))
}

func TestBuildWarnings_ExactMatchFromSpecS7(t *testing.T) {
	// S7: window 18:00-22:00, restartDelay 10, now 17:55, target on -> 5
	// minutes out, within restartDelay, so the countdown warns at 5,3,2,1.
	// A transition exactly restartDelay minutes out gets the full set.
	require.Equal(t, []int{5, 3, 2, 1}, buildWarnings(5))
	require.Equal(t, []int{10, 5, 3, 2, 1}, buildWarnings(10))
}
