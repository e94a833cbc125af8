// Package streak implements the per-task completion state machine.
//
// A task moves from no history to an active streak of 1 on its first
// completion, grows by one for every completion on the calendar day after
// the previous one, and falls back to 1 after any gap. The engine performs
// no I/O and never reads the wall clock; callers pass "now" explicitly.
package streak

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrAlreadyCompleted is matched by every AlreadyCompletedError.
var ErrAlreadyCompleted = errors.New("task already completed today")

// AlreadyCompletedError is returned when a completion already exists on the
// calendar day being recorded.
type AlreadyCompletedError struct {
	Day time.Time
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("task already completed on %s", e.Day.Format("2006-01-02"))
}

// Is makes errors.Is(err, ErrAlreadyCompleted) work.
func (e *AlreadyCompletedError) Is(target error) bool {
	return target == ErrAlreadyCompleted
}

// ErrOutOfOrder is returned when a completion falls on a calendar day before
// the last recorded one. streakLast only moves forward.
var ErrOutOfOrder = errors.New("completion precedes the last recorded day")

// State is the streak-relevant part of a task.
type State struct {
	CompletedDates []time.Time
	Current        int
	Max            int
	Last           *time.Time
}

// Engine evaluates streak transitions against calendar days in one location.
type Engine struct {
	loc *time.Location
}

// NewEngine returns an engine whose day boundary is midnight in loc.
// A nil loc means time.Local.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{loc: loc}
}

// Location returns the location used for day boundaries.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// RecordCompletion appends a completion at now and returns the new state.
// The input state is left untouched, including on error.
func (e *Engine) RecordCompletion(state State, now time.Time) (State, error) {
	today := CalendarDay(now, e.loc)

	if e.IsCompletedToday(state, now) {
		return State{}, &AlreadyCompletedError{Day: today}
	}
	if state.Last != nil && DaysBetween(*state.Last, today, e.loc) < 0 {
		return State{}, fmt.Errorf("%w: %s before %s", ErrOutOfOrder,
			today.Format("2006-01-02"), state.Last.Format("2006-01-02"))
	}

	dates := make([]time.Time, len(state.CompletedDates), len(state.CompletedDates)+1)
	copy(dates, state.CompletedDates)
	dates = append(dates, now)

	current := 1
	if state.Last != nil && DaysBetween(*state.Last, today, e.loc) == 1 {
		current = state.Current + 1
	}

	return State{
		CompletedDates: dates,
		Current:        current,
		Max:            max(state.Max, current),
		Last:           &today,
	}, nil
}

// IsCompletedToday reports whether any completion falls on now's calendar day.
func (e *Engine) IsCompletedToday(state State, now time.Time) bool {
	for _, d := range state.CompletedDates {
		if SameDay(d, now, e.loc) {
			return true
		}
	}
	return false
}

// ProjectedStreak counts consecutive calendar days with a completion, walking
// backwards from asOf's day and stopping at the first day without one.
func (e *Engine) ProjectedStreak(dates []time.Time, asOf time.Time) int {
	days := e.daySet(dates)
	count := 0
	for day := e.dayKey(asOf); days[day]; day = day.AddDate(0, 0, -1) {
		count++
	}
	return count
}

// ProjectedMax returns the longest run of consecutive calendar days in dates.
func (e *Engine) ProjectedMax(dates []time.Time) int {
	keys := e.sortedDays(dates)
	best, run := 0, 0
	for i, day := range keys {
		if i > 0 && day.Sub(keys[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		best = max(best, run)
	}
	return best
}

// Recompute rebuilds a full state from completion history alone.
func (e *Engine) Recompute(dates []time.Time) State {
	if len(dates) == 0 {
		return State{CompletedDates: []time.Time{}}
	}

	latest := dates[0]
	for _, d := range dates[1:] {
		if d.After(latest) {
			latest = d
		}
	}
	last := CalendarDay(latest, e.loc)

	history := make([]time.Time, len(dates))
	copy(history, dates)

	current := e.ProjectedStreak(dates, last)
	return State{
		CompletedDates: history,
		Current:        current,
		Max:            max(e.ProjectedMax(dates), current),
		Last:           &last,
	}
}

// CheckConsistency verifies the stored streak fields against the history.
func (e *Engine) CheckConsistency(state State) error {
	if state.Current < 0 || state.Max < 0 {
		return fmt.Errorf("negative streak: current=%d max=%d", state.Current, state.Max)
	}
	if state.Max < state.Current {
		return fmt.Errorf("max streak %d below current %d", state.Max, state.Current)
	}

	seen := make(map[time.Time]bool, len(state.CompletedDates))
	for _, d := range state.CompletedDates {
		key := e.dayKey(d)
		if seen[key] {
			return fmt.Errorf("duplicate completion on %s", key.Format("2006-01-02"))
		}
		seen[key] = true
	}

	if len(state.CompletedDates) == 0 {
		if state.Last != nil {
			return errors.New("last completion set without history")
		}
		if state.Current != 0 {
			return fmt.Errorf("current streak %d without history", state.Current)
		}
		return nil
	}
	if state.Last == nil {
		return errors.New("history present but last completion unset")
	}

	expected := e.Recompute(state.CompletedDates)
	if !SameDay(*expected.Last, *state.Last, e.loc) {
		return fmt.Errorf("last completion %s, history ends %s",
			state.Last.Format("2006-01-02"), expected.Last.Format("2006-01-02"))
	}
	if projected := e.ProjectedStreak(state.CompletedDates, *state.Last); projected != state.Current {
		return fmt.Errorf("current streak %d, history gives %d", state.Current, projected)
	}
	if state.Max < expected.Max {
		return fmt.Errorf("max streak %d below longest run %d", state.Max, expected.Max)
	}
	return nil
}

// dayKey maps t to its calendar day as a UTC midnight, so keys are
// comparable and step by exactly 24h.
func (e *Engine) dayKey(t time.Time) time.Time {
	y, m, d := t.In(e.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (e *Engine) daySet(dates []time.Time) map[time.Time]bool {
	set := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		set[e.dayKey(d)] = true
	}
	return set
}

func (e *Engine) sortedDays(dates []time.Time) []time.Time {
	set := e.daySet(dates)
	keys := make([]time.Time, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}
