package preload

import (
	"fmt"
	"strings"

	"thumbnail-engine/internal/generation"
	"thumbnail-engine/internal/logging"
)

// Mode selects which directory entries are requested proactively.
type Mode string

const (
	// ModeNormal requests every entry in range up front, in directory order.
	ModeNormal Mode = "normal"
	// ModeDynamic requests only the visible window around the active entry.
	ModeDynamic Mode = "dynamic"
	// ModeSmart requests the visible window first, then everything else in
	// range at background priority.
	ModeSmart Mode = "smart"
)

// LargeDirectoryWarning is the uncapped plan size above which a warning is
// logged.
const LargeDirectoryWarning = 2000

// ParseMode parses a mode name; the empty string means smart.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeNormal:
		return ModeNormal, nil
	case ModeDynamic:
		return ModeDynamic, nil
	case ModeSmart, "":
		return ModeSmart, nil
	default:
		return "", fmt.Errorf("unknown preload mode %q (want normal, dynamic or smart)", s)
	}
}

// Policy configures a plan.
type Policy struct {
	Mode Mode
	// Window is the number of entries on each side of the active one that
	// count as visible.
	Window int
	// Cap bounds the planned range to Cap/2 entries on each side of the
	// active one. Zero or negative disables the cap.
	Cap int
	// FullDirectory disables the cap regardless of Cap. Very large
	// directories are planned in full.
	FullDirectory bool
}

// Target is one planned request.
type Target struct {
	Index    int
	Path     string
	Priority generation.Priority
}

// Plan returns the requests for paths with the entry at active in focus, in
// the order they should be issued. It is a pure function of its inputs.
func Plan(paths []string, active int, policy Policy) []Target {
	n := len(paths)
	if n == 0 {
		return nil
	}
	active = min(max(active, 0), n-1)

	lo, hi := capRange(n, active, policy)
	winLo := max(lo, active-max(policy.Window, 0))
	winHi := min(hi, active+max(policy.Window, 0))

	var targets []Target
	add := func(i int, prio generation.Priority) {
		targets = append(targets, Target{Index: i, Path: paths[i], Priority: prio})
	}

	switch policy.Mode {
	case ModeNormal:
		targets = make([]Target, 0, hi-lo+1)
		for i := lo; i <= hi; i++ {
			add(i, generation.PriorityNormal)
		}

	case ModeDynamic:
		targets = make([]Target, 0, winHi-winLo+1)
		for _, i := range nearestFirst(active, winLo, winHi) {
			add(i, generation.PriorityVisible)
		}

	default: // smart
		targets = make([]Target, 0, hi-lo+1)
		for _, i := range nearestFirst(active, winLo, winHi) {
			add(i, generation.PriorityVisible)
		}
		for _, i := range nearestFirst(active, lo, hi) {
			if i < winLo || i > winHi {
				add(i, generation.PriorityBackground)
			}
		}
	}
	return targets
}

// capRange returns the inclusive index range allowed by the cap.
func capRange(n, active int, policy Policy) (int, int) {
	if policy.FullDirectory || policy.Cap <= 0 {
		if n > LargeDirectoryWarning && policy.Mode != ModeDynamic {
			logging.Warn("Preloading all %d entries of the directory without a cap; this may take a long time and a lot of memory", n)
		}
		return 0, n - 1
	}
	half := policy.Cap / 2
	return max(0, active-half), min(n-1, active+half)
}

// nearestFirst returns lo..hi ordered by distance from active, entries after
// active before entries the same distance before it.
func nearestFirst(active, lo, hi int) []int {
	if lo > hi {
		return nil
	}
	out := make([]int, 0, hi-lo+1)
	if active >= lo && active <= hi {
		out = append(out, active)
	}
	for d := 1; active+d <= hi || active-d >= lo; d++ {
		if i := active + d; i >= lo && i <= hi {
			out = append(out, i)
		}
		if i := active - d; i >= lo && i <= hi {
			out = append(out, i)
		}
	}
	return out
}
