package gateway

import "fmt"

// Status is the sync indicator shown to the user.
type Status int

const (
	// StatusLocal means no remote store is configured.
	StatusLocal Status = iota
	// StatusSyncing means a remote write is pending or in flight.
	StatusSyncing
	// StatusSynced means the last remote call succeeded and nothing is pending.
	StatusSynced
	// StatusError means the last remote call failed; data is safe locally.
	StatusError
	// StatusConflict means a guarded write was rejected. Reload to clear it.
	StatusConflict
)

func (s Status) String() string {
	switch s {
	case StatusLocal:
		return "local"
	case StatusSyncing:
		return "syncing"
	case StatusSynced:
		return "synced"
	case StatusError:
		return "error"
	case StatusConflict:
		return "conflict"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Policy selects how card writes reach the remote store.
type Policy string

const (
	// PolicyImmediate writes the remote file on every save and waits for it.
	PolicyImmediate Policy = "immediate"
	// PolicyDebounced coalesces saves behind a resetting timer, forcing a
	// write once MaxDelay has passed since the last successful one.
	PolicyDebounced Policy = "debounced"
	// PolicyGuarded writes immediately but first checks that the remote file
	// still matches what was last read or written.
	PolicyGuarded Policy = "guarded"
)

// ParsePolicy converts a config value to a Policy. Empty selects
// PolicyDebounced.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "":
		return PolicyDebounced, nil
	case PolicyImmediate, PolicyDebounced, PolicyGuarded:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown sync policy %q", s)
	}
}
