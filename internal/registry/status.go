package registry

// Status is the lifecycle state of a live stream.
type Status int

const (
	StatusStarting Status = iota
	StatusLive
	StatusStopping
	StatusStopped
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusLive:
		return "live"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// live reports whether this status counts as on-air.
func (s Status) live() bool { return s == StatusLive }
