package hikevents

import "time"

// Watchdog tracks when the last message was seen on the stream.
type Watchdog struct {
	threshold time.Duration
	lastSeen  time.Time
}

func NewWatchdog(threshold time.Duration) *Watchdog {
	return &Watchdog{threshold: threshold}
}

func (w *Watchdog) MarkSeen(now time.Time) {
	w.lastSeen = now
}

func (w *Watchdog) Elapsed(now time.Time) time.Duration {
	return now.Sub(w.lastSeen)
}

// IsStale reports whether more than the threshold has passed since MarkSeen.
func (w *Watchdog) IsStale(now time.Time) bool {
	return w.Elapsed(now) > w.threshold
}
