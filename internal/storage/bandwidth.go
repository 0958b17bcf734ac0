package storage

import (
	"sync"
	"time"

	"github.com/rtanaka/barchive/internal/config"
)

// BandwidthLimiter is a token-bucket rate limiter driven by a time-of-day
// schedule (spec §4.F: backend transfers "are capped by a configurable
// bandwidth schedule"). A zero-value limit (no matching window) allows
// unlimited throughput.
type BandwidthLimiter struct {
	mu        sync.Mutex
	windows   []config.BandwidthWindow
	now       func() time.Time
	last      time.Time
	available float64 // bytes currently bankable, capped at one second's worth
}

// NewBandwidthLimiter builds a limiter from the backend's configured
// schedule. windows may be empty, in which case Allow never blocks.
func NewBandwidthLimiter(windows []config.BandwidthWindow) *BandwidthLimiter {
	return &BandwidthLimiter{windows: windows, now: time.Now}
}

// currentLimitKBps returns the KB/s cap in effect at t, or 0 for unlimited.
func (l *BandwidthLimiter) currentLimitKBps(t time.Time) int {
	clock := t.Format("15:04")
	for _, w := range l.windows {
		if w.LimitKBps <= 0 {
			continue
		}
		if inWindow(clock, w.Start, w.End) {
			return w.LimitKBps
		}
	}
	return 0
}

// inWindow reports whether clock (HH:MM) falls in [start, end), handling
// windows that wrap past midnight (e.g. "22:00"-"06:00").
func inWindow(clock, start, end string) bool {
	if start == "" || end == "" {
		return false
	}
	if start <= end {
		return clock >= start && clock < end
	}
	return clock >= start || clock < end
}

// Allow accounts for n bytes about to be transferred, sleeping as needed to
// keep the rate at or below the active window's cap. Elapsed wall-clock
// time since the previous call is clamped to >= 0 so a backward clock step
// (NTP correction, VM migration) cannot be misread as "plenty of time has
// passed" and grant an unbounded burst.
func (l *BandwidthLimiter) Allow(n int) {
	if n <= 0 {
		return
	}
	l.mu.Lock()
	now := l.now()
	limitKBps := l.currentLimitKBps(now)
	if limitKBps <= 0 {
		l.last = now
		l.mu.Unlock()
		return
	}
	limitBps := float64(limitKBps) * 1024

	if !l.last.IsZero() {
		elapsed := now.Sub(l.last).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		l.available += elapsed * limitBps
		if l.available > limitBps {
			l.available = limitBps // cap the bankable burst at one second
		}
	}
	l.last = now

	need := float64(n)
	var sleep time.Duration
	if need > l.available {
		deficit := need - l.available
		sleep = time.Duration(deficit / limitBps * float64(time.Second))
		l.available = 0
	} else {
		l.available -= need
	}
	l.mu.Unlock()

	if sleep > 0 {
		time.Sleep(sleep)
	}
}
