package pilot

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const (
	gunCheckInterval    = time.Second
	gunFailureThreshold = 3
	gunStallTimeout     = 5 * time.Second
	gunShotsBeforeReset = 20
	shootCooldown       = 250 * time.Millisecond
)

// CaptureProbe exposes the input capture the gun depends on. Engaged reports
// whether capture currently holds; Request asks the host to re-acquire it.
type CaptureProbe interface {
	Engaged() bool
	Request() error
}

// Gun is the firing state machine and its watchdog. The gun works until the
// capture probe fails three consecutive health checks; it recovers as soon
// as capture holds again, or through the rate-limited recovery path. A long
// stall without a successful shot, or too many shots since the last reset,
// forces a full reset.
type Gun struct {
	probe    CaptureProbe
	arsenal  *Arsenal
	resetAim func()
	logger   *slog.Logger

	recovery *rate.Limiter

	working             bool
	consecutiveFailures int
	lastCheck           time.Time
	lastShot            time.Time
	lastSuccessfulShot  time.Time
	lastWorking         time.Time
	shotCount           int
}

// NewGun builds a working gun. resetAim is called whenever the gun resets or
// recovers, so the owner can snap the aim orientation back to neutral; nil
// is allowed. Recovery attempts are limited to one per second no matter how
// often firing fails.
func NewGun(probe CaptureProbe, arsenal *Arsenal, resetAim func(), logger *slog.Logger, now time.Time) *Gun {
	if logger == nil {
		logger = slog.Default()
	}
	if resetAim == nil {
		resetAim = func() {}
	}
	return &Gun{
		probe:              probe,
		arsenal:            arsenal,
		resetAim:           resetAim,
		logger:             logger,
		recovery:           rate.NewLimiter(rate.Every(time.Second), 1),
		working:            true,
		lastSuccessfulShot: now,
	}
}

// Working reports whether the gun is currently operational.
func (g *Gun) Working() bool { return g.working }

// Failures reports the consecutive health check failures so far.
func (g *Gun) Failures() int { return g.consecutiveFailures }

// ShotCount reports shots fired since the last reset.
func (g *Gun) ShotCount() int { return g.shotCount }

// LastWorking reports when the gun last passed from working to failed, zero
// if it never failed.
func (g *Gun) LastWorking() time.Time { return g.lastWorking }

// TryFire attempts one shot and reports whether a projectile left the gun.
// The shot guard trips first: after 20 shots the next trigger pull performs
// a reset instead of firing. A non-working gun routes the pull into the
// recovery path.
func (g *Gun) TryFire(fire func(), now time.Time) bool {
	if g.shotCount >= gunShotsBeforeReset {
		g.logger.Info("shot guard tripped, resetting gun", "shots", g.shotCount)
		g.Reset(now)
		return false
	}

	if now.Sub(g.lastCheck) > gunCheckInterval {
		g.Check(now)
		g.lastCheck = now
	}

	if g.working && now.Sub(g.lastShot) > shootCooldown {
		fire()
		g.lastShot = now
		g.lastSuccessfulShot = now
		g.shotCount++
		return true
	}
	if !g.working {
		g.recover(now)
	}
	return false
}

// Check runs one watchdog health check. A working gun that has not fired
// for the stall timeout is reset outright. Otherwise the capture probe
// decides: a disengaged probe counts a failure and the third in a row fails
// the gun; an engaged probe clears the count and revives a failed gun.
func (g *Gun) Check(now time.Time) {
	if g.working && now.Sub(g.lastSuccessfulShot) > gunStallTimeout {
		g.logger.Info("no successful shots within stall window, resetting gun")
		g.Reset(now)
		return
	}

	if !g.probe.Engaged() {
		g.consecutiveFailures++
		if g.consecutiveFailures >= gunFailureThreshold {
			if g.working {
				g.working = false
				g.lastWorking = now
				g.logger.Warn("gun failed health checks", "failures", g.consecutiveFailures, "lastWorking", g.lastWorking)
			}
			g.recover(now)
		}
		return
	}

	g.consecutiveFailures = 0
	if !g.working {
		g.working = true
		g.logger.Info("gun recovered")
	}
}

// Reset forces the gun back to a clean working state: counters cleared,
// projectiles dropped, aim zeroed, capture re-requested if it lapsed.
func (g *Gun) Reset(now time.Time) {
	g.working = true
	g.consecutiveFailures = 0
	g.shotCount = 0
	g.lastSuccessfulShot = now
	g.arsenal.Clear()
	g.resetAim()
	if !g.probe.Engaged() {
		if err := g.probe.Request(); err != nil {
			g.logger.Warn("capture request failed", "error", err)
		}
	}
}

// recover is the rate-limited repair path for a failed gun. A capture
// request that returns without error flips the gun straight back to working;
// if capture does not actually stick, the next health check fails it again.
func (g *Gun) recover(now time.Time) {
	if !g.recovery.AllowN(now, 1) {
		return
	}
	g.logger.Info("attempting gun recovery")
	if err := g.probe.Request(); err != nil {
		g.logger.Warn("capture request failed", "error", err)
		return
	}
	g.arsenal.Clear()
	g.resetAim()
	g.shotCount = 0
	g.working = true
	g.consecutiveFailures = 0
}
