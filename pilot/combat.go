package pilot

import (
	"time"

	"github.com/TamimC/VibeGameSpace/protocol"
)

const (
	laserSpeed     = 2.0
	maxLasers      = 50
	laserRange     = 100.0
	laserMaxAge    = 5 * time.Second
	hitRadius      = 2.0
	laserHitDamage = 20.0
)

type projectile struct {
	position protocol.Vec3
	dir      protocol.Vec3
	created  time.Time
}

// Hit is a resolved projectile strike against a remote ship.
type Hit struct {
	TargetID string
	Damage   float64
}

// Arsenal tracks the local player's in-flight projectiles. Hits are resolved
// locally by the shooter, first contact wins, and reported upstream as
// playerDamage.
type Arsenal struct {
	projectiles []projectile
}

func NewArsenal() *Arsenal {
	return &Arsenal{}
}

// Fire spawns a projectile at the ship's position heading the given way.
// Past the cap the oldest projectile is dropped first.
func (a *Arsenal) Fire(origin protocol.Vec3, dir protocol.Vec3, now time.Time) {
	if len(a.projectiles) >= maxLasers {
		a.projectiles = a.projectiles[1:]
	}
	a.projectiles = append(a.projectiles, projectile{
		position: origin,
		dir:      normalize(dir),
		created:  now,
	})
}

// Advance moves every projectile one frame and resolves collisions against
// the remote cache. A projectile is spent on its first hit. Projectiles past
// the range cap or older than the age cap are discarded.
func (a *Arsenal) Advance(now time.Time, remotes []Remote) []Hit {
	var hits []Hit
	kept := a.projectiles[:0]
	for _, p := range a.projectiles {
		p.position.X += p.dir.X * laserSpeed
		p.position.Y += p.dir.Y * laserSpeed
		p.position.Z += p.dir.Z * laserSpeed

		hit := false
		for _, remote := range remotes {
			if distance(p.position, remote.Position) < hitRadius {
				hits = append(hits, Hit{TargetID: remote.ID, Damage: laserHitDamage})
				hit = true
				break
			}
		}
		if hit {
			continue
		}
		if length(p.position) > laserRange || now.Sub(p.created) > laserMaxAge {
			continue
		}
		kept = append(kept, p)
	}
	a.projectiles = kept
	return hits
}

// Clear drops every in-flight projectile.
func (a *Arsenal) Clear() {
	a.projectiles = a.projectiles[:0]
}

// Count reports the number of in-flight projectiles.
func (a *Arsenal) Count() int {
	return len(a.projectiles)
}
