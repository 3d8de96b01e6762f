package pilot

import (
	"math"
	"math/rand"
	"time"

	"github.com/TamimC/VibeGameSpace/protocol"
)

const (
	maxHealth  = 100.0
	maxShields = 100.0
	maxNitros  = 100.0

	moveSpeed            = 0.1
	nitrosSpeedBoost     = 2.0
	nitrosDrainPerFrame  = 0.5
	nitrosRechargePerTik = 0.2

	invulnerabilityWindow = 2 * time.Second
	respawnSpread         = 30.0
)

// Ship is the local player's authoritative state: transform, vitals, gold,
// and the nitros tank.
type Ship struct {
	Position protocol.Vec3
	Rotation protocol.Vec3

	Health  float64
	Shields float64
	Nitros  float64
	Gold    int64

	lastDamage time.Time
	randFloat  func() float64
}

// NewShip spawns at the fixed entry point with full health, no shields, and
// a full nitros tank.
func NewShip() *Ship {
	return &Ship{
		Position:  protocol.Vec3{X: 0, Y: 10, Z: 30},
		Health:    maxHealth,
		Nitros:    maxNitros,
		randFloat: rand.Float64,
	}
}

// TakeDamage resolves an incoming hit. Shields absorb what they can, the
// rest lands on health. A hit opens a 2 second invulnerability window during
// which further damage is ignored. Returns true when the hit was lethal; the
// ship has already respawned by then.
func (s *Ship) TakeDamage(amount float64, now time.Time) bool {
	if amount <= 0 {
		return false
	}
	if !s.lastDamage.IsZero() && now.Sub(s.lastDamage) < invulnerabilityWindow {
		return false
	}

	absorbed := math.Min(s.Shields, amount)
	s.Shields -= absorbed
	s.Health = math.Max(0, s.Health-(amount-absorbed))
	s.lastDamage = now

	if s.Health <= 0 {
		s.respawn()
		return true
	}
	return false
}

// respawn drops the ship at a random point inside the spawn cube. Health
// refills, shields are lost, gold is kept.
func (s *Ship) respawn() {
	s.Position = protocol.Vec3{
		X: (s.randFloat() - 0.5) * respawnSpread,
		Y: (s.randFloat() - 0.5) * respawnSpread,
		Z: (s.randFloat() - 0.5) * respawnSpread,
	}
	s.Health = maxHealth
	s.Shields = 0
}

// Invulnerable reports whether the post-hit grace window is still open.
func (s *Ship) Invulnerable(now time.Time) bool {
	return !s.lastDamage.IsZero() && now.Sub(s.lastDamage) < invulnerabilityWindow
}

// Move advances the ship one frame along the given direction. Nitros boosts
// speed only while the tank has fuel; the tank drains while boosting and
// recharges otherwise. Returns whether the boost was actually applied.
func (s *Ship) Move(dir protocol.Vec3, wantNitros bool) bool {
	burning := wantNitros && s.Nitros > 0

	speed := moveSpeed
	if burning {
		speed *= nitrosSpeedBoost
		s.Nitros = math.Max(0, s.Nitros-nitrosDrainPerFrame)
	} else {
		s.Nitros = math.Min(maxNitros, s.Nitros+nitrosRechargePerTik)
	}

	s.Position.X += dir.X * speed
	s.Position.Y += dir.Y * speed
	s.Position.Z += dir.Z * speed
	return burning
}

// AddGold credits a reward and returns the new balance.
func (s *Ship) AddGold(amount int64) int64 {
	s.Gold += amount
	return s.Gold
}

func distance(a protocol.Vec3, b protocol.Vec3) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func length(v protocol.Vec3) float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func normalize(v protocol.Vec3) protocol.Vec3 {
	l := length(v)
	if l == 0 {
		return protocol.Vec3{}
	}
	return protocol.Vec3{X: v.X / l, Y: v.Y / l, Z: v.Z / l}
}
