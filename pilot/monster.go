package pilot

import (
	"math/rand"
	"time"

	"github.com/TamimC/VibeGameSpace/protocol"
)

const (
	monsterSpawnInterval = 5 * time.Second
	monsterSpeed         = 0.05
	monsterSpawnSpread   = 50.0
	monsterContactRadius = 2.0
	monsterContactDamage = 10.0
	monsterReward        = 10
)

type monster struct {
	position protocol.Vec3
}

// Horde runs the local PvE swarm. Monsters spawn on a timer, chase the ship,
// and die to projectiles for a gold bounty. The horde is purely local state,
// nothing about it crosses the wire.
type Horde struct {
	monsters  []monster
	lastSpawn time.Time
	randFloat func() float64
}

func NewHorde() *Horde {
	return &Horde{randFloat: rand.Float64}
}

// Advance spawns and moves monsters, then reports how many are in contact
// with the ship this frame. The caller applies contact damage so the ship's
// invulnerability window stays in one place.
func (h *Horde) Advance(now time.Time, ship protocol.Vec3) int {
	if h.lastSpawn.IsZero() || now.Sub(h.lastSpawn) > monsterSpawnInterval {
		h.monsters = append(h.monsters, monster{position: protocol.Vec3{
			X: (h.randFloat() - 0.5) * monsterSpawnSpread,
			Y: (h.randFloat() - 0.5) * monsterSpawnSpread,
			Z: (h.randFloat() - 0.5) * monsterSpawnSpread,
		}})
		h.lastSpawn = now
	}

	contacts := 0
	for i := range h.monsters {
		dir := normalize(protocol.Vec3{
			X: ship.X - h.monsters[i].position.X,
			Y: ship.Y - h.monsters[i].position.Y,
			Z: ship.Z - h.monsters[i].position.Z,
		})
		h.monsters[i].position.X += dir.X * monsterSpeed
		h.monsters[i].position.Y += dir.Y * monsterSpeed
		h.monsters[i].position.Z += dir.Z * monsterSpeed

		if distance(h.monsters[i].position, ship) < monsterContactRadius {
			contacts++
		}
	}
	return contacts
}

// CullHit removes every monster a projectile touched along with the
// projectile, and returns the gold earned.
func (h *Horde) CullHit(a *Arsenal) int64 {
	var reward int64
	kept := h.monsters[:0]
	for _, m := range h.monsters {
		killed := false
		for i, p := range a.projectiles {
			if distance(m.position, p.position) < monsterContactRadius {
				a.projectiles = append(a.projectiles[:i], a.projectiles[i+1:]...)
				killed = true
				break
			}
		}
		if killed {
			reward += monsterReward
			continue
		}
		kept = append(kept, m)
	}
	h.monsters = kept
	return reward
}

// Count reports the number of live monsters.
func (h *Horde) Count() int {
	return len(h.monsters)
}
