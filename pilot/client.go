package pilot

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TamimC/VibeGameSpace/protocol"
)

const (
	frameInterval  = 16 * time.Millisecond
	updateInterval = 50 * time.Millisecond
	reconnectDelay = 5 * time.Second
)

// Intent is one frame of pilot input.
type Intent struct {
	Move     protocol.Vec3
	Rotation protocol.Vec3
	Nitros   bool
	Fire     bool
}

// View is the read-only state handed to a Controller each frame.
type View struct {
	SelfID     string
	Position   protocol.Vec3
	Rotation   protocol.Vec3
	Health     float64
	Shields    float64
	Nitros     float64
	Gold       int64
	GunWorking bool
	Remotes    []Remote
}

// Controller decides what the ship does each frame.
type Controller interface {
	Act(view View) Intent
}

// Notifier receives short user-facing status lines: hits taken, players
// leaving, gun trouble. The rendering surface is external, so this is just a
// callback.
type Notifier func(text string)

// ClientConfig carries everything a Client needs to fly.
type ClientConfig struct {
	URL        string
	Name       string
	Color      string
	Controller Controller
	Probe      CaptureProbe
	Logger     *slog.Logger
	Notify     Notifier

	// PeerCombatOnly selects the reduced game mode: no monster swarm and
	// no shield resource, only peer-versus-peer damage.
	PeerCombatOnly bool
}

// Client is the full client loop: it keeps a connection to the arena server,
// mirrors the other players, runs local combat, and reports its own state on
// the send throttle. A dropped connection is retried forever with a fixed
// backoff; local state survives the reconnect.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	mu      sync.Mutex
	world   *World
	ship    *Ship
	arsenal *Arsenal
	gun     *Gun
	horde   *Horde

	lastUpdate    time.Time
	lastGunCheck  time.Time
	gunWasWorking bool
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Probe == nil {
		cfg.Probe = alwaysEngaged{}
	}
	if cfg.Notify == nil {
		cfg.Notify = func(string) {}
	}
	arsenal := NewArsenal()
	ship := NewShip()
	c := &Client{
		cfg:           cfg,
		logger:        logger,
		world:         NewWorld(),
		ship:          ship,
		arsenal:       arsenal,
		gunWasWorking: true,
	}
	// Gun recovery snaps the aim back to neutral along with clearing the
	// projectile pool. Always invoked from frame, under the client mutex.
	c.gun = NewGun(cfg.Probe, arsenal, func() {
		ship.Rotation = protocol.Vec3{}
	}, logger, time.Now())
	if !cfg.PeerCombatOnly {
		c.horde = NewHorde()
	}
	return c
}

// alwaysEngaged is the headless capture probe: nothing to lose, nothing to
// re-acquire.
type alwaysEngaged struct{}

func (alwaysEngaged) Engaged() bool  { return true }
func (alwaysEngaged) Request() error { return nil }

// Snapshot reads the current client state. Safe to call from any goroutine
// while the client is running.
func (c *Client) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view()
}

func (c *Client) view() View {
	return View{
		SelfID:     c.world.SelfID(),
		Position:   c.ship.Position,
		Rotation:   c.ship.Rotation,
		Health:     c.ship.Health,
		Shields:    c.ship.Shields,
		Nitros:     c.ship.Nitros,
		Gold:       c.ship.Gold,
		GunWorking: c.gun.Working(),
		Remotes:    c.world.Remotes(),
	}
}

// Run connects and flies until ctx is cancelled. Every session failure is
// followed by a fixed delay and a fresh dial.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.runSession(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("session ended, reconnecting", "error", err, "delay", reconnectDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) runSession(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(protocol.RequestPlayers{
		Type:  protocol.TypeRequestPlayers,
		Name:  c.cfg.Name,
		Color: c.cfg.Color,
	}); err != nil {
		return err
	}

	inbox := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbox <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case data := <-inbox:
			if err := c.handleMessage(conn, data); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.frame(conn, time.Now()); err != nil {
				return err
			}
		}
	}
}

// handleMessage folds one server message into local state. Messages and
// frames run on the same goroutine, so state is never touched concurrently.
func (c *Client) handleMessage(conn *websocket.Conn, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := protocol.DecodeServer(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			c.logger.Debug("dropping unknown message", "error", err)
			return nil
		}
		return err
	}
	switch m := msg.(type) {
	case *protocol.Init:
		c.world.ApplyInit(m)
		c.ship.Gold = m.Gold
		c.logger.Info("joined arena", "id", m.ID, "gold", m.Gold)
	case *protocol.Players:
		c.world.ApplyPlayers(m)
	case *protocol.NewPlayer:
		c.world.ApplyNewPlayer(m)
	case *protocol.PlayerUpdate:
		c.world.ApplyPlayerUpdate(m)
	case *protocol.PlayerLeft:
		if m.ID != c.world.SelfID() {
			c.cfg.Notify(c.world.NameOf(m.ID) + " left the arena")
		}
		c.world.ApplyPlayerLeft(m)
	case *protocol.PlayerDamage:
		if m.TargetID != c.world.SelfID() {
			return nil
		}
		c.logger.Info("hit", "attacker", m.AttackerName, "damage", m.Damage)
		if m.AttackerName != "" {
			c.cfg.Notify("Hit by " + m.AttackerName)
		} else {
			c.cfg.Notify("You were hit")
		}
		if c.ship.TakeDamage(m.Damage, time.Now()) {
			return c.reportDeath(conn)
		}
	}
	return nil
}

// frame runs one tick of the reconciliation loop: steer, fire, advance
// projectiles and monsters, then report state upstream on the throttle.
func (c *Client) frame(conn *websocket.Conn, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	intent := Intent{}
	if c.cfg.Controller != nil {
		intent = c.cfg.Controller.Act(c.view())
	}

	c.ship.Rotation = intent.Rotation
	c.ship.Move(normalize(intent.Move), intent.Nitros)

	if now.Sub(c.lastGunCheck) > gunCheckInterval {
		c.gun.Check(now)
		c.lastGunCheck = now
	}
	if intent.Fire {
		c.gun.TryFire(func() {
			c.arsenal.Fire(c.ship.Position, forward(c.ship.Rotation), now)
		}, now)
	}
	if working := c.gun.Working(); working != c.gunWasWorking {
		if working {
			c.cfg.Notify("Gun back online")
		} else {
			c.cfg.Notify("Gun malfunction, attempting recovery")
		}
		c.gunWasWorking = working
	}

	for _, hit := range c.arsenal.Advance(now, c.world.Remotes()) {
		if err := conn.WriteJSON(protocol.PlayerDamage{
			Type:         protocol.TypePlayerDamage,
			TargetID:     hit.TargetID,
			Damage:       hit.Damage,
			AttackerName: c.cfg.Name,
		}); err != nil {
			return err
		}
	}

	if c.horde != nil {
		contacts := c.horde.Advance(now, c.ship.Position)
		for i := 0; i < contacts; i++ {
			if c.ship.TakeDamage(monsterContactDamage, now) {
				if err := c.reportDeath(conn); err != nil {
					return err
				}
			}
		}
		if reward := c.horde.CullHit(c.arsenal); reward > 0 {
			c.world.SetSelfGold(c.ship.AddGold(reward))
		}
	}

	if now.Sub(c.lastUpdate) > updateInterval {
		gold := c.ship.Gold
		if err := conn.WriteJSON(protocol.Update{
			Type:     protocol.TypeUpdate,
			Position: c.ship.Position,
			Rotation: c.ship.Rotation,
			Gold:     &gold,
		}); err != nil {
			return err
		}
		c.lastUpdate = now
	}
	return nil
}

func (c *Client) reportDeath(conn *websocket.Conn) error {
	c.logger.Info("ship destroyed, respawned", "position", c.ship.Position)
	c.cfg.Notify("Ship destroyed")
	return conn.WriteJSON(protocol.PlayerDied{
		Type:     protocol.TypePlayerDied,
		PlayerID: c.world.SelfID(),
	})
}

// forward converts a yaw/pitch rotation into a unit heading, matching the
// ship model's -Z nose.
func forward(rot protocol.Vec3) protocol.Vec3 {
	return protocol.Vec3{
		X: -math.Sin(rot.Y) * math.Cos(rot.X),
		Y: math.Sin(rot.X),
		Z: -math.Cos(rot.Y) * math.Cos(rot.X),
	}
}
