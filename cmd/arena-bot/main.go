// Command arena-bot connects a headless pilot to an arena server. It
// patrols the arena, fires at the nearest remote ship, and periodically
// prints its own state. Useful for load-testing and soak-testing a server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/TamimC/VibeGameSpace/pilot"
	"github.com/TamimC/VibeGameSpace/protocol"
)

func main() {
	wsURL := flag.String("ws", "ws://127.0.0.1:8080/ws", "arena server websocket URL")
	name := flag.String("name", "", "pilot name, random when empty")
	color := flag.String("color", "#4fc3f7", "ship color")
	count := flag.Int("count", 1, "number of bots to run")
	duration := flag.Duration("duration", 0, "how long to run, 0 for until interrupted")
	peerOnly := flag.Bool("peer-only", false, "disable the local monster horde, peer combat only")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	flag.Parse()

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(*logLevel)); err != nil {
		lvl = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	var wg sync.WaitGroup
	for i := 0; i < *count; i++ {
		botName := *name
		if botName == "" {
			botName = fmt.Sprintf("Bot-%04d", rand.Intn(10000))
		} else if *count > 1 {
			botName = fmt.Sprintf("%s-%d", botName, i+1)
		}

		botLogger := logger.With("bot", botName)
		client := pilot.NewClient(pilot.ClientConfig{
			URL:            *wsURL,
			Name:           botName,
			Color:          *color,
			Controller:     newPatroller(),
			PeerCombatOnly: *peerOnly,
			Logger:         botLogger,
			Notify: func(text string) {
				botLogger.Info("notice", "text", text)
			},
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Run(ctx); err != nil && ctx.Err() == nil {
				fail(err)
			}
		}()

		if *count == 1 {
			go reportLoop(ctx, client, botName)
		}
	}

	wg.Wait()
	fmt.Println("arena-bot: done")
}

func reportLoop(ctx context.Context, client *pilot.Client, name string) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			view := client.Snapshot()
			fmt.Printf("%s: pos=(%.1f, %.1f, %.1f) hp=%.0f gold=%d remotes=%d\n",
				name, view.Position.X, view.Position.Y, view.Position.Z,
				view.Health, view.Gold, len(view.Remotes))
		}
	}
}

// patroller wanders between random waypoints and turns to fire whenever a
// remote ship is in range.
type patroller struct {
	waypoint protocol.Vec3
	rng      *rand.Rand
}

func newPatroller() *patroller {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	p := &patroller{rng: rng}
	p.pickWaypoint()
	return p
}

func (p *patroller) pickWaypoint() {
	p.waypoint = protocol.Vec3{
		X: (p.rng.Float64() - 0.5) * 80,
		Y: 5 + p.rng.Float64()*20,
		Z: (p.rng.Float64() - 0.5) * 80,
	}
}

func (p *patroller) Act(view pilot.View) pilot.Intent {
	if target, ok := nearest(view); ok && distance(view.Position, target.Position) < 60 {
		return pilot.Intent{
			Move:     toward(view.Position, target.Position),
			Rotation: faceToward(view.Position, target.Position),
			Nitros:   false,
			Fire:     true,
		}
	}

	if distance(view.Position, p.waypoint) < 3 {
		p.pickWaypoint()
	}
	return pilot.Intent{
		Move:     toward(view.Position, p.waypoint),
		Rotation: faceToward(view.Position, p.waypoint),
		Nitros:   distance(view.Position, p.waypoint) > 40,
	}
}

func nearest(view pilot.View) (pilot.Remote, bool) {
	var best pilot.Remote
	bestDist := math.MaxFloat64
	for _, remote := range view.Remotes {
		if d := distance(view.Position, remote.Position); d < bestDist {
			best = remote
			bestDist = d
		}
	}
	return best, bestDist < math.MaxFloat64
}

func toward(from, to protocol.Vec3) protocol.Vec3 {
	return protocol.Vec3{X: to.X - from.X, Y: to.Y - from.Y, Z: to.Z - from.Z}
}

// faceToward yields the pitch/yaw that points the ship's forward vector at
// the target, matching how the client derives a fire direction from rotation.
func faceToward(from, to protocol.Vec3) protocol.Vec3 {
	dx := to.X - from.X
	dy := to.Y - from.Y
	dz := to.Z - from.Z
	horizontal := math.Sqrt(dx*dx + dz*dz)
	return protocol.Vec3{
		X: math.Atan2(dy, horizontal),
		Y: math.Atan2(-dx, -dz),
	}
}

func distance(a, b protocol.Vec3) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func fail(err error) {
	fmt.Println("arena-bot:", err)
	os.Exit(1)
}
