package arena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/TamimC/VibeGameSpace/goldstore"
	"github.com/TamimC/VibeGameSpace/protocol"
)

type recordSink struct {
	mu     sync.Mutex
	msgs   []any
	closed bool
	fail   bool
}

func (s *recordSink) WriteJSON(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink failed")
	}
	s.msgs = append(s.msgs, v)
	return nil
}

func (s *recordSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordSink) messages() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any{}, s.msgs...)
}

func newTestHub(t *testing.T, store goldstore.Store) *Hub {
	t.Helper()
	hub := NewHub(store, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	t.Cleanup(hub.Close)
	seq := 0
	hub.newID = func() string {
		seq++
		return fmt.Sprintf("player-%d", seq)
	}
	return hub
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func waitFor(t *testing.T, what string, predicate func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if predicate() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func join(t *testing.T, hub *Hub, sink *recordSink, name string) string {
	t.Helper()
	id := hub.Register(sink)
	hub.HandleRequestPlayers(id, &protocol.RequestPlayers{Type: protocol.TypeRequestPlayers, Name: name})
	return id
}

func TestJoinHandshakeOrder(t *testing.T) {
	hub := newTestHub(t, goldstore.NewMemoryStore())

	sinkA := &recordSink{}
	idA := join(t, hub, sinkA, "Alpha")

	msgs := sinkA.messages()
	if len(msgs) != 2 {
		t.Fatalf("expected init then players, got %#v", msgs)
	}
	init, ok := msgs[0].(protocol.Init)
	if !ok || init.ID != idA || init.Name != "Alpha" {
		t.Fatalf("unexpected init %#v", msgs[0])
	}
	roster, ok := msgs[1].(protocol.Players)
	if !ok || len(roster.Players) != 1 || roster.Players[0].ID != idA {
		t.Fatalf("unexpected roster %#v", msgs[1])
	}
}

func TestSecondJoinAnnouncesToFirst(t *testing.T) {
	hub := newTestHub(t, goldstore.NewMemoryStore())

	sinkA := &recordSink{}
	idA := join(t, hub, sinkA, "Alpha")
	sinkB := &recordSink{}
	idB := join(t, hub, sinkB, "Bravo")

	msgsB := sinkB.messages()
	if len(msgsB) != 2 {
		t.Fatalf("expected init then players for B, got %#v", msgsB)
	}
	roster := msgsB[1].(protocol.Players)
	if len(roster.Players) != 2 || roster.Players[0].ID != idA || roster.Players[1].ID != idB {
		t.Fatalf("expected sorted roster [A B], got %#v", roster.Players)
	}

	msgsA := sinkA.messages()
	last := msgsA[len(msgsA)-1]
	np, ok := last.(protocol.NewPlayer)
	if !ok || np.ID != idB || np.Name != "Bravo" {
		t.Fatalf("expected newPlayer for B at A, got %#v", last)
	}
	for _, m := range msgsB {
		if _, isNew := m.(protocol.NewPlayer); isNew {
			t.Fatalf("joiner must not receive its own newPlayer, got %#v", msgsB)
		}
	}
}

func TestDefaultIdentity(t *testing.T) {
	hub := newTestHub(t, goldstore.NewMemoryStore())
	sink := &recordSink{}
	id := hub.Register(sink)
	hub.HandleRequestPlayers(id, &protocol.RequestPlayers{Type: protocol.TypeRequestPlayers})

	init := sink.messages()[0].(protocol.Init)
	if init.Name != "Pilot-play" || init.Color != "#ffffff" {
		t.Fatalf("unexpected defaults %#v", init)
	}
}

func TestGoldSeedFromStore(t *testing.T) {
	store := goldstore.NewMemoryStore()
	hub := newTestHub(t, store)

	// The id generator is deterministic, so the balance can be parked
	// before the session registers.
	if err := store.Set(context.Background(), "player-1", 77); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	sink := &recordSink{}
	id := hub.Register(sink)
	waitFor(t, "gold seed", func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return hub.sessions[id].info.Gold == 77
	})

	hub.HandleRequestPlayers(id, &protocol.RequestPlayers{Type: protocol.TypeRequestPlayers})
	init := sink.messages()[0].(protocol.Init)
	if init.Gold != 77 {
		t.Fatalf("expected seeded gold 77 in init, got %#v", init)
	}
}

func TestUpdateReplicatesToOthersOnly(t *testing.T) {
	hub := newTestHub(t, goldstore.NewMemoryStore())
	sinkA := &recordSink{}
	idA := join(t, hub, sinkA, "Alpha")
	sinkB := &recordSink{}
	join(t, hub, sinkB, "Bravo")

	beforeA := len(sinkA.messages())
	hub.HandleUpdate(idA, &protocol.Update{
		Type:     protocol.TypeUpdate,
		Position: protocol.Vec3{X: 4, Y: 12, Z: -7},
		Rotation: protocol.Vec3{Y: 1.5},
	})

	msgsB := sinkB.messages()
	upd, ok := msgsB[len(msgsB)-1].(protocol.PlayerUpdate)
	if !ok || upd.ID != idA || upd.Position != (protocol.Vec3{X: 4, Y: 12, Z: -7}) {
		t.Fatalf("expected playerUpdate for A at B, got %#v", msgsB)
	}
	if len(sinkA.messages()) != beforeA {
		t.Fatalf("originator must not receive its own update, got %#v", sinkA.messages())
	}
}

func TestUpdateForUnknownSessionIgnored(t *testing.T) {
	hub := newTestHub(t, goldstore.NewMemoryStore())
	sink := &recordSink{}
	join(t, hub, sink, "Alpha")

	before := len(sink.messages())
	hub.HandleUpdate("ghost", &protocol.Update{Type: protocol.TypeUpdate})
	if len(sink.messages()) != before {
		t.Fatalf("update from unknown session must not fan out, got %#v", sink.messages())
	}
}

func TestDamageRelayedToTargetOnly(t *testing.T) {
	hub := newTestHub(t, goldstore.NewMemoryStore())
	sinkA := &recordSink{}
	idA := join(t, hub, sinkA, "Alpha")
	sinkB := &recordSink{}
	idB := join(t, hub, sinkB, "Bravo")
	sinkC := &recordSink{}
	join(t, hub, sinkC, "Charlie")

	beforeC := len(sinkC.messages())
	hub.HandlePlayerDamage(idA, &protocol.PlayerDamage{
		Type:         protocol.TypePlayerDamage,
		TargetID:     idB,
		Damage:       20,
		AttackerName: "Alpha",
	})

	msgsB := sinkB.messages()
	dmg, ok := msgsB[len(msgsB)-1].(protocol.PlayerDamage)
	if !ok || dmg.TargetID != idB || dmg.Damage != 20 || dmg.AttackerName != "Alpha" {
		t.Fatalf("expected relayed damage at B, got %#v", msgsB)
	}
	if len(sinkC.messages()) != beforeC {
		t.Fatalf("bystander must not receive damage, got %#v", sinkC.messages())
	}

	// Unknown target is a silent drop.
	hub.HandlePlayerDamage(idA, &protocol.PlayerDamage{Type: protocol.TypePlayerDamage, TargetID: "ghost", Damage: 20})
}

func TestDisconnectAnnouncesAndFlushesGold(t *testing.T) {
	store := goldstore.NewMemoryStore()
	hub := newTestHub(t, store)
	sinkA := &recordSink{}
	idA := join(t, hub, sinkA, "Alpha")
	sinkB := &recordSink{}
	join(t, hub, sinkB, "Bravo")

	gold := int64(350)
	hub.HandleUpdate(idA, &protocol.Update{Type: protocol.TypeUpdate, Gold: &gold})
	hub.Disconnect(idA)
	hub.Disconnect(idA) // idempotent

	msgsB := sinkB.messages()
	left, ok := msgsB[len(msgsB)-1].(protocol.PlayerLeft)
	if !ok || left.ID != idA {
		t.Fatalf("expected playerLeft for A at B, got %#v", msgsB)
	}
	if !sinkA.closed {
		t.Fatal("expected A's sink to be closed")
	}
	if hub.PlayerCount() != 1 {
		t.Fatalf("expected 1 session left, got %d", hub.PlayerCount())
	}
	waitFor(t, "gold flush", func() bool {
		stored, ok, err := store.Get(context.Background(), idA)
		return err == nil && ok && stored == 350
	})
}

func TestUnannouncedSessionInvisible(t *testing.T) {
	hub := newTestHub(t, goldstore.NewMemoryStore())
	silent := &recordSink{}
	hub.Register(silent)

	sink := &recordSink{}
	join(t, hub, sink, "Alpha")

	roster := sink.messages()[1].(protocol.Players)
	if len(roster.Players) != 1 {
		t.Fatalf("unannounced session must not appear in roster, got %#v", roster.Players)
	}
	if len(silent.messages()) != 0 {
		t.Fatalf("unannounced session must not receive fanout, got %#v", silent.messages())
	}
}

func TestWriteFailureClosesSink(t *testing.T) {
	hub := newTestHub(t, goldstore.NewMemoryStore())
	broken := &recordSink{fail: true}
	join(t, hub, broken, "Alpha")

	if !broken.closed {
		t.Fatal("expected failing sink to be closed")
	}
	// The session stays until its read loop runs Disconnect.
	if hub.PlayerCount() != 1 {
		t.Fatalf("expected session to remain registered, got %d", hub.PlayerCount())
	}
}

type countingStore struct {
	goldstore.Store
	mu   sync.Mutex
	sets int
}

func (s *countingStore) Set(ctx context.Context, playerID string, gold int64) error {
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()
	return s.Store.Set(ctx, playerID, gold)
}

func (s *countingStore) setCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func TestUnchangedGoldNotPersisted(t *testing.T) {
	store := &countingStore{Store: goldstore.NewMemoryStore()}
	hub := NewHub(store, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	sink := &recordSink{}
	id := hub.Register(sink)
	hub.HandleRequestPlayers(id, &protocol.RequestPlayers{Type: protocol.TypeRequestPlayers, Name: "Alpha"})

	gold := int64(42)
	for i := 0; i < 5; i++ {
		g := gold
		hub.HandleUpdate(id, &protocol.Update{Type: protocol.TypeUpdate, Gold: &g})
	}
	changed := int64(43)
	hub.HandleUpdate(id, &protocol.Update{Type: protocol.TypeUpdate, Gold: &changed})
	hub.HandleUpdate(id, &protocol.Update{Type: protocol.TypeUpdate, Gold: &changed})
	hub.Close()

	// Two distinct values were reported, so exactly two writes reach the
	// store no matter how often each was resent.
	if store.setCount() != 2 {
		t.Fatalf("expected 2 store writes for 2 gold transitions, got %d", store.setCount())
	}
}

func TestGoldPersistLastWriteWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := goldstore.NewMemoryStore()
		hub := NewHub(store, slog.New(slog.NewTextHandler(rapidWriter{t}, nil)))
		seq := 0
		hub.newID = func() string {
			seq++
			return fmt.Sprintf("player-%d", seq)
		}
		sink := &recordSink{}
		id := hub.Register(sink)
		hub.HandleRequestPlayers(id, &protocol.RequestPlayers{Type: protocol.TypeRequestPlayers})

		writes := rapid.SliceOfN(rapid.Int64Range(0, 100_000), 1, 40).Draw(t, "golds")
		for _, gold := range writes {
			g := gold
			hub.HandleUpdate(id, &protocol.Update{Type: protocol.TypeUpdate, Gold: &g})
		}
		hub.Disconnect(id)
		hub.Close()

		stored, ok, err := store.Get(context.Background(), id)
		if err != nil || !ok {
			t.Fatalf("Get = (%d,%v,%v)", stored, ok, err)
		}
		if want := writes[len(writes)-1]; stored != want {
			t.Fatalf("stored %d, want last reported %d", stored, want)
		}
	})
}

type rapidWriter struct{ t *rapid.T }

func (w rapidWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
