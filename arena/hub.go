// Package arena holds the server-side session registry, fanout, and
// connection protocol handling for the multiplayer arena.
package arena

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TamimC/VibeGameSpace/goldstore"
	"github.com/TamimC/VibeGameSpace/protocol"
)

// messageSink is the write side of a client connection. *websocket.Conn
// satisfies it; tests use in-memory fakes.
type messageSink interface {
	WriteJSON(v any) error
	Close() error
}

var spawnPosition = protocol.Vec3{X: 0, Y: 10, Z: 30}

const storeTimeout = 5 * time.Second

type session struct {
	info      protocol.PlayerInfo
	sink      messageSink
	announced bool
}

// Hub is the authoritative session registry. Every registry mutation and the
// fanout writes it causes happen under one mutex, so every connection
// observes events in the order the hub processed them.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session

	store  goldstore.Store
	logger *slog.Logger
	newID  func() string

	persistCh   chan goldWrite
	persistDone chan struct{}
}

type goldWrite struct {
	id   string
	gold int64
}

// NewHub builds a hub backed by the given stat store and starts its persist
// worker. Call Close when the hub is no longer needed.
func NewHub(store goldstore.Store, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		sessions:    make(map[string]*session),
		store:       store,
		logger:      logger,
		newID:       uuid.NewString,
		persistCh:   make(chan goldWrite, 256),
		persistDone: make(chan struct{}),
	}
	go h.persistWorker()
	return h
}

// Close drains and stops the persist worker.
func (h *Hub) Close() {
	close(h.persistCh)
	<-h.persistDone
}

// Register admits a new connection, assigns it a session id, and starts the
// async gold seed. The player stays invisible to others until its
// requestPlayers arrives.
func (h *Hub) Register(sink messageSink) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.newID()
	h.sessions[id] = &session{
		info: protocol.PlayerInfo{
			ID:       id,
			Position: spawnPosition,
			Name:     defaultName(id),
			Color:    "#ffffff",
		},
		sink: sink,
	}
	h.logger.Info("session registered", "id", id, "sessions", len(h.sessions))

	go h.seedGold(id)
	return id
}

// seedGold loads the persisted balance and folds it into the session if the
// player is still connected. The session starts at zero gold in the
// meantime, so an init sent before the load lands reports zero.
func (h *Hub) seedGold(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	gold, ok, err := h.store.Get(ctx, id)
	if err != nil {
		h.logger.Error("gold seed failed", "id", id, "error", err)
		return
	}
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sess, alive := h.sessions[id]
	if !alive {
		return
	}
	sess.info.Gold = gold
}

// HandleRequestPlayers completes the join handshake: the session takes the
// reported identity, the joiner receives init plus the full roster, and
// everyone else learns about the new player.
func (h *Hub) HandleRequestPlayers(id string, msg *protocol.RequestPlayers) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.sessions[id]
	if !ok {
		return
	}
	if msg.Name != "" {
		sess.info.Name = msg.Name
	}
	if msg.Color != "" {
		sess.info.Color = msg.Color
	}
	sess.announced = true

	h.writeLocked(id, sess, protocol.Init{
		Type:  protocol.TypeInit,
		ID:    id,
		Gold:  sess.info.Gold,
		Name:  sess.info.Name,
		Color: sess.info.Color,
	})
	h.writeLocked(id, sess, protocol.Players{
		Type:    protocol.TypePlayers,
		Players: h.rosterLocked(),
	})
	h.broadcastLocked(id, protocol.NewPlayer{
		Type:       protocol.TypeNewPlayer,
		PlayerInfo: sess.info,
	})
}

// HandleUpdate folds a transform report into the registry and replicates it
// to every other connection. A reported gold value overwrites the durable
// balance only when it differs from the last known value; clients resend
// gold with every update, so unchanged balances must not reach the store.
func (h *Hub) HandleUpdate(id string, msg *protocol.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.sessions[id]
	if !ok {
		return
	}
	sess.info.Position = msg.Position
	sess.info.Rotation = msg.Rotation
	if gold, reported := msg.GoldValue(); reported && gold != sess.info.Gold {
		sess.info.Gold = gold
		h.enqueuePersistLocked(id, gold)
	}

	h.broadcastLocked(id, protocol.PlayerUpdate{
		Type:       protocol.TypePlayerUpdate,
		PlayerInfo: sess.info,
	})
}

// HandlePlayerDamage relays a damage report to the target connection. The
// hub does not arbitrate the hit; resolution happens on the target client.
func (h *Hub) HandlePlayerDamage(id string, msg *protocol.PlayerDamage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	target, ok := h.sessions[msg.TargetID]
	if !ok {
		h.logger.Debug("damage for unknown target", "from", id, "target", msg.TargetID)
		return
	}
	h.writeLocked(msg.TargetID, target, protocol.PlayerDamage{
		Type:         protocol.TypePlayerDamage,
		TargetID:     msg.TargetID,
		Damage:       msg.Damage,
		AttackerName: msg.AttackerName,
	})
}

// HandlePlayerDied records a death notice. Deaths are not fanned out; peers
// infer respawn from the next update.
func (h *Hub) HandlePlayerDied(id string, msg *protocol.PlayerDied) {
	h.logger.Info("player died", "id", id, "reportedId", msg.PlayerID)
}

// Disconnect removes the session, persists its last known gold, and tells
// the remaining connections the player left. Safe to call more than once.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.sessions[id]
	if !ok {
		return
	}
	delete(h.sessions, id)
	_ = sess.sink.Close()
	h.logger.Info("session closed", "id", id, "sessions", len(h.sessions))

	h.enqueuePersistLocked(id, sess.info.Gold)

	if sess.announced {
		h.broadcastLocked(id, protocol.PlayerLeft{Type: protocol.TypePlayerLeft, ID: id})
	}
}

// enqueuePersistLocked hands a balance to the persist worker. Writes for a
// player reach the store in hub order, which keeps the durable balance at
// the last reported value. A full queue drops the write; the next update or
// the disconnect flush carries the balance again.
func (h *Hub) enqueuePersistLocked(id string, gold int64) {
	select {
	case h.persistCh <- goldWrite{id: id, gold: gold}:
	default:
		h.logger.Warn("persist queue full, dropping write", "id", id)
	}
}

func (h *Hub) persistWorker() {
	defer close(h.persistDone)
	for w := range h.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := h.store.Set(ctx, w.id, w.gold)
		cancel()
		if err != nil {
			h.logger.Error("gold persist failed", "id", w.id, "error", err)
		}
	}
}

// rosterLocked snapshots every announced player, sorted by id.
func (h *Hub) rosterLocked() []protocol.PlayerInfo {
	roster := make([]protocol.PlayerInfo, 0, len(h.sessions))
	for _, sess := range h.sessions {
		if !sess.announced {
			continue
		}
		roster = append(roster, sess.info)
	}
	sort.Slice(roster, func(left int, right int) bool {
		return roster[left].ID < roster[right].ID
	})
	return roster
}

// broadcastLocked fans a message out to every announced session except the
// originator.
func (h *Hub) broadcastLocked(excludeID string, msg any) {
	for id, sess := range h.sessions {
		if id == excludeID || !sess.announced {
			continue
		}
		h.writeLocked(id, sess, msg)
	}
}

// writeLocked sends one message to one sink. On failure the sink is closed;
// the connection's read loop notices and runs the disconnect path, so the
// registry is never mutated from here.
func (h *Hub) writeLocked(id string, sess *session, msg any) {
	if err := sess.sink.WriteJSON(msg); err != nil {
		h.logger.Warn("write failed, dropping connection", "id", id, "error", err)
		_ = sess.sink.Close()
	}
}

// PlayerCount reports the number of registered sessions.
func (h *Hub) PlayerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func defaultName(id string) string {
	short := id
	if len(short) > 4 {
		short = short[:4]
	}
	return "Pilot-" + short
}
