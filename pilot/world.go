// Package pilot is the client-side half of the arena: it mirrors the other
// players reported by the server, runs local combat resolution, and keeps
// the gun capture watchdog alive.
package pilot

import (
	"sort"

	"github.com/TamimC/VibeGameSpace/protocol"
)

// Remote is the last known state of another player's ship.
type Remote struct {
	ID       string
	Position protocol.Vec3
	Rotation protocol.Vec3
	Name     string
	Color    string
}

// BoardEntry is one leaderboard row.
type BoardEntry struct {
	ID   string
	Name string
	Gold int64
}

// World is the remote entity cache plus the leaderboard. All state flows in
// through Apply methods driven by server messages; echoes of the local
// player are dropped.
type World struct {
	selfID   string
	selfName string
	selfGold int64
	remotes  map[string]*Remote
	board    map[string]BoardEntry
}

func NewWorld() *World {
	return &World{
		remotes: make(map[string]*Remote),
		board:   make(map[string]BoardEntry),
	}
}

// SelfID reports the session id assigned by the server, empty before init.
func (w *World) SelfID() string { return w.selfID }

func (w *World) ApplyInit(msg *protocol.Init) {
	w.selfID = msg.ID
	w.selfName = msg.Name
	w.selfGold = msg.Gold
	w.board[msg.ID] = BoardEntry{ID: msg.ID, Name: msg.Name, Gold: msg.Gold}
}

// ApplyPlayers replaces the whole remote cache with the roster snapshot.
func (w *World) ApplyPlayers(msg *protocol.Players) {
	w.remotes = make(map[string]*Remote, len(msg.Players))
	for _, p := range msg.Players {
		if p.ID == w.selfID {
			continue
		}
		w.remotes[p.ID] = &Remote{
			ID:       p.ID,
			Position: p.Position,
			Rotation: p.Rotation,
			Name:     p.Name,
			Color:    p.Color,
		}
		w.board[p.ID] = BoardEntry{ID: p.ID, Name: p.Name, Gold: p.Gold}
	}
}

func (w *World) ApplyNewPlayer(msg *protocol.NewPlayer) {
	if msg.ID == w.selfID {
		return
	}
	w.remotes[msg.ID] = &Remote{
		ID:       msg.ID,
		Position: msg.Position,
		Rotation: msg.Rotation,
		Name:     msg.Name,
		Color:    msg.Color,
	}
	w.board[msg.ID] = BoardEntry{ID: msg.ID, Name: msg.Name, Gold: msg.Gold}
}

// ApplyPlayerUpdate folds a replicated transform into the cache. Updates for
// ships that were never announced are dropped.
func (w *World) ApplyPlayerUpdate(msg *protocol.PlayerUpdate) {
	if msg.ID == w.selfID {
		return
	}
	remote, ok := w.remotes[msg.ID]
	if !ok {
		return
	}
	remote.Position = msg.Position
	remote.Rotation = msg.Rotation
	if msg.Name != "" {
		remote.Name = msg.Name
	}
	w.board[msg.ID] = BoardEntry{ID: msg.ID, Name: remote.Name, Gold: msg.Gold}
}

// NameOf resolves a player id to its display name via the leaderboard. The
// wire carries names only on join and update messages, so departure events
// need this lookup. Falls back to the raw id for players never seen with a
// name.
func (w *World) NameOf(id string) string {
	if entry, ok := w.board[id]; ok && entry.Name != "" {
		return entry.Name
	}
	return id
}

func (w *World) ApplyPlayerLeft(msg *protocol.PlayerLeft) {
	if msg.ID == w.selfID {
		return
	}
	delete(w.remotes, msg.ID)
	delete(w.board, msg.ID)
}

// SetSelfGold keeps the local leaderboard row in step with the ship.
func (w *World) SetSelfGold(gold int64) {
	w.selfGold = gold
	if w.selfID == "" {
		return
	}
	w.board[w.selfID] = BoardEntry{ID: w.selfID, Name: w.selfName, Gold: gold}
}

// Remotes snapshots the cache, sorted by id.
func (w *World) Remotes() []Remote {
	remotes := make([]Remote, 0, len(w.remotes))
	for _, r := range w.remotes {
		remotes = append(remotes, *r)
	}
	sort.Slice(remotes, func(left int, right int) bool {
		return remotes[left].ID < remotes[right].ID
	})
	return remotes
}

// Ranked returns the leaderboard ordered by gold, richest first. Ties break
// by id so the order is stable.
func (w *World) Ranked() []BoardEntry {
	entries := make([]BoardEntry, 0, len(w.board))
	for _, e := range w.board {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(left int, right int) bool {
		if entries[left].Gold != entries[right].Gold {
			return entries[left].Gold > entries[right].Gold
		}
		return entries[left].ID < entries[right].ID
	})
	return entries
}
