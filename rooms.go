/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	randv2 "math/rand/v2"
)

// randRead is swappable for tests.
var randRead = rand.Read

// RoomManager is the session directory: it owns the set of live rooms,
// generates codes, maps connections back to their room, and keeps every
// connected client's room listing fresh.
type RoomManager struct {
	cfg  *Config
	bank *QuestionBank

	mu      sync.Mutex
	rooms   map[string]*Room
	byConn  map[string]string
	clients map[*Client]bool
}

func newRoomManager(cfg *Config, bank *QuestionBank) *RoomManager {
	return &RoomManager{
		cfg:     cfg,
		bank:    bank,
		rooms:   make(map[string]*Room),
		byConn:  make(map[string]string),
		clients: make(map[*Client]bool),
	}
}

func (m *RoomManager) addClient(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[c] = true
	c.trySend(RoomListMessage{Type: "room-list-updated", Rooms: m.publicRoomsLocked()})
}

// newRoomCodeLocked generates a crypto-random room code and ensures it
// doesn't collide with existing rooms.
func (m *RoomManager) newRoomCodeLocked() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for {
		buf := make([]byte, 6)
		if _, err := randRead(buf); err != nil {
			return "", err
		}
		out := make([]byte, 6)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		code := string(out)

		if _, exists := m.rooms[code]; !exists {
			return code, nil
		}
	}
}

// newRoomRNG seeds each room's selection RNG from crypto/rand, degrading
// to a time-based seed if the system source fails. Tests construct rooms
// directly with a fixed seed instead.
func newRoomRNG() *randv2.Rand {
	var buf [16]byte
	if _, err := randRead(buf[:]); err != nil {
		now := uint64(time.Now().UnixNano())
		return randv2.New(randv2.NewPCG(now, now^0x9e3779b97f4a7c15))
	}
	return randv2.New(randv2.NewPCG(
		binary.LittleEndian.Uint64(buf[:8]),
		binary.LittleEndian.Uint64(buf[8:]),
	))
}

func (m *RoomManager) createRoom(c *Client, roomName, desiredCode string) RoomResultMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byConn[c.id] != "" {
		return RoomResultMessage{Type: "room-creation-result", Error: "you are already in a room"}
	}

	code := desiredCode
	if code != "" {
		if _, exists := m.rooms[code]; exists {
			return RoomResultMessage{Type: "room-creation-result", Error: errDuplicateCode.Error()}
		}
	} else {
		generated, err := m.newRoomCodeLocked()
		if err != nil {
			logf(m.cfg, "GAMES: Unable to generate a room code: %v", err)
			return RoomResultMessage{Type: "room-creation-result", Error: "unable to generate a room code"}
		}
		code = generated
	}

	name := roomName
	if name == "" {
		name = code
	}

	room := newRoom(m.cfg, m.bank, code, name, newRoomRNG())

	slot, err := room.addPlayer(c)
	if err != nil {
		return RoomResultMessage{Type: "room-creation-result", Error: err.Error()}
	}

	m.rooms[code] = room
	m.byConn[c.id] = code

	logf(m.cfg, "GAMES: Room %s created by %s", code, c.id)
	m.broadcastRoomListLocked()

	return RoomResultMessage{Type: "room-creation-result", Success: true, RoomCode: code, Slot: &slot}
}

func (m *RoomManager) joinRoom(c *Client, code string) RoomResultMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byConn[c.id] != "" {
		return RoomResultMessage{Type: "room-join-result", Error: "you are already in a room"}
	}

	room, ok := m.rooms[code]
	if !ok {
		return RoomResultMessage{Type: "room-join-result", Error: errRoomNotFound.Error()}
	}

	slot, err := room.addPlayer(c)
	if err != nil {
		return RoomResultMessage{Type: "room-join-result", Error: err.Error()}
	}

	m.byConn[c.id] = code

	logf(m.cfg, "GAMES: %s joined room %s", c.id, code)
	m.broadcastRoomListLocked()

	return RoomResultMessage{Type: "room-join-result", Success: true, RoomCode: code, Slot: &slot}
}

// roomFor routes an in-game intent to the sender's room, if any.
func (m *RoomManager) roomFor(connID string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	code, ok := m.byConn[connID]
	if !ok {
		return nil
	}
	return m.rooms[code]
}

// publicRoomsLocked lists all joinable (not yet started) rooms,
// newest first.
func (m *RoomManager) publicRoomsLocked() []RoomSummary {
	out := make([]RoomSummary, 0, len(m.rooms))
	for _, room := range m.rooms {
		if room.isStarted() {
			continue
		}
		out = append(out, room.summary())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})

	return out
}

func (m *RoomManager) roomList() RoomListMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	return RoomListMessage{Type: "room-list-updated", Rooms: m.publicRoomsLocked()}
}

func (m *RoomManager) broadcastRoomListLocked() {
	msg := RoomListMessage{Type: "room-list-updated", Rooms: m.publicRoomsLocked()}
	for c := range m.clients {
		c.trySend(msg)
	}
}

// disconnect tears down a connection: the player leaves their room, the
// room is pruned when empty (or unstarted with one player left), and the
// client leaves the lobby listing.
func (m *RoomManager) disconnect(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.clients, c)

	code, ok := m.byConn[c.id]
	if !ok {
		return
	}
	delete(m.byConn, c.id)

	room, ok := m.rooms[code]
	if !ok {
		return
	}

	remaining, started := room.removePlayer(c.id)

	if remaining == 0 || (!started && remaining == 1) {
		room.close()
		delete(m.rooms, code)
		for id, roomCode := range m.byConn {
			if roomCode == code {
				delete(m.byConn, id)
			}
		}
		logf(m.cfg, "GAMES: Room %s removed", code)
	}

	m.broadcastRoomListLocked()
}

func (m *RoomManager) stats() ServerStatsMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := ServerStatsMessage{
		Type:       "server-stats",
		TotalRooms: len(m.rooms),
	}
	for _, room := range m.rooms {
		if room.isStarted() {
			stats.ActiveGames++
		} else {
			stats.WaitingRooms++
		}
		stats.TotalPlayers += room.playerCount()
	}

	return stats
}
