/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection. Its ID doubles as the player
// identity for the lifetime of the connection; there is no resumption.
type Client struct {
	conn *websocket.Conn
	send chan any
	id   string
}

func (c *Client) trySend(msg any) {
	select {
	case c.send <- msg:
	default:
	}
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	return hex.EncodeToString(buf)
}

// serveDuelSocket upgrades the connection and runs the intent loop.
func serveDuelSocket(cfg *Config, mgr *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		id := newConnID()
		if id == "" {
			http.Error(w, "unable to assign connection id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn: conn,
			send: make(chan any, 32),
			id:   id,
		}

		logf(cfg, "GAMES: Connection %s opened from %s", id, realIP(r))

		mgr.addClient(client)

		go client.writePump()
		client.readPump(cfg, mgr)
	}
}

// readPump decodes inbound intents and dispatches them. Payloads that
// fail to parse or fail shape checks are dropped without touching any
// room state; only transport errors end the loop.
func (c *Client) readPump(cfg *Config, mgr *RoomManager) {
	defer func() {
		mgr.disconnect(c)
		close(c.send)
		_ = c.conn.Close()
		logf(cfg, "GAMES: Connection %s closed", c.id)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Intent
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "create-room":
			c.trySend(mgr.createRoom(c, msg.RoomName, msg.RoomCode))

		case "join-room":
			if msg.RoomCode == "" {
				continue
			}
			c.trySend(mgr.joinRoom(c, msg.RoomCode))

		case "request-room-list":
			c.trySend(mgr.roomList())

		case "configure-player":
			if msg.Name == "" || len(msg.Topics) != 2 || msg.Topics[0] == msg.Topics[1] {
				continue
			}
			if room := mgr.roomFor(c.id); room != nil {
				room.configure(c.id, msg.Name, msg.Avatar, msg.Topics)
			}

		case "spin-wheel":
			if room := mgr.roomFor(c.id); room != nil {
				room.spinWheel(c.id)
			}

		case "answer-question":
			if msg.Choice == nil {
				continue
			}
			if room := mgr.roomFor(c.id); room != nil {
				room.answer(c.id, *msg.Choice)
			}

		case "question-timeout":
			if room := mgr.roomFor(c.id); room != nil {
				room.timeout(c.id)
			}

		case "get-server-stats":
			c.trySend(mgr.stats())

		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// qrHandler generates a PNG QR code for a room's join URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:code/qr; strip trailing "/qr" to get the join URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerDuelGame sets up routes so that:
//   - $path             → WebSocket carrying all game intents
//   - $path/:code/qr    → PNG QR code linking to a room
func registerDuelGame(cfg *Config, path string, mux *httprouter.Router, mgr *RoomManager) {
	mux.GET(cfg.prefix+path, serveDuelSocket(cfg, mgr))
	mux.GET(cfg.prefix+path+"/:code/qr", qrHandler)
}
