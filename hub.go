/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"slices"
	"sort"

	"github.com/Seednode/liedetector/store"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const playerCookieName = "liedetector_id"

// StateMessage is pushed to every open tab of a player after their state
// changes, so tabs never show each other stale scores.
type StateMessage struct {
	Type        string       `json:"type"` // "state"
	CurrentUser store.User   `json:"currentUser"`
	Leaderboard []store.User `json:"leaderboard"`
	Statements  int          `json:"statements"`
}

type outbound struct {
	playerID string
	msg      any
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

// Hub fans state messages out to the websocket clients of each player.
type Hub struct {
	cfg     *Config
	clients map[*Client]bool

	register  chan *Client
	unreg     chan *Client
	broadcast chan outbound
	done      chan struct{}
}

func newHub(cfg *Config) *Hub {
	return &Hub{
		cfg:       cfg,
		clients:   make(map[*Client]bool),
		register:  make(chan *Client),
		unreg:     make(chan *Client),
		broadcast: make(chan outbound, 64),
		done:      make(chan struct{}),
	}
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true

		case c := <-h.unreg:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case out := <-h.broadcast:
			for c := range h.clients {
				if c.playerID != out.playerID {
					continue
				}

				select {
				case c.send <- out.msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}

		case <-h.done:
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		}
	}
}

func (h *Hub) stop() {
	close(h.done)
}

// publish is the session commit hook. It never blocks the committing
// manager; if the hub is backed up the update is dropped and the next
// commit carries the full state anyway.
func (h *Hub) publish(playerID string, snap store.Snapshot) {
	board := slices.Clone(snap.Users)
	sort.SliceStable(board, func(i, j int) bool {
		return board[i].Score > board[j].Score
	})

	owned := 0
	for _, s := range snap.Statements {
		if s.UserID == snap.CurrentUser.ID {
			owned++
		}
	}

	select {
	case h.broadcast <- outbound{playerID: playerID, msg: StateMessage{
		Type:        "state",
		CurrentUser: snap.CurrentUser,
		Leaderboard: board,
		Statements:  owned,
	}}:
	default:
		logf(h.cfg, "ERROR: Dropped state update for %s", playerID)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	// Later lookups in this request see the new id.
	r.AddCookie(&http.Cookie{Name: playerCookieName, Value: id})

	return id
}

func serveWS(cfg *Config, g *game) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		m, err := g.registry.Get(r.Context(), playerID)
		if err != nil {
			http.Error(w, "unable to load player", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Websocket upgrade for %s failed: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		select {
		case g.hub.register <- client:
		case <-g.hub.done:
			_ = conn.Close()
			return
		}

		logf(cfg, "SERVE: Websocket opened for %s (%s)", playerID, realIP(r))

		// Start the tab off with the current state.
		g.hub.publish(playerID, m.Snapshot())

		go client.writePump()
		client.readPump(g.hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	// Clients only listen; anything they send is discarded.
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
