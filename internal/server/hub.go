package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/HoudaChairi/Ft-transcendence/internal/matchmaking"
	"github.com/HoudaChairi/Ft-transcendence/internal/registry"
	"github.com/HoudaChairi/Ft-transcendence/internal/store"
)

// Options configures a Hub. Zero values get defaults.
type Options struct {
	MaxConnsPerIP int
	MaxTotalConns int
	MessageRate   float64
	MessageBurst  int
	Avatars       store.AvatarResolver
	Identity      *IdentityVerifier
	Logger        *slog.Logger
}

// Hub tracks every connection and hands identified players to the
// registry and the matchmaking manager.
type Hub struct {
	reg  *registry.Registry
	mgr  *matchmaking.Manager
	opts Options

	logger *slog.Logger

	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Connection limiting (accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
}

// NewHub creates a Hub. Call Run to process connection events.
func NewHub(reg *registry.Registry, mgr *matchmaking.Manager, opts Options) *Hub {
	if opts.MaxConnsPerIP <= 0 {
		opts.MaxConnsPerIP = 5
	}
	if opts.MaxTotalConns <= 0 {
		opts.MaxTotalConns = 1000
	}
	if opts.MessageRate <= 0 {
		opts.MessageRate = 30
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = 30
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		reg:        reg,
		mgr:        mgr,
		opts:       opts,
		logger:     opts.Logger.With(slog.String("component", "server")),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		ipConns:    make(map[string]int),
	}
}

// TrackConnect counts a new connection from ip, or reports false when
// either connection limit is reached.
func (h *Hub) TrackConnect(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= h.opts.MaxTotalConns || h.ipConns[ip] >= h.opts.MaxConnsPerIP {
		return false
	}
	h.ipConns[ip]++
	h.totalConns++
	return true
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events until ctx is cancelled, then
// closes every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c]
			delete(h.clients, c)
			h.mu.Unlock()
			if ok {
				h.release(c, true)
			}
		}
	}
}

// release forgets a closed connection. The player is disconnected only if
// this connection is still the one bound to them; a replaced connection
// leaves the player's session alone. Without forfeit the player is
// unbound but their session is left to the manager, which is how a server
// stop abandons games instead of scoring them.
func (h *Hub) release(c *Client, forfeit bool) {
	c.released.Do(func() {
		c.closeSend()
		player := c.Player()
		if player == "" {
			return
		}
		if !h.reg.Unbind(player, c) {
			return
		}
		if !forfeit {
			return
		}
		h.logger.Info("player disconnected", slog.String("player", player))
		h.mgr.Disconnect(player)
	})
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	clear(h.clients)
	h.mu.Unlock()
	for _, c := range clients {
		h.release(c, false)
		c.Close()
	}
}

// enqueue hands c to Run, or handles it inline once Run has stopped
func (h *Hub) enqueue(ch chan *Client, c *Client) {
	stopped := func() {
		if ch == h.unregister {
			h.release(c, false)
		} else {
			c.Close()
		}
	}
	select {
	case <-h.done:
		stopped()
		return
	default:
	}
	select {
	case ch <- c:
	case <-h.done:
		stopped()
	}
}

// ClientCount returns the number of registered connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}

func (h *Hub) avatarFor(player string) string {
	if h.opts.Avatars == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url, err := h.opts.Avatars.ResolveAvatar(ctx, player)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.logger.Warn("avatar lookup failed", slog.String("player", player), slog.Any("error", err))
		}
		return ""
	}
	return url
}
