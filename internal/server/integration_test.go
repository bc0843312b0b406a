package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/HoudaChairi/Ft-transcendence/internal/config"
	"github.com/HoudaChairi/Ft-transcendence/internal/match"
	"github.com/HoudaChairi/Ft-transcendence/internal/matchmaking"
	"github.com/HoudaChairi/Ft-transcendence/internal/registry"
	"github.com/HoudaChairi/Ft-transcendence/internal/store"
	"github.com/HoudaChairi/Ft-transcendence/internal/store/memory"
	"github.com/HoudaChairi/Ft-transcendence/internal/testutil"
	"github.com/HoudaChairi/Ft-transcendence/internal/tournament"
)

type testEnv struct {
	srv     *httptest.Server
	wsURL   string
	reg     *registry.Registry
	mgr     *matchmaking.Manager
	hub     *Hub
	coord   *tournament.Coordinator
	results *memory.Storage
	stop    context.CancelFunc
}

func fastGame() config.Game {
	g := config.DefaultGame()
	g.StartDelay = 0
	g.TickInterval = 10 * time.Millisecond
	return g
}

// startTestServer wires a full stack behind an httptest.Server
func startTestServer(t *testing.T, opts Options) *testEnv {
	t.Helper()
	logger := testutil.NopLogger()
	mem := memory.New()
	rec := store.NewRecorder(mem, clockwork.NewRealClock(), logger)

	reg := registry.New()
	mgr := matchmaking.New(reg, matchmaking.Options{Game: fastGame(), Results: rec, Logger: logger})
	coord := tournament.New(mgr, reg, tournament.Options{Logger: logger})
	mgr.SetBracketFormer(coord)

	if opts.Avatars == nil {
		opts.Avatars = mem
	}
	opts.Logger = logger
	hub := NewHub(reg, mgr, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	go coord.Run(ctx)

	srv := httptest.NewServer(SetupRoutes(hub, mem))
	t.Cleanup(func() {
		cancel()
		srv.Close()
		mgr.Close()
		rec.Close()
	})
	return &testEnv{
		srv:     srv,
		wsURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		reg:     reg,
		mgr:     mgr,
		hub:     hub,
		coord:   coord,
		results: mem,
		stop:    cancel,
	}
}

func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	kind, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	if kind == websocket.BinaryMessage {
		require.NoError(t, msgpack.Unmarshal(raw, &m))
	} else {
		require.NoError(t, json.Unmarshal(raw, &m))
	}
	return m
}

// readUntil skips messages until one of type typ arrives
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for {
		m := readMsg(t, conn)
		if m["type"] == typ {
			return m
		}
	}
}

func identify(t *testing.T, env *testEnv, player string) *websocket.Conn {
	t.Helper()
	conn := dialWS(t, env.wsURL)
	send(t, conn, map[string]string{"playerId": player})
	ack := readUntil(t, conn, "identified")
	require.Equal(t, player, ack["playerId"])
	return conn
}

func TestPingAndErrors(t *testing.T) {
	env := startTestServer(t, Options{})
	conn := dialWS(t, env.wsURL)

	send(t, conn, map[string]string{"type": "ping"})
	assert.Equal(t, "pong", readMsg(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "error", readMsg(t, conn)["type"])

	send(t, conn, map[string]string{"type": "teleport"})
	assert.Equal(t, "error", readMsg(t, conn)["type"])

	send(t, conn, map[string]string{"type": "join_queue"})
	m := readMsg(t, conn)
	assert.Equal(t, "error", m["type"])
	assert.Equal(t, errIdentifyFirst, m["message"])

	// A bad direction is dropped silently; the connection stays usable.
	send(t, conn, map[string]string{"action": "move", "direction": "sideways"})
	send(t, conn, map[string]string{"type": "ping"})
	assert.Equal(t, "pong", readMsg(t, conn)["type"])
}

func TestCasualMatchAndForfeit(t *testing.T) {
	env := startTestServer(t, Options{})
	alice := identify(t, env, "alice")
	bob := identify(t, env, "bob")

	send(t, alice, map[string]string{"type": "join_queue"})
	q := readUntil(t, alice, "queued")
	assert.Equal(t, "casual", q["mode"])
	assert.EqualValues(t, 1, q["position"])

	send(t, bob, map[string]string{"type": "join_queue"})

	start := readUntil(t, alice, "game_start")
	players := start["players"].(map[string]any)
	assert.Equal(t, "alice", players["player1"].(map[string]any)["id"])
	assert.Equal(t, "bob", players["player2"].(map[string]any)["id"])
	readUntil(t, bob, "game_start")

	send(t, alice, map[string]string{"action": "move", "direction": "up"})
	update := readUntil(t, alice, "update")
	assert.Contains(t, update, "ballPosition")
	assert.Contains(t, update, "paddleBoxes")

	bob.Close()
	end := readUntil(t, alice, "game_end")
	assert.Equal(t, "alice", end["winner"])
	assert.Equal(t, "disconnect", end["reason"])

	require.Eventually(t, func() bool { return len(env.results.Results()) == 1 }, 2*time.Second, 10*time.Millisecond)
	res := env.results.Results()[0]
	assert.Equal(t, "alice", res.Winner)
	assert.Equal(t, "disconnect", res.Reason)
	require.Eventually(t, func() bool { return env.reg.Stats().Sessions == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubShutdownAbandonsSessions(t *testing.T) {
	env := startTestServer(t, Options{})
	alice := identify(t, env, "alice")
	bob := identify(t, env, "bob")

	send(t, alice, map[string]string{"type": "join_queue"})
	readUntil(t, alice, "queued")
	send(t, bob, map[string]string{"type": "join_queue"})
	readUntil(t, alice, "game_start")
	readUntil(t, bob, "game_start")
	e, ok := env.reg.SessionFor("alice")
	require.True(t, ok)

	env.stop()
	require.Eventually(t, func() bool {
		return !env.reg.Online("alice") && !env.reg.Online("bob")
	}, 2*time.Second, 10*time.Millisecond)

	assert.Never(t, func() bool { return len(env.results.Results()) > 0 }, 200*time.Millisecond, 20*time.Millisecond,
		"closing the hub must not score the game")
	assert.NotEqual(t, match.Ended, e.Phase())
}

func TestInviteFlow(t *testing.T) {
	env := startTestServer(t, Options{})
	alice := identify(t, env, "alice")
	bob := identify(t, env, "bob")

	send(t, alice, map[string]string{"type": "invite", "recipient": "carol"})
	assert.Equal(t, matchmaking.ErrRecipientOffline.Error(), readUntil(t, alice, "error")["message"])

	send(t, alice, map[string]string{"type": "invite", "recipient": "bob"})
	sent := readUntil(t, alice, "invite_sent")
	notice := readUntil(t, bob, "invite")
	assert.Equal(t, "alice", notice["sender"])
	assert.Equal(t, sent["inviteId"], notice["inviteId"])

	send(t, bob, map[string]any{"type": "invite_response", "inviteId": notice["inviteId"], "response": "accept"})
	readUntil(t, alice, "game_start")
	readUntil(t, bob, "game_start")

	// A second accept is a no-op rather than an error or a new session.
	send(t, bob, map[string]any{"type": "invite_response", "inviteId": notice["inviteId"], "response": "accept"})
	send(t, bob, map[string]string{"type": "ping"})
	readUntil(t, bob, "pong")
	assert.Equal(t, 1, env.reg.Stats().Sessions)
}

func TestMsgpackEncoding(t *testing.T) {
	env := startTestServer(t, Options{})
	conn := dialWS(t, env.wsURL)
	send(t, conn, map[string]string{"playerId": "alice", "encoding": "msgpack"})

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	kind, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	var m map[string]any
	require.NoError(t, msgpack.Unmarshal(raw, &m))
	assert.Equal(t, "identified", m["type"])
}

func TestIdentityTokens(t *testing.T) {
	verifier := NewIdentityVerifier("s3cret")
	env := startTestServer(t, Options{Identity: verifier})
	conn := dialWS(t, env.wsURL)

	send(t, conn, map[string]string{"playerId": "alice"})
	assert.Equal(t, ErrBadIdentity.Error(), readUntil(t, conn, "error")["message"])

	bobs, err := verifier.Mint("bob", time.Minute)
	require.NoError(t, err)
	send(t, conn, map[string]string{"playerId": "alice", "token": bobs})
	readUntil(t, conn, "error")
	assert.False(t, env.reg.Online("alice"))

	token, err := verifier.Mint("alice", time.Minute)
	require.NoError(t, err)
	send(t, conn, map[string]string{"playerId": "alice", "token": token})
	readUntil(t, conn, "identified")
	assert.True(t, env.reg.Online("alice"))
}

func TestConnectionLimit(t *testing.T) {
	env := startTestServer(t, Options{MaxConnsPerIP: 1})
	dialWS(t, env.wsURL)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := startTestServer(t, Options{MessageRate: 0.001, MessageBurst: 2})
	conn := dialWS(t, env.wsURL)

	for range 3 {
		send(t, conn, map[string]string{"type": "ping"})
	}
	assert.Equal(t, "pong", readMsg(t, conn)["type"])
	assert.Equal(t, "pong", readMsg(t, conn)["type"])
	m := readMsg(t, conn)
	assert.Equal(t, "error", m["type"])
	assert.Equal(t, "rate limit exceeded", m["message"])
}

func TestReplacedConnection(t *testing.T) {
	env := startTestServer(t, Options{})
	first := identify(t, env, "alice")
	second := identify(t, env, "alice")

	first.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	send(t, second, map[string]string{"type": "ping"})
	readUntil(t, second, "pong")
	assert.True(t, env.reg.Online("alice"), "replacement keeps the player online")
}

func TestReidentify(t *testing.T) {
	env := startTestServer(t, Options{})
	conn := identify(t, env, "alice")

	send(t, conn, map[string]string{"playerId": "alice"})
	readUntil(t, conn, "identified")

	send(t, conn, map[string]string{"playerId": "mallory"})
	readUntil(t, conn, "error")
	assert.False(t, env.reg.Online("mallory"))
}

func TestAvatarResolvedOnIdentify(t *testing.T) {
	env := startTestServer(t, Options{})
	require.NoError(t, env.results.SetAvatar(context.Background(), "alice", "https://cdn.example/a.png"))

	alice := identify(t, env, "alice")
	bob := dialWS(t, env.wsURL)
	send(t, bob, map[string]string{"playerId": "bob", "avatar": "https://cdn.example/b.png"})
	readUntil(t, bob, "identified")

	send(t, alice, map[string]string{"type": "join_queue"})
	send(t, bob, map[string]string{"type": "join_queue"})
	start := readUntil(t, alice, "game_start")
	players := start["players"].(map[string]any)
	assert.Equal(t, "https://cdn.example/a.png", players["player1"].(map[string]any)["avatar"])
	assert.Equal(t, "https://cdn.example/b.png", players["player2"].(map[string]any)["avatar"])
}

func TestTournamentOverWebsocket(t *testing.T) {
	env := startTestServer(t, Options{})
	ids := []string{"P1", "P2", "P3", "P4"}
	conns := map[string]*websocket.Conn{}
	for _, id := range ids {
		conns[id] = identify(t, env, id)
	}
	for _, id := range ids {
		send(t, conns[id], map[string]any{"type": "join_tournament", "playerId": id})
		readUntil(t, conns[id], "queued")
	}

	ready := readUntil(t, conns["P1"], "match_ready")
	assert.Equal(t, "P2", ready["opponent"])
	tid := ready["tournamentId"].(string)
	assert.Equal(t, tid+"_semi1", ready["matchId"])
	assert.Equal(t, "P4", readUntil(t, conns["P3"], "match_ready")["opponent"])
	start := readUntil(t, conns["P1"], "game_start")
	assert.Equal(t, true, start["tournament"])
	readUntil(t, conns["P3"], "game_start")

	conns["P2"].Close()
	conns["P4"].Close()
	assert.Equal(t, "P1", readUntil(t, conns["P1"], "game_end")["winner"])

	final := readUntil(t, conns["P1"], "match_ready")
	assert.Equal(t, "P3", final["opponent"])
	assert.Equal(t, tid+"_finals", final["matchId"])
	readUntil(t, conns["P1"], "game_start")

	conns["P3"].Close()
	done := readUntil(t, conns["P1"], "tournament_complete")
	assert.Equal(t, "P1", done["winner"])
	assert.Equal(t, tid, done["tournamentId"])

	b, ok := env.coord.Snapshot(tid)
	require.True(t, ok)
	assert.Equal(t, tournament.Completed, b.Phase)
	_, in := env.reg.Tournament("P1")
	assert.False(t, in)
}

func TestLeaderboardEndpoint(t *testing.T) {
	env := startTestServer(t, Options{})
	ctx := context.Background()
	require.NoError(t, env.results.PersistMatchResult(ctx, store.MatchResult{Player1: "a", Player2: "b", Winner: "a", ScoreLeft: 10, ScoreRight: 2}))

	resp, err := http.Get(env.srv.URL + "/leaderboard?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0]["playerId"])
	assert.EqualValues(t, store.PointsWin, rows[0]["points"])

	bad, err := http.Get(env.srv.URL + "/leaderboard?limit=x")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	health, err := http.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
