package lobby

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tetris/shared/protocol"
	"tetris/shared/tokenhash"
)

type tokenVerifier struct{}

func (tokenVerifier) VerifyConnect(playerID, token string) error {
	if !tokenhash.Equal(token, tokenhash.Token(playerID)) {
		return errors.New("bad token")
	}
	return nil
}

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := NewHub(tokenVerifier{})
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return h, srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.MsgEnvelope {
	t.Helper()
	var env protocol.MsgEnvelope
	require.NoError(t, json.Unmarshal([]byte(readText(t, conn)), &env))
	return env
}

func join(t *testing.T, srv *httptest.Server, id string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/join-game/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func connectPath(game, player, token string) string {
	return "/connect/" + game + "/" + player + "?auth=" + token
}

// readyGame walks a game through create and join and returns the ids of
// both reserved slots.
func readyGame(t *testing.T, srv *httptest.Server) (gameID, p1ID, p2ID string) {
	t.Helper()
	host := dial(t, srv, "/create-game?nes=true")
	lobbyMsg := readText(t, host)
	require.True(t, strings.HasPrefix(lobbyMsg, "lobby "))
	gameID = strings.TrimPrefix(lobbyMsg, "lobby ")

	code, body := join(t, srv, gameID)
	require.Equal(t, http.StatusOK, code)
	parts := strings.Split(body, "/")
	require.Len(t, parts, 2)
	require.Equal(t, gameID, parts[0])
	p2ID = parts[1]

	ready := readText(t, host)
	require.True(t, strings.HasPrefix(ready, "ready "+gameID+"/"))
	p1ID = strings.TrimPrefix(ready, "ready "+gameID+"/")
	host.Close()
	return gameID, p1ID, p2ID
}

// startGame connects both players of a ready game and returns the running
// sockets.
func startGame(t *testing.T, srv *httptest.Server) (gameID string, p1, p2 *websocket.Conn) {
	t.Helper()
	gameID, p1ID, p2ID := readyGame(t, srv)
	p1 = dial(t, srv, connectPath(gameID, p1ID, tokenhash.Token(p1ID)))
	p2 = dial(t, srv, connectPath(gameID, p2ID, tokenhash.Token(p2ID)))
	return gameID, p1, p2
}

func TestGameFlow(t *testing.T) {
	_, srv := newTestServer(t)
	gameID, p1, p2 := startGame(t, srv)

	s1, s2 := readEnvelope(t, p1), readEnvelope(t, p2)
	require.Equal(t, protocol.TypeStart, s1.Type)
	require.Equal(t, protocol.TypeStart, s2.Type)
	var start1, start2 protocol.Start
	require.NoError(t, json.Unmarshal(s1.Data, &start1))
	require.NoError(t, json.Unmarshal(s2.Data, &start2))
	assert.Equal(t, start1, start2)
	assert.Len(t, start1.Seed, 32)
	assert.True(t, start1.Settings.NES)

	// already running
	code, _ := join(t, srv, gameID)
	assert.Equal(t, http.StatusConflict, code)

	out, err := protocol.Encode(protocol.TypeLineSend, protocol.LineSend{Lines: 3})
	require.NoError(t, err)
	require.NoError(t, p1.WriteMessage(websocket.TextMessage, out))
	env := readEnvelope(t, p2)
	assert.Equal(t, protocol.TypeLineSend, env.Type)
	assert.JSONEq(t, `{"lines":3}`, string(env.Data))

	// clients cannot send Start; other frames pass through untouched
	forged, err := protocol.Encode(protocol.TypeStart, protocol.Start{Seed: "00"})
	require.NoError(t, err)
	require.NoError(t, p2.WriteMessage(websocket.TextMessage, forged))
	state := []byte(`{"type":"GameState","data":{"rows":[1,2,3]}}`)
	require.NoError(t, p2.WriteMessage(websocket.TextMessage, state))
	assert.Equal(t, string(state), readText(t, p1))

	require.NoError(t, p1.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Equal(t, protocol.CancelEvent("disconnect"), readText(t, p2))

	code, _ = join(t, srv, gameID)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestConnectRejectsBadToken(t *testing.T) {
	_, srv := newTestServer(t)
	host := dial(t, srv, "/create-game")
	gameID := strings.TrimPrefix(readText(t, host), "lobby ")
	code, body := join(t, srv, gameID)
	require.Equal(t, http.StatusOK, code)
	p2ID := strings.Split(body, "/")[1]

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, connectPath(gameID, p2ID, tokenhash.Derive(p2ID))), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, connectPath(gameID, "someoneelse", tokenhash.Token("someoneelse"))), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, connectPath("nogame", p2ID, tokenhash.Token(p2ID))), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidFrameAnsweredWithError(t *testing.T) {
	_, srv := newTestServer(t)
	_, p1, p2 := startGame(t, srv)
	readEnvelope(t, p1)
	readEnvelope(t, p2)

	require.NoError(t, p1.WriteMessage(websocket.TextMessage, []byte("not json")))
	env := readEnvelope(t, p1)
	require.Equal(t, protocol.TypeError, env.Type)
	var msg protocol.ErrorMsg
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "invalid frame", msg.Message)

	require.NoError(t, p1.WriteMessage(websocket.TextMessage, []byte(`{"type":"LineSend","data":{"lines":"many"}}`)))
	assert.Equal(t, protocol.TypeError, readEnvelope(t, p1).Type)

	// the opponent only sees valid traffic
	out, err := protocol.Encode(protocol.TypeLineSend, protocol.LineSend{Lines: 1})
	require.NoError(t, err)
	require.NoError(t, p1.WriteMessage(websocket.TextMessage, out))
	assert.Equal(t, protocol.TypeLineSend, readEnvelope(t, p2).Type)
}

func TestConcurrentConnectBindsOnce(t *testing.T) {
	h, srv := newTestServer(t)
	assert.Positive(t, h.upgrader.HandshakeTimeout)
	gameID, p1ID, p2ID := readyGame(t, srv)

	type attempt struct {
		conn *websocket.Conn
		resp *http.Response
		err  error
	}
	const n = 4
	results := make(chan attempt, n)
	for i := 0; i < n; i++ {
		go func() {
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, connectPath(gameID, p1ID, tokenhash.Token(p1ID))), nil)
			results <- attempt{conn, resp, err}
		}()
	}
	var attempts []attempt
	for i := 0; i < n; i++ {
		a := <-results
		if a.conn != nil {
			t.Cleanup(func() { a.conn.Close() })
		}
		attempts = append(attempts, a)
	}

	p2 := dial(t, srv, connectPath(gameID, p2ID, tokenhash.Token(p2ID)))
	assert.Equal(t, protocol.TypeStart, readEnvelope(t, p2).Type)

	bound := 0
	for _, a := range attempts {
		if a.err != nil {
			require.NotNil(t, a.resp)
			assert.Equal(t, http.StatusConflict, a.resp.StatusCode)
			continue
		}
		require.NoError(t, a.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "unexpected error %v", err)
			continue
		}
		var env protocol.MsgEnvelope
		require.NoError(t, json.Unmarshal(data, &env))
		assert.Equal(t, protocol.TypeStart, env.Type)
		bound++
	}
	assert.Equal(t, 1, bound)
}

func TestJoinUnknownGame(t *testing.T) {
	_, srv := newTestServer(t)
	code, _ := join(t, srv, "missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreatorLeavingRemovesGame(t *testing.T) {
	h, srv := newTestServer(t)
	host := dial(t, srv, "/create-game")
	gameID := strings.TrimPrefix(readText(t, host), "lobby ")
	require.NotNil(t, h.lookup(gameID))

	require.NoError(t, host.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return h.lookup(gameID) == nil }, 5*time.Second, 10*time.Millisecond)
}

func TestExpireReadyGames(t *testing.T) {
	h, srv := newTestServer(t)
	host := dial(t, srv, "/create-game")
	gameID := strings.TrimPrefix(readText(t, host), "lobby ")
	code, _ := join(t, srv, gameID)
	require.Equal(t, http.StatusOK, code)

	h.expire(time.Now())
	assert.NotNil(t, h.lookup(gameID))
	h.expire(time.Now().Add(ReadyTimeout + time.Second))
	assert.Nil(t, h.lookup(gameID))
}

func TestGamesStream(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/games")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
				lines <- data
			}
		}
		close(lines)
	}()
	next := func() string {
		select {
		case l := <-lines:
			return l
		case <-time.After(5 * time.Second):
			t.Fatal("no event received")
			return ""
		}
	}

	assert.Equal(t, "{}", next())

	host := dial(t, srv, "/create-game?jupiter=true")
	gameID := strings.TrimPrefix(readText(t, host), "lobby ")

	var games map[string]protocol.GameSettings
	require.NoError(t, json.Unmarshal([]byte(next()), &games))
	require.Contains(t, games, gameID)
	assert.True(t, games[gameID].Jupiter)
}

func TestBroadcasterDropsStale(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("init")
	defer cancel()
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, "init", <-ch)

	for i := 0; i < 11; i++ {
		b.Broadcast("x")
	}
	assert.Equal(t, 0, b.Len())
	cancel()
}
