package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/liedetector/remote"
	"github.com/Seednode/liedetector/session"
	"github.com/Seednode/liedetector/store"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	kv store.KV
}

func newTestServer(t *testing.T, apiURL string) *testServer {
	t.Helper()

	cfg := &Config{storage: "memory", port: 8080, apiURL: apiURL}
	kv := store.NewMemory()

	errs := make(chan error, 64)
	go drainErrors(cfg, errs)

	g := newGame(cfg, kv, remote.New(apiURL))
	srv := httptest.NewServer(newRouter(cfg, g, errs))

	t.Cleanup(func() {
		srv.Close()
		g.close()
	})

	return &testServer{Server: srv, kv: kv}
}

// do sends a request as player (no cookie when player is empty).
func (ts *testServer) do(t *testing.T, player, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if player != "" {
		req.AddCookie(&http.Cookie{Name: playerCookieName, Value: player})
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

// seed stores statement sets written by a seed user. It must run before
// the first request, which loads the shared statements.
func (ts *testServer) seed(t *testing.T, sets ...store.StatementSet) {
	t.Helper()

	ctx := context.Background()
	a := store.NewAdapter(ts.kv)
	existing, err := a.LoadStatements(ctx)
	require.NoError(t, err)
	require.NoError(t, a.SaveStatements(ctx, append(existing, sets...)))
}

func seeded(id string, lie int) store.StatementSet {
	return store.StatementSet{
		ID:         id,
		UserID:     "1",
		Username:   "player1",
		Statements: [3]string{"I can juggle", "I have met a president", "I speak four languages"},
		LieIndex:   lie,
		CreatedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestPages(t *testing.T) {
	ts := newTestServer(t, "")

	for _, path := range []string{"/", "/create", "/play", "/play/abc", "/leaderboard", "/profile"} {
		resp, body := ts.do(t, "", http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(body), `src="/assets/app.js"`, path)
		assert.Contains(t, string(body), `data-shared="false"`, path)
	}

	resp, _ := ts.do(t, "", http.MethodGet, "/", nil)
	require.NotEmpty(t, resp.Cookies())
	assert.Equal(t, playerCookieName, resp.Cookies()[0].Name)

	resp, body := ts.do(t, "", http.MethodGet, "/no/such/page", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "<main id=\"app\">")
}

func TestAmbientRoutes(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ok\n", string(body))

	_, body = ts.do(t, "", http.MethodGet, "/version", nil)
	assert.Equal(t, "liedetector v"+releaseVersion+"\n", string(body))

	resp, _ = ts.do(t, "", http.MethodGet, "/assets/app.js", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/javascript; charset=utf-8", resp.Header.Get("Content-Type"))

	resp, _ = ts.do(t, "", http.MethodGet, "/assets/index.html", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, "", http.MethodGet, "/favicons/favicon.svg", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))

	resp, body = ts.do(t, "", http.MethodGet, "/play/abc/qr", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))
}

func TestCreateStatements(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, "alice", http.MethodPost, "/api/statements", map[string]any{
		"statements": []string{"one", " ", "three"},
		"lieIndex":   1,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	bad := decode[errorResponse](t, body)
	assert.Equal(t, msgFillStatements, bad.Error)
	require.NotNil(t, bad.Fields)
	assert.Equal(t, [3]bool{false, true, false}, *bad.Fields)

	resp, body = ts.do(t, "alice", http.MethodPost, "/api/statements", map[string]any{
		"statements": []string{"one", "two", "three"},
		"lieIndex":   2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[statementView](t, body)
	require.NotNil(t, created.LieIndex)
	assert.Equal(t, 2, *created.LieIndex)
	assert.Equal(t, [3]string{"one", "two", "three"}, created.Statements)

	_, body = ts.do(t, "alice", http.MethodGet, "/api/statements", nil)
	mine := decode[[]statementView](t, body)
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)

	_, body = ts.do(t, "alice", http.MethodGet, "/api/me", nil)
	me := decode[store.User](t, body)
	assert.Equal(t, []string{created.ID}, me.StatementIDs)
}

func TestGuess(t *testing.T) {
	ts := newTestServer(t, "")
	ts.seed(t, seeded("s1", 1))

	resp, body := ts.do(t, "alice", http.MethodGet, "/api/statements/s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, decode[statementView](t, body).LieIndex)

	resp, body = ts.do(t, "alice", http.MethodPost, "/api/statements/s1/guess", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, msgSelectGuess, decode[errorResponse](t, body).Error)

	for _, guess := range []int{-1, 3} {
		resp, body = ts.do(t, "alice", http.MethodPost, "/api/statements/s1/guess", map[string]any{"guessIndex": guess})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, msgSelectGuess, decode[errorResponse](t, body).Error)
	}

	resp, body = ts.do(t, "alice", http.MethodPost, "/api/statements/s1/guess", map[string]any{"guessIndex": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"success":true,"isCorrect":true,"scoreChange":10,"lieIndex":1}`, strings.TrimSpace(string(body)))

	resp, body = ts.do(t, "alice", http.MethodPost, "/api/statements/s1/guess", map[string]any{"guessIndex": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, -5, decode[session.GuessResult](t, body).ScoreChange)

	_, body = ts.do(t, "alice", http.MethodGet, "/api/me", nil)
	assert.Equal(t, 5, decode[store.User](t, body).Score)

	_, body = ts.do(t, "alice", http.MethodGet, "/api/statements/s1", nil)
	assert.Equal(t, 2, decode[statementView](t, body).PlayCount)

	resp, body = ts.do(t, "alice", http.MethodPost, "/api/statements/missing/guess", map[string]any{"guessIndex": 0})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, `{"success":false,"message":"Statement not found","isCorrect":false,"scoreChange":0,"lieIndex":0}`, strings.TrimSpace(string(body)))
}

func TestRandom(t *testing.T) {
	ts := newTestServer(t, "")
	ts.seed(t, seeded("s1", 0), seeded("s2", 2))

	resp, body := ts.do(t, "alice", http.MethodGet, "/api/random?exclude=s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[statementView](t, body)
	assert.Equal(t, "s2", got.ID)
	assert.Nil(t, got.LieIndex)

	resp, _ = ts.do(t, "alice", http.MethodGet, "/api/random?exclude=s1&exclude=s2", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = ts.do(t, "bob", http.MethodGet, "/api/random?exclude=s2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "s1", decode[statementView](t, body).ID)
}

func TestStatementsSharedBetweenPlayers(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, "alice", http.MethodPost, "/api/statements", map[string]any{
		"statements": []string{"I have a twin", "I was born at sea", "I hate cheese"},
		"lieIndex":   1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	id := decode[statementView](t, body).ID

	// authors never draw their own sets
	resp, _ = ts.do(t, "alice", http.MethodGet, "/api/random", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = ts.do(t, "bob", http.MethodGet, "/api/statements/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	shared := decode[statementView](t, body)
	assert.Equal(t, [3]string{"I have a twin", "I was born at sea", "I hate cheese"}, shared.Statements)
	assert.Nil(t, shared.LieIndex)

	resp, body = ts.do(t, "bob", http.MethodGet, "/api/random", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, decode[statementView](t, body).ID)

	resp, body = ts.do(t, "bob", http.MethodPost, "/api/statements/"+id+"/guess", map[string]any{"guessIndex": 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[session.GuessResult](t, body).IsCorrect)

	_, body = ts.do(t, "bob", http.MethodGet, "/api/me", nil)
	assert.Equal(t, 10, decode[store.User](t, body).Score)

	_, body = ts.do(t, "alice", http.MethodGet, "/api/me", nil)
	assert.Zero(t, decode[store.User](t, body).Score)

	_, body = ts.do(t, "alice", http.MethodGet, "/api/statements/"+id, nil)
	own := decode[statementView](t, body)
	assert.Equal(t, 1, own.PlayCount)
	require.NotNil(t, own.LieIndex)
	assert.Equal(t, 1, *own.LieIndex)

	resp, _ = ts.do(t, "bob", http.MethodGet, "/play/"+id, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUsernameAndLeaderboard(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.do(t, "alice", http.MethodPut, "/api/me", map[string]string{"username": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, msgEmptyUsername, decode[errorResponse](t, body).Error)

	resp, body = ts.do(t, "alice", http.MethodPut, "/api/me", map[string]string{"username": "newName"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "newName", decode[store.User](t, body).Username)

	_, body = ts.do(t, "alice", http.MethodGet, "/api/leaderboard", nil)
	board := decode[[]store.User](t, body)
	require.Len(t, board, 4)

	scores := []int{}
	for _, u := range board {
		scores = append(scores, u.Score)
	}
	assert.Equal(t, []int{150, 120, 100, 0}, scores)
	assert.Equal(t, "newName", board[3].Username)
}

func TestEntries_NotConfigured(t *testing.T) {
	ts := newTestServer(t, "")

	resp, _ := ts.do(t, "alice", http.MethodGet, "/api/entries/next", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEntries_Proxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/new-entry":
			_, _ = w.Write([]byte(`{"message":"saved"}`))
		case "/get-data":
			_, _ = w.Write([]byte(`{"id":"q1","facts":["a","b","c"],"userName":"sam"}`))
		case "/guess":
			_, _ = w.Write([]byte(`{"correct":true,"message":"Nice","correctAnswer":2}`))
		}
	}))
	defer upstream.Close()

	ts := newTestServer(t, upstream.URL)

	_, body := ts.do(t, "", http.MethodGet, "/", nil)
	assert.Contains(t, string(body), `data-shared="true"`)

	resp, body := ts.do(t, "alice", http.MethodPost, "/api/entries", map[string]any{
		"statements": []string{"a", "b", "c"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, msgSelectLie, decode[errorResponse](t, body).Error)

	resp, body = ts.do(t, "alice", http.MethodPost, "/api/entries", map[string]any{
		"statements": []string{"a", "b", "c"},
		"lieIndex":   2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	ack := decode[map[string]any](t, body)
	assert.NotEmpty(t, ack["id"])
	assert.Equal(t, map[string]any{"message": "saved"}, ack["response"])

	resp, body = ts.do(t, "alice", http.MethodGet, "/api/entries/next", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, remote.Question{ID: "q1", Facts: [3]string{"a", "b", "c"}, UserName: "sam"}, decode[remote.Question](t, body))

	resp, body = ts.do(t, "alice", http.MethodPost, "/api/entries/guess", map[string]any{"id": "q1", "guessIndex": 5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, msgSelectGuess, decode[errorResponse](t, body).Error)

	resp, body = ts.do(t, "alice", http.MethodPost, "/api/entries/guess", map[string]any{"id": "q1", "guessIndex": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[remote.Verdict](t, body).Correct)
}

func TestEntries_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	ts := newTestServer(t, upstream.URL)

	resp, _ := ts.do(t, "alice", http.MethodPost, "/api/entries/guess", map[string]any{"id": "q1", "guessIndex": 0})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestWebsocket_PushesState(t *testing.T) {
	ts := newTestServer(t, "")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{
		"Cookie": {playerCookieName + "=alice"},
	})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first StateMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "state", first.Type)

	ts.do(t, "alice", http.MethodPut, "/api/me", map[string]string{"username": "from another tab"})

	var next StateMessage
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "from another tab", next.CurrentUser.Username)
	assert.Len(t, next.Leaderboard, 4)
}

func TestValidateStatements(t *testing.T) {
	lie := func(i int) *int { return &i }

	tests := []struct {
		name  string
		req   statementsRequest
		msg   string
		blank [3]bool
	}{
		{"complete", statementsRequest{Statements: []string{"a", "b", "c"}, LieIndex: lie(0)}, "", [3]bool{}},
		{"blank text", statementsRequest{Statements: []string{"a", "", "c"}, LieIndex: lie(0)}, msgFillStatements, [3]bool{false, true, false}},
		{"short list", statementsRequest{Statements: []string{"a"}, LieIndex: lie(0)}, msgFillStatements, [3]bool{false, true, true}},
		{"too many", statementsRequest{Statements: []string{"a", "b", "c", "d"}, LieIndex: lie(0)}, msgFillStatements, [3]bool{}},
		{"no lie", statementsRequest{Statements: []string{"a", "b", "c"}}, msgSelectLie, [3]bool{}},
		{"lie out of range", statementsRequest{Statements: []string{"a", "b", "c"}, LieIndex: lie(3)}, msgSelectLie, [3]bool{}},
		{"nothing", statementsRequest{}, msgIncomplete, [3]bool{true, true, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, blank, msg := validateStatements(tt.req)
			assert.Equal(t, tt.msg, msg)
			assert.Equal(t, tt.blank, blank)
		})
	}
}
