/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Two truths and a lie.
//
// Each player writes three statements about themselves and marks which one
// is false. Other players are shown the statements and pick the lie: a
// correct pick is worth 10 points, a wrong one costs 5 (never below zero).
//
// Routes:
//   - pages: /, /create, /play, /play/:id, /leaderboard, /profile
//   - local game api under /api, one session per player cookie
//   - shared entries under /api/entries, proxied to the external scoring api
//   - /ws keeps every open tab of a player in sync
//   - /play/:id/qr renders a QR code for sharing a statement set

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Seednode/liedetector/remote"
	"github.com/Seednode/liedetector/session"
	"github.com/Seednode/liedetector/store"
	"github.com/julienschmidt/httprouter"
)

const maxBodyBytes = 16 << 10

// Form errors, worded for display next to the form.
const (
	msgFillStatements = "Please fill in all three statements"
	msgSelectLie      = "Please select which statement is the lie"
	msgIncomplete     = "Please complete all required fields"
	msgSelectGuess    = "Please select which statement you think is the lie"
	msgEmptyUsername  = "Username cannot be empty"
)

type game struct {
	cfg      *Config
	registry *session.Registry
	remote   *remote.Client
	hub      *Hub
}

func (g *game) close() {
	g.registry.Close()
	g.hub.stop()
}

type errorResponse struct {
	Error  string   `json:"error"`
	Fields *[3]bool `json:"fields,omitempty"`
}

// statementView is a statement set as shown to a player. The lie is only
// included for the author.
type statementView struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Username   string    `json:"username"`
	Statements [3]string `json:"statements"`
	LieIndex   *int      `json:"lieIndex,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	PlayCount  int       `json:"playCount"`
}

func viewOf(s store.StatementSet, viewerID string) statementView {
	v := statementView{
		ID:         s.ID,
		UserID:     s.UserID,
		Username:   s.Username,
		Statements: s.Statements,
		CreatedAt:  s.CreatedAt,
		PlayCount:  s.PlayCount,
	}
	if s.UserID == viewerID {
		lie := s.LieIndex
		v.LieIndex = &lie
	}
	return v
}

type statementsRequest struct {
	Statements []string `json:"statements"`
	LieIndex   *int     `json:"lieIndex"`
}

type guessRequest struct {
	GuessIndex *int `json:"guessIndex"`
}

type entryGuessRequest struct {
	ID         string `json:"id"`
	GuessIndex *int   `json:"guessIndex"`
}

type usernameRequest struct {
	Username string `json:"username"`
}

// validateStatements checks a submission the way the create form does. It
// returns the statements, which fields are blank, and an error message
// when the submission is incomplete.
func validateStatements(req statementsRequest) ([3]string, [3]bool, string) {
	var statements [3]string
	var blank [3]bool

	missingText := false
	for i := range statements {
		if i < len(req.Statements) {
			statements[i] = req.Statements[i]
		}
		if strings.TrimSpace(statements[i]) == "" {
			blank[i] = true
			missingText = true
		}
	}
	if len(req.Statements) > len(statements) {
		missingText = true
	}

	missingLie := req.LieIndex == nil || *req.LieIndex < 0 || *req.LieIndex > 2

	switch {
	case missingText && missingLie:
		return statements, blank, msgIncomplete
	case missingText:
		return statements, blank, msgFillStatements
	case missingLie:
		return statements, blank, msgSelectLie
	}
	return statements, blank, ""
}

func validGuess(i *int) bool {
	return i != nil && *i >= 0 && *i <= 2
}

func writeJSON(w http.ResponseWriter, status int, v any, errs chan<- error) {
	data, err := json.Marshal(v)
	if err != nil {
		errs <- err

		http.Error(w, "Internal Server Error", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	_, err = w.Write(append(data, '\n'))
	if err != nil {
		errs <- err
	}
}

func writeError(w http.ResponseWriter, status int, msg string, errs chan<- error) {
	writeJSON(w, status, errorResponse{Error: msg}, errs)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	return dec.Decode(dst)
}

// withPlayer loads the requesting player's session and passes it on.
func (g *game) withPlayer(errs chan<- error, next func(http.ResponseWriter, *http.Request, httprouter.Params, *session.Manager)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(g.cfg, w)

		playerID := getOrSetPlayerID(w, r)

		m, err := g.registry.Get(r.Context(), playerID)
		if err != nil {
			logf(g.cfg, "ERROR: Loading session %s: %v", playerID, err)
			writeError(w, http.StatusInternalServerError, "Unable to load your session", errs)

			return
		}

		next(w, r, p, m)
	}
}

func (g *game) serveMe(errs chan<- error) httprouter.Handle {
	return g.withPlayer(errs, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, m *session.Manager) {
		writeJSON(w, http.StatusOK, m.CurrentUser(), errs)
	})
}

func (g *game) serveUpdateUsername(errs chan<- error) httprouter.Handle {
	return g.withPlayer(errs, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, m *session.Manager) {
		var req usernameRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", errs)

			return
		}

		ok, err := m.UpdateUsername(r.Context(), req.Username)
		if err != nil {
			logf(g.cfg, "ERROR: Saving username: %v", err)
			writeError(w, http.StatusInternalServerError, "Unable to save your username", errs)

			return
		}
		if !ok {
			writeError(w, http.StatusBadRequest, msgEmptyUsername, errs)

			return
		}

		logf(g.cfg, "GAMES: Player renamed to %q from %s", req.Username, realIP(r))

		writeJSON(w, http.StatusOK, m.CurrentUser(), errs)
	})
}

func (g *game) serveUserStatements(errs chan<- error) httprouter.Handle {
	return g.withPlayer(errs, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, m *session.Manager) {
		me := m.CurrentUser().ID

		sets := m.UserStatements()
		views := make([]statementView, 0, len(sets))
		for _, s := range sets {
			views = append(views, viewOf(s, me))
		}

		writeJSON(w, http.StatusOK, views, errs)
	})
}

func (g *game) serveAddStatements(errs chan<- error) httprouter.Handle {
	return g.withPlayer(errs, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, m *session.Manager) {
		var req statementsRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", errs)

			return
		}

		statements, blank, msg := validateStatements(req)
		if msg != "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Fields: &blank}, errs)

			return
		}

		id, err := m.AddStatements(r.Context(), statements, *req.LieIndex)
		if err != nil {
			logf(g.cfg, "ERROR: Saving statements: %v", err)
			writeError(w, http.StatusInternalServerError, "Unable to save your statements", errs)

			return
		}

		logf(g.cfg, "GAMES: Statement set %s created by %q", id, m.CurrentUser().Username)

		s, _ := m.StatementByID(id)
		writeJSON(w, http.StatusCreated, viewOf(s, m.CurrentUser().ID), errs)
	})
}

func (g *game) serveStatement(errs chan<- error) httprouter.Handle {
	return g.withPlayer(errs, func(w http.ResponseWriter, r *http.Request, p httprouter.Params, m *session.Manager) {
		s, ok := m.StatementByID(p.ByName("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "Statement not found", errs)

			return
		}

		writeJSON(w, http.StatusOK, viewOf(s, m.CurrentUser().ID), errs)
	})
}

func (g *game) serveGuess(errs chan<- error) httprouter.Handle {
	return g.withPlayer(errs, func(w http.ResponseWriter, r *http.Request, p httprouter.Params, m *session.Manager) {
		var req guessRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", errs)

			return
		}
		if !validGuess(req.GuessIndex) {
			writeError(w, http.StatusBadRequest, msgSelectGuess, errs)

			return
		}

		id := p.ByName("id")

		result, err := m.SubmitGuess(r.Context(), id, *req.GuessIndex)
		if err != nil {
			logf(g.cfg, "ERROR: Saving guess on %s: %v", id, err)
			writeError(w, http.StatusInternalServerError, "Unable to save your guess", errs)

			return
		}

		if !result.Success {
			writeJSON(w, http.StatusNotFound, result, errs)

			return
		}

		logf(g.cfg, "GAMES: %q guessed %d on %s (correct: %t)", m.CurrentUser().Username, *req.GuessIndex, id, result.IsCorrect)

		writeJSON(w, http.StatusOK, result, errs)
	})
}

// exclusions accepts both ?exclude=a,b and repeated ?exclude= values.
func exclusions(r *http.Request) []string {
	var ids []string
	for _, v := range r.URL.Query()["exclude"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (g *game) serveRandom(errs chan<- error) httprouter.Handle {
	return g.withPlayer(errs, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, m *session.Manager) {
		s, ok := m.RandomStatement(exclusions(r))
		if !ok {
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusNoContent)

			return
		}

		writeJSON(w, http.StatusOK, viewOf(s, m.CurrentUser().ID), errs)
	})
}

func (g *game) serveLeaderboard(errs chan<- error) httprouter.Handle {
	return g.withPlayer(errs, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params, m *session.Manager) {
		writeJSON(w, http.StatusOK, m.Leaderboard(), errs)
	})
}

// remoteFailure maps a failed scoring api call onto a response.
func (g *game) remoteFailure(w http.ResponseWriter, r *http.Request, op string, err error, errs chan<- error) {
	if errors.Is(err, remote.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, "Shared play is not available", errs)

		return
	}

	logf(g.cfg, "ERROR: Scoring api %s for %s failed: %v", op, realIP(r), err)
	writeError(w, http.StatusBadGateway, "The scoring service could not be reached", errs)
}

func (g *game) serveNewEntry(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(g.cfg, w)

		var req statementsRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", errs)

			return
		}

		statements, blank, msg := validateStatements(req)
		if msg != "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Fields: &blank}, errs)

			return
		}

		res := g.remote.NewEntry(r.Context(), statements, *req.LieIndex)
		if !res.OK() {
			g.remoteFailure(w, r, "new-entry", res.Err, errs)

			return
		}

		logf(g.cfg, "GAMES: Entry %s submitted to scoring api", res.Value.ID)

		writeJSON(w, http.StatusCreated, map[string]any{
			"id":       res.Value.ID,
			"response": res.Value.Response,
		}, errs)
	}
}

func (g *game) serveNextEntry(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(g.cfg, w)

		res := g.remote.GetData(r.Context())
		if !res.OK() {
			g.remoteFailure(w, r, "get-data", res.Err, errs)

			return
		}

		writeJSON(w, http.StatusOK, res.Value, errs)
	}
}

func (g *game) serveEntryGuess(errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		securityHeaders(g.cfg, w)

		var req entryGuessRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", errs)

			return
		}
		if req.ID == "" || !validGuess(req.GuessIndex) {
			writeError(w, http.StatusBadRequest, msgSelectGuess, errs)

			return
		}

		res := g.remote.Guess(r.Context(), req.ID, *req.GuessIndex)
		if !res.OK() {
			g.remoteFailure(w, r, "guess", res.Err, errs)

			return
		}

		writeJSON(w, http.StatusOK, res.Value, errs)
	}
}

func registerLieGame(cfg *Config, g *game, mux *httprouter.Router, errs chan<- error) {
	for _, page := range []string{"/create", "/play", "/play/:id", "/leaderboard", "/profile"} {
		mux.Handler(http.MethodGet, cfg.prefix+page, serveShell(cfg, http.StatusOK, errs))
	}

	mux.GET(cfg.prefix+"/play/:id/qr", serveQR(cfg, errs))

	mux.GET(cfg.prefix+"/api/me", g.serveMe(errs))
	mux.PUT(cfg.prefix+"/api/me", g.serveUpdateUsername(errs))

	mux.GET(cfg.prefix+"/api/statements", g.serveUserStatements(errs))
	mux.POST(cfg.prefix+"/api/statements", g.serveAddStatements(errs))
	mux.GET(cfg.prefix+"/api/statements/:id", g.serveStatement(errs))
	mux.POST(cfg.prefix+"/api/statements/:id/guess", g.serveGuess(errs))

	mux.GET(cfg.prefix+"/api/random", g.serveRandom(errs))
	mux.GET(cfg.prefix+"/api/leaderboard", g.serveLeaderboard(errs))

	mux.POST(cfg.prefix+"/api/entries", g.serveNewEntry(errs))
	mux.GET(cfg.prefix+"/api/entries/next", g.serveNextEntry(errs))
	mux.POST(cfg.prefix+"/api/entries/guess", g.serveEntryGuess(errs))

	mux.GET(cfg.prefix+"/ws", serveWS(cfg, g))
}
