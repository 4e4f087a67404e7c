/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package remote talks to the external scoring API that stores shared
// entries and judges guesses against them.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

var ErrNotConfigured = errors.New("scoring api url is not configured")

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Result carries either a decoded response or the reason there is none.
type Result[T any] struct {
	Value T
	Err   error
}

func (r Result[T]) OK() bool {
	return r.Err == nil
}

func failed[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// EntryAck is whatever the API echoes back for a new entry, plus the id
// the entry was submitted under.
type EntryAck struct {
	ID       string          `json:"-"`
	Response json.RawMessage `json:"-"`
}

// Question is a shared entry to guess on.
type Question struct {
	ID       string    `json:"id"`
	Facts    [3]string `json:"facts"`
	UserName string    `json:"userName"`
}

// Verdict is the API's judgement of a guess.
type Verdict struct {
	Correct       bool   `json:"correct"`
	Message       string `json:"message"`
	CorrectAnswer any    `json:"correctAnswer"`
}

type newEntryRequest struct {
	Facts    [3]string `json:"facts"`
	ID       string    `json:"id"`
	LieIndex int       `json:"lieIndex"`
}

type guessRequest struct {
	ID         string `json:"id"`
	GuessIndex int    `json:"guessIndex"`
}

type Client struct {
	baseURL string
	http    *http.Client
	newID   func() string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithIDs(newID func() string) Option {
	return func(c *Client) { c.newID = newID }
}

// New returns a client for baseURL. An empty baseURL yields a client whose
// calls all fail with ErrNotConfigured.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		http:    http.DefaultClient,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// NewEntry submits three facts and the index of the lie.
func (c *Client) NewEntry(ctx context.Context, facts [3]string, lieIndex int) Result[EntryAck] {
	id := c.newID()

	raw, err := c.do(ctx, http.MethodPost, "/new-entry", newEntryRequest{
		Facts:    facts,
		ID:       id,
		LieIndex: lieIndex,
	})
	if err != nil {
		return failed[EntryAck](err)
	}

	switch {
	case len(bytes.TrimSpace(raw)) == 0:
		raw = json.RawMessage("null")
	case !json.Valid(raw):
		return failed[EntryAck](fmt.Errorf("decode /new-entry: invalid json"))
	}

	return Result[EntryAck]{Value: EntryAck{ID: id, Response: raw}}
}

// GetData fetches the next entry to guess on.
func (c *Client) GetData(ctx context.Context) Result[Question] {
	raw, err := c.do(ctx, http.MethodGet, "/get-data", nil)
	if err != nil {
		return failed[Question](err)
	}

	var q Question
	if err := json.Unmarshal(raw, &q); err != nil {
		return failed[Question](fmt.Errorf("decode /get-data: %w", err))
	}
	if q.UserName == "" {
		q.UserName = "Anonymous"
	}

	return Result[Question]{Value: q}
}

// Guess submits guessIndex for the entry id.
func (c *Client) Guess(ctx context.Context, id string, guessIndex int) Result[Verdict] {
	raw, err := c.do(ctx, http.MethodPost, "/guess", guessRequest{
		ID:         id,
		GuessIndex: guessIndex,
	})
	if err != nil {
		return failed[Verdict](err)
	}

	var v Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return failed[Verdict](fmt.Errorf("decode /guess: %w", err))
	}

	return Result[Verdict]{Value: v}
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}

	return json.RawMessage(data), nil
}
