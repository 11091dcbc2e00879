package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name  string
	err   error
	calls []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.calls = append(r.calls, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"market_resolved"}, quietLogger())

	require.NoError(t, n.Notify(context.Background(), "bet_placed", "ignored", ""))
	require.NoError(t, n.Notify(context.Background(), "market_resolved", "resolved", ""))
	assert.Equal(t, []string{"resolved"}, s.calls)
}

func TestNotifier_ContinuesPastFailures(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quietLogger())

	err := n.Notify(context.Background(), "any", "title", "body")
	assert.ErrorContains(t, err, "bad: boom")
	assert.Len(t, good.calls, 1)
}

func TestNotifier_NoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, quietLogger())
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), "any", "t", "m"))
}

func TestDiscordSender_PostsEmbed(t *testing.T) {
	var got map[string][]discordEmbed
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "Resolved", "YES"))
	require.Len(t, got["embeds"], 1)
	assert.Equal(t, "Resolved", got["embeds"][0].Title)
	assert.Equal(t, "YES", got["embeds"][0].Description)
}

func TestTelegramSender_ErrorStatus(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	err := s.Send(context.Background(), "t", "m")
	assert.ErrorContains(t, err, "unexpected status 401")
	assert.Equal(t, "/bottok/sendMessage", path)
}
