package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name     string
	err      error
	messages []string
}

func (r *recordingSender) Name() string { return r.name }

func (r *recordingSender) Send(_ context.Context, message, _ string) error {
	r.messages = append(r.messages, message)
	return r.err
}

func TestNotifierFansOutToAllChannels(t *testing.T) {
	a := &recordingSender{name: "a"}
	b := &recordingSender{name: "b"}

	New(a, b).Send(context.Background(), "hello", "title")

	assert.Equal(t, []string{"hello"}, a.messages)
	assert.Equal(t, []string{"hello"}, b.messages)
}

func TestNotifierSwallowsChannelFailure(t *testing.T) {
	failing := &recordingSender{name: "failing", err: errors.New("boom")}
	healthy := &recordingSender{name: "healthy"}

	// must not panic or skip the remaining channels
	New(failing, healthy).Send(context.Background(), "alert", "title")

	assert.Len(t, failing.messages, 1)
	assert.Len(t, healthy.messages, 1)
}

func TestSlackSenderPostsMessage(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}))
	defer server.Close()

	sender := NewSlackSender(server.URL)
	require.NoError(t, sender.Send(context.Background(), "@here 120.00 BUY BTC", "Buy BTC"))
	assert.Equal(t, "@here 120.00 BUY BTC", got["text"])
}

func TestSlackSenderReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	sender := NewSlackSender(server.URL)
	err := sender.Send(context.Background(), "msg", "title")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
