package messenger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lineUserID = "U4af4980629a1b2c3d4e5f60718293a4b"

func TestRouteFor(t *testing.T) {
	assert.Equal(t, RoutePush, RouteFor(lineUserID))
	assert.Equal(t, RouteNotify, RouteFor("N0tifyT0kenOpaqueValue"))
	assert.Equal(t, RouteNotify, RouteFor("U123"))
	assert.Equal(t, RouteNotify, RouteFor(strings.Repeat("x", 33)))
}

type pushBody struct {
	To       string `json:"to"`
	Messages []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"messages"`
}

func TestSendPushUsesChannelToken(t *testing.T) {
	var got pushBody
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sentMessages":[{"id":"1","quoteToken":"q"}]}`))
	}))
	defer srv.Close()

	m := NewLineMessenger(Config{ChannelAccessToken: "channel-token", APIEndpoint: srv.URL, NotifyURL: "http://unused.invalid"})
	require.NoError(t, m.Send(context.Background(), lineUserID, "hello"))

	assert.Equal(t, "Bearer channel-token", auth)
	assert.Equal(t, "/v2/bot/message/push", path)
	assert.Equal(t, lineUserID, got.To)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "text", got.Messages[0].Type)
	assert.Equal(t, "hello", got.Messages[0].Text)
}

func TestSendPushSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"The property, 'to', in the request body is invalid"}`))
	}))
	defer srv.Close()

	m := NewLineMessenger(Config{ChannelAccessToken: "channel-token", APIEndpoint: srv.URL})
	err := m.Send(context.Background(), lineUserID, "hello")
	assert.ErrorContains(t, err, "line push")
}

func TestSendNotifyUsesAddressAsToken(t *testing.T) {
	var auth, message string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseForm())
		message = r.PostForm.Get("message")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewLineMessenger(Config{APIEndpoint: "http://unused.invalid", NotifyURL: srv.URL})
	require.NoError(t, m.Send(context.Background(), "guardian-notify-token", "late today"))

	assert.Equal(t, "Bearer guardian-notify-token", auth)
	assert.Equal(t, "late today", message)
}

func TestSendSurfacesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewLineMessenger(Config{NotifyURL: srv.URL})
	err := m.Send(context.Background(), "bad-token", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	err = NewLineMessenger(Config{}).Send(context.Background(), lineUserID, "hi")
	assert.ErrorContains(t, err, "channel access token")
}
