package pulse

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_PostsPulseWithTokenHeader(t *testing.T) {
	var (
		gotPath  string
		gotToken string
		gotUA    string
		gotBody  Pulse
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-API-Token")
		gotUA = r.Header.Get("User-Agent")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"ok":"Great success!"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{AllowPlaintext: true})
	p := Build(map[string]uint32{"Go": 2}, time.Now())

	err := c.Send(context.Background(), srv.URL, "SFMyNTY.test.token", p)
	require.NoError(t, err)

	assert.Equal(t, "/api/my/pulses", gotPath)
	assert.Equal(t, "SFMyNTY.test.token", gotToken)
	assert.Equal(t, "Helix/1.0", gotUA)
	assert.Equal(t, p, gotBody)
}

func TestSend_TrailingSlashServer(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{AllowPlaintext: true})
	err := c.Send(context.Background(), srv.URL+"/", "k", Pulse{})
	require.NoError(t, err)
	assert.Equal(t, "/api/my/pulses", gotPath)
}

func TestSend_RejectsPlaintextByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should be made")
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{})
	err := c.Send(context.Background(), srv.URL, "k", Pulse{})
	require.ErrorIs(t, err, ErrPlaintextServer)
}

func TestSend_ServerErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{AllowPlaintext: true})
	err := c.Send(context.Background(), srv.URL, "k", Pulse{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSend_TransportErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(ClientConfig{AllowPlaintext: true})
	err := c.Send(context.Background(), srv.URL, "k", Pulse{})
	require.Error(t, err)
}

func TestSend_BadServerURL(t *testing.T) {
	c := NewClient(ClientConfig{})
	err := c.Send(context.Background(), "://not-a-url", "k", Pulse{})
	require.Error(t, err)
}
