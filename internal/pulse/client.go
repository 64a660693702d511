package pulse

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rubikoid/codestats-reporter/internal/metrics"
)

// respBufPool reuses response body buffers to reduce GC pressure from
// short-lived HTTP responses.
var respBufPool = sync.Pool{
	New: func() any { return bytes.NewBuffer(make([]byte, 0, 4096)) },
}

const (
	pulsePath     = "api/my/pulses"
	sendTimeout   = 5 * time.Second
	userAgent     = "Helix/1.0"
	maxLoggedBody = 4096
)

// ErrPlaintextServer is returned for non-https server URLs; no connection
// is attempted.
var ErrPlaintextServer = errors.New("pulse: server URL must use https")

// ClientConfig holds configuration for the pulse client.
type ClientConfig struct {
	AllowPlaintext bool // Permit http:// servers; for testing
}

// Client delivers pulses to a Code::Stats-compatible server. The server URL
// and API token are supplied per call: both come from live configuration
// read at flush time.
type Client struct {
	allowPlaintext bool
	httpClient     *http.Client
}

// NewClient creates a pulse client.
func NewClient(cfg ClientConfig) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	return &Client{
		allowPlaintext: cfg.AllowPlaintext,
		httpClient: &http.Client{
			Transport: transport,
		},
	}
}

// Send performs a single POST of p to <server>api/my/pulses with the given
// API token. No retry is attempted. The response body is logged (capped) and
// discarded; transport and read failures are logged as warnings and returned
// as wrapped errors.
func (c *Client) Send(ctx context.Context, server, key string, p Pulse) error {
	u, err := url.Parse(server)
	if err != nil {
		return fmt.Errorf("pulse: bad server URL: %w", err)
	}
	if u.Scheme != "https" && !c.allowPlaintext {
		return ErrPlaintextServer
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("pulse: encode: %w", err)
	}

	endpoint := server
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	endpoint += pulsePath

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pulse: build request: %w", err)
	}
	req.Header.Set("X-API-Token", key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.SendErrors.WithLabelValues("network").Inc()
		log.Warn().Err(err).Uint32("xp", p.Total()).Msg("pulse send failed")
		return fmt.Errorf("pulse: send: %w", err)
	}
	defer resp.Body.Close()

	buf := respBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer respBufPool.Put(buf)
	if _, err := io.Copy(buf, io.LimitReader(resp.Body, maxLoggedBody)); err != nil {
		metrics.SendErrors.WithLabelValues("read").Inc()
		log.Warn().Err(err).Msg("pulse response read failed")
		return fmt.Errorf("pulse: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.SendErrors.WithLabelValues("status").Inc()
		log.Warn().Int("http", resp.StatusCode).Str("body", buf.String()).Msg("pulse rejected by server")
		return fmt.Errorf("pulse: unexpected http %d", resp.StatusCode)
	}

	log.Info().
		Int("languages", len(p.XPs)).
		Uint32("xp", p.Total()).
		Str("resp", buf.String()).
		Msg("pulse sent")
	return nil
}
