package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/webviewflow/internal/runtime/config"
	"github.com/drblury/webviewflow/internal/runtime/jsoncodec"
	"github.com/drblury/webviewflow/internal/runtime/logging"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "webviewflow dev\n", out.String())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger("warn", "json", &buf)

	log.Info("hidden", nil)
	log.Warn("shown", logging.LogFields{"webview_id": "chat"})

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"webview_id":"chat"`)
}

func TestNewLoggerDefaultsToTextAtInfo(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger("verbose", "", &buf)

	log.Debug("hidden", nil)
	log.Info("shown", nil)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestServeExposesStatusAndMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	cfg := &config.Config{
		Transports:     []string{"socketio", "channel"},
		MetricsEnabled: true,
		StatusEnabled:  true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, logging.NewNopServiceLogger(), ln, prometheus.NewRegistry())
	}()

	var status struct {
		Transports []struct {
			Name string `json:"name"`
		} `json:"transports"`
	}
	require.Eventually(t, func() bool {
		body, ok := get(base + "/status")
		return ok && jsoncodec.Unmarshal(body, &status) == nil && len(status.Transports) == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "socketio", status.Transports[0].Name)
	assert.Equal(t, "channel", status.Transports[1].Name)

	body, ok := get(base + "/metrics")
	require.True(t, ok)
	assert.True(t, strings.Contains(string(body), "webviewflow_service_registered_transports 2"), string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServeFailsOnUnknownTransport(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := &config.Config{Transports: []string{"carrier-pigeon"}}
	err = serve(context.Background(), cfg, nil, ln, prometheus.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestServeRejectsDuplicateTransports(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := &config.Config{Transports: []string{"socketio", "socketio"}}
	err = serve(context.Background(), cfg, nil, ln, prometheus.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listed more than once")
}

func get(url string) ([]byte, bool) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}
	body, err := io.ReadAll(resp.Body)
	return body, err == nil
}
