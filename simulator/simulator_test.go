package simulator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetguard/governor/core"
)

func TestGetTelemetrySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/telemetry", r.URL.Path)
		json.NewEncoder(w).Encode(Telemetry{X: 1, Y: 2, Zone: "aisle"})
	}))
	defer srv.Close()

	a := New(core.SimulatorConfig{BaseURL: srv.URL, Timeout: time.Second}, core.ResilienceConfig{}, nil, nil)
	tel, err := a.GetTelemetry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, tel.X)
	assert.Equal(t, "aisle", tel.Zone)
}

func TestSendCommandAppliesSharedSecretHeader(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Sim-Token")
		json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
	}))
	defer srv.Close()

	a := New(core.SimulatorConfig{BaseURL: srv.URL, Timeout: time.Second, SharedSecret: "secret123"}, core.ResilienceConfig{}, nil, nil)
	resp, err := a.SendCommand(context.Background(), &core.ActionProposal{Intent: core.IntentStop})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "secret123", gotToken)
}

func TestGetWorldSurfacesUnreachableOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := New(core.SimulatorConfig{BaseURL: srv.URL, Timeout: time.Second}, core.ResilienceConfig{RetryMaxAttempts: 1}, nil, nil)
	_, err := a.GetWorld(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSimulatorUnreachable)
}

func TestDoAbsorbsATransientFailureViaRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Telemetry{X: 3, Zone: "corridor"})
	}))
	defer srv.Close()

	a := New(core.SimulatorConfig{BaseURL: srv.URL, Timeout: time.Second}, core.ResilienceConfig{
		RetryMaxAttempts:  3,
		RetryInitialDelay: time.Millisecond,
		RetryMaxDelay:     5 * time.Millisecond,
		RetryBackoffFactor: 2.0,
	}, nil, nil)

	tel, err := a.GetTelemetry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "first attempt fails, second succeeds")
	assert.Equal(t, "corridor", tel.Zone)
}
