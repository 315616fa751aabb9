// Package simulator implements the Simulator Adapter (spec.md §4.4): a
// shared, bounded-timeout HTTP client to the warehouse environment
// simulator, grounded on the teacher's orchestration.SmartExecutor HTTP
// client configuration and wire shapes recovered from
// original_source/sim/mock_sim/server.py.
package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fleetguard/governor/core"
	"github.com/fleetguard/governor/resilience"
)

// Telemetry mirrors the simulator's GET /telemetry response (spec.md §6).
type Telemetry struct {
	X                float64          `json:"x"`
	Y                float64          `json:"y"`
	Theta            float64          `json:"theta"`
	Speed            float64          `json:"speed"`
	Zone             string           `json:"zone"`
	NearestObstacleM float64          `json:"nearest_obstacle_m"`
	HumanDetected    bool             `json:"human_detected"`
	HumanConf        float64          `json:"human_conf"`
	HumanDistanceM   float64          `json:"human_distance_m"`
	WalkingHumans    []WalkingHuman   `json:"walking_humans"`
	IdleRobots       []IdleRobot      `json:"idle_robots"`
	Obstacles        []Obstacle       `json:"obstacles"`
	Bounds           Bounds           `json:"bounds"`
	Events           []string         `json:"events"`
	Timestamp        float64          `json:"timestamp"`
}

// WalkingHuman is one worker/human candidate in the telemetry snapshot.
type WalkingHuman struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Conf float64 `json:"conf"`
	Type string  `json:"type"`
}

// IdleRobot is another robot reported as stationary in the workspace.
type IdleRobot struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Obstacle is a static obstacle in the workspace.
type Obstacle struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R float64 `json:"r"`
}

// Bounds is the reachable workspace rectangle.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

// Zone is one named area of the workspace, from GET /world.
type Zone struct {
	Name string `json:"name"`
	Rect Bounds `json:"rect"`
}

// World mirrors the simulator's GET /world response.
type World struct {
	Geofence  Bounds     `json:"geofence"`
	Zones     []Zone     `json:"zones"`
	Obstacles []Obstacle `json:"obstacles"`
	Human     struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"human"`
	Bays []map[string]interface{} `json:"bays,omitempty"`
}

// CommandRequest is the POST /command request body.
type CommandRequest struct {
	Intent core.ActionIntent     `json:"intent"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// CommandResponse is the POST /command response body.
type CommandResponse struct {
	OK   bool                   `json:"ok"`
	Data map[string]interface{} `json:"-"`
}

// Adapter is the shared, connection-pooled client to the simulator. A
// single Adapter instance is shared by every Run (spec.md §3 Ownership);
// it holds no per-run mutable state.
type Adapter struct {
	baseURL      string
	sharedSecret string
	httpClient   *http.Client
	logger       core.Logger
	breaker      core.CircuitBreaker // optional
	retry        *resilience.RetryConfig
}

// New constructs an Adapter from cfg. breaker may be nil, in which case
// calls are made without circuit-breaker protection. Every call is also
// wrapped in resilience.Retry per resilienceCfg (exponential backoff with
// jitter, same as the teacher wraps its own Redis/HTTP calls), so a single
// transient blip is absorbed here instead of aborting the tick.
func New(cfg core.SimulatorConfig, resilienceCfg core.ResilienceConfig, logger core.Logger, breaker core.CircuitBreaker) *Adapter {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	retry := &resilience.RetryConfig{
		MaxAttempts:   resilienceCfg.RetryMaxAttempts,
		InitialDelay:  resilienceCfg.RetryInitialDelay,
		MaxDelay:      resilienceCfg.RetryMaxDelay,
		BackoffFactor: resilienceCfg.RetryBackoffFactor,
		JitterEnabled: true,
	}
	if retry.MaxAttempts <= 0 {
		retry = resilience.DefaultRetryConfig()
	}
	return &Adapter{
		baseURL:      cfg.BaseURL,
		sharedSecret: cfg.SharedSecret,
		logger:       logger,
		breaker:      breaker,
		retry:        retry,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxIdleConns,
				MaxIdleConnsPerHost: cfg.MaxIdleConns,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// GetWorld fetches the static world description.
func (a *Adapter) GetWorld(ctx context.Context) (*World, error) {
	var world World
	if err := a.do(ctx, http.MethodGet, "/world", nil, &world); err != nil {
		return nil, err
	}
	return &world, nil
}

// GetTelemetry fetches the current telemetry snapshot.
func (a *Adapter) GetTelemetry(ctx context.Context) (*Telemetry, error) {
	var t Telemetry
	if err := a.do(ctx, http.MethodGet, "/telemetry", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SendCommand submits a proposal's intent/params to the simulator.
func (a *Adapter) SendCommand(ctx context.Context, proposal *core.ActionProposal) (*CommandResponse, error) {
	req := CommandRequest{Intent: proposal.Intent, Params: proposal.Params}
	var raw map[string]interface{}
	if err := a.do(ctx, http.MethodPost, "/command", req, &raw); err != nil {
		return nil, err
	}
	ok, _ := raw["ok"].(bool)
	return &CommandResponse{OK: ok, Data: raw}, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	call := func() error {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("%w: encoding request: %v", core.ErrSimulatorUnreachable, err)
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("%w: building request: %v", core.ErrSimulatorUnreachable, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if a.sharedSecret != "" {
			req.Header.Set("X-Sim-Token", a.sharedSecret)
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrSimulatorUnreachable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("%w: status %d: %s", core.ErrSimulatorUnreachable, resp.StatusCode, string(data))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("%w: decoding response: %v", core.ErrSimulatorUnreachable, err)
			}
		}
		return nil
	}

	protected := call
	if a.breaker != nil {
		protected = func() error { return a.breaker.Execute(ctx, call) }
	}
	if err := resilience.Retry(ctx, a.retry, protected); err != nil {
		if errors.Is(err, core.ErrSimulatorUnreachable) {
			return err
		}
		return fmt.Errorf("%w: %v", core.ErrSimulatorUnreachable, err)
	}
	return nil
}
