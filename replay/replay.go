// Package replay reconstructs a run's full timeline for audit playback
// (SPEC_FULL.md §4.11), recovered from the distillation drop via
// original_source/backend/app/services/replay_service.py. Frames paces an
// exported event bundle back out at (real-time/speed) on a receive-only
// channel, modeled on the teacher's subscribe-channel shape
// (orchestration.RedisCommandStore.SubscribeCommand); there is no cancel
// func, and playback stops when the caller's ctx is canceled.
package replay

import (
	"context"
	"time"

	"github.com/fleetguard/governor/core"
	"github.com/fleetguard/governor/store"
)

// Frame is one unit of replayed timeline: either an Event or an
// interpolated telemetry position between two MOVE_TO waypoints.
type Frame struct {
	Timestamp   time.Time              `json:"ts"`
	Kind        core.EventType         `json:"kind"`
	Payload     map[string]interface{} `json:"payload"`
	Interpolated bool                  `json:"interpolated"`
}

// Frames re-emits a bundle's ordered events at (real-time / speed) pacing on
// the returned channel, closing it when the bundle is exhausted or ctx is
// canceled. speed <= 0 is treated as 1 (real-time). Between two consecutive
// EXECUTION events carrying MOVE_TO params, Frames also emits a handful of
// linearly-interpolated position frames — the one "trivial geometric
// detour helper" this repo's Non-goals explicitly permit (spec.md §1),
// used here purely for smooth audit playback, never for navigation.
func Frames(ctx context.Context, bundle *store.Bundle, speed float64) <-chan Frame {
	if speed <= 0 {
		speed = 1
	}
	out := make(chan Frame)

	go func() {
		defer close(out)
		if len(bundle.Events) == 0 {
			return
		}

		prevTs := bundle.Events[0].Timestamp
		var prevMove map[string]interface{}

		for _, ev := range bundle.Events {
			wait := time.Duration(float64(ev.Timestamp.Sub(prevTs)) / speed)
			if wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
			prevTs = ev.Timestamp

			if ev.Type == core.EventExecution {
				if move, ok := moveParams(ev.Payload); ok {
					if prevMove != nil {
						if !emitInterpolated(ctx, out, prevMove, move, ev.Timestamp) {
							return
						}
					}
					prevMove = move
				}
			}

			select {
			case <-ctx.Done():
				return
			case out <- Frame{Timestamp: ev.Timestamp, Kind: ev.Type, Payload: ev.Payload}:
			}
		}
	}()

	return out
}

const interpolationSteps = 4

func emitInterpolated(ctx context.Context, out chan<- Frame, from, to map[string]interface{}, at time.Time) bool {
	fx, fy, fok := floatPair(from)
	tx, ty, tok := floatPair(to)
	if !fok || !tok {
		return true
	}
	for i := 1; i < interpolationSteps; i++ {
		frac := float64(i) / float64(interpolationSteps)
		x := fx + (tx-fx)*frac
		y := fy + (ty-fy)*frac
		frame := Frame{
			Timestamp:    at,
			Kind:         core.EventTelemetry,
			Payload:      map[string]interface{}{"x": x, "y": y},
			Interpolated: true,
		}
		select {
		case <-ctx.Done():
			return false
		case out <- frame:
		}
	}
	return true
}

func moveParams(payload map[string]interface{}) (map[string]interface{}, bool) {
	intent, _ := payload["intent"].(string)
	if intent != string(core.IntentMoveTo) {
		return nil, false
	}
	params, ok := payload["params"].(map[string]interface{})
	return params, ok
}

func floatPair(params map[string]interface{}) (x, y float64, ok bool) {
	xv, xok := params["x"].(float64)
	yv, yok := params["y"].(float64)
	return xv, yv, xok && yok
}
