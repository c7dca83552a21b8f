// Package tools answers function calls the live model makes against the session.
package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/vango-go/vinyasa/pkg/core/types"
)

const (
	SetPoseIndex = "setPoseIndex"

	ResultOK = "OK, pose updated."
)

// Declaration returns the single function the live model may call.
func Declaration() types.Tool {
	return types.NewFunctionTool(
		SetPoseIndex,
		"Move the guided session to the pose at the given zero-based index of the sequence.",
		&types.JSONSchema{
			Type: "object",
			Properties: map[string]types.JSONSchema{
				"index": {Type: "integer", Description: "Zero-based index of the pose to show."},
			},
			Required: []string{"index"},
		},
	)
}

// ValidationError is an InvalidToolArgument failure.
type ValidationError struct {
	Arg    any
	Count  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pose index %v: %s", e.Arg, e.Reason)
}

// Validate checks a raw index argument against the number of poses and returns it
// as an int. It has no side effects.
func Validate(arg any, poseCount int) (int, error) {
	f, ok := asNumber(arg)
	if !ok {
		return 0, &ValidationError{Arg: arg, Count: poseCount, Reason: "index must be a number"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, &ValidationError{Arg: arg, Count: poseCount, Reason: "index must be a whole number"}
	}
	if f < 0 || f >= float64(poseCount) {
		return 0, &ValidationError{
			Arg:    arg,
			Count:  poseCount,
			Reason: fmt.Sprintf("out of bounds for %d poses", poseCount),
		}
	}
	return int(f), nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Navigator is the session side of setPoseIndex.
type Navigator interface {
	PoseCount() int
	SetPoseIndex(index int)
}

// Dispatch produces exactly one response per call, in call order. Calls are
// applied in order, so the last valid index wins within one message.
func Dispatch(calls []types.ToolCall, nav Navigator) []types.ToolResponse {
	out := make([]types.ToolResponse, 0, len(calls))
	for _, call := range calls {
		out = append(out, types.ToolResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: map[string]any{"result": handle(call, nav)},
		})
	}
	return out
}

func handle(call types.ToolCall, nav Navigator) string {
	if !strings.EqualFold(strings.TrimSpace(call.Name), SetPoseIndex) {
		return fmt.Sprintf("Error: unknown tool %q.", call.Name)
	}
	idx, err := Validate(call.Args["index"], nav.PoseCount())
	if err != nil {
		return "Error: " + err.Error() + "."
	}
	nav.SetPoseIndex(idx)
	return ResultOK
}

// IsOK reports whether a response is the success result.
func IsOK(r types.ToolResponse) bool {
	s, _ := r.Response["result"].(string)
	return s == ResultOK
}
