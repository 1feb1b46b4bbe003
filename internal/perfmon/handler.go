package perfmon

import (
	"context"
	"fmt"
	"strings"
	"time"

	perrors "github.com/rcourtman/pulse-perfmon/internal/errors"
	"github.com/rcourtman/pulse-perfmon/internal/logging"
	"github.com/rcourtman/pulse-perfmon/internal/models"
)

// Action names one monitor operation.
type Action string

const (
	ActionCurrent   Action = "current"
	ActionHistory   Action = "history"
	ActionProcesses Action = "processes"
	ActionOptimize  Action = "optimize"
)

// ParseAction validates an action name.
func ParseAction(value string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(value))); a {
	case ActionCurrent, ActionHistory, ActionProcesses, ActionOptimize:
		return a, nil
	default:
		return "", perrors.NewValidationError("parse_action", "unknown action %q (expected current, history, processes or optimize)", value)
	}
}

// Request is one call into the monitor.
type Request struct {
	Action    string `json:"action"`
	TimeRange string `json:"timeRange,omitempty"`
	Metric    string `json:"metric,omitempty"`
}

// Result statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the envelope every request resolves to.
type Result struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handle runs req and converts every failure, including panics, into an
// error Result. Bad parameters are rejected before any probe or store work.
func (m *Monitor) Handle(ctx context.Context, req Request) (result Result) {
	ctx, _ = logging.WithRequestID(ctx, "")
	logger := logging.FromContext(ctx)
	start := time.Now()
	actionLabel := "invalid"

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("action", actionLabel).Msg("Recovered from panic in monitor request")
			result = errorResult(perrors.NewPerfError(perrors.ErrorTypeInternal, actionLabel, fmt.Errorf("panic: %v", r)))
		}

		elapsed := time.Since(start)
		requestsTotal.WithLabelValues(actionLabel, result.Status).Inc()
		requestDuration.WithLabelValues(actionLabel).Observe(elapsed.Seconds())

		event := logger.Debug()
		if result.Status == StatusError {
			event = logger.Warn().Str("error", result.Error)
		}
		event.
			Str("action", actionLabel).
			Str("status", result.Status).
			Dur("duration", elapsed).
			Msg("Monitor request completed")
	}()

	action, err := ParseAction(req.Action)
	if err != nil {
		return errorResult(err)
	}
	actionLabel = string(action)

	metric, err := models.ParseMetric(req.Metric)
	if err != nil {
		return errorResult(perrors.NewValidationError("parse_metric", "%v", err))
	}

	logger.Trace().
		Str("action", actionLabel).
		Str("metric", string(metric)).
		Str("time_range", req.TimeRange).
		Msg("Handling monitor request")

	var data any
	switch action {
	case ActionCurrent:
		data, err = m.Current(ctx, metric)
	case ActionHistory:
		data, err = m.History(ctx, req.TimeRange, metric)
	case ActionProcesses:
		data, err = m.Processes(ctx, metric)
	case ActionOptimize:
		data, err = m.Optimize(ctx)
	}
	if err != nil {
		return errorResult(err)
	}

	return Result{Status: StatusSuccess, Data: data}
}

func errorResult(err error) Result {
	return Result{Status: StatusError, Error: err.Error()}
}
