// Package sideeffect runs best-effort work, such as notification mail, whose
// failure must never fail the request that triggered it.
package sideeffect

import (
	"railgate.app/api/internal/logger"
)

// Result records the outcome of one best-effort effect. A non-nil Err has
// already been logged.
type Result struct {
	Name string
	Err  error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Attempt runs fn once and logs a warning if it fails. Panics are not
// recovered.
func Attempt(name string, fields map[string]interface{}, fn func() error) Result {
	err := fn()
	if err == nil {
		logger.Debug("Side effect completed", withName(name, fields))
		return Result{Name: name}
	}

	logFields := withName(name, fields)
	logFields["error"] = err.Error()
	logger.Warn("Side effect failed", logFields)

	return Result{Name: name, Err: err}
}

func withName(name string, fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["effect"] = name
	return out
}
