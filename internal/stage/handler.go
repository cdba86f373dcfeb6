package stage

import (
	"context"
	"log/slog"
)

// Handler describes the contract the pipeline runner needs from each stage.
type Handler interface {
	Name() string
	Execute(context.Context, *Job) error
	HealthCheck(context.Context) Health
}

// LoggerAware is implemented by handlers that accept a request-scoped logger
// before execution.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
