// Package log provides the logging interface for the preload SDK.
//
// The SDK accepts any implementation of [Logger]. Use [Noop] to disable
// logging (this is the default when no logger is configured), or [NewLogrus]
// to log through a logrus logger:
//
//	client, err := lib.New(ctx, lib.Config{
//	    Logger: log.NewLogrus(logrus.NewEntry(logrus.StandardLogger())),
//	})
//
// Every log line of a preload carries its run ID under the "run-id" key.
package log

import (
	"github.com/sirupsen/logrus"

	"github.com/slok/preload/internal/log"
	loglogrus "github.com/slok/preload/internal/log/logrus"
)

// Logger is the interface that loggers must implement for the SDK.
//
// Failed and timed out assets are logged as warnings, they are never returned as errors.
type Logger = log.Logger

// Kv is a helper type for structured logging key-value pairs.
type Kv = log.Kv

// Noop is a logger that discards all log output. This is the default logger
// when none is provided in [lib.Config].
var Noop = log.Noop

// NewLogrus returns a Logger that writes through a logrus entry.
func NewLogrus(e *logrus.Entry) Logger {
	return loglogrus.NewLogrus(e)
}
