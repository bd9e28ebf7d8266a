// Package completion wraps the text-completion service used by the pipeline:
// the availability/download handshake, single-exchange calls with one retry,
// and normalization of heterogeneously shaped responses to plain text.
package completion

import (
	"context"
	"fmt"

	"github.com/valpere/studyspark/internal/logger"
)

// Availability is the readiness of a completion service's model.
type Availability string

const (
	Available    Availability = "available"
	Downloadable Availability = "downloadable"
	Downloading  Availability = "downloading"
	Unavailable  Availability = "unavailable"
)

// SessionOptions configures a session at creation time.
type SessionOptions struct {
	Model  string `mapstructure:"model" json:"model,omitempty"`
	System string `mapstructure:"system" json:"system,omitempty"`
}

// Session is a handle on the model reused for every call within one run.
// Prompt may return a string, a map, a slice, or any JSON-shaped value;
// ExtractText turns it into text.
type Session interface {
	Prompt(ctx context.Context, prompt string) (any, error)
	Close() error
}

// Service is the completion backend.
type Service interface {
	Name() string
	Availability(ctx context.Context) (Availability, error)
	Download(ctx context.Context) error
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// Connect performs the availability handshake and opens a session. A service
// that is not ready fails with *ServiceUnavailableError, unless autoDownload
// is set and the model can be downloaded, in which case the download runs
// first.
func Connect(ctx context.Context, svc Service, opts SessionOptions, autoDownload bool) (Session, error) {
	log := logger.FromContext(ctx).With("service", svc.Name())

	status, err := svc.Availability(ctx)
	if err != nil {
		return nil, &ServiceUnavailableError{Service: svc.Name(), Status: Unavailable, Err: err}
	}
	log.Debug("Completion service availability", "status", status)

	switch status {
	case Available:
	case Downloadable:
		if !autoDownload {
			return nil, &ServiceUnavailableError{Service: svc.Name(), Status: status}
		}
		log.Info("Downloading model")
		if err := svc.Download(ctx); err != nil {
			return nil, &ServiceUnavailableError{Service: svc.Name(), Status: status, Err: fmt.Errorf("download: %w", err)}
		}
	default:
		return nil, &ServiceUnavailableError{Service: svc.Name(), Status: status}
	}

	session, err := svc.NewSession(ctx, opts)
	if err != nil {
		return nil, &ServiceUnavailableError{Service: svc.Name(), Status: status, Err: fmt.Errorf("create session: %w", err)}
	}
	return session, nil
}
