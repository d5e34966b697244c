package session

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nachoal/urban-quest/history"
	"github.com/nachoal/urban-quest/vision"
)

var (
	// ErrBusy is returned when a turn is submitted while another is in flight
	ErrBusy = errors.New("a turn is already in progress")

	// ErrEmptyTurn is returned when a turn has neither text nor an image
	ErrEmptyTurn = errors.New("turn needs text or an image")

	// ErrClosed is returned after the session has been torn down
	ErrClosed = errors.New("session is closed")
)

const (
	// DefaultFailureFormat renders a failed model call as the turn's response
	DefaultFailureFormat = "Something went wrong!\n%s"

	// NoResponseText stands in for a response without text
	NoResponseText = "No response found"
)

// Config contains orchestrator configuration
type Config struct {
	FailureFormat     string
	EmptyResponseText string
	MaxTurns          int
	Timeout           time.Duration
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		FailureFormat:     DefaultFailureFormat,
		EmptyResponseText: NoResponseText,
		MaxTurns:          0,
		Timeout:           0,
	}
}

// Snapshot is a read-only view of the session state
type Snapshot struct {
	ID           string
	Turns        []history.Turn
	PendingImage bool
	Busy         bool
	Phase        Phase
}

// Phase is the step a turn is currently in
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAnalyzingImage Phase = "analyzing_image"
	PhaseComposing      Phase = "composing"
	PhaseCallingModel   Phase = "calling_model"
)

// IsAnalysisError reports whether err aborted a turn during image analysis
func IsAnalysisError(err error) bool {
	var ae *vision.AnalysisError
	return errors.As(err, &ae)
}

type options struct {
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// Option is a functional option for configuring the orchestrator
type Option func(*options)

// WithLogger sets the structured logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFailureFormat sets the format used for failed model calls.
// It receives the error text as its only argument.
func WithFailureFormat(format string) Option {
	return func(o *options) {
		o.config.FailureFormat = format
	}
}

// WithEmptyResponseText sets the text recorded when the model returns none
func WithEmptyResponseText(text string) Option {
	return func(o *options) {
		o.config.EmptyResponseText = text
	}
}

// WithMaxTurns bounds the history, 0 keeps everything
func WithMaxTurns(n int) Option {
	return func(o *options) {
		o.config.MaxTurns = n
	}
}

// WithTimeout sets a deadline for each turn, 0 disables it
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.config.Timeout = d
	}
}

func withClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
