// Package session runs a conversation one turn at a time: optional image
// analysis, prompt composition, a single model call and the history append.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/nachoal/urban-quest/history"
	"github.com/nachoal/urban-quest/llm"
	"github.com/nachoal/urban-quest/vision"
)

// Orchestrator owns the state of one conversation session
type Orchestrator struct {
	id       string
	client   llm.Client
	analyzer vision.Analyzer
	config   Config
	logger   *zap.Logger
	now      func() time.Time

	history *history.History
	guard   *semaphore.Weighted

	mu           sync.Mutex
	pendingImage *vision.Image
	busy         bool
	phase        Phase
	closed       bool

	ctx    context.Context
	cancel context.CancelFunc

	subMu       sync.Mutex
	subscribers map[int]chan Snapshot
	nextSub     int
}

// New creates a new orchestrator. A nil analyzer falls back to the stub.
func New(client llm.Client, analyzer vision.Analyzer, opts ...Option) *Orchestrator {
	o := options{
		config: DefaultConfig(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.config.FailureFormat == "" {
		o.config.FailureFormat = DefaultFailureFormat
	}
	if o.config.EmptyResponseText == "" {
		o.config.EmptyResponseText = NoResponseText
	}
	if analyzer == nil {
		analyzer = vision.NewStubAnalyzer()
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	return &Orchestrator{
		id:          id,
		client:      client,
		analyzer:    analyzer,
		config:      o.config,
		logger:      o.logger.With(zap.String("session", id)),
		now:         o.now,
		history:     history.New(o.config.MaxTurns),
		guard:       semaphore.NewWeighted(1),
		phase:       PhaseIdle,
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[int]chan Snapshot),
	}
}

// ID returns the session identifier
func (o *Orchestrator) ID() string {
	return o.id
}

// SubmitTurn runs one turn to completion and returns the appended Turn.
// If img is nil the staged image, if any, is used.
//
// Only ErrBusy, ErrEmptyTurn, ErrClosed and *vision.AnalysisError are
// returned. A failed model call is recorded as a turn carrying the failure
// message instead.
func (o *Orchestrator) SubmitTurn(ctx context.Context, text string, img *vision.Image) (history.Turn, error) {
	// The guard and the busy flag change together under mu so Busy and
	// Snapshot never disagree with TryAcquire.
	o.mu.Lock()
	if !o.guard.TryAcquire(1) {
		o.mu.Unlock()
		o.logger.Debug("Rejected overlapping turn")
		return history.Turn{}, ErrBusy
	}
	if o.closed {
		o.guard.Release(1)
		o.mu.Unlock()
		return history.Turn{}, ErrClosed
	}
	if img == nil {
		img = o.pendingImage.Clone()
	} else {
		img = img.Clone()
	}
	if strings.TrimSpace(text) == "" && (img == nil || len(img.Data) == 0) {
		o.guard.Release(1)
		o.mu.Unlock()
		return history.Turn{}, ErrEmptyTurn
	}
	o.busy = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.busy = false
		o.phase = PhaseIdle
		o.guard.Release(1)
		o.mu.Unlock()
		o.notify()
	}()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(o.ctx, cancel)
	defer stop()
	if o.config.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		turnCtx, cancelTimeout = context.WithTimeout(turnCtx, o.config.Timeout)
		defer cancelTimeout()
	}

	start := o.now()
	o.logger.Info("Processing turn",
		zap.Int("text_len", len(text)),
		zap.Bool("image", img != nil))

	var description string
	if img != nil {
		o.setPhase(PhaseAnalyzingImage)
		d, err := o.analyze(turnCtx, img)
		if err != nil {
			o.logger.Warn("Image analysis failed", zap.Error(err))
			return history.Turn{}, err
		}
		description = d
	}

	o.setPhase(PhaseComposing)
	prompt := ComposePrompt(description, text)

	o.setPhase(PhaseCallingModel)
	turn := history.Turn{
		ID:        uuid.NewString(),
		InputText: prompt,
		Image:     img,
	}

	resp, err := o.client.GenerateContent(turnCtx, prompt)
	if err != nil {
		turn.ResponseText = o.recoverModelFailure(err)
		turn.Failed = true
	} else {
		turn.ResponseText = o.responseText(resp)
	}
	turn.CreatedAt = o.now()

	o.mu.Lock()
	o.history.Append(turn)
	o.pendingImage = nil
	o.mu.Unlock()

	o.logger.Info("Turn recorded",
		zap.String("turn", turn.ID),
		zap.Bool("failed", turn.Failed),
		zap.Duration("elapsed", turn.CreatedAt.Sub(start)))

	return turn, nil
}

// ComposePrompt prefixes the user's text with the image description
func ComposePrompt(description, text string) string {
	if description == "" {
		return text
	}
	return fmt.Sprintf("%s. %s", description, text)
}

// analyze returns the description exactly as the analyzer produced it.
// Analyzers own any normalisation.
func (o *Orchestrator) analyze(ctx context.Context, img *vision.Image) (string, error) {
	description, err := o.analyzer.Analyze(ctx, img)
	if err != nil {
		var ae *vision.AnalysisError
		if errors.As(err, &ae) {
			return "", err
		}
		return "", vision.NewBackendError(err)
	}
	return description, nil
}

// recoverModelFailure turns a failed model call into the text shown as
// the model's answer. The turn is still recorded.
func (o *Orchestrator) recoverModelFailure(err error) string {
	o.logger.Warn("Model call failed, recording failure message", zap.Error(err))
	return fmt.Sprintf(o.config.FailureFormat, err.Error())
}

func (o *Orchestrator) responseText(resp *llm.Response) string {
	if resp == nil {
		return o.config.EmptyResponseText
	}
	if text := llm.GetStringValue(resp.Text); text != "" {
		return text
	}
	return o.config.EmptyResponseText
}

// ResetForNewQuest clears the history and any staged image.
// A turn already in flight still records its result afterwards.
func (o *Orchestrator) ResetForNewQuest() {
	o.mu.Lock()
	o.history.Reset()
	o.pendingImage = nil
	o.mu.Unlock()

	o.logger.Info("Started new quest")
	o.notify()
}

// StageImage holds an image for the next submitted turn
func (o *Orchestrator) StageImage(img *vision.Image) {
	o.mu.Lock()
	o.pendingImage = img.Clone()
	o.mu.Unlock()
	o.notify()
}

// ClearPendingImage drops the staged image
func (o *Orchestrator) ClearPendingImage() {
	o.StageImage(nil)
}

// PendingImage returns a copy of the staged image, or nil
func (o *Orchestrator) PendingImage() *vision.Image {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pendingImage.Clone()
}

// History returns a copy of the conversation
func (o *Orchestrator) History() []history.Turn {
	return o.history.Turns()
}

// Busy reports whether a turn is in flight
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

// Snapshot returns the current session state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	return Snapshot{
		ID:           o.id,
		Turns:        o.history.Turns(),
		PendingImage: o.pendingImage != nil,
		Busy:         o.busy,
		Phase:        o.phase,
	}
}

// Subscribe returns a channel receiving a snapshot after every state change.
// Only the latest snapshot is kept for slow readers. The channel is closed
// by the returned func or when the session is closed.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	o.subMu.Lock()
	if o.subscribers == nil {
		o.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subscribers[id] = ch
	o.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			defer o.subMu.Unlock()
			if c, ok := o.subscribers[id]; ok {
				delete(o.subscribers, id)
				close(c)
			}
		})
	}
}

// Close tears the session down. An in-flight model call is cancelled and
// its turn is recorded with the failure message.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.pendingImage = nil
	o.mu.Unlock()

	o.cancel()

	o.subMu.Lock()
	for id, ch := range o.subscribers {
		delete(o.subscribers, id)
		close(ch)
	}
	o.subscribers = nil
	o.subMu.Unlock()

	o.logger.Info("Session closed")
	return nil
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) notify() {
	snap := o.Snapshot()

	o.subMu.Lock()
	defer o.subMu.Unlock()

	for _, ch := range o.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}
		// Replace the stale snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
