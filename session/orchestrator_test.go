package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nachoal/urban-quest/llm"
	"github.com/nachoal/urban-quest/vision"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingClient answers every prompt and remembers what it was sent
type recordingClient struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (*llm.Response, error)
}

func (c *recordingClient) GenerateContent(_ context.Context, prompt string) (*llm.Response, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()
	if c.reply != nil {
		return c.reply(prompt)
	}
	return &llm.Response{Text: llm.StringPtr("answer to " + prompt)}, nil
}

func (c *recordingClient) Close() error { return nil }

func (c *recordingClient) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

// blockingClient holds every call until released or cancelled
type blockingClient struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingClient() *blockingClient {
	return &blockingClient{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (c *blockingClient) GenerateContent(ctx context.Context, prompt string) (*llm.Response, error) {
	c.started <- struct{}{}
	select {
	case <-c.release:
		return &llm.Response{Text: llm.StringPtr("done")}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *blockingClient) Close() error { return nil }

func describeAs(description string) vision.Analyzer {
	return vision.AnalyzerFunc(func(context.Context, *vision.Image) (string, error) {
		return description, nil
	})
}

func photo() *vision.Image {
	return &vision.Image{Data: []byte{0xFF, 0xD8, 0xFF}, MIMEType: "image/jpeg"}
}

func TestSubmitTurn_TextOnlyUsesTextAsPrompt(t *testing.T) {
	client := &recordingClient{}
	o := New(client, describeAs("unused"))
	defer o.Close()

	turn, err := o.SubmitTurn(context.Background(), "Where is the nearest museum?", nil)
	require.NoError(t, err)

	assert.Equal(t, "Where is the nearest museum?", turn.InputText)
	assert.Equal(t, "answer to Where is the nearest museum?", turn.ResponseText)
	assert.Equal(t, []string{"Where is the nearest museum?"}, client.calls())
	assert.Nil(t, turn.Image)
	assert.False(t, turn.Failed)
	assert.NotEmpty(t, turn.ID)
	assert.Len(t, o.History(), 1)
	assert.False(t, o.Busy())
}

func TestSubmitTurn_ImageDescriptionPrefixesPrompt(t *testing.T) {
	client := &recordingClient{}
	o := New(client, describeAs("D"))
	defer o.Close()

	img := photo()
	turn, err := o.SubmitTurn(context.Background(), "what is this?", img)
	require.NoError(t, err)

	assert.Equal(t, "D. what is this?", turn.InputText)
	assert.Equal(t, []string{"D. what is this?"}, client.calls())
	require.NotNil(t, turn.Image)
	assert.Equal(t, img.Data, turn.Image.Data)
}

func TestSubmitTurn_EmptyDescriptionAddsNoPrefix(t *testing.T) {
	client := &recordingClient{}
	o := New(client, describeAs("   "))
	defer o.Close()

	turn, err := o.SubmitTurn(context.Background(), "hello", photo())
	require.NoError(t, err)
	assert.Equal(t, "hello", turn.InputText)
}

func TestSubmitTurn_WithStubAnalyzer(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))

	client := &recordingClient{}
	o := New(client, nil)
	defer o.Close()

	turn, err := o.SubmitTurn(context.Background(), "Tell me more.", &vision.Image{Data: buf.Bytes(), MIMEType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, vision.DefaultStubDescription+". Tell me more.", turn.InputText)
}

func TestSubmitTurn_AnalysisFailureAbortsTurn(t *testing.T) {
	client := &recordingClient{}
	analyzer := vision.AnalyzerFunc(func(context.Context, *vision.Image) (string, error) {
		return "", vision.NewEncodingError(errors.New("failed to convert image to JPEG data"))
	})
	o := New(client, analyzer)
	defer o.Close()

	_, err := o.SubmitTurn(context.Background(), "what is this?", photo())
	require.Error(t, err)

	var ae *vision.AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, vision.ErrorKindEncoding, ae.Kind)
	assert.True(t, IsAnalysisError(err))
	assert.Empty(t, o.History())
	assert.Empty(t, client.calls(), "model must not be called after analysis failure")
	assert.False(t, o.Busy())
}

func TestSubmitTurn_PlainAnalyzerErrorBecomesAnalysisError(t *testing.T) {
	analyzer := vision.AnalyzerFunc(func(context.Context, *vision.Image) (string, error) {
		return "", errors.New("vision service unavailable")
	})
	o := New(&recordingClient{}, analyzer)
	defer o.Close()

	_, err := o.SubmitTurn(context.Background(), "hi", photo())

	var ae *vision.AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, vision.ErrorKindBackend, ae.Kind)
	assert.Contains(t, err.Error(), "vision service unavailable")
}

func TestSubmitTurn_ModelFailureIsRecordedAsTurn(t *testing.T) {
	client := &recordingClient{reply: func(string) (*llm.Response, error) {
		return nil, &llm.ModelError{Provider: "Gemini", StatusCode: 503, Message: "model overloaded"}
	}}
	o := New(client, describeAs("D"))
	defer o.Close()

	turn, err := o.SubmitTurn(context.Background(), "hello", photo())
	require.NoError(t, err)

	assert.True(t, turn.Failed)
	assert.Equal(t, "D. hello", turn.InputText)
	assert.Contains(t, turn.ResponseText, "Something went wrong!")
	assert.Contains(t, turn.ResponseText, "model overloaded")
	assert.NotNil(t, turn.Image)
	assert.Len(t, o.History(), 1)
	assert.False(t, o.Busy())
}

func TestSubmitTurn_MissingTextBecomesNoResponseFound(t *testing.T) {
	tests := []struct {
		name string
		resp *llm.Response
	}{
		{"nil response", nil},
		{"nil text", &llm.Response{}},
		{"empty text", &llm.Response{Text: llm.StringPtr("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := llm.ClientFunc(func(context.Context, string) (*llm.Response, error) { return tt.resp, nil })
			o := New(client, nil)
			defer o.Close()

			turn, err := o.SubmitTurn(context.Background(), "hi", nil)
			require.NoError(t, err)
			assert.Equal(t, NoResponseText, turn.ResponseText)
			assert.False(t, turn.Failed)
		})
	}
}

func TestSubmitTurn_HistoryGrowsByOnePerAcceptedCall(t *testing.T) {
	var n int32
	client := &recordingClient{reply: func(string) (*llm.Response, error) {
		if atomic.AddInt32(&n, 1)%2 == 0 {
			return nil, errors.New("network unreachable")
		}
		return &llm.Response{Text: llm.StringPtr("ok")}, nil
	}}
	o := New(client, describeAs("D"))
	defer o.Close()

	inputs := []struct {
		text string
		img  *vision.Image
	}{
		{"one", nil},
		{"two", photo()},
		{"three", nil},
		{"", photo()},
		{"five", nil},
	}

	for i, in := range inputs {
		_, err := o.SubmitTurn(context.Background(), in.text, in.img)
		require.NoError(t, err)
		require.Len(t, o.History(), i+1)
	}

	turns := o.History()
	assert.Equal(t, "one", turns[0].InputText)
	assert.Equal(t, "D. two", turns[1].InputText)
	assert.True(t, turns[1].Failed)
	assert.Equal(t, "D. ", turns[3].InputText)
}

func TestSubmitTurn_RejectsEmptyTurn(t *testing.T) {
	client := &recordingClient{}
	o := New(client, nil)
	defer o.Close()

	_, err := o.SubmitTurn(context.Background(), "  \n", nil)
	assert.ErrorIs(t, err, ErrEmptyTurn)
	assert.Empty(t, o.History())
	assert.Empty(t, client.calls())
	assert.False(t, o.Busy())
}

func TestSubmitTurn_RejectsOverlappingCall(t *testing.T) {
	client := newBlockingClient()
	o := New(client, nil)
	defer o.Close()

	done := make(chan error, 1)
	go func() {
		_, err := o.SubmitTurn(context.Background(), "first", nil)
		done <- err
	}()
	<-client.started
	require.True(t, o.Busy())

	_, err := o.SubmitTurn(context.Background(), "second", nil)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Empty(t, o.History(), "rejected call must not touch history")

	close(client.release)
	require.NoError(t, <-done)

	turns := o.History()
	require.Len(t, turns, 1)
	assert.Equal(t, "first", turns[0].InputText)
	assert.False(t, o.Busy())
}

func TestSubmitTurn_IdleSnapshotAcceptsNextTurn(t *testing.T) {
	client := &recordingClient{}
	o := New(client, nil)
	defer o.Close()

	updates, unsubscribe := o.Subscribe()
	defer unsubscribe()

	done := make(chan error, 1)
	go func() {
		_, err := o.SubmitTurn(context.Background(), "first", nil)
		done <- err
	}()

	for snap := range updates {
		if !snap.Busy && len(snap.Turns) == 1 {
			break
		}
	}

	// An idle snapshot means the guard is already free
	_, err := o.SubmitTurn(context.Background(), "second", nil)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"first", "second"}, client.calls())
}

func TestSubmitTurn_PassesDescriptionThroughUnchanged(t *testing.T) {
	client := &recordingClient{}
	o := New(client, describeAs(" D "))
	defer o.Close()

	turn, err := o.SubmitTurn(context.Background(), "x", photo())
	require.NoError(t, err)

	assert.Equal(t, " D . x", turn.InputText)
	assert.Equal(t, []string{" D . x"}, client.calls())
}

func TestSubmitTurn_UsesAndClearsStagedImage(t *testing.T) {
	client := &recordingClient{}
	o := New(client, describeAs("A bridge"))
	defer o.Close()

	o.StageImage(photo())
	require.NotNil(t, o.PendingImage())

	turn, err := o.SubmitTurn(context.Background(), "how old is it?", nil)
	require.NoError(t, err)

	assert.Equal(t, "A bridge. how old is it?", turn.InputText)
	assert.NotNil(t, turn.Image)
	assert.Nil(t, o.PendingImage())
}

func TestSubmitTurn_StagedImageAllowsEmptyText(t *testing.T) {
	o := New(&recordingClient{}, describeAs("A fountain"))
	defer o.Close()

	o.StageImage(photo())
	turn, err := o.SubmitTurn(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "A fountain. ", turn.InputText)
}

func TestSubmitTurn_AnalysisFailureKeepsStagedImage(t *testing.T) {
	analyzer := vision.AnalyzerFunc(func(context.Context, *vision.Image) (string, error) {
		return "", vision.NewBackendError(errors.New("timeout"))
	})
	o := New(&recordingClient{}, analyzer)
	defer o.Close()

	o.StageImage(photo())
	_, err := o.SubmitTurn(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.NotNil(t, o.PendingImage())
}

func TestSubmitTurn_ModelFailureClearsStagedImage(t *testing.T) {
	client := &recordingClient{reply: func(string) (*llm.Response, error) {
		return nil, errors.New("boom")
	}}
	o := New(client, describeAs("D"))
	defer o.Close()

	o.StageImage(photo())
	_, err := o.SubmitTurn(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Nil(t, o.PendingImage())
}

func TestSubmitTurn_Timeout(t *testing.T) {
	client := newBlockingClient()
	o := New(client, nil, WithTimeout(20*time.Millisecond))
	defer o.Close()

	turn, err := o.SubmitTurn(context.Background(), "slow question", nil)
	require.NoError(t, err)
	assert.True(t, turn.Failed)
	assert.Contains(t, turn.ResponseText, context.DeadlineExceeded.Error())
}

func TestSubmitTurn_CustomMessages(t *testing.T) {
	client := &recordingClient{reply: func(p string) (*llm.Response, error) {
		if p == "fail" {
			return nil, errors.New("offline")
		}
		return &llm.Response{}, nil
	}}
	o := New(client, nil,
		WithFailureFormat("Oops: %s"),
		WithEmptyResponseText("(silence)"))
	defer o.Close()

	turn, err := o.SubmitTurn(context.Background(), "fail", nil)
	require.NoError(t, err)
	assert.Equal(t, "Oops: offline", turn.ResponseText)

	turn, err = o.SubmitTurn(context.Background(), "quiet", nil)
	require.NoError(t, err)
	assert.Equal(t, "(silence)", turn.ResponseText)
}

func TestWithMaxTurns_TrimsOldest(t *testing.T) {
	o := New(&recordingClient{}, nil, WithMaxTurns(2))
	defer o.Close()

	for _, text := range []string{"a", "b", "c"} {
		_, err := o.SubmitTurn(context.Background(), text, nil)
		require.NoError(t, err)
	}

	turns := o.History()
	require.Len(t, turns, 2)
	assert.Equal(t, "b", turns[0].InputText)
	assert.Equal(t, "c", turns[1].InputText)
}

func TestResetForNewQuest(t *testing.T) {
	o := New(&recordingClient{}, describeAs("D"))
	defer o.Close()

	_, err := o.SubmitTurn(context.Background(), "one", nil)
	require.NoError(t, err)
	_, err = o.SubmitTurn(context.Background(), "two", photo())
	require.NoError(t, err)
	o.StageImage(photo())

	o.ResetForNewQuest()

	assert.Empty(t, o.History())
	assert.Nil(t, o.PendingImage())
	snap := o.Snapshot()
	assert.Empty(t, snap.Turns)
	assert.False(t, snap.PendingImage)

	// A reset on an empty session is a no-op
	o.ResetForNewQuest()
	assert.Empty(t, o.History())
}

func TestResetForNewQuest_InFlightTurnLandsInNewHistory(t *testing.T) {
	client := newBlockingClient()
	o := New(client, nil)
	defer o.Close()

	done := make(chan error, 1)
	go func() {
		_, err := o.SubmitTurn(context.Background(), "old quest question", nil)
		done <- err
	}()
	<-client.started

	o.ResetForNewQuest()
	assert.Empty(t, o.History())
	assert.True(t, o.Busy(), "reset does not cancel the turn in flight")

	_, err := o.SubmitTurn(context.Background(), "new quest question", nil)
	assert.ErrorIs(t, err, ErrBusy)

	close(client.release)
	require.NoError(t, <-done)

	turns := o.History()
	require.Len(t, turns, 1)
	assert.Equal(t, "old quest question", turns[0].InputText)
	assert.Equal(t, "done", turns[0].ResponseText)
	assert.False(t, turns[0].Failed)
	assert.False(t, o.Busy())
}

func TestClose_CancelsInFlightTurn(t *testing.T) {
	client := newBlockingClient()
	o := New(client, nil)

	type result struct {
		failed   bool
		response string
		err      error
	}
	done := make(chan result, 1)
	go func() {
		turn, err := o.SubmitTurn(context.Background(), "long question", nil)
		done <- result{turn.Failed, turn.ResponseText, err}
	}()
	<-client.started

	require.NoError(t, o.Close())

	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.failed)
	assert.Contains(t, res.response, context.Canceled.Error())
	assert.Len(t, o.History(), 1)

	_, err := o.SubmitTurn(context.Background(), "after close", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, o.Close(), "close is idempotent")
}

func TestClose_ReleasesStagedImage(t *testing.T) {
	o := New(&recordingClient{}, nil)
	o.StageImage(photo())

	require.NoError(t, o.Close())
	assert.Nil(t, o.PendingImage())
}

func TestSubscribe_ReceivesBusyAndFinalState(t *testing.T) {
	client := newBlockingClient()
	o := New(client, nil)
	defer o.Close()

	updates, unsubscribe := o.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.SubmitTurn(context.Background(), "hi", nil)
	}()
	<-client.started

	snap := <-updates
	assert.True(t, snap.Busy)
	assert.Equal(t, PhaseCallingModel, snap.Phase)

	close(client.release)
	<-done

	snap = <-updates
	assert.False(t, snap.Busy)
	assert.Equal(t, PhaseIdle, snap.Phase)
	require.Len(t, snap.Turns, 1)
	assert.Equal(t, "done", snap.Turns[0].ResponseText)
	assert.Equal(t, o.ID(), snap.ID)
}

func TestSubscribe_ClosedOnSessionClose(t *testing.T) {
	o := New(&recordingClient{}, nil)
	updates, unsubscribe := o.Subscribe()

	require.NoError(t, o.Close())
	unsubscribe()

	_, ok := <-updates
	assert.False(t, ok)

	late, _ := o.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing after close yields a closed channel")
}

func TestComposePrompt(t *testing.T) {
	assert.Equal(t, "text", ComposePrompt("", "text"))
	assert.Equal(t, "D. text", ComposePrompt("D", "text"))
}

func TestWithClock_StampsTurns(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	o := New(&recordingClient{}, nil, withClock(func() time.Time { return fixed }))
	defer o.Close()

	turn, err := o.SubmitTurn(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, fixed, turn.CreatedAt)
}
