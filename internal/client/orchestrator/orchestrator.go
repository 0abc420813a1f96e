// Package orchestrator drives one chat turn at a time: it posts the
// transcript to the relay and streams the reply into the placeholder.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/zhouzirui/streamchat/internal/client/textdecode"
	"github.com/zhouzirui/streamchat/internal/client/transcript"
	"github.com/zhouzirui/streamchat/internal/model/chat"
)

// GenericErrorMessage is what the user sees when a turn fails.
const GenericErrorMessage = "Something went wrong. Please try again."

const (
	chatPath     = "/api/chat"
	readBufSize  = 4 << 10
	maxErrorBody = 64 << 10
)

var (
	ErrEmptyInput     = errors.New("orchestrator: message is empty")
	ErrTurnInProgress = errors.New("orchestrator: a turn is already in progress")
	ErrNoSession      = errors.New("orchestrator: no session identifier")
)

// State of the current turn.
type State int32

const (
	Idle State = iota
	Sending
	Streaming
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// TurnError describes why a turn failed. Status is zero for transport errors.
type TurnError struct {
	Status int
	Detail string
	Err    error
}

func (e *TurnError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("relay returned status %d: %s", e.Status, e.Detail)
	case e.Err != nil:
		return "chat turn failed: " + e.Err.Error()
	}
	return "chat turn failed: " + e.Detail
}

func (e *TurnError) Unwrap() error { return e.Err }

// UserMessage is the text to show the end user; relay detail stays in logs.
func (e *TurnError) UserMessage() string { return GenericErrorMessage }

// IDSource yields the session identifier.
type IDSource interface {
	ID() string
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithHTTPClient sets the client used for relay calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.httpClient = c }
}

// WithStateObserver is called on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// Orchestrator runs chat turns against the relay.
type Orchestrator struct {
	baseURL    string
	ids        IDSource
	transcript *transcript.Store
	httpClient *http.Client
	onState    func(State)

	state atomic.Int32
}

// New builds an orchestrator that talks to the relay at baseURL.
func New(baseURL string, ids IDSource, store *transcript.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		ids:        ids,
		transcript: store,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func logger() *zap.SugaredLogger {
	return zap.S().Named("orchestrator")
}

// State returns the state of the latest turn.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Busy reports whether input should be disabled.
func (o *Orchestrator) Busy() bool {
	s := o.State()
	return s == Sending || s == Streaming
}

// Submit runs one turn and blocks until the stream completes or fails.
// While a turn is outstanding further calls return ErrTurnInProgress and
// leave the transcript untouched.
func (o *Orchestrator) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	sessionID := o.ids.ID()
	if sessionID == "" {
		return ErrNoSession
	}
	if !o.begin() {
		return ErrTurnInProgress
	}

	o.transcript.AppendUserMessage(text)
	history := o.transcript.History()
	placeholder, err := o.transcript.AppendAssistantPlaceholder()
	if err != nil {
		o.setState(Failed)
		return &TurnError{Err: err}
	}
	defer o.transcript.ClosePlaceholder(placeholder.ID)

	if err := o.stream(ctx, sessionID, history, placeholder.ID); err != nil {
		logger().Infow("turn failed", "sid", sessionID, "err", err)
		o.setState(Failed)
		return err
	}
	o.setState(Completed)
	return nil
}

func (o *Orchestrator) begin() bool {
	for {
		cur := State(o.state.Load())
		if cur == Sending || cur == Streaming {
			return false
		}
		if o.state.CompareAndSwap(int32(cur), int32(Sending)) {
			o.notify(Sending)
			return true
		}
	}
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	o.notify(s)
}

func (o *Orchestrator) notify(s State) {
	if o.onState != nil {
		o.onState(s)
	}
}

func (o *Orchestrator) stream(ctx context.Context, sessionID string, history []chat.Message, placeholderID string) error {
	payload, err := json.Marshal(chat.Request{Messages: history, SessionID: sessionID})
	if err != nil {
		return &TurnError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+chatPath, bytes.NewReader(payload))
	if err != nil {
		return &TurnError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return &TurnError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return &TurnError{Status: resp.StatusCode, Detail: detail}
	}
	if resp.Body == nil {
		return &TurnError{Detail: "response has no body"}
	}

	o.setState(Streaming)

	dec := textdecode.New()
	var acc strings.Builder
	buf := make([]byte, readBufSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			acc.WriteString(dec.Decode(buf[:n]))
			o.update(placeholderID, acc.String())
		}
		if errors.Is(readErr, io.EOF) {
			if tail := dec.Flush(); tail != "" {
				acc.WriteString(tail)
				o.update(placeholderID, acc.String())
			}
			return nil
		}
		if readErr != nil {
			return &TurnError{Err: readErr}
		}
	}
}

func (o *Orchestrator) update(id, content string) {
	if err := o.transcript.UpdatePlaceholderContent(id, content); err != nil {
		logger().Debugw("placeholder update dropped", "id", id, "err", err)
	}
}
