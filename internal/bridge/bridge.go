// Package bridge turns one-shot requests into framed game server commands
// and gathers the frames that come back.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gmbridge-project/gmbridge/internal/dispatch"
	"github.com/gmbridge-project/gmbridge/internal/protocol"
	"github.com/gmbridge-project/gmbridge/internal/util"
)

// Response statuses reported to API callers.
const (
	StatusSuccess    = "success"
	StatusNoResponse = "no_response"
	StatusError      = "error"
)

// DefaultResponseTimeout bounds the wait for the first response frame.
const DefaultResponseTimeout = 3 * time.Second

// quiescenceDelay is how long the bridge lingers after the first frame so
// multi-frame responses are captured whole. The server sends all frames of
// one response in a tight burst.
const quiescenceDelay = 100 * time.Millisecond

var (
	// ErrNotConnected reports a request attempted while the game link is down.
	ErrNotConnected = errors.New("bridge: game server not connected")
	// ErrLoginFailed reports a server-side credential rejection.
	ErrLoginFailed = errors.New("bridge: game server rejected login")
	// ErrLoginTimeout reports a login handshake with no verdict in time.
	ErrLoginTimeout = errors.New("bridge: login handshake timed out")
)

// Sender is the outbound half of the game server link.
type Sender interface {
	Send(seqNo int, body, account string) error
	IsConnected() bool
}

// Result is the outcome of one bridged command.
type Result struct {
	Status string           `json:"status"`
	Frames []protocol.Frame `json:"frames"`
}

// Bridge correlates outbound commands with inbound frames through the
// dispatcher. It is safe for concurrent use; overlapping requests each get
// their own collector and may share frames.
type Bridge struct {
	sender     Sender
	dispatcher *dispatch.Dispatcher
	account    string
	timeout    time.Duration
	logger     zerolog.Logger
}

// New creates a Bridge. timeout bounds the wait for the first response
// frame; zero selects DefaultResponseTimeout.
func New(sender Sender, dispatcher *dispatch.Dispatcher, account string, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}
	return &Bridge{
		sender:     sender,
		dispatcher: dispatcher,
		account:    account,
		timeout:    timeout,
		logger:     util.ComponentLogger("bridge"),
	}
}

// Invoke builds the command, sends it and collects the response frames. A
// timeout waiting for the first frame is not an error; the server stays
// silent for fire-and-forget commands, so the caller gets StatusNoResponse.
func (b *Bridge) Invoke(ctx context.Context, seqNo int, name string, args map[string]interface{}) (Result, error) {
	if !b.sender.IsConnected() {
		return Result{}, ErrNotConnected
	}

	body, err := protocol.BuildCommand(name, args)
	if err != nil {
		return Result{}, fmt.Errorf("build command %q: %w", name, err)
	}

	id := uuid.NewString()
	first := b.dispatcher.RegisterCollector(id)

	if err := b.sender.Send(seqNo, body, b.account); err != nil {
		b.dispatcher.CancelCollector(id)
		return Result{}, fmt.Errorf("send command %q: %w", name, err)
	}

	b.logger.Debug().Str("command", name).Int("seq_no", seqNo).Str("request_id", id).Msg("command sent")

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-first:
	case <-timer.C:
		frames := b.dispatcher.TakeFrames(id)
		if len(frames) == 0 {
			return Result{Status: StatusNoResponse, Frames: []protocol.Frame{}}, nil
		}
		return Result{Status: StatusSuccess, Frames: frames}, nil
	case <-ctx.Done():
		b.dispatcher.CancelCollector(id)
		return Result{}, ctx.Err()
	}

	// First frame is in; wait out the burst before harvesting.
	select {
	case <-time.After(quiescenceDelay):
	case <-ctx.Done():
		b.dispatcher.CancelCollector(id)
		return Result{}, ctx.Err()
	}

	frames := b.dispatcher.TakeFrames(id)
	return Result{Status: StatusSuccess, Frames: frames}, nil
}

// Login performs the credential handshake. The server answers with one of
// two fixed sequence numbers, so this is the only request correlated by
// sequence number instead of arrival time.
func (b *Bridge) Login(ctx context.Context, password string, timeout time.Duration) error {
	if !b.sender.IsConnected() {
		return ErrNotConnected
	}

	okID := uuid.NewString()
	failID := uuid.NewString()
	okCh := b.dispatcher.RegisterSeqWaiter(okID, protocol.SeqLoginOK)
	failCh := b.dispatcher.RegisterSeqWaiter(failID, protocol.SeqLoginFailed)
	defer b.dispatcher.CancelSeqWaiter(okID)
	defer b.dispatcher.CancelSeqWaiter(failID)

	body := protocol.BuildLogin(b.account, password)
	if err := b.sender.Send(protocol.SeqLogin, body, b.account); err != nil {
		return fmt.Errorf("send login: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-okCh:
		b.logger.Info().Str("account", b.account).Str("message", frame.Content).Msg("login accepted")
		return nil
	case frame := <-failCh:
		return fmt.Errorf("%w: %s", ErrLoginFailed, frame.Content)
	case <-timer.C:
		return ErrLoginTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether the underlying game server link is up.
func (b *Bridge) Connected() bool {
	return b.sender.IsConnected()
}

// Account returns the GM account commands are sent under.
func (b *Bridge) Account() string {
	return b.account
}
