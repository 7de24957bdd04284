package lsp

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// callResult carries a completed exchange back to the waiting caller.
type callResult struct {
	msg *Message
	err error
}

// sender abstracts the outbound half of a channel so the correlator can be
// tested without a socket.
type sender interface {
	Send(ctx context.Context, frame []byte) error
	IsOpen() bool
}

// Correlator matches responses to in-flight requests by id. Ids are assigned
// from a counter that lives as long as the client instance; they survive
// reconnects and are never reused.
type Correlator struct {
	log     *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	ch      sender
	nextID  int64
	pending map[int64]chan callResult
}

// NewCorrelator creates a correlator with the given per-request timeout.
func NewCorrelator(log *slog.Logger, timeout time.Duration) *Correlator {
	return &Correlator{
		log:     log,
		timeout: timeout,
		nextID:  1,
		pending: make(map[int64]chan callResult),
	}
}

// Bind attaches the correlator to a (re)connected channel. The id counter is
// deliberately not reset: responses from a dead connection must never match
// requests on a new one.
func (c *Correlator) Bind(ch sender) {
	c.mu.Lock()
	c.ch = ch
	c.mu.Unlock()
}

// Call sends a request and blocks until the response, an error, the timeout,
// or ctx cancellation. When the channel is down it rejects immediately
// instead of queueing.
func (c *Correlator) Call(ctx context.Context, method string, params any) (*Message, error) {
	c.mu.Lock()
	ch := c.ch
	if ch == nil || !ch.IsOpen() {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := c.nextID
	c.nextID++
	done := make(chan callResult, 1)
	c.pending[id] = done
	c.mu.Unlock()

	frame, err := EncodeRequest(id, method, params)
	if err != nil {
		c.remove(id)
		return nil, err
	}
	if err := ch.Send(ctx, frame); err != nil {
		c.remove(id)
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		if res.msg.Error != nil {
			return nil, res.msg.Error
		}
		return res.msg, nil
	case <-timer.C:
		c.remove(id)
		c.log.Warn("lsp request timed out", "method", method, "id", id)
		return nil, ErrTimeout
	case <-ctx.Done():
		c.remove(id)
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget notification. When the channel is down it
// logs and drops the message rather than failing the caller.
func (c *Correlator) Notify(ctx context.Context, method string, params any) error {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()

	if ch == nil || !ch.IsOpen() {
		c.log.Warn("lsp notification dropped, not connected", "method", method)
		return nil
	}

	frame, err := EncodeNotification(method, params)
	if err != nil {
		return err
	}
	return ch.Send(ctx, frame)
}

// Resolve routes an inbound response to its waiting caller. Responses with
// unknown ids are logged and discarded; they belong to timed-out or drained
// requests.
func (c *Correlator) Resolve(msg *Message) {
	if msg.ID == nil {
		return
	}
	c.mu.Lock()
	done, ok := c.pending[*msg.ID]
	if ok {
		delete(c.pending, *msg.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Debug("lsp response for unknown id", "id", *msg.ID)
		return
	}
	done <- callResult{msg: msg}
}

// Drain fails every in-flight request with err. Called on disconnect so no
// caller waits on a connection that no longer exists.
func (c *Correlator) Drain(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan callResult)
	c.mu.Unlock()

	for id, done := range pending {
		c.log.Debug("lsp request drained", "id", id)
		done <- callResult{err: err}
	}
}

// Pending reports the number of in-flight requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) remove(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
