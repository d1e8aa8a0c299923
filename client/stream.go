package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/panyam/authflow"
)

// Event is one server-sent event from a task stream
type Event struct {
	ID   string
	Type string
	Data json.RawMessage
}

// Task is a running server-sent-event call. Events are delivered on the
// channel returned by Events, which is closed when the stream ends or the
// task is cancelled.
type Task struct {
	events  chan Event
	cancel  context.CancelFunc
	body    io.ReadCloser
	running atomic.Bool
	done    chan struct{}

	mu        sync.Mutex
	err       error
	cancelled bool
}

// Execute posts payload to path and streams the text/event-stream reply.
// The request carries the same bearer credential as every other call.
func (c *Client) Execute(ctx context.Context, path string, payload any) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &authflow.AuthError{Kind: authflow.KindUnexpected, Message: "failed to encode request", Err: err}
	}

	// Streams outlive the per-call timeout, so use a copy without one.
	httpClient := *c.httpClient
	httpClient.Timeout = 0

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(data))
	if err != nil {
		cancel()
		return nil, &authflow.AuthError{Kind: authflow.KindUnexpected, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := httpClient.Do(req)
	if err != nil {
		cancel()
		c.logger.Warn("stream request failed", "component", "client", "path", path, "err", err)
		return nil, &authflow.AuthError{Kind: authflow.KindTransport, Code: authflow.ErrCodeConnection, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, decodeError(resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return nil, malformed("expected an event stream, got "+ct, nil)
	}

	t := &Task{
		events: make(chan Event, 16),
		cancel: cancel,
		body:   resp.Body,
		done:   make(chan struct{}),
	}
	t.running.Store(true)
	go t.read(ctx)
	return t, nil
}

// Events returns the event channel
func (t *Task) Events() <-chan Event {
	return t.events
}

// Running reports whether the stream is still open
func (t *Task) Running() bool {
	return t.running.Load()
}

// Cancel closes the connection. It is safe to call more than once and the
// task is never retried.
func (t *Task) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()

	t.running.Store(false)
	t.cancel()
	t.body.Close()
}

// Wait blocks until the stream has been fully consumed or cancelled
func (t *Task) Wait() error {
	<-t.done
	return t.Err()
}

// Err returns the read error that ended the stream, if any.
// Cancellation is not an error.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) read(ctx context.Context) {
	defer close(t.done)
	defer close(t.events)
	defer t.running.Store(false)
	defer t.body.Close()

	scanner := bufio.NewScanner(t.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var ev Event
	var data []string
	flush := func() bool {
		if len(data) == 0 && ev.Type == "" {
			return true
		}
		ev.Data = json.RawMessage(strings.Join(data, "\n"))
		select {
		case t.events <- ev:
		case <-ctx.Done():
			return false
		}
		ev = Event{}
		data = data[:0]
		return true
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if !flush() {
				return
			}
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "data":
				data = append(data, value)
			case "event":
				ev.Type = value
			case "id":
				ev.ID = value
			}
		}
	}
	if !flush() {
		return
	}

	if err := scanner.Err(); err != nil {
		t.mu.Lock()
		if !t.cancelled && !errors.Is(err, context.Canceled) {
			t.err = &authflow.AuthError{Kind: authflow.KindTransport, Code: authflow.ErrCodeConnection, Err: err}
		}
		t.mu.Unlock()
	}
}
