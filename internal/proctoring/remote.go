package proctoring

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Media commands sent to the browser.
const (
	CommandAcquire     = "media.acquire"
	CommandRecordStart = "media.record_start"
	CommandRecordStop  = "media.record_stop"
	CommandRelease     = "media.release"
)

// Reasons a browser reports for a refused acquisition.
const (
	ReasonDenied      = "denied"
	ReasonUnsupported = "unsupported"
)

// ErrMediaTimeout is returned when the browser does not answer a command.
var ErrMediaTimeout = errors.New("media command timed out")

// Command is one instruction for the browser's media layer.
type Command struct {
	Action  string `json:"action"`
	ChunkMS int64  `json:"chunk_ms,omitempty"`
}

// RemoteCapturer is a Capturer whose camera lives in the student's browser.
// Commands go out through send; the connection feeds answers back with
// Resolve, PushChunk and Stopped.
type RemoteCapturer struct {
	send    func(Command) error
	timeout time.Duration

	mu      sync.Mutex
	grant   chan error
	stopped chan struct{}
	onChunk func([]byte)
}

// NewRemoteCapturer creates a RemoteCapturer. timeout bounds every wait for
// a browser answer.
func NewRemoteCapturer(send func(Command) error, timeout time.Duration) *RemoteCapturer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteCapturer{send: send, timeout: timeout}
}

func (r *RemoteCapturer) Acquire(ctx context.Context) error {
	ch := make(chan error, 1)
	r.mu.Lock()
	r.grant = ch
	r.mu.Unlock()

	if err := r.send(Command{Action: CommandAcquire}); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		r.mu.Lock()
		if r.grant == ch {
			r.grant = nil
		}
		r.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrMediaTimeout
		}
		return ctx.Err()
	}
}

// Resolve answers a pending Acquire. An empty reason means granted.
func (r *RemoteCapturer) Resolve(granted bool, reason string) {
	var err error
	if !granted {
		switch reason {
		case ReasonUnsupported:
			err = ErrUnsupported
		default:
			err = ErrPermissionDenied
		}
	}

	r.mu.Lock()
	ch := r.grant
	r.grant = nil
	r.mu.Unlock()

	if ch != nil {
		ch <- err
	}
}

func (r *RemoteCapturer) Record(every time.Duration, onChunk func([]byte)) error {
	r.mu.Lock()
	r.onChunk = onChunk
	r.stopped = nil
	r.mu.Unlock()

	return r.send(Command{Action: CommandRecordStart, ChunkMS: every.Milliseconds()})
}

// PushChunk delivers one recorded chunk.
func (r *RemoteCapturer) PushChunk(data []byte) {
	r.mu.Lock()
	fn := r.onChunk
	r.mu.Unlock()

	if fn != nil {
		fn(data)
	}
}

func (r *RemoteCapturer) Stop(ctx context.Context) error {
	ch := make(chan struct{})
	r.mu.Lock()
	r.stopped = ch
	r.mu.Unlock()

	if err := r.send(Command{Action: CommandRecordStop}); err != nil {
		r.detach()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer r.detach()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ErrMediaTimeout
	}
}

// Stopped reports that the browser recorder flushed its final chunk.
func (r *RemoteCapturer) Stopped() {
	r.mu.Lock()
	ch := r.stopped
	r.stopped = nil
	r.mu.Unlock()

	if ch != nil {
		close(ch)
	}
}

func (r *RemoteCapturer) detach() {
	r.mu.Lock()
	r.onChunk = nil
	r.stopped = nil
	r.mu.Unlock()
}

func (r *RemoteCapturer) Release() {
	_ = r.send(Command{Action: CommandRelease})
}
