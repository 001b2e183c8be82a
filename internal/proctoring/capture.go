package proctoring

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stemsi/exstem-attempt/internal/apperr"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// State is the capture lifecycle position.
type State string

const (
	StateIdle       State = "IDLE"
	StateRequesting State = "REQUESTING"
	StateReady      State = "READY"
	StateRecording  State = "RECORDING"
	StateStopped    State = "STOPPED"
)

// VideoMimeType is the container of assembled recordings.
const VideoMimeType = "video/webm"

// DefaultChunkEvery is the recorder timeslice.
const DefaultChunkEvery = time.Second

// Student-facing messages.
const (
	MsgPermissionDenied = "Debes permitir acceso a cámara y micrófono para rendir esta evaluación."
	MsgUnsupported      = "Este navegador no soporta cámara para proctoring."
	MsgStartFailed      = "No se pudo iniciar la cámara."
	MsgNoVideo          = "No se pudo generar el video de la cámara."
	MsgNoVideoURL       = "No se recibió URL del video."
	MsgUploadFailed     = "No se pudo subir el video de la cámara."
)

// Capability errors returned by a Capturer.
var (
	ErrPermissionDenied = errors.New("camera or microphone permission denied")
	ErrUnsupported      = errors.New("media capture unsupported")
)

// Capturer is the camera+microphone capability.
type Capturer interface {
	// Acquire obtains camera and microphone, blocking until the student
	// grants or denies access.
	Acquire(ctx context.Context) error
	// Record starts the recorder, delivering a chunk every interval.
	Record(every time.Duration, onChunk func([]byte)) error
	// Stop stops the recorder; it returns after the final chunk was delivered.
	Stop(ctx context.Context) error
	// Release stops every media track.
	Release()
}

// Server is the proctoring part of the rendiciones API.
type Server interface {
	StartProctoring(ctx context.Context, attemptID int64) error
	SaveProctoringVideoURL(ctx context.Context, attemptID int64, url string) error
}

// Uploader stores a recording and returns its URL.
type Uploader interface {
	UploadFile(ctx context.Context, filename string, blob *model.Blob, meta model.UploadMeta) (string, error)
}

// Config wires a Capture.
type Config struct {
	AttemptID  int64
	Capturer   Capturer
	Server     Server
	Uploader   Uploader
	ChunkEvery time.Duration
	Log        zerolog.Logger
	// OnChange is called after every state or error transition.
	OnChange func()
}

// Capture records the student's camera for one attempt and uploads the
// result at finalize time.
type Capture struct {
	cfg Config

	stopGroup   singleflight.Group
	uploadGroup singleflight.Group

	mu     sync.Mutex
	cycle  uint64
	state  State
	errMsg string
	chunks [][]byte
	blob   *model.Blob
	url    string
}

// New creates an idle Capture.
func New(cfg Config) *Capture {
	if cfg.ChunkEvery <= 0 {
		cfg.ChunkEvery = DefaultChunkEvery
	}
	return &Capture{cfg: cfg, state: StateIdle}
}

// State returns the lifecycle position.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Error returns the last student-facing proctoring error, if any.
func (c *Capture) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Ready reports whether the recorder is running.
func (c *Capture) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateRecording
}

// VideoURL returns the stored recording URL after a successful upload.
func (c *Capture) VideoURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Start acquires the camera, announces proctoring to the server and starts
// recording. Calling it while a cycle is active is a no-op; calling it after
// STOPPED begins a fresh recording.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateRequesting, StateReady, StateRecording:
		c.mu.Unlock()
		return nil
	}
	c.cycle++
	cycle := c.cycle
	c.state = StateRequesting
	c.errMsg = ""
	c.chunks = nil
	c.blob = nil
	c.url = ""
	c.mu.Unlock()
	c.changed()

	if err := c.cfg.Capturer.Acquire(ctx); err != nil {
		msg := apperr.UserMessage(err, MsgStartFailed)
		switch {
		case errors.Is(err, ErrPermissionDenied):
			msg = MsgPermissionDenied
		case errors.Is(err, ErrUnsupported):
			msg = MsgUnsupported
		}
		return c.fail(cycle, msg, err)
	}

	// A teardown while the prompt was open invalidates the grant.
	if !c.current(cycle) {
		c.cfg.Capturer.Release()
		return nil
	}

	if err := c.cfg.Server.StartProctoring(ctx, c.cfg.AttemptID); err != nil {
		c.cfg.Capturer.Release()
		return c.fail(cycle, apperr.UserMessage(err, MsgStartFailed), err)
	}

	if !c.advance(cycle, StateReady) {
		c.cfg.Capturer.Release()
		return nil
	}

	err := c.cfg.Capturer.Record(c.cfg.ChunkEvery, func(b []byte) { c.appendChunk(cycle, b) })
	if err != nil {
		c.cfg.Capturer.Release()
		return c.fail(cycle, MsgStartFailed, err)
	}

	if c.advance(cycle, StateRecording) {
		c.cfg.Log.Info().Dur("chunk_every", c.cfg.ChunkEvery).Msg("Proctoring recording started")
	}
	return nil
}

func (c *Capture) current(cycle uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycle == cycle
}

func (c *Capture) advance(cycle uint64, next State) bool {
	c.mu.Lock()
	if c.cycle != cycle {
		c.mu.Unlock()
		return false
	}
	c.state = next
	c.mu.Unlock()
	c.changed()
	return true
}

func (c *Capture) fail(cycle uint64, msg string, err error) error {
	c.cfg.Log.Warn().Err(err).Msg("Proctoring start failed")

	c.mu.Lock()
	if c.cycle == cycle {
		c.state = StateIdle
		c.errMsg = msg
	}
	c.mu.Unlock()
	c.changed()
	return apperr.ProctoringError(msg, err)
}

func (c *Capture) appendChunk(cycle uint64, b []byte) {
	if len(b) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cycle != cycle || c.state == StateStopped || c.state == StateIdle {
		return
	}
	c.chunks = append(c.chunks, append([]byte(nil), b...))
}

// StopAndCollect stops the recorder exactly once, releases the tracks and
// assembles the chunks into one blob. Concurrent callers share the result.
// It returns nil when nothing was recorded.
func (c *Capture) StopAndCollect(ctx context.Context) (*model.Blob, error) {
	v, err, _ := c.stopGroup.Do("stop", func() (any, error) {
		return c.stopAndCollect(ctx)
	})
	if err != nil {
		return nil, err
	}
	blob, _ := v.(*model.Blob)
	return blob, nil
}

func (c *Capture) stopAndCollect(ctx context.Context) (*model.Blob, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		blob := c.blob
		c.mu.Unlock()
		return blob, nil
	}
	cycle := c.cycle
	c.mu.Unlock()

	if err := c.cfg.Capturer.Stop(ctx); err != nil {
		c.cfg.Log.Warn().Err(err).Msg("Recorder stop failed")
	}
	c.cfg.Capturer.Release()

	c.mu.Lock()
	if c.cycle != cycle {
		c.mu.Unlock()
		return nil, nil
	}
	var blob *model.Blob
	if len(c.chunks) > 0 {
		blob = &model.Blob{Data: bytes.Join(c.chunks, nil), MimeType: VideoMimeType}
	}
	c.chunks = nil
	c.blob = blob
	c.state = StateStopped
	c.mu.Unlock()
	c.changed()

	c.cfg.Log.Info().Int("bytes", blob.Size()).Msg("Proctoring recording collected")
	return blob, nil
}

// Upload stops the recording, stores it and registers its URL with the
// server. The recording is dropped either way; after a failure a new Start
// is needed before the next Upload.
func (c *Capture) Upload(ctx context.Context) (string, error) {
	v, err, _ := c.uploadGroup.Do("upload", func() (any, error) {
		return c.upload(ctx)
	})
	if err != nil {
		return "", err
	}
	url, _ := v.(string)
	return url, nil
}

func (c *Capture) upload(ctx context.Context) (string, error) {
	if url := c.VideoURL(); url != "" {
		return url, nil
	}

	blob, err := c.StopAndCollect(ctx)
	c.mu.Lock()
	c.blob = nil
	c.mu.Unlock()
	if err != nil {
		return "", apperr.UploadError(MsgNoVideo, err)
	}
	if blob.Size() == 0 {
		return "", apperr.UploadError(MsgNoVideo, nil)
	}

	filename := fmt.Sprintf("proctoring_%d.webm", c.cfg.AttemptID)
	url, err := c.cfg.Uploader.UploadFile(ctx, filename, blob, model.UploadMeta{AttemptID: c.cfg.AttemptID})
	if err != nil {
		return "", apperr.UploadError(apperr.UserMessage(err, MsgUploadFailed), err)
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return "", apperr.UploadError(MsgNoVideoURL, nil)
	}

	if err := c.cfg.Server.SaveProctoringVideoURL(ctx, c.cfg.AttemptID, url); err != nil {
		return "", apperr.UploadError(apperr.UserMessage(err, MsgUploadFailed), err)
	}

	c.mu.Lock()
	c.url = url
	c.mu.Unlock()

	c.cfg.Log.Info().Str("url", url).Msg("Proctoring video stored")
	return url, nil
}

// Teardown stops and releases the camera without collecting anything.
func (c *Capture) Teardown() {
	c.mu.Lock()
	prev := c.state
	c.cycle++
	c.chunks = nil
	c.blob = nil
	if prev != StateIdle {
		c.state = StateStopped
	}
	c.mu.Unlock()

	if prev == StateIdle || prev == StateStopped {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if prev == StateRecording {
		if err := c.cfg.Capturer.Stop(ctx); err != nil {
			c.cfg.Log.Debug().Err(err).Msg("Recorder stop during teardown failed")
		}
	}
	c.cfg.Capturer.Release()
	c.changed()
}

func (c *Capture) changed() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange()
	}
}
