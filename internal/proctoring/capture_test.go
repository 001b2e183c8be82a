package proctoring

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/apperr"
	"github.com/stemsi/exstem-attempt/internal/model"
)

type fakeCapturer struct {
	acquireErr error
	stops      atomic.Int32
	releases   atomic.Int32
	onChunk    func([]byte)
	final      []byte
	stopDelay  time.Duration

	// When gate is set Acquire signals entered and blocks until gate closes.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeCapturer) Acquire(context.Context) error {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	return f.acquireErr
}

func (f *fakeCapturer) Record(_ time.Duration, onChunk func([]byte)) error {
	f.onChunk = onChunk
	return nil
}

func (f *fakeCapturer) Stop(context.Context) error {
	f.stops.Add(1)
	time.Sleep(f.stopDelay)
	if f.final != nil {
		f.onChunk(f.final)
	}
	return nil
}

func (f *fakeCapturer) Release() { f.releases.Add(1) }

type fakeServer struct {
	mu       sync.Mutex
	started  int
	startErr error
	urls     []string
}

func (f *fakeServer) StartProctoring(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return f.startErr
}

func (f *fakeServer) SaveProctoringVideoURL(_ context.Context, _ int64, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return nil
}

type fakeUploader struct {
	url   string
	err   error
	calls atomic.Int32
	last  *model.Blob
	name  string
}

func (f *fakeUploader) UploadFile(_ context.Context, filename string, blob *model.Blob, _ model.UploadMeta) (string, error) {
	f.calls.Add(1)
	f.last = blob
	f.name = filename
	return f.url, f.err
}

func newCapture(capt *fakeCapturer, srv *fakeServer, up *fakeUploader) *Capture {
	return New(Config{
		AttemptID: 12,
		Capturer:  capt,
		Server:    srv,
		Uploader:  up,
		Log:       zerolog.Nop(),
	})
}

func TestStartRecordsChunks(t *testing.T) {
	capt := &fakeCapturer{final: []byte("-end")}
	srv := &fakeServer{}
	c := newCapture(capt, srv, &fakeUploader{})

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateRecording, c.State())
	assert.True(t, c.Ready())
	assert.Equal(t, 1, srv.started)

	capt.onChunk([]byte("abc"))
	capt.onChunk(nil)
	capt.onChunk([]byte("def"))

	blob, err := c.StopAndCollect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, blob)
	assert.Equal(t, []byte("abcdef-end"), blob.Data)
	assert.Equal(t, VideoMimeType, blob.MimeType)
	assert.Equal(t, StateStopped, c.State())
}

func TestStartWhileActiveIsNoop(t *testing.T) {
	srv := &fakeServer{}
	c := newCapture(&fakeCapturer{}, srv, &fakeUploader{})

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 1, srv.started)
}

func TestPermissionDenied(t *testing.T) {
	c := newCapture(&fakeCapturer{acquireErr: ErrPermissionDenied}, &fakeServer{}, &fakeUploader{})

	err := c.Start(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.Proctoring)
	assert.Equal(t, MsgPermissionDenied, apperr.UserMessage(err, ""))
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, MsgPermissionDenied, c.Error())
	assert.False(t, c.Ready())
}

func TestServerRejectReleasesCamera(t *testing.T) {
	capt := &fakeCapturer{}
	c := newCapture(capt, &fakeServer{startErr: errors.New("down")}, &fakeUploader{})

	err := c.Start(context.Background())

	assert.ErrorIs(t, err, apperr.Proctoring)
	assert.Equal(t, int32(1), capt.releases.Load())
	assert.Equal(t, StateIdle, c.State())
}

func TestConcurrentStopStopsOnce(t *testing.T) {
	capt := &fakeCapturer{stopDelay: 30 * time.Millisecond}
	c := newCapture(capt, &fakeServer{}, &fakeUploader{})
	require.NoError(t, c.Start(context.Background()))
	capt.onChunk([]byte("x"))

	var wg sync.WaitGroup
	results := make([]*model.Blob, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.StopAndCollect(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), capt.stops.Load())
	for _, b := range results {
		require.NotNil(t, b)
		assert.Equal(t, []byte("x"), b.Data)
	}
}

func TestStopWithoutDataReturnsNil(t *testing.T) {
	c := newCapture(&fakeCapturer{}, &fakeServer{}, &fakeUploader{})
	require.NoError(t, c.Start(context.Background()))

	blob, err := c.StopAndCollect(context.Background())

	require.NoError(t, err)
	assert.Nil(t, blob)
	assert.False(t, c.Ready())
}

func TestUpload(t *testing.T) {
	capt := &fakeCapturer{}
	srv := &fakeServer{}
	up := &fakeUploader{url: "  https://cdn.test/v.webm "}
	c := newCapture(capt, srv, up)
	require.NoError(t, c.Start(context.Background()))
	capt.onChunk([]byte("video"))

	url, err := c.Upload(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/v.webm", url)
	assert.Equal(t, "proctoring_12.webm", up.name)
	assert.Equal(t, []string{"https://cdn.test/v.webm"}, srv.urls)

	again, err := c.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, url, again)
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestUploadErrors(t *testing.T) {
	t.Run("no data", func(t *testing.T) {
		c := newCapture(&fakeCapturer{}, &fakeServer{}, &fakeUploader{url: "u"})
		require.NoError(t, c.Start(context.Background()))

		_, err := c.Upload(context.Background())

		assert.ErrorIs(t, err, apperr.Upload)
		assert.Equal(t, MsgNoVideo, apperr.UserMessage(err, ""))
	})

	t.Run("failed upload needs a fresh recording", func(t *testing.T) {
		capt := &fakeCapturer{}
		up := &fakeUploader{url: " "}
		c := newCapture(capt, &fakeServer{}, up)
		require.NoError(t, c.Start(context.Background()))
		capt.onChunk([]byte("v1"))

		_, err := c.Upload(context.Background())
		assert.ErrorIs(t, err, apperr.Upload)
		assert.Equal(t, MsgNoVideoURL, apperr.UserMessage(err, ""))
		assert.False(t, c.Ready())

		_, err = c.Upload(context.Background())
		assert.Equal(t, MsgNoVideo, apperr.UserMessage(err, ""))

		require.NoError(t, c.Start(context.Background()))
		assert.True(t, c.Ready())
		capt.onChunk([]byte("v2"))

		up.url = "https://cdn.test/ok.webm"
		url, err := c.Upload(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/ok.webm", url)
		assert.Equal(t, []byte("v2"), up.last.Data)
	})
}

func TestTeardownDiscards(t *testing.T) {
	capt := &fakeCapturer{}
	c := newCapture(capt, &fakeServer{}, &fakeUploader{})
	require.NoError(t, c.Start(context.Background()))
	capt.onChunk([]byte("v"))

	c.Teardown()

	assert.Equal(t, StateStopped, c.State())
	assert.False(t, c.Ready())
	assert.Equal(t, int32(1), capt.releases.Load())
	blob, _ := c.StopAndCollect(context.Background())
	assert.Nil(t, blob)
}

func TestTeardownDuringAcquireSkipsServer(t *testing.T) {
	capt := &fakeCapturer{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	srv := &fakeServer{}
	c := newCapture(capt, srv, &fakeUploader{})

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()
	<-capt.entered
	assert.Equal(t, StateRequesting, c.State())

	c.Teardown()
	close(capt.gate)
	require.NoError(t, <-done)

	srv.mu.Lock()
	assert.Zero(t, srv.started)
	srv.mu.Unlock()
	assert.Equal(t, StateStopped, c.State())
	assert.False(t, c.Ready())
	// once by Teardown, once for the late grant
	assert.Equal(t, int32(2), capt.releases.Load())
}

func TestRemoteCapturerRoundTrip(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []Command
	)
	var r *RemoteCapturer
	r = NewRemoteCapturer(func(cmd Command) error {
		mu.Lock()
		sent = append(sent, cmd)
		mu.Unlock()
		switch cmd.Action {
		case CommandAcquire:
			go r.Resolve(true, "")
		case CommandRecordStop:
			go func() {
				r.PushChunk([]byte("tail"))
				r.Stopped()
			}()
		}
		return nil
	}, time.Second)

	var got []byte
	require.NoError(t, r.Acquire(context.Background()))
	require.NoError(t, r.Record(500*time.Millisecond, func(b []byte) { got = append(got, b...) }))
	r.PushChunk([]byte("head-"))
	require.NoError(t, r.Stop(context.Background()))
	r.Release()

	assert.Equal(t, "head-tail", string(got))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 4)
	assert.Equal(t, int64(500), sent[1].ChunkMS)
	assert.Equal(t, CommandRelease, sent[3].Action)
}

func TestRemoteCapturerDenied(t *testing.T) {
	var r *RemoteCapturer
	r = NewRemoteCapturer(func(Command) error {
		go r.Resolve(false, ReasonDenied)
		return nil
	}, time.Second)

	assert.ErrorIs(t, r.Acquire(context.Background()), ErrPermissionDenied)
}

func TestRemoteCapturerTimeout(t *testing.T) {
	r := NewRemoteCapturer(func(Command) error { return nil }, 20*time.Millisecond)
	assert.ErrorIs(t, r.Acquire(context.Background()), ErrMediaTimeout)
}
