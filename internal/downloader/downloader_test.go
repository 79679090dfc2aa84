package downloader

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	errs "booruscraper/pkg/errors"
	"booruscraper/pkg/logger"
	"booruscraper/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDownloader(t *testing.T, attempts int) *Downloader {
	t.Helper()
	d, err := New(Options{
		UserAgent: "test-agent",
		Attempts:  attempts,
		Backoff:   &retry.ConstantBackoff{Delay: time.Millisecond},
		Logger:    logger.NewTestLogger(),
	})
	require.NoError(t, err)
	return d
}

func collect(buf *bytes.Buffer) WriteFunc {
	return func(r io.Reader) (int64, error) {
		buf.Reset()
		return io.Copy(buf, r)
	}
}

func TestDownloadSendsIdentityHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.UserAgent())
		assert.Equal(t, "https://board.test/posts/1", r.Referer())
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := newTestDownloader(t, 1).Download(context.Background(), srv.URL+"/a.png", "https://board.test/posts/1", collect(&buf))
	require.NoError(t, err)
	assert.EqualValues(t, len("image-bytes"), n)
	assert.Equal(t, "image-bytes", buf.String())
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	_, err := newTestDownloader(t, 3).Download(context.Background(), srv.URL, "", collect(&buf))
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, "ok", buf.String())
}

func TestDownloadRetriesRequestTimeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusRequestTimeout)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	_, err := newTestDownloader(t, 2).Download(context.Background(), srv.URL, "", collect(&buf))
	require.Error(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, errs.ErrorTypeTimeout, errs.TypeOf(err))
	assert.True(t, errs.IsTransient(err))
}

func TestDownloadGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestDownloader(t, 2).Download(context.Background(), srv.URL, "", collect(&bytes.Buffer{}))
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
	assert.EqualValues(t, 2, calls.Load())
}

func TestDownloadClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestDownloader(t, 3).Download(context.Background(), srv.URL, "", collect(&bytes.Buffer{}))
	require.Error(t, err)
	assert.False(t, errs.IsTransient(err))
	assert.Equal(t, errs.ErrorTypeNotFound, errs.TypeOf(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestDownloadStorageErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	write := func(io.Reader) (int64, error) {
		return 0, errs.New(errs.ErrorTypeStorage, "disk full")
	}
	_, err := newTestDownloader(t, 3).Download(context.Background(), srv.URL, "", write)
	assert.True(t, errs.IsStorage(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestDownloadCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := newTestDownloader(t, 3).Download(ctx, srv.URL, "", collect(&bytes.Buffer{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBodyReaderTypesReadFailures(t *testing.T) {
	r := &bodyReader{ctx: context.Background(), r: io.MultiReader(bytes.NewReader([]byte("ab")), errReader{})}
	_, err := io.ReadAll(r)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNetwork, errs.TypeOf(err))
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }
