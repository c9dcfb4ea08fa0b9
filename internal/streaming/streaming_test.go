package streaming

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// blockingWriter never completes a write until released.
type blockingWriter struct {
	header  http.Header
	release chan struct{}
}

func (b *blockingWriter) Header() http.Header { return b.header }
func (b *blockingWriter) WriteHeader(int)     {}
func (b *blockingWriter) Write(p []byte) (int, error) {
	<-b.release
	return len(p), nil
}

func TestDefaultTimeoutWriterConfig(t *testing.T) {
	config := DefaultTimeoutWriterConfig()

	if config.WriteTimeout != 30*time.Second {
		t.Errorf("Expected WriteTimeout=30s, got %v", config.WriteTimeout)
	}
	if config.IdleTimeout != 120*time.Second {
		t.Errorf("Expected IdleTimeout=120s, got %v", config.IdleTimeout)
	}
	if config.MaxDuration != 0 {
		t.Errorf("Expected MaxDuration=0 (unlimited), got %v", config.MaxDuration)
	}
	if config.ChunkSize != 64*1024 {
		t.Errorf("Expected ChunkSize=64KB, got %d", config.ChunkSize)
	}
}

func TestTimeoutWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), w, DefaultTimeoutWriterConfig())
	defer tw.Close()

	data := []byte("media bytes")
	n, err := tw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(data), n)
	}
	if w.Body.String() != string(data) {
		t.Errorf("Expected recorder body %q, got %q", data, w.Body.String())
	}
	if !w.Flushed {
		t.Error("Expected response to be flushed after write")
	}

	bytesWritten, _ := tw.Stats()
	if bytesWritten != int64(len(data)) {
		t.Errorf("Expected bytes written=%d, got %d", len(data), bytesWritten)
	}
}

func TestTimeoutWriterChunkedWrites(t *testing.T) {
	w := httptest.NewRecorder()
	config := DefaultTimeoutWriterConfig()
	config.ChunkSize = 10

	tw := NewTimeoutWriter(context.Background(), w, config)
	defer tw.Close()

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}

	n, err := tw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(data), n)
	}
	if w.Body.Len() != len(data) {
		t.Errorf("Expected %d bytes in recorder, got %d", len(data), w.Body.Len())
	}
}

func TestTimeoutWriterClose(t *testing.T) {
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), DefaultTimeoutWriterConfig())

	if err := tw.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Errorf("Second Close() returned error: %v", err)
	}

	_, err := tw.Write([]byte("data"))
	if !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Expected ErrStreamCanceled, got %v", err)
	}
}

func TestTimeoutWriterClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tw := NewTimeoutWriter(ctx, httptest.NewRecorder(), DefaultTimeoutWriterConfig())
	defer tw.Close()

	cancel()

	_, err := tw.Write([]byte("test"))
	if !errors.Is(err, ErrClientGone) {
		t.Errorf("Expected ErrClientGone after request cancel, got %v", err)
	}
}

func TestTimeoutWriterWriteTimeout(t *testing.T) {
	bw := &blockingWriter{header: http.Header{}, release: make(chan struct{})}
	defer close(bw.release)

	config := DefaultTimeoutWriterConfig()
	config.WriteTimeout = 50 * time.Millisecond

	tw := NewTimeoutWriter(context.Background(), bw, config)
	defer tw.Close()

	start := time.Now()
	_, err := tw.Write([]byte("stalled"))
	if !errors.Is(err, ErrWriteTimeout) {
		t.Fatalf("Expected ErrWriteTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Write timeout took too long: %v", elapsed)
	}

	// The writer is unusable after a timeout.
	if _, err := tw.Write([]byte("more")); err == nil {
		t.Error("Expected error on write after timeout")
	}
}

func TestTimeoutWriterIdleTimeout(t *testing.T) {
	config := DefaultTimeoutWriterConfig()
	config.IdleTimeout = 40 * time.Millisecond

	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), config)
	defer tw.Close()

	time.Sleep(150 * time.Millisecond)

	_, err := tw.Write([]byte("late"))
	if !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Expected ErrStreamCanceled after idle timeout, got %v", err)
	}
}

func TestTimeoutWriterOnProgressCallback(t *testing.T) {
	var calls int
	config := DefaultTimeoutWriterConfig()
	config.OnProgress = func(written int64, _ time.Duration) {
		calls++
		if written < 1024*1024 {
			t.Errorf("Progress reported before first megabyte: %d", written)
		}
	}

	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), config)
	defer tw.Close()

	chunk := make([]byte, 256*1024)
	for i := 0; i < 5; i++ {
		if _, err := tw.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if calls == 0 {
		t.Error("Expected OnProgress to be called after 1MB")
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrWriteTimeout", ErrWriteTimeout, "write timeout exceeded"},
		{"ErrClientGone", ErrClientGone, "client disconnected"},
		{"ErrStreamCanceled", ErrStreamCanceled, "stream canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.msg {
				t.Errorf("Expected error message=%q, got %q", tt.msg, tt.err.Error())
			}
		})
	}

	if errors.Is(ErrClientGone, ErrStreamCanceled) {
		t.Error("ErrClientGone should not be ErrStreamCanceled")
	}
}

func BenchmarkTimeoutWriterWrite(b *testing.B) {
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), DefaultTimeoutWriterConfig())
	defer tw.Close()

	data := make([]byte, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tw.Write(data)
	}
}
