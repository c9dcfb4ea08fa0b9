package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"clipfetch/internal/failure"
	"clipfetch/internal/streaming"
)

// ErrSealed is returned by writes after the response has been handed back.
var ErrSealed = errors.New("response sealed")

// Response tracks whether a download's headers have reached the client.
// Before that point a failure can still become a JSON error; afterwards the
// only way to signal failure is dropping the connection.
type Response struct {
	w   http.ResponseWriter
	ctx context.Context
	cfg streaming.TimeoutWriterConfig

	mu        sync.Mutex
	committed bool
	sealed    bool
	tw        *streaming.TimeoutWriter
}

func newResponse(ctx context.Context, w http.ResponseWriter, cfg streaming.TimeoutWriterConfig) *Response {
	return &Response{w: w, ctx: ctx, cfg: cfg}
}

// Header returns the pending header map. Changes after Commit have no effect.
func (r *Response) Header() http.Header {
	return r.w.Header()
}

// Commit sends the 200 status line and headers and flushes them so the
// client's download starts. It returns false if the response was already
// committed or sealed.
func (r *Response) Commit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitLocked()
}

func (r *Response) commitLocked() bool {
	if r.committed || r.sealed {
		return false
	}
	r.committed = true
	r.w.WriteHeader(http.StatusOK)
	r.tw = streaming.NewTimeoutWriter(r.ctx, r.w, r.cfg)
	r.tw.Flush()
	return true
}

// Committed reports whether headers have been sent.
func (r *Response) Committed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.committed
}

// Write commits on the first byte and streams through the timeout writer.
func (r *Response) Write(p []byte) (int, error) {
	r.mu.Lock()
	if r.sealed {
		r.mu.Unlock()
		return 0, ErrSealed
	}
	r.commitLocked()
	tw := r.tw
	r.mu.Unlock()

	return tw.Write(p)
}

// Fail writes a JSON error body if nothing has been sent yet and seals the
// response. It reports whether the body was written.
func (r *Response) Fail(fe *failure.Error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.committed || r.sealed {
		r.sealed = true
		return false
	}
	r.sealed = true

	h := r.w.Header()
	for _, k := range []string{"Content-Disposition", "Content-Length", "X-Accel-Buffering"} {
		h.Del(k)
	}
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	r.w.WriteHeader(fe.Status())
	_ = json.NewEncoder(r.w).Encode(fe.Body())
	return true
}

// Seal stops all further writes and releases the timeout writer.
func (r *Response) Seal() {
	r.mu.Lock()
	r.sealed = true
	tw := r.tw
	r.mu.Unlock()

	if tw != nil {
		_ = tw.Close()
	}
}

// Bytes returns the number of body bytes written.
func (r *Response) Bytes() int64 {
	r.mu.Lock()
	tw := r.tw
	r.mu.Unlock()

	if tw == nil {
		return 0
	}
	n, _ := tw.Stats()
	return n
}
