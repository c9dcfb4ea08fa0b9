package streaming

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"syscall"
)

// couplerBufferSize matches the default Linux pipe capacity.
const couplerBufferSize = 64 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, couplerBufferSize)
		return &b
	},
}

// Side identifies which end of a coupling failed.
type Side string

const (
	SourceSide      Side = "source"
	DestinationSide Side = "destination"
)

// CouplingError reports a failed read or write on a coupling.
type CouplingError struct {
	Side Side
	Err  error
}

func (e *CouplingError) Error() string {
	return string(e.Side) + ": " + e.Err.Error()
}

func (e *CouplingError) Unwrap() error {
	return e.Err
}

// IsDestination reports whether err is a write failure on the destination.
func IsDestination(err error) bool {
	var ce *CouplingError
	return errors.As(err, &ce) && ce.Side == DestinationSide
}

// IsRoutine reports errors expected while tearing a stream down: the peer
// went away, a pipe was closed under a blocked read or write, or the request
// was canceled. They are logged at debug level only.
func IsRoutine(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrClientGone),
		errors.Is(err, ErrStreamCanceled),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, os.ErrClosed),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, http.ErrHandlerTimeout),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}

type couplingOptions struct {
	closeOnEOF bool
	closeOnErr bool
}

// CoupleOption customises a coupling.
type CoupleOption func(*couplingOptions)

// CloseOnEOF closes the destination (if it is an io.Closer) after the source
// ends cleanly. Use it when the destination is another process's stdin so the
// downstream process sees end of input.
func CloseOnEOF() CoupleOption {
	return func(o *couplingOptions) { o.closeOnEOF = true }
}

// CloseOnError closes the destination after a failed copy as well.
func CloseOnError() CoupleOption {
	return func(o *couplingOptions) { o.closeOnErr = true }
}

// Coupling is one running source-to-destination copy.
type Coupling struct {
	done  chan struct{}
	err   error
	bytes int64
	mu    sync.Mutex
}

// Couple copies src into dst on its own goroutine until the source ends or
// either side fails. onError, if non-nil, is called at most once with a
// *CouplingError; nothing panics when the destination is already closed.
// Memory use is one pooled buffer regardless of stream length.
func Couple(src io.Reader, dst io.Writer, onError func(error), opts ...CoupleOption) *Coupling {
	var o couplingOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &Coupling{done: make(chan struct{})}

	go func() {
		defer close(c.done)

		err := c.copy(src, dst)

		closer, canClose := dst.(io.Closer)
		if canClose && ((err == nil && o.closeOnEOF) || (err != nil && o.closeOnErr)) {
			_ = closer.Close()
		}

		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			if onError != nil {
				onError(err)
			}
		}
	}()

	return c
}

func (c *Coupling) copy(src io.Reader, dst io.Writer) error {
	bp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bp)
	buf := *bp

	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			c.mu.Lock()
			c.bytes += int64(nw)
			c.mu.Unlock()
			if werr != nil {
				return &CouplingError{Side: DestinationSide, Err: werr}
			}
			if nw != nr {
				return &CouplingError{Side: DestinationSide, Err: io.ErrShortWrite}
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return &CouplingError{Side: SourceSide, Err: rerr}
		}
	}
}

// Done is closed once the copy has finished for any reason.
func (c *Coupling) Done() <-chan struct{} {
	return c.done
}

// Err returns the copy error, or nil for a clean end of source. Only
// meaningful after Done is closed.
func (c *Coupling) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Bytes returns how many bytes have reached the destination so far.
func (c *Coupling) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}
