/*
Package streaming moves media bytes from external processes to HTTP clients.

# Overview

Three pieces live here:

  - Couple: a goroutine copying one reader into one writer with a single pooled
    buffer. It is used for every edge of a pipeline (extractor stdout to
    transcoder stdin, source stdout to a combiner input pipe, final stdout to the
    response). Errors are reported once through a callback and never panic.
  - Watch: the disconnect sentinel. Every way a response can end early (request
    context canceled by net/http, a failed response write, server shutdown)
    converges on one cleanup call. The first signal wins.
  - TimeoutWriter: an http.ResponseWriter wrapper with per-write timeouts, idle
    detection and chunked, flushed writes, so a stalled client cannot pin a
    process tree forever.

# Coupling

	c := streaming.Couple(h.Stdout(), tw, func(err error) {
		if streaming.IsRoutine(err) {
			logging.Debug("stream ended: %v", err)
			return
		}
		logging.Warn("stream failed: %v", err)
	})
	<-c.Done()

Use CloseOnEOF when the destination is another process's stdin so that process
sees end of input. Failures are *CouplingError values; IsDestination separates
"the client went away" from "the producer broke".

# Disconnect Sentinel

	s := streaming.Watch(r.Context(), func(reason string) {
		pipeline.cleanup()
	})
	defer s.Stop()

	// elsewhere, on a response write failure
	s.Trigger(streaming.ReasonWriteFailed)

# Errors

	var (
		ErrWriteTimeout   = errors.New("write timeout exceeded")
		ErrClientGone     = errors.New("client disconnected")
		ErrStreamCanceled = errors.New("stream canceled")
	)

IsRoutine reports the errors that are expected while tearing a stream down
(broken pipe, closed file, client gone, canceled context). Callers log them at
debug level only.

# Write Deadlines

TimeoutWriter prefers http.ResponseController.SetWriteDeadline, which bounds
the write on the socket itself. Writers that do not support deadlines (test
recorders, some middleware wrappers without Unwrap) fall back to a goroutine
raced against a timer.
*/
package streaming
