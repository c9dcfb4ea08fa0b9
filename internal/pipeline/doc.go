/*
Package pipeline runs the external processes behind one download and streams
their output into an HTTP response.

A Plan names a Strategy and the exact commands to run:

  - Direct: one extractor writes media to stdout, which is copied to the
    response.
  - Transcode: extractor stdout feeds transcoder stdin; the transcoder's
    stdout is the response body.
  - Merge: a video source and an audio source each feed a numbered input
    (fd 3, fd 4) of one combiner. Sources are best-effort: a source that
    fails only ends its input, and the combiner's exit status decides.
  - Relay: the last stage writes a temp file. Once every process exited 0
    the file is sent with a Content-Length and then removed.

# Lifecycle

Each run moves INIT -> STREAMING -> one of COMPLETED, FAILED, ABORTED; the
first terminal transition wins. Live strategies commit the 200 status and
headers on the first media byte or after Config.HeaderFlushDelay, whichever
comes first. A failure before that point is answered with a JSON error body
whose status follows the failure category; after it, Result.NeedsAbort
reports that the handler must drop the connection.

Client disconnects and response write errors converge on a single
streaming.Sentinel. Every exit path runs the same cleanup exactly once: kill
every process group, close every pipe end, seal the response, remove the
temp file and wait (bounded) for the processes to be reaped. Serve does not
return before that has happened.

# Failure classification

A failed extractor is classified from its stderr (login required, age
restricted, unavailable, generic). When a transcoder or combiner fails the
pipeline briefly waits for its sources, preferring a failed source's
diagnostics over the downstream symptom.
*/
package pipeline
