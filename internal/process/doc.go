// Package process wraps one spawned external binary (extractor or
// transcoder) and owns its stdio.
//
// Channels are declared by name in a Spec rather than by position. Beyond
// stdin, stdout and stderr a Spec may list extra inputs; the child sees them
// as descriptors 3, 4, ... in declaration order, which is how a transcoder
// reads two independent sources at once.
//
// Pipes are created with os.Pipe and handed to the child directly, so the
// parent ends stay valid after the child exits and the reaper goroutine never
// races a reader for buffered output.
package process
