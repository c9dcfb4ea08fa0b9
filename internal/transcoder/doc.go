// Package transcoder builds the argument lists for every transcoder stage a
// download can use:
//   - Audio extraction to MP3, or AAC when the LAME encoder is missing
//   - Dual-input merging of a video-only and an audio-only stream
//   - Mobile-compatibility re-encoding (H.264 baseline, AAC, faststart)
//
// Which audio encoder is used is decided by a capability probe that runs the
// transcoder once per server lifetime.
package transcoder
