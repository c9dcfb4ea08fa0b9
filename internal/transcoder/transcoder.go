package transcoder

import (
	"strconv"

	"clipfetch/internal/capability"
	"clipfetch/internal/process"
)

// MP3Encoder is the optional encoder probed at first use.
const MP3Encoder = "libmp3lame"

// DefaultAudioBitrate is used when a request does not name one (kbps).
const DefaultAudioBitrate = 192

// MergeInputs names the combiner's extra input pipes in descriptor order.
var MergeInputs = process.Spec{ExtraInputs: []string{"video", "audio"}}

// AudioFormat is one output encoding for audio downloads.
type AudioFormat struct {
	Codec       string
	Ext         string
	ContentType string
	// muxer arguments for a pipe (non-seekable) destination
	pipeMux []string
	// muxer arguments for a file destination
	fileMux []string
}

var (
	// MP3 is preferred when the transcoder ships the LAME encoder.
	MP3 = AudioFormat{
		Codec:       MP3Encoder,
		Ext:         ".mp3",
		ContentType: "audio/mpeg",
		pipeMux:     []string{"-f", "mp3"},
		fileMux:     []string{"-f", "mp3"},
	}

	// AAC is the fallback every transcoder build supports.
	AAC = AudioFormat{
		Codec:       "aac",
		Ext:         ".m4a",
		ContentType: "audio/mp4",
		pipeMux:     []string{"-movflags", "frag_keyframe+empty_moov", "-f", "mp4"},
		fileMux:     []string{"-movflags", "+faststart", "-f", "mp4"},
	}
)

// Transcoder builds transcoder invocations. It holds the process-wide MP3
// capability cell, so create one per server.
type Transcoder struct {
	path string
	mp3  *capability.Prober
}

// New returns a Transcoder running the binary at path.
func New(path string) *Transcoder {
	return &Transcoder{
		path: path,
		mp3:  capability.NewProber(MP3Encoder, path, []string{"-hide_banner", "-encoders"}, MP3Encoder),
	}
}

// Path returns the transcoder executable.
func (t *Transcoder) Path() string {
	return t.path
}

// Prober exposes the MP3 capability cell (health reporting, warm-up).
func (t *Transcoder) Prober() *capability.Prober {
	return t.mp3
}

// AudioFormat picks MP3 when the encoder is present and AAC otherwise. The
// probe runs at most once per process.
func (t *Transcoder) AudioFormat() AudioFormat {
	if t.mp3.Available() {
		return MP3
	}
	return AAC
}

func baseArgs() []string {
	return []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
}

// AudioArgs re-encodes stdin to audio on stdout.
func AudioArgs(f AudioFormat, bitrateKbps int) []string {
	args := append(baseArgs(), "-i", "pipe:0", "-vn", "-c:a", f.Codec, "-b:a", bitrate(bitrateKbps))
	args = append(args, f.pipeMux...)
	return append(args, "pipe:1")
}

// AudioFileArgs re-encodes stdin to audio written to output.
func AudioFileArgs(f AudioFormat, bitrateKbps int, output string) []string {
	args := append(baseArgs(), "-y", "-i", "pipe:0", "-vn", "-c:a", f.Codec, "-b:a", bitrate(bitrateKbps))
	args = append(args, f.fileMux...)
	return append(args, output)
}

// MergeArgs muxes the first video track of the "video" input with the first
// audio track of the "audio" input into fragmented MP4 on stdout. Video is
// copied; audio is re-encoded to AAC so any source codec fits the container.
func MergeArgs() []string {
	return append(baseArgs(),
		"-i", MergeInputs.PipeArg("video"),
		"-i", MergeInputs.PipeArg("audio"),
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "frag_keyframe+empty_moov",
		"-f", "mp4",
		"pipe:1",
	)
}

// MobileArgs re-encodes stdin to H.264 baseline / AAC with the index at the
// front of the file, which older phones need to play a download. The result
// is written to output because +faststart rewrites the file after encoding.
func MobileArgs(output string) []string {
	return append(baseArgs(),
		"-y",
		"-i", "pipe:0",
		"-c:v", "libx264",
		"-profile:v", "baseline",
		"-level", "3.1",
		"-pix_fmt", "yuv420p",
		"-preset", "veryfast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-f", "mp4",
		output,
	)
}

// VersionArgs is used by startup checks.
func VersionArgs() []string {
	return []string{"-hide_banner", "-version"}
}

func bitrate(kbps int) string {
	if kbps <= 0 {
		kbps = DefaultAudioBitrate
	}
	return strconv.Itoa(kbps) + "k"
}
