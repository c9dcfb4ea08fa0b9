package transcoder

import (
	"os"
	"slices"
	"strings"
	"testing"

	"clipfetch/internal/testutil/fakeproc"
)

func TestMain(m *testing.M) {
	fakeproc.Main()
	os.Exit(m.Run())
}

func argAfter(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestAudioFormat_ProbeSelects(t *testing.T) {
	tests := []struct {
		name   string
		lists  string
		want   AudioFormat
		wantCT string
	}{
		{"lame present", MP3Encoder, MP3, "audio/mpeg"},
		{"lame missing", "-", AAC, "audio/mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ffmpeg := fakeproc.Script(t, "ffmpeg", "ffmpeg", tt.lists)
			tr := New(ffmpeg)

			got := tr.AudioFormat()
			if got.Codec != tt.want.Codec || got.Ext != tt.want.Ext {
				t.Errorf("AudioFormat() = %+v, want %+v", got, tt.want)
			}
			if got.ContentType != tt.wantCT {
				t.Errorf("ContentType = %q, want %q", got.ContentType, tt.wantCT)
			}
			if !tr.Prober().Checked() {
				t.Error("Expected probe result to be cached")
			}
		})
	}
}

func TestAudioFormat_MissingBinaryFallsBack(t *testing.T) {
	tr := New("/nonexistent/ffmpeg")
	if got := tr.AudioFormat(); got.Codec != AAC.Codec {
		t.Errorf("Expected AAC fallback, got %q", got.Codec)
	}
}

func TestAudioArgs(t *testing.T) {
	tests := []struct {
		name        string
		format      AudioFormat
		bitrate     int
		wantBitrate string
		wantMuxer   string
	}{
		{"mp3 explicit bitrate", MP3, 128, "128k", "mp3"},
		{"aac default bitrate", AAC, 0, "192k", "mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := AudioArgs(tt.format, tt.bitrate)

			if argAfter(args, "-i") != "pipe:0" {
				t.Errorf("Expected stdin input, got %v", args)
			}
			if argAfter(args, "-c:a") != tt.format.Codec {
				t.Errorf("Expected codec %s, got %v", tt.format.Codec, args)
			}
			if argAfter(args, "-b:a") != tt.wantBitrate {
				t.Errorf("Expected bitrate %s, got %v", tt.wantBitrate, args)
			}
			if argAfter(args, "-f") != tt.wantMuxer {
				t.Errorf("Expected muxer %s, got %v", tt.wantMuxer, args)
			}
			if args[len(args)-1] != "pipe:1" {
				t.Errorf("Expected stdout output, got %q", args[len(args)-1])
			}
			if !slices.Contains(args, "-vn") {
				t.Error("Expected video to be dropped")
			}
		})
	}
}

func TestAudioArgs_AACPipeIsFragmented(t *testing.T) {
	args := AudioArgs(AAC, 128)
	if !strings.Contains(argAfter(args, "-movflags"), "empty_moov") {
		t.Errorf("AAC to a pipe needs a fragmented container: %v", args)
	}
}

func TestAudioFileArgs(t *testing.T) {
	args := AudioFileArgs(AAC, 96, "/tmp/out.m4a")

	if args[len(args)-1] != "/tmp/out.m4a" {
		t.Errorf("Expected file output, got %q", args[len(args)-1])
	}
	if !slices.Contains(args, "-y") {
		t.Error("Expected overwrite flag for pre-created temp file")
	}
	if argAfter(args, "-movflags") != "+faststart" {
		t.Errorf("Expected faststart for file output, got %v", args)
	}
}

func TestMergeArgs(t *testing.T) {
	args := MergeArgs()

	var inputs []string
	for i, a := range args {
		if a == "-i" {
			inputs = append(inputs, args[i+1])
		}
	}
	if !slices.Equal(inputs, []string{"pipe:3", "pipe:4"}) {
		t.Errorf("Expected inputs pipe:3 and pipe:4, got %v", inputs)
	}

	var maps []string
	for i, a := range args {
		if a == "-map" {
			maps = append(maps, args[i+1])
		}
	}
	if !slices.Equal(maps, []string{"0:v:0", "1:a:0"}) {
		t.Errorf("Expected explicit stream mapping, got %v", maps)
	}

	if args[len(args)-1] != "pipe:1" {
		t.Errorf("Expected stdout output, got %q", args[len(args)-1])
	}
}

func TestMergeInputs(t *testing.T) {
	if MergeInputs.FD("video") != 3 || MergeInputs.FD("audio") != 4 {
		t.Errorf("Unexpected descriptor layout: video=%d audio=%d",
			MergeInputs.FD("video"), MergeInputs.FD("audio"))
	}
}

func TestMobileArgs(t *testing.T) {
	args := MobileArgs("/tmp/x.mp4")

	checks := map[string]string{
		"-c:v":       "libx264",
		"-profile:v": "baseline",
		"-pix_fmt":   "yuv420p",
		"-c:a":       "aac",
		"-movflags":  "+faststart",
		"-i":         "pipe:0",
	}
	for flag, want := range checks {
		if got := argAfter(args, flag); got != want {
			t.Errorf("%s = %q, want %q", flag, got, want)
		}
	}
	if args[len(args)-1] != "/tmp/x.mp4" {
		t.Errorf("Expected output path last, got %q", args[len(args)-1])
	}
}

func TestArgsDoNotAlias(t *testing.T) {
	a := AudioArgs(MP3, 128)
	b := AudioArgs(AAC, 128)
	if slices.Equal(a, b) {
		t.Fatal("Different formats produced identical args")
	}
	if argAfter(a, "-c:a") != MP3.Codec {
		t.Errorf("Building a second arg list changed the first: %v", a)
	}
}
