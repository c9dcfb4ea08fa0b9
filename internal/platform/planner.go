package platform

import (
	"slices"
	"strconv"
	"strings"

	"clipfetch/internal/extractor"
	"clipfetch/internal/filename"
	"clipfetch/internal/pipeline"
	"clipfetch/internal/transcoder"
)

// Bitrates are the audio bitrates offered, in kbps.
var Bitrates = []int{64, 96, 128, 160, 192, 256, 320}

// NormalizeBitrate returns kbps if it is offered and the default otherwise.
func NormalizeBitrate(kbps int) int {
	if slices.Contains(Bitrates, kbps) {
		return kbps
	}
	return transcoder.DefaultAudioBitrate
}

// DownloadRequest asks for a video in one format. An Itag of the form
// "video+audio" is served as a merge.
type DownloadRequest struct {
	URL   string
	Itag  string
	Title string
}

// MergeRequest asks for a separate video and audio format muxed together.
type MergeRequest struct {
	URL       string
	VideoItag string
	AudioItag string
	Title     string
}

// AudioRequest asks for an audio-only download.
type AudioRequest struct {
	URL     string
	Bitrate int
	Title   string
}

// Planner turns requests into pipeline plans.
type Planner struct {
	ext *extractor.Extractor
	tc  *transcoder.Transcoder
}

// NewPlanner returns a Planner for the given binaries.
func NewPlanner(ext *extractor.Extractor, tc *transcoder.Transcoder) *Planner {
	return &Planner{ext: ext, tc: tc}
}

// Extractor returns the extractor used for plans and metadata.
func (pl *Planner) Extractor() *extractor.Extractor {
	return pl.ext
}

// Download plans a video download.
func (pl *Planner) Download(p Platform, req DownloadRequest) pipeline.Plan {
	if video, audio, ok := strings.Cut(req.Itag, "+"); ok && video != "" && audio != "" {
		return pl.Merge(p, MergeRequest{URL: req.URL, VideoItag: video, AudioItag: audio, Title: req.Title})
	}

	format := req.Itag
	if format == "" {
		format = p.VideoFormat
	}
	name := filename.Sanitize(req.Title, suffix(req.Itag), ".mp4")

	if p.MobileRelay {
		return pl.mobileRelay(p, req.URL, format, name)
	}

	return pipeline.Plan{
		Strategy: pipeline.Direct,
		Sources: []pipeline.Command{{
			Role: pipeline.RoleExtractor,
			Path: pl.ext.Path(),
			Args: pl.ext.StreamArgs(string(p.Name), req.URL, format),
		}},
		Filename:    name,
		ContentType: "video/mp4",
	}
}

// mobileRelay re-encodes the download into a temp file so the container is
// finalized (index at the front) before the first byte is sent.
func (pl *Planner) mobileRelay(p Platform, url, format, name string) pipeline.Plan {
	return pipeline.Plan{
		Strategy: pipeline.Relay,
		Sources: []pipeline.Command{{
			Role: pipeline.RoleExtractor,
			Path: pl.ext.Path(),
			Args: pl.ext.StreamArgs(string(p.Name), url, format),
		}},
		Transcoder: &pipeline.Command{
			Role: pipeline.RoleTranscoder,
			Path: pl.tc.Path(),
			Args: transcoder.MobileArgs(pipeline.OutputPlaceholder),
		},
		Filename:    name,
		ContentType: "video/mp4",
		TempTag:     string(p.Name),
		TempExt:     ".mp4",
	}
}

// Merge plans a two-source download muxed by the transcoder.
func (pl *Planner) Merge(p Platform, req MergeRequest) pipeline.Plan {
	platform := string(p.Name)
	audio := req.AudioItag
	if audio == "" {
		audio = p.AudioFormat
	}

	return pipeline.Plan{
		Strategy: pipeline.Merge,
		Sources: []pipeline.Command{
			{
				Role:  pipeline.RoleVideoSource,
				Path:  pl.ext.Path(),
				Args:  pl.ext.StreamArgs(platform, req.URL, req.VideoItag),
				Input: "video",
			},
			{
				Role:  pipeline.RoleAudioSource,
				Path:  pl.ext.Path(),
				Args:  pl.ext.StreamArgs(platform, req.URL, audio),
				Input: "audio",
			},
		},
		Transcoder: &pipeline.Command{
			Role: pipeline.RoleCombiner,
			Path: pl.tc.Path(),
			Args: transcoder.MergeArgs(),
		},
		Filename:    filename.Sanitize(req.Title, suffix(req.VideoItag), ".mp4"),
		ContentType: "video/mp4",
	}
}

// Audio plans an audio download. The output codec is MP3 when the
// transcoder supports it and AAC otherwise.
func (pl *Planner) Audio(p Platform, req AudioRequest) pipeline.Plan {
	kbps := NormalizeBitrate(req.Bitrate)
	format := pl.tc.AudioFormat()
	source := pipeline.Command{
		Role: pipeline.RoleExtractor,
		Path: pl.ext.Path(),
		Args: pl.ext.StreamArgs(string(p.Name), req.URL, p.AudioFormat),
	}

	plan := pipeline.Plan{
		Strategy: pipeline.Transcode,
		Sources:  []pipeline.Command{source},
		Transcoder: &pipeline.Command{
			Role: pipeline.RoleTranscoder,
			Path: pl.tc.Path(),
			Args: transcoder.AudioArgs(format, kbps),
		},
		Filename:    filename.Sanitize(req.Title, "_"+strconv.Itoa(kbps)+"kbps", format.Ext),
		ContentType: format.ContentType,
	}

	if p.MobileRelay {
		plan.Strategy = pipeline.Relay
		plan.Transcoder.Args = transcoder.AudioFileArgs(format, kbps, pipeline.OutputPlaceholder)
		plan.TempTag = string(p.Name)
		plan.TempExt = format.Ext
	}
	return plan
}

func suffix(itag string) string {
	if itag == "" {
		return ""
	}
	return "_" + itag
}
