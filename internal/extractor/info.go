package extractor

import (
	"math"
	"sort"
	"strconv"
)

// Info is the /info response payload.
type Info struct {
	VideoInfo VideoInfo `json:"videoInfo"`
	Formats   Formats   `json:"formats"`
}

// VideoInfo is the uniform post summary.
type VideoInfo struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	LengthSeconds int    `json:"lengthSeconds"`
	ViewCount     int64  `json:"viewCount"`
	PublishDate   string `json:"publishDate"`
	Description   string `json:"description"`
	Thumbnail     string `json:"thumbnail"`
}

// Formats splits the quality ladder by kind.
type Formats struct {
	Video []Format `json:"video"`
	Audio []Format `json:"audio"`
}

// Format is one downloadable rendition. Itag is the token passed back to
// /download, /merge or /download-audio.
type Format struct {
	Itag      string  `json:"itag"`
	Quality   string  `json:"quality"`
	Container string  `json:"container"`
	HasVideo  bool    `json:"hasVideo"`
	HasAudio  bool    `json:"hasAudio"`
	Height    int     `json:"height,omitempty"`
	FPS       float64 `json:"fps,omitempty"`
	Bitrate   int     `json:"bitrate,omitempty"`
	Filesize  int64   `json:"filesize,omitempty"`
	// NeedsMerge is set for video-only renditions, which must go through
	// /merge with an audio itag.
	NeedsMerge bool `json:"needsMerge,omitempty"`
}

type rawInfo struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Uploader    string      `json:"uploader"`
	Channel     string      `json:"channel"`
	Duration    float64     `json:"duration"`
	ViewCount   int64       `json:"view_count"`
	UploadDate  string      `json:"upload_date"`
	Description string      `json:"description"`
	Thumbnail   string      `json:"thumbnail"`
	Formats     []rawFormat `json:"formats"`
}

type rawFormat struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	TBR            float64 `json:"tbr"`
	ABR            float64 `json:"abr"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
	FormatNote     string  `json:"format_note"`
}

func hasCodec(c string) bool {
	return c != "" && c != "none"
}

func shape(raw *rawInfo) *Info {
	author := raw.Uploader
	if author == "" {
		author = raw.Channel
	}

	info := &Info{
		VideoInfo: VideoInfo{
			Title:         raw.Title,
			Author:        author,
			LengthSeconds: int(math.Round(raw.Duration)),
			ViewCount:     raw.ViewCount,
			PublishDate:   publishDate(raw.UploadDate),
			Description:   raw.Description,
			Thumbnail:     raw.Thumbnail,
		},
		Formats: Formats{Video: []Format{}, Audio: []Format{}},
	}

	for _, rf := range raw.Formats {
		video, audio := hasCodec(rf.VCodec), hasCodec(rf.ACodec)
		if !video && !audio {
			// storyboards, manifests
			continue
		}

		f := Format{
			Itag:      rf.FormatID,
			Container: rf.Ext,
			HasVideo:  video,
			HasAudio:  audio,
			Height:    rf.Height,
			FPS:       rf.FPS,
			Filesize:  rf.Filesize,
		}
		if f.Filesize == 0 {
			f.Filesize = rf.FilesizeApprox
		}

		if video {
			f.Quality = videoQuality(rf)
			f.Bitrate = int(math.Round(rf.TBR))
			f.NeedsMerge = !audio
			info.Formats.Video = append(info.Formats.Video, f)
		} else {
			f.Bitrate = int(math.Round(rf.ABR))
			f.Quality = strconv.Itoa(f.Bitrate) + "kbps"
			info.Formats.Audio = append(info.Formats.Audio, f)
		}
	}

	sort.SliceStable(info.Formats.Video, func(i, j int) bool {
		a, b := info.Formats.Video[i], info.Formats.Video[j]
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		return a.Bitrate > b.Bitrate
	})
	sort.SliceStable(info.Formats.Audio, func(i, j int) bool {
		return info.Formats.Audio[i].Bitrate > info.Formats.Audio[j].Bitrate
	})

	return info
}

func videoQuality(rf rawFormat) string {
	if rf.Height > 0 {
		return strconv.Itoa(rf.Height) + "p"
	}
	if rf.FormatNote != "" {
		return rf.FormatNote
	}
	return rf.FormatID
}

// publishDate turns YYYYMMDD into YYYY-MM-DD; anything else passes through.
func publishDate(s string) string {
	if len(s) != 8 {
		return s
	}
	if _, err := strconv.Atoi(s); err != nil {
		return s
	}
	return s[:4] + "-" + s[4:6] + "-" + s[6:]
}
