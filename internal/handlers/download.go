package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"clipfetch/internal/extractor"
	"clipfetch/internal/failure"
	"clipfetch/internal/logging"
	"clipfetch/internal/metrics"
	"clipfetch/internal/pipeline"
	"clipfetch/internal/platform"
)

// InfoResponse is the /info success body.
type InfoResponse struct {
	Success bool `json:"success"`
	*extractor.Info
}

// Info returns post metadata and the available formats.
// POST /api/{platform}/info {"url": "..."}
func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	p, params, ok := target(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if h.infoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.infoTimeout)
		defer cancel()
	}

	info, err := h.extractor.Info(ctx, string(p.Name), params.Get("url"))
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			writeJSONError(w, "Timed out fetching media information", http.StatusGatewayTimeout)
		case errors.Is(err, context.Canceled):
			logging.Debug("info request for %s cancelled by client", p.Name)
		default:
			fe := failure.From(err)
			logging.Warn("info for %s failed: %v", p.Name, fe)
			writeFailure(w, fe)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, InfoResponse{Success: true, Info: info})
}

// Download streams one format, or a merge when itag is "video+audio".
// GET|POST /api/{platform}/download?url=&itag=&title=
func (h *Handlers) Download(w http.ResponseWriter, r *http.Request) {
	p, params, ok := target(w, r)
	if !ok {
		return
	}

	h.serve(w, r, h.planner.Download(p, platform.DownloadRequest{
		URL:   params.Get("url"),
		Itag:  params.Get("itag"),
		Title: params.Get("title"),
	}))
}

// Merge muxes a video-only and an audio-only format on the fly.
// GET /api/{platform}/merge?url=&vItag=&aItag=&title=
func (h *Handlers) Merge(w http.ResponseWriter, r *http.Request) {
	p, params, ok := target(w, r)
	if !ok {
		return
	}

	video := params.Get("vItag")
	if video == "" {
		writeJSONError(w, "vItag is required", http.StatusBadRequest)
		return
	}

	h.serve(w, r, h.planner.Merge(p, platform.MergeRequest{
		URL:       params.Get("url"),
		VideoItag: video,
		AudioItag: params.Get("aItag"),
		Title:     params.Get("title"),
	}))
}

// DownloadAudio streams the audio track transcoded at the requested bitrate.
// GET|POST /api/{platform}/download-audio?url=&bitrate=&title=
func (h *Handlers) DownloadAudio(w http.ResponseWriter, r *http.Request) {
	p, params, ok := target(w, r)
	if !ok {
		return
	}

	// Unparseable bitrates fall back to the default.
	kbps, _ := strconv.Atoi(params.Get("bitrate"))

	h.serve(w, r, h.planner.Audio(p, platform.AudioRequest{
		URL:     params.Get("url"),
		Bitrate: kbps,
		Title:   params.Get("title"),
	}))
}

// serve runs the plan. Once the body has started, a failure can only be
// reported by dropping the connection.
func (h *Handlers) serve(w http.ResponseWriter, r *http.Request, plan pipeline.Plan) {
	if h.monitor.Overloaded() {
		metrics.MemoryRejected.Inc()
		w.Header().Set("Retry-After", "30")
		writeJSONError(w, "Server is busy, try again shortly", http.StatusServiceUnavailable)
		return
	}

	res := h.runner.Serve(w, r, plan)
	if res.NeedsAbort() {
		panic(http.ErrAbortHandler)
	}
}
