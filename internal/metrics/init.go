package metrics

// Strategy and state label values. Kept here so the pipeline package and the
// pre-population below agree on spelling.
var (
	StrategyLabels = []string{"direct", "transcode", "merge", "relay"}
	StateLabels    = []string{"completed", "failed", "aborted"}
	CategoryLabels = []string{"login_required", "unavailable", "age_restricted", "spawn", "transcoder", "generic"}
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, strategy := range StrategyLabels {
		for _, state := range StateLabels {
			PipelinesTotal.WithLabelValues(strategy, state)
		}
		PipelinesInProgress.WithLabelValues(strategy)
		PipelineDuration.WithLabelValues(strategy)
		PipelineBytesStreamed.WithLabelValues(strategy)
	}

	for _, category := range CategoryLabels {
		PipelineFailures.WithLabelValues(category)
	}

	for _, role := range []string{"extractor", "video-source", "audio-source", "transcoder", "combiner", "probe"} {
		ProcessSpawnsTotal.WithLabelValues(role, "ok")
		ProcessSpawnsTotal.WithLabelValues(role, "error")
	}

	for _, op := range []string{"create", "remove", "sweep"} {
		TempFileErrors.WithLabelValues(op)
	}
}
