package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Strategy is one of the four pipeline shapes.
type Strategy string

const (
	// Direct couples one extractor's stdout to the response.
	Direct Strategy = "direct"
	// Transcode chains extractor stdout into transcoder stdin and streams the
	// transcoder's stdout.
	Transcode Strategy = "transcode"
	// Merge feeds two sources into numbered inputs of one combiner.
	Merge Strategy = "merge"
	// Relay writes to a temp file and sends it once every process exited 0.
	Relay Strategy = "relay"
)

// OutputPlaceholder in a relay plan's last stage arguments is replaced with
// the temp file path.
const OutputPlaceholder = "{output}"

// Process roles, used in logs and metrics.
const (
	RoleExtractor   = "extractor"
	RoleVideoSource = "video-source"
	RoleAudioSource = "audio-source"
	RoleTranscoder  = "transcoder"
	RoleCombiner    = "combiner"
)

// Command is one external process in a plan.
type Command struct {
	Role string
	Path string
	Args []string
	// Input names the combiner input this source feeds (Merge only).
	Input string
}

// Plan is what format resolution hands the pipeline: a strategy tag plus the
// exact processes to run.
type Plan struct {
	Strategy Strategy
	Sources  []Command
	// Transcoder is the second stage: required for Transcode (stdin to
	// stdout) and Merge (the combiner), optional for Relay (stdin to file).
	Transcoder  *Command
	Filename    string
	ContentType string
	// TempTag and TempExt name the relay file.
	TempTag string
	TempExt string
}

// ErrInvalidPlan reports a plan that does not match its strategy's shape.
var ErrInvalidPlan = errors.New("invalid pipeline plan")

// Validate checks the plan's shape against its strategy.
func (p Plan) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidPlan, p.Strategy, fmt.Sprintf(format, args...))
	}

	for _, c := range p.commands() {
		if c.Path == "" {
			return bad("%s has no executable", c.Role)
		}
	}

	switch p.Strategy {
	case Direct:
		if len(p.Sources) != 1 || p.Transcoder != nil {
			return bad("needs exactly one source and no transcoder")
		}
	case Transcode:
		if len(p.Sources) != 1 || p.Transcoder == nil {
			return bad("needs one source and a transcoder")
		}
	case Merge:
		if len(p.Sources) != 2 || p.Transcoder == nil {
			return bad("needs two sources and a combiner")
		}
		seen := map[string]bool{}
		for _, s := range p.Sources {
			if s.Input == "" || seen[s.Input] {
				return bad("sources need distinct combiner inputs")
			}
			seen[s.Input] = true
		}
	case Relay:
		if len(p.Sources) != 1 {
			return bad("needs exactly one source")
		}
		if !slices.ContainsFunc(p.last().Args, hasPlaceholder) {
			return bad("last stage must write to %s", OutputPlaceholder)
		}
	default:
		return bad("unknown strategy")
	}
	return nil
}

func hasPlaceholder(arg string) bool {
	return strings.Contains(arg, OutputPlaceholder)
}

func (p Plan) commands() []Command {
	cmds := slices.Clone(p.Sources)
	if p.Transcoder != nil {
		cmds = append(cmds, *p.Transcoder)
	}
	return cmds
}

// last is the stage that produces the final output.
func (p Plan) last() Command {
	if p.Transcoder != nil {
		return *p.Transcoder
	}
	return p.Sources[0]
}

// withOutput returns args with every placeholder replaced by path.
func withOutput(args []string, path string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = strings.ReplaceAll(a, OutputPlaceholder, path)
	}
	return out
}

func roleOr(c Command, fallback string) string {
	if c.Role != "" {
		return c.Role
	}
	return fallback
}
