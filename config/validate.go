package config

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ValidationError collects every problem found in a config so they can all
// be fixed in one pass.
type ValidationError struct {
	Failures []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration:\n  " + strings.Join(e.Failures, "\n  ")
}

// suggest returns the option closest to value if it's close enough to be a
// plausible typo, or "".
func suggest(value string, options []string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	best := ""
	bestDist := len(value)/2 + 2
	for _, opt := range options {
		d := levenshtein.ComputeDistance(value, strings.ToLower(opt))
		if d < bestDist {
			best, bestDist = opt, d
		}
	}
	return best
}

// checkOneOf returns "" when value is among options and otherwise a message
// describing the problem. Comparison ignores case when foldCase is set.
func checkOneOf(value string, options []string, foldCase bool) string {
	for _, opt := range options {
		if value == opt || (foldCase && strings.EqualFold(value, opt)) {
			return ""
		}
	}
	msg := fmt.Sprintf("%q is not one of %s", value, strings.Join(options, ", "))
	if s := suggest(value, options); s != "" {
		msg += fmt.Sprintf("; did you mean %q?", s)
	}
	return msg
}

var (
	loggerTypes       = []string{"stdout", "none"}
	publisherTypes    = []string{"local", "redis"}
	compressionTypes  = []string{"none", "gzip", "zstd"}
	outputFormatTypes = []string{"raw", "compact", "pretty"}
)

// validate checks the whole config, including every stream.
func (c *configContents) validate() error {
	var failures []string
	add := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	if msg := checkOneOf(c.Logger.Type, loggerTypes, false); msg != "" {
		add("Logger.Type %s", msg)
	}
	if msg := checkOneOf(c.Publisher.Type, publisherTypes, false); msg != "" {
		add("Publisher.Type %s", msg)
	}
	if msg := checkOneOf(c.Output.Compression, compressionTypes, false); msg != "" {
		add("Output.Compression %s", msg)
	}
	if msg := checkOneOf(c.Output.Format, outputFormatTypes, false); msg != "" {
		add("Output.Format %s", msg)
	}
	if c.Output.DedupeField != "" && c.Output.DedupeCacheSize <= 0 {
		add("Output.DedupeCacheSize must be positive when DedupeField is set")
	}
	if c.PrometheusMetrics.Enabled && c.PrometheusMetrics.ListenAddr == "" {
		add("PrometheusMetrics.ListenAddr must be set when metrics are enabled")
	}

	if len(c.Streams) == 0 {
		add("at least one entry in Streams is required")
	}
	seen := make(map[string]bool)
	for i, s := range c.Streams {
		if seen[s.Name] {
			add("stream %d: duplicate Name %q", i, s.Name)
		}
		seen[s.Name] = true
		if err := s.Validate(); err != nil {
			if ve, ok := err.(*ValidationError); ok {
				failures = append(failures, ve.Failures...)
			} else {
				add("stream %d: %v", i, err)
			}
		}
	}

	if len(failures) > 0 {
		return &ValidationError{Failures: failures}
	}
	return nil
}
