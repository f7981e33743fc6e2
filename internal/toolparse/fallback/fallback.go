package fallback

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// FallbackConfig bounds how much of a synthesized fallback response gets
// built from tool output, for the turn-iteration-cap case where the model
// never produced a final answer of its own.
type FallbackConfig struct {
	MinFinalResponseLength int
	MaxSummaryLength       int
	MaxFindings            int
}

// DefaultFallbackConfig matches the defaults a turn-iteration cap should
// use absent an override.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		MinFinalResponseLength: 50,
		MaxSummaryLength:       500,
		MaxFindings:            10,
	}
}

// ToolResultSummary is the minimal shape SynthesizeFallback needs from one
// turn's tool executions, independent of how the caller's conversation
// history represents them.
type ToolResultSummary struct {
	ToolName string
	Content  string
	Success  bool
}

// SynthesizeFallback builds a response from accumulated tool results when
// a turn hit its iteration cap without the model ever producing its own
// final text. It never returns an empty string: a turn with no usable
// tool output still gets an explanatory message rather than silence.
func SynthesizeFallback(cfg FallbackConfig, results []ToolResultSummary) string {
	successful := make([]ToolResultSummary, 0, len(results))
	for _, r := range results {
		if r.Success && r.Content != "" {
			successful = append(successful, r)
		}
	}

	if len(successful) == 0 {
		return "I reached my iteration limit while working on this without gathering enough information to answer. Please try narrowing the request or asking again."
	}

	var sb strings.Builder
	sb.WriteString("I reached my iteration limit before finishing, but here is what I found so far:\n\n")

	files := make(map[string]bool)
	for _, r := range successful {
		if path := extractFilePath(r.Content); path != "" {
			files[path] = true
		}
	}
	if len(files) > 0 {
		sorted := make([]string, 0, len(files))
		for f := range files {
			sorted = append(sorted, f)
		}
		sort.Strings(sorted)

		sb.WriteString("Files examined:\n")
		for i, f := range sorted {
			if i >= cfg.MaxFindings {
				fmt.Fprintf(&sb, "- ... and %d more\n", len(sorted)-cfg.MaxFindings)
				break
			}
			fmt.Fprintf(&sb, "- %s\n", f)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Findings:\n")
	count := 0
	for _, r := range successful {
		if count >= cfg.MaxFindings {
			break
		}
		if summary := summarize(r.Content, cfg.MaxSummaryLength); summary != "" {
			fmt.Fprintf(&sb, "- [%s] %s\n", r.ToolName, summary)
			count++
		}
	}

	return sb.String()
}

var filePathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^File:\s*(.+)$`),
	regexp.MustCompile(`(?i)reading file[:\s]+(\S+)`),
	regexp.MustCompile(`([a-zA-Z0-9_/.-]+\.(?:go|py|js|ts|rs|java|c|cpp|h|hpp))`),
}

func extractFilePath(content string) string {
	for _, p := range filePathPatterns {
		if m := p.FindStringSubmatch(content); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

var whitespaceCollapseRegex = regexp.MustCompile(`\s+`)

func summarize(content string, maxLen int) string {
	if len(content) < 10 {
		return ""
	}

	var first string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "---") || strings.HasPrefix(line, "===") {
			continue
		}
		first = line
		break
	}
	if first == "" {
		first = strings.TrimSpace(content)
	}

	first = whitespaceCollapseRegex.ReplaceAllString(first, " ")
	if len(first) <= maxLen {
		return first
	}
	truncated := first[:maxLen]
	if i := strings.LastIndex(truncated, " "); i > maxLen/2 {
		truncated = truncated[:i]
	}
	return truncated + "..."
}
