package batch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/scribe/internal/task"
)

const sectionSeparator = "\n\n"

// Placeholder is the marker inserted for a chunk that permanently failed.
func Placeholder(index, total int, kind task.Kind) string {
	return fmt.Sprintf("> **Section unavailable:** chunk %d of %d could not be generated (%s).", index+1, total, kind.Label())
}

// Combine folds chunk results into one artifact. Results may be supplied in
// any order; they are assembled by ascending Index. The output depends only
// on the results and the kind.
func Combine(results []ChunkResult, kind task.Kind, params task.Params) string {
	return combine(results, kind, params, false)
}

func combine(results []ChunkResult, kind task.Kind, params task.Params, collapseTitles bool) string {
	ordered := make([]ChunkResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	total := len(ordered)
	if total == 0 {
		return ""
	}
	switch kind {
	case task.KindArchitecture:
		return combineArchitecture(ordered, total, collapseTitles)
	case task.KindCustomAnalysis:
		return combineParts(ordered, total, kind)
	case task.KindCodeStory:
		return combineStory(ordered, total, params.Complexity)
	default:
		return combinePlain(ordered, total, kind)
	}
}

func sectionText(r ChunkResult, total int, kind task.Kind) string {
	if !r.OK() {
		return Placeholder(r.Index, total, kind)
	}
	return strings.TrimSpace(r.Text)
}

func combinePlain(results []ChunkResult, total int, kind task.Kind) string {
	sections := make([]string, 0, len(results))
	for _, r := range results {
		sections = append(sections, sectionText(r, total, kind))
	}
	return strings.Join(sections, sectionSeparator)
}

// combineArchitecture drops a chunk's opening top-level heading when it
// repeats the last top-level heading already emitted. With collapseTitles it
// also drops repeats of any earlier document title.
func combineArchitecture(results []ChunkResult, total int, collapseTitles bool) string {
	sections := make([]string, 0, len(results))
	titles := make(map[string]bool)
	lastHeading := ""
	for _, r := range results {
		if !r.OK() {
			sections = append(sections, Placeholder(r.Index, total, task.KindArchitecture))
			lastHeading = ""
			continue
		}
		text := strings.TrimSpace(r.Text)
		for {
			heading, rest, ok := leadingHeading(text)
			if !ok || !(sameHeading(heading, lastHeading) || collapseTitles && titles[normHeading(heading)]) {
				break
			}
			text = strings.TrimSpace(rest)
		}
		for _, h := range topHeadings(text) {
			if strings.HasPrefix(h, "# ") {
				titles[normHeading(h)] = true
			}
			lastHeading = h
		}
		if text != "" {
			sections = append(sections, text)
		}
	}
	return strings.Join(sections, sectionSeparator)
}

func combineParts(results []ChunkResult, total int, kind task.Kind) string {
	if total == 1 {
		return sectionText(results[0], total, kind)
	}
	sections := make([]string, 0, len(results))
	for _, r := range results {
		sections = append(sections, fmt.Sprintf("## Part %d of %d\n\n%s", r.Index+1, total, sectionText(r, total, kind)))
	}
	return strings.Join(sections, sectionSeparator)
}

func combineStory(results []ChunkResult, total int, complexity task.Complexity) string {
	body := combinePlain(results, total, task.KindCodeStory)
	if total == 1 {
		return body
	}
	if complexity == "" {
		complexity = task.ComplexityModerate
	}
	return fmt.Sprintf("# Code Story (%s)\n\n%s", complexity, body)
}

// isTopHeading reports whether line is a level 1 or 2 markdown heading.
func isTopHeading(line string) bool {
	return strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ")
}

func leadingHeading(text string) (heading, rest string, ok bool) {
	line, rest, _ := strings.Cut(text, "\n")
	line = strings.TrimSpace(line)
	if !isTopHeading(line) {
		return "", text, false
	}
	return line, rest, true
}

// topHeadings returns the level 1 and 2 headings of text outside code fences.
func topHeadings(text string) []string {
	var out []string
	inFence := false
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "```") {
			inFence = !inFence
			continue
		}
		if !inFence && isTopHeading(l) {
			out = append(out, l)
		}
	}
	return out
}

func normHeading(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimLeft(s, "#")))
}

func sameHeading(a, b string) bool {
	return a != "" && b != "" && normHeading(a) == normHeading(b)
}
