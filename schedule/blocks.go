package schedule

import (
	"regexp"
	"strings"
	"unicode"
)

// LessonBlock is one logical lesson segmented out of a cell that may pack
// several lessons (a lecture for weeks 1-8 followed by a lab for weeks
// 9-16) into one string with no delimiter beyond line breaks.
type LessonBlock struct {
	Title   string
	Details []string
}

// Text returns the block's full text, title first, for week matching.
func (b LessonBlock) Text() string {
	if len(b.Details) == 0 {
		return b.Title
	}
	return b.Title + "\n" + strings.Join(b.Details, "\n")
}

// Format renders the block for chat output (HTML parse mode).
func (b LessonBlock) Format() string {
	lines := make([]string, 0, len(b.Details)+1)
	lines = append(lines, "• <b>"+b.Title+"</b>")
	lines = append(lines, b.Details...)
	return strings.Join(lines, "\n")
}

var weekMarkerRe = regexp.MustCompile(`\d+\s*(?:[-–]\s*\d+)?\s*н`)

func containsWeekMarker(text string) bool {
	return weekMarkerRe.MatchString(strings.ToLower(text))
}

var titleMarkers = []string{"(лек", "(лаб", "(прак", "(сем", "(пр", "курс"}

// looksLikeTitle classifies a cell line as the start of a new lesson.
// This is pattern matching over the department's formatting conventions,
// not a grammar: subject names start uppercase and either carry a lesson
// type marker or are plain words without periods; rooms, URLs and
// digit-led fragments are continuation lines.
func looksLikeTitle(text string) bool {
	if text == "" {
		return false
	}
	if strings.HasPrefix(text, "http") {
		return false
	}
	if strings.Contains(strings.ToLower(text), "ауд") {
		return false
	}
	runes := []rune(text)
	head := runes
	if len(head) > 6 {
		head = head[:6]
	}
	for _, r := range head {
		if unicode.IsDigit(r) {
			return false
		}
	}
	upper := unicode.IsUpper(runes[0])
	if upper {
		for _, marker := range titleMarkers {
			if strings.Contains(text, marker) {
				return true
			}
		}
	}
	if strings.Contains(text, ".") {
		return false
	}
	return upper
}

// MergeBlocks splits a cell's merged multi-line content into lesson
// blocks, scanning lines top to bottom. A second week-range marker while
// the open block already carries one forces a boundary even without a
// recognizable title line. Content where no line classifies as a title
// becomes a single block holding the full text.
func MergeBlocks(content string) []LessonBlock {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var blocks []LessonBlock
	title := ""
	var details []string
	hasWeek := false

	flush := func() {
		if title != "" {
			blocks = append(blocks, LessonBlock{Title: title, Details: details})
		}
		title = ""
		details = nil
		hasWeek = false
	}

	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}

		if title == "" {
			title = stripped
			hasWeek = containsWeekMarker(stripped)
			continue
		}

		if looksLikeTitle(stripped) {
			flush()
			title = stripped
			hasWeek = containsWeekMarker(stripped)
			continue
		}

		if containsWeekMarker(stripped) && hasWeek {
			flush()
			title = stripped
			hasWeek = true
			continue
		}
		details = append(details, stripped)
		if containsWeekMarker(stripped) {
			hasWeek = true
		}
	}
	flush()

	if len(blocks) == 0 {
		stripped := strings.TrimSpace(content)
		if stripped == "" {
			return nil
		}
		return []LessonBlock{{Title: stripped}}
	}
	return blocks
}
