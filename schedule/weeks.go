package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Week annotations inside cells: "6-7 н", "8 н", and bare ranges right
// after a subgroup marker ("1/2 гр 11-14"). Subgroup fractions themselves
// contain numbers that are not weeks and are stripped first.
var (
	subgroupRe     = regexp.MustCompile(`(?i)\d+/\d+\s*гр\.?`)
	weekWithUnitRe = regexp.MustCompile(`(?i)(\d+)\s*-\s*(\d+)\s*н|\b(\d+)\s*н`)
	weekAfterGrRe  = regexp.MustCompile(`(?i)гр\.?\s+(\d+)\s*-\s*(\d+)`)
)

// A bare "N-M" range after "гр" is assumed to be weeks only when both
// bounds fit in the term.
const maxTermWeek = 18

// MatchesWeek reports whether a lesson block's text is in effect on the
// given week of the term. Text carrying no week annotation matches every
// week.
func MatchesWeek(text string, week int) bool {
	cleaned := subgroupRe.ReplaceAllString(text, "")

	type span struct{ from, to int }
	var spans []span

	for _, m := range weekWithUnitRe.FindAllStringSubmatch(cleaned, -1) {
		if m[1] != "" && m[2] != "" {
			from, _ := strconv.Atoi(m[1])
			to, _ := strconv.Atoi(m[2])
			spans = append(spans, span{from, to})
		} else if m[3] != "" {
			single, _ := strconv.Atoi(m[3])
			spans = append(spans, span{single, single})
		}
	}
	for _, m := range weekAfterGrRe.FindAllStringSubmatch(text, -1) {
		from, _ := strconv.Atoi(m[1])
		to, _ := strconv.Atoi(m[2])
		if from <= maxTermWeek && to <= maxTermWeek {
			spans = append(spans, span{from, to})
		}
	}

	if len(spans) == 0 {
		return true
	}
	for _, s := range spans {
		if s.from <= week && week <= s.to {
			return true
		}
	}
	return false
}

// WeekInfo is one numbered study week of the term, Monday through
// Saturday.
type WeekInfo struct {
	Number int
	Start  time.Time
	End    time.Time
}

// Calendar maps dates to study week numbers. The term is 18 weeks
// starting from a configured Monday.
type Calendar struct {
	start time.Time
}

func NewCalendar(start time.Time) *Calendar {
	return &Calendar{start: start}
}

// Week returns the n-th study week, or nil when n is out of the term.
func (c *Calendar) Week(n int) *WeekInfo {
	if n < 1 || n > maxTermWeek {
		return nil
	}
	start := c.start.AddDate(0, 0, (n-1)*7)
	return &WeekInfo{Number: n, Start: start, End: start.AddDate(0, 0, 5)}
}

// CurrentWeek returns the study week containing t. Sundays and dates
// outside the term yield nil.
func (c *Calendar) CurrentWeek(t time.Time) *WeekInfo {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	days := int(day.Sub(c.start).Hours() / 24)
	if days < 0 {
		return nil
	}
	n := days/7 + 1
	if n > maxTermWeek || days%7 > 5 {
		return nil
	}
	return c.Week(n)
}

// FormatWeek renders a week for the schedule header.
func (w *WeekInfo) FormatWeek() string {
	return fmt.Sprintf("Неделя %d (%s–%s)", w.Number, w.Start.Format("02.01"), w.End.Format("02.01"))
}
