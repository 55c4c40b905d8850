package schedule

import (
	"sort"
	"strings"
	"time"
)

// DayOrder is the canonical weekday ordering for output and for matching
// a user-supplied day prefix.
var DayOrder = []string{
	"Понедельник",
	"Вторник",
	"Среда",
	"Четверг",
	"Пятница",
	"Суббота",
	"Воскресенье",
}

func dayIndex(day string) int {
	for i, d := range DayOrder {
		if strings.EqualFold(d, day) {
			return i
		}
	}
	return len(DayOrder)
}

// NormalizeDay expands a user-supplied day prefix ("пн" is too short for
// the source data, "пон", "среда") to the canonical weekday name.
func NormalizeDay(day string) string {
	lower := strings.ToLower(strings.TrimSpace(day))
	if lower == "" {
		return ""
	}
	for _, option := range DayOrder {
		if strings.HasPrefix(strings.ToLower(option), lower) {
			return option
		}
	}
	return ""
}

func timeKey(timeRange string) time.Time {
	start := timeRange
	if i := strings.Index(timeRange, "-"); i >= 0 {
		start = timeRange[:i]
	}
	t, err := time.Parse("15:04", strings.TrimSpace(start))
	if err != nil {
		return time.Unix(1<<40, 0)
	}
	return t
}

// FormatLessons renders lessons grouped by weekday, days and slots in
// timetable order.
func FormatLessons(lessons []Lesson) string {
	if len(lessons) == 0 {
		return "Записей не найдено."
	}

	sorted := append([]Lesson(nil), lessons...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := dayIndex(sorted[i].Day), dayIndex(sorted[j].Day)
		if di != dj {
			return di < dj
		}
		return timeKey(sorted[i].Time).Before(timeKey(sorted[j].Time))
	})

	var lines []string
	currentDay := ""
	for _, lesson := range sorted {
		if lesson.Day != currentDay {
			if currentDay != "" {
				lines = append(lines, "")
			}
			lines = append(lines, "📅 "+lesson.Day, "")
			currentDay = lesson.Day
		}
		parts := strings.Split(strings.ReplaceAll(lesson.Description, "\r\n", "\n"), "\n")
		lines = append(lines, lesson.Time+" — "+parts[0])
		lines = append(lines, parts[1:]...)
		lines = append(lines, "")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// StripDayHeading removes the leading "📅 <день>" line from an already
// day-filtered schedule, where the heading only repeats the request.
func StripDayHeading(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "📅 ") {
		return text
	}
	lines = lines[1:]
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return "\n" + strings.Join(lines, "\n")
}
