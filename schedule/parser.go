package schedule

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// Source workbook layout: six banner rows, then a header row with the day
// column, the time column and one column per group.
const (
	dayColumn  = "День"
	timeColumn = "Время занятий"
	headerRow  = 6
)

// Lesson is one group's merged cell content for one day/time slot. The
// description may hold several logical lessons separated by blank lines.
type Lesson struct {
	Day         string
	Time        string
	Description string
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeGroup canonicalizes a group identifier for matching and cache
// keys: every whitespace run removed, uppercased. Hyphens are kept; the
// header cleanup below already canonicalizes "06 - 451" to "06-451".
// This is the single normalization rule shared by the parser, the
// resolver and the cache.
func NormalizeGroup(name string) string {
	return strings.ToUpper(whitespaceRe.ReplaceAllString(name, ""))
}

// ListSheets returns the workbook's sheet names in workbook order.
func ListSheets(data []byte) ([]string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Err: errors.Wrap(err, "open workbook")}
	}
	defer wb.Close()
	return wb.GetSheetList(), nil
}

// ListGroups returns the group column headers of one sheet: every named
// header except the day and time columns. Placeholder headers from
// ragged rows (empty cells) are dropped.
func ListGroups(data []byte, sheet string) ([]string, error) {
	tbl, err := loadSheet(data, sheet)
	if err != nil {
		return nil, err
	}
	groups := make([]string, 0, len(tbl.columns))
	for _, col := range tbl.columns {
		if col.name == dayColumn || col.name == timeColumn {
			continue
		}
		groups = append(groups, col.name)
	}
	return groups, nil
}

// ExtractGroupSchedule pulls one group's lessons out of a sheet.
// dayFilter, when non-empty, keeps only rows whose day matches it
// case-insensitively. currentWeek, when non-zero, keeps only lesson
// blocks whose week annotation covers that week; blocks without any
// annotation always survive. Callers should retry with currentWeek=0
// when a filtered extraction comes back empty, because an empty result
// may equally mean "no lessons at all" or "nothing annotated for this
// week".
func ExtractGroupSchedule(data []byte, sheet, group, dayFilter string, currentWeek int) ([]Lesson, error) {
	tbl, err := loadSheet(data, sheet)
	if err != nil {
		return nil, err
	}

	groupIdx := -1
	available := make([]string, 0, len(tbl.columns))
	contentIdx := make([]int, 0, len(tbl.columns))
	dayIdx, timeIdx := -1, -1
	for _, col := range tbl.columns {
		switch col.name {
		case dayColumn:
			dayIdx = col.index
		case timeColumn:
			timeIdx = col.index
		default:
			available = append(available, col.name)
			contentIdx = append(contentIdx, col.index)
			if col.name == group {
				groupIdx = col.index
			}
		}
	}
	if groupIdx == -1 {
		return nil, &GroupNotFoundError{Group: group, Sheet: sheet, Available: available}
	}
	if dayIdx == -1 {
		return nil, &ParseError{Sheet: sheet, Err: errors.Errorf("missing required column %q", dayColumn)}
	}
	if timeIdx == -1 {
		return nil, &ParseError{Sheet: sheet, Err: errors.Errorf("missing required column %q", timeColumn)}
	}

	// The day/time cells are recorded only on the first row of each
	// block in the source layout; carry them forward.
	type slotKey struct{ day, time string }
	var order []slotKey
	slots := make(map[slotKey][]string)
	day, timeVal := "", ""
	for i := headerRow + 1; i < len(tbl.rows); i++ {
		row := tbl.rows[i]
		if v := cellAt(row, dayIdx); v != "" {
			day = v
		}
		if v := cellAt(row, timeIdx); v != "" {
			timeVal = v
		}

		anyContent := false
		for _, idx := range contentIdx {
			if cellAt(row, idx) != "" {
				anyContent = true
				break
			}
		}
		if !anyContent || day == "" || timeVal == "" {
			continue
		}

		key := slotKey{day, timeVal}
		if _, seen := slots[key]; !seen {
			order = append(order, key)
			slots[key] = []string{}
		}
		if v := cellAt(row, groupIdx); v != "" {
			slots[key] = append(slots[key], v)
		}
	}

	var lessons []Lesson
	for _, key := range order {
		content := joinUnique(slots[key])
		if content == "" {
			continue
		}
		if dayFilter != "" && !strings.EqualFold(dayFilter, key.day) {
			continue
		}

		blocks := MergeBlocks(content)
		if currentWeek != 0 {
			kept := blocks[:0]
			for _, block := range blocks {
				if MatchesWeek(block.Text(), currentWeek) {
					kept = append(kept, block)
				}
			}
			blocks = kept
		}
		if len(blocks) == 0 {
			continue
		}

		formatted := make([]string, len(blocks))
		for i, block := range blocks {
			formatted[i] = block.Format()
		}
		lessons = append(lessons, Lesson{
			Day:         key.day,
			Time:        key.time,
			Description: strings.Join(formatted, "\n\n"),
		})
	}
	return lessons, nil
}

type column struct {
	name  string
	index int
}

type sheetTable struct {
	columns []column
	rows    [][]string
}

func loadSheet(data []byte, sheet string) (*sheetTable, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Err: errors.Wrap(err, "open workbook")}
	}
	defer wb.Close()

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, &ParseError{Sheet: sheet, Err: errors.Wrap(err, "read rows")}
	}
	if len(rows) <= headerRow {
		return nil, &ParseError{Sheet: sheet, Err: errors.New("sheet has no header row")}
	}

	var cols []column
	for i, raw := range rows[headerRow] {
		name := cleanColumnName(raw)
		if name == "" {
			continue
		}
		cols = append(cols, column{name: name, index: i})
	}
	return &sheetTable{columns: cols, rows: rows}, nil
}

// cleanColumnName collapses whitespace and pulls group codes together
// around hyphens, so "06 - 451" and "06-451" name the same column.
func cleanColumnName(name string) string {
	normalized := strings.TrimSpace(whitespaceRe.ReplaceAllString(name, " "))
	normalized = strings.ReplaceAll(normalized, " -", "-")
	normalized = strings.ReplaceAll(normalized, "- ", "-")
	return strings.ReplaceAll(normalized, "  ", " ")
}

func cellAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// joinUnique merges cell values landing in the same day/time slot into
// one newline-joined string, dropping duplicates but keeping order.
func joinUnique(values []string) string {
	seen := make(map[string]struct{}, len(values))
	var unique []string
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}
	return strings.Join(unique, "\n")
}
