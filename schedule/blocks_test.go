package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeBlocksSingleLesson(t *testing.T) {
	content := "Квантовая механика\n(лекции)\nауд. 301"
	blocks := MergeBlocks(content)
	require.Len(t, blocks, 1)
	assert.Equal(t, "Квантовая механика", blocks[0].Title)
	assert.Equal(t, []string{"(лекции)", "ауд. 301"}, blocks[0].Details)
	assert.Equal(t, "• <b>Квантовая механика</b>\n(лекции)\nауд. 301", blocks[0].Format())
}

func TestMergeBlocksTwoLessonsInOneCell(t *testing.T) {
	content := "Лекция (лек) 1-8н\nауд 205\nЛабораторная (лаб) 9-16н\nауд 210"
	blocks := MergeBlocks(content)
	require.Len(t, blocks, 2)
	assert.Equal(t, "Лекция (лек) 1-8н", blocks[0].Title)
	assert.Equal(t, []string{"ауд 205"}, blocks[0].Details)
	assert.Equal(t, "Лабораторная (лаб) 9-16н", blocks[1].Title)
	assert.Equal(t, []string{"ауд 210"}, blocks[1].Details)
}

func TestMergeBlocksSecondWeekRangeForcesBoundary(t *testing.T) {
	// No recognizable title on the second lesson line: the second week
	// marker alone signals a new block.
	content := "Электротехника 1-8 н\nдоц. Иванов\n9-16 н дистанционно"
	blocks := MergeBlocks(content)
	require.Len(t, blocks, 2)
	assert.Equal(t, "Электротехника 1-8 н", blocks[0].Title)
	assert.Equal(t, "9-16 н дистанционно", blocks[1].Title)
}

func TestMergeBlocksContinuationLines(t *testing.T) {
	content := "Дискретная математика\nhttps://example.com/meet\nдоц. Петров И.И."
	blocks := MergeBlocks(content)
	require.Len(t, blocks, 1)
	assert.Equal(t, []string{"https://example.com/meet", "доц. Петров И.И."}, blocks[0].Details)
}

func TestMergeBlocksNoTitleFallsBackToWholeContent(t *testing.T) {
	content := "ауд. 301\nауд. 302"
	blocks := MergeBlocks(content)
	require.Len(t, blocks, 1)
	assert.Equal(t, "ауд. 301", blocks[0].Title)
	assert.Equal(t, []string{"ауд. 302"}, blocks[0].Details)
}

func TestMergeBlocksEmptyContent(t *testing.T) {
	assert.Empty(t, MergeBlocks("  \n \n"))
}

func TestLooksLikeTitle(t *testing.T) {
	cases := []struct {
		line  string
		title bool
	}{
		{"Квантовая механика", true},
		{"Физика конденсированного состояния (лек) 1-8н", true},
		{"Спецкурс по выбору", true},
		{"ауд. 301", false},
		{"https://example.com/meet", false},
		{"доц. Иванов А.А.", false},
		{"1/2 гр 11-14", false},
		{"(лекции)", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.title, looksLikeTitle(tc.line), tc.line)
	}
}
