package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/artist-check/internal/model"
)

func intPtr(n int) *int { return &n }

func workbook(t *testing.T, sheets map[string][][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, r := range rows {
			row := sheet.AddRow()
			for _, v := range r {
				row.AddCell().SetString(v)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestWriteRoster(t *testing.T) {
	q := Quote{
		Target:    model.Target{City: "北京", Date: "2024-06-15"},
		Generated: time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
		Roster: []model.ArtistAssessment{
			{Name: "万能青年旅店", Score: intPtr(1), State: model.ScoreStateScored, Price: "120000", IsKnown: true,
				Shows: []model.Show{{City: "上海"}, {City: "北京"}}},
			{Name: "重塑雕像的权利", Score: intPtr(4), State: model.ScoreStateScored, Price: "80000元", IsKnown: true},
			{Name: "新人", State: model.ScoreStateNotInDatabase, Price: "暂无报价"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRoster(&buf, q))

	rows, err := ReadRows(buf.Bytes(), ReadOptions{SheetName: QuoteSheetName})
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.Equal(t, []string{"艺人评估报价单"}, rows[0])
	assert.Equal(t, []string{"目标城市", "北京"}, rows[1])
	assert.Equal(t, []string{"计划日期", "2024-06-15"}, rows[2])
	assert.Equal(t, []string{"生成时间", "2024-06-01 09:30"}, rows[3])
	assert.Equal(t, quoteHeader, rows[5])
	assert.Equal(t, []string{"万能青年旅店", "1", "不推荐", "120000", "是", "2"}, rows[6])
	assert.Equal(t, []string{"重塑雕像的权利", "4", "值得考虑", "80000元", "是", "0"}, rows[7])
	assert.Equal(t, []string{"新人", "未在库中", "", "暂无报价", "否", "0"}, rows[8])
	assert.Equal(t, "合计", rows[9][0])
	assert.Equal(t, "200000", rows[9][3])
}

func TestWriteRoster_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRoster(&buf, Quote{Title: "Quote"}))
	rows, err := ReadRows(buf.Bytes(), ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Quote"}, rows[0])
	assert.Equal(t, "0", rows[len(rows)-1][3])
}

func TestReadRows_Sheets(t *testing.T) {
	data := workbook(t, map[string][][]string{"Only": {{"a", " b "}}})

	rows, err := ReadRows(data, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}}, rows)

	_, err = ReadRows(data, ReadOptions{SheetName: "Missing"})
	assert.ErrorContains(t, err, `sheet "Missing" not found`)

	_, err = ReadRows(data, ReadOptions{SheetIndex: 3})
	assert.ErrorContains(t, err, "out of range")

	_, err = ReadRows([]byte("not a zip"), ReadOptions{})
	assert.ErrorContains(t, err, "open workbook")
}

func TestReadShows(t *testing.T) {
	data := workbook(t, map[string][][]string{"Shows": {
		{"艺人", "日期", "省份", "城市", "场馆", "Type"},
		{"刺猬", "2024-08-09", "湖北省", "武汉", "VOX", "livehouse"},
		{"", "", "", "", "", ""},
		{"五条人", "2024-09-01", "", "广州"},
	}})

	shows, err := ReadShows(data, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, shows, 2)
	assert.Equal(t, model.Show{
		Artist: "刺猬", Date: "2024-08-09", Province: "湖北省", City: "武汉", Venue: "VOX", Type: "livehouse",
	}, shows[0])
	assert.Equal(t, "广州", shows[1].City)
	assert.Empty(t, shows[1].Venue)
}

func TestReadShows_MissingColumns(t *testing.T) {
	data := workbook(t, map[string][][]string{"Shows": {{"artist", "venue"}}})
	_, err := ReadShows(data, ReadOptions{})
	assert.ErrorContains(t, err, "missing columns date, city")

	empty := workbook(t, map[string][][]string{"Shows": {}})
	_, err = ReadShows(empty, ReadOptions{})
	assert.Error(t, err)
}
