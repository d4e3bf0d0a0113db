package export

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/artist-check/internal/model"
)

// ReadOptions selects the sheet to read.
type ReadOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadRows returns every row of a workbook sheet as trimmed strings.
// Trailing empty cells are dropped, so rows may differ in length.
func ReadRows(data []byte, opts ReadOptions) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "export: open workbook")
	}
	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		for len(cells) > 0 && cells[len(cells)-1] == "" {
			cells = cells[:len(cells)-1]
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func pickSheet(f *xlsx.File, opts ReadOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("export: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("export: sheet index %d out of range (workbook has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

// showColumns maps accepted header labels to Show fields.
var showColumns = map[string]string{
	"artist": "artist", "艺人": "artist",
	"date": "date", "日期": "date",
	"city": "city", "城市": "city",
	"province": "province", "省份": "province",
	"venue": "venue", "场馆": "venue",
	"type": "type", "类型": "type",
	"name": "name", "演出名称": "name",
}

// ReadShows reads performance records from a sheet whose first row is a
// header. Columns are matched by label in English or Chinese; artist, date
// and city are required. Blank rows are skipped.
func ReadShows(data []byte, opts ReadOptions) ([]model.Show, error) {
	rows, err := ReadRows(data, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.New("export: sheet is empty")
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		if field, ok := showColumns[strings.ToLower(strings.TrimSpace(h))]; ok {
			if _, dup := col[field]; !dup {
				col[field] = i
			}
		}
	}
	var missing []string
	for _, req := range []string{"artist", "date", "city"} {
		if _, ok := col[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("export: missing columns %s", strings.Join(missing, ", "))
	}

	get := func(row []string, field string) string {
		i, ok := col[field]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var shows []model.Show
	for _, row := range rows[1:] {
		s := model.Show{
			Artist:   get(row, "artist"),
			Date:     get(row, "date"),
			City:     get(row, "city"),
			Province: get(row, "province"),
			Venue:    get(row, "venue"),
			Type:     get(row, "type"),
			Name:     get(row, "name"),
		}
		if s.Artist == "" && s.Date == "" && s.City == "" {
			continue
		}
		shows = append(shows, s)
	}
	return shows, nil
}
