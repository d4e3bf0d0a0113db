// Package export writes roster quote sheets and reads show spreadsheets.
package export

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/artist-check/internal/model"
	"github.com/sells-group/artist-check/internal/scorer"
)

// QuoteSheetName is the sheet WriteRoster creates.
const QuoteSheetName = "报价单"

var quoteHeader = []string{"艺人", "评分", "建议", "报价", "在库", "演出数"}

var stateLabel = map[model.ScoreState]string{
	model.ScoreStatePending:       "待评估",
	model.ScoreStateNotInDatabase: "未在库中",
	model.ScoreStateFetchFailed:   "获取失败",
}

// Quote is everything printed on a quote sheet.
type Quote struct {
	Title     string
	Target    model.Target
	Generated time.Time
	Roster    []model.ArtistAssessment
}

// WriteRoster writes q as a single-sheet workbook.
func WriteRoster(w io.Writer, q Quote) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(QuoteSheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	title := q.Title
	if title == "" {
		title = "艺人评估报价单"
	}
	addRow(sheet, title)
	addRow(sheet, "目标城市", q.Target.City)
	addRow(sheet, "计划日期", q.Target.Date)
	if !q.Generated.IsZero() {
		addRow(sheet, "生成时间", q.Generated.Format("2006-01-02 15:04"))
	}
	sheet.AddRow()
	addRow(sheet, quoteHeader...)

	for _, a := range q.Roster {
		row := sheet.AddRow()
		row.AddCell().SetString(a.Name)
		if a.Scored() {
			row.AddCell().SetInt(*a.Score)
			row.AddCell().SetString(scorer.VerdictFor(*a.Score).Label)
		} else {
			row.AddCell().SetString(stateLabel[a.State])
			row.AddCell().SetString("")
		}
		setPrice(row.AddCell(), a.Price)
		if a.IsKnown {
			row.AddCell().SetString("是")
		} else {
			row.AddCell().SetString("否")
		}
		row.AddCell().SetInt(len(a.Shows))
	}

	total := sheet.AddRow()
	total.AddCell().SetString("合计")
	total.AddCell()
	total.AddCell()
	total.AddCell().SetInt(model.TotalPrice(q.Roster))

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// setPrice writes plain integers as numbers and anything else as text.
func setPrice(cell *xlsx.Cell, p model.Price) {
	s := strings.TrimSpace(string(p))
	if n, err := strconv.Atoi(s); err == nil {
		cell.SetInt(n)
		return
	}
	cell.SetString(s)
}
