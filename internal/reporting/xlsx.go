package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	SheetOverview = "Übersicht"
	SheetCalls    = "Anrufliste"
	SheetAnalysis = "Auswertung"

	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Filename is the download name of a report generated on the report's day.
func (r Report) Filename() string {
	return fmt.Sprintf("medicall-bericht-%s.xlsx", r.GeneratedAt.Format("2006-01-02"))
}

// WriteXLSX renders the report as a workbook with an overview, the call list and the
// breakdowns on separate sheets.
func WriteXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetOverview); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetCalls); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetAnalysis); err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"2563EB"}},
	})
	if err != nil {
		return err
	}
	title, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return err
	}

	if err := writeOverview(f, r, title); err != nil {
		return err
	}
	if err := writeCalls(f, r, header); err != nil {
		return err
	}
	if err := writeAnalysis(f, r, header); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	_, err = f.WriteTo(w)
	return err
}

func writeOverview(f *excelize.File, r Report, title int) error {
	s := r.Summary
	rows := [][]any{
		{"MediCall-AI Tagesbericht"},
		{"Datum", r.GeneratedAt.Format("02.01.2006 15:04") + " UTC"},
		{},
		{"Anrufe heute", s.TodayCount},
		{"Dringende Anrufe heute", s.UrgentTodayCount},
		{"Ø Dauer heute", s.AvgDurationToday.String()},
		{"Anrufe gestern", s.YesterdayCount},
		{"Ø Dauer gestern", s.AvgDurationYesterday.String()},
		{"Anrufe diesen Monat", s.MonthCount},
		{"Unbearbeitete dringende", s.UnhandledUrgentCount},
		{"Anteil dringend (%)", s.UrgentPercentage},
	}
	if err := writeRows(f, SheetOverview, 1, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetOverview, "A1", "A1", title); err != nil {
		return err
	}
	return f.SetColWidth(SheetOverview, "A", "A", 30)
}

func writeCalls(f *excelize.File, r Report, header int) error {
	rows := [][]any{{"Name", "Telefon", "Dringlichkeit", "Zeit", "Dauer", "Status", "Symptome", "Rückruf", "Zusammenfassung"}}
	for _, c := range r.Calls {
		callback := ""
		switch {
		case c.CallbackCompleted:
			callback = "erledigt"
		case c.CallbackRequested:
			callback = "offen"
		}
		rows = append(rows, []any{
			c.CallerName,
			c.Phone,
			string(c.Urgency),
			c.OccurredAt.UTC().Format("02.01.2006 15:04"),
			c.Duration.String(),
			string(c.Status),
			strings.Join(c.Symptoms, ", "),
			callback,
			c.Summary,
		})
	}
	if err := writeRows(f, SheetCalls, 1, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetCalls, "A1", "I1", header); err != nil {
		return err
	}
	if err := f.SetPanes(SheetCalls, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	return f.SetColWidth(SheetCalls, "A", "I", 18)
}

func writeAnalysis(f *excelize.File, r Report, header int) error {
	rows := [][]any{{"Datum", "Anrufe"}}
	for _, d := range r.Daily {
		rows = append(rows, []any{d.Date, d.Count})
	}
	if err := writeRows(f, SheetAnalysis, 1, rows); err != nil {
		return err
	}

	urgency := [][]any{{"Dringlichkeit", "Anzahl", "Anteil (%)"}}
	for _, u := range r.Urgency {
		urgency = append(urgency, []any{string(u.Urgency), u.Count, u.Percentage})
	}
	if err := writeRowsAt(f, SheetAnalysis, "D", 1, urgency); err != nil {
		return err
	}

	symptoms := [][]any{{"Symptom", "Anzahl"}}
	for _, s := range r.Symptoms {
		symptoms = append(symptoms, []any{s.Symptom, s.Count})
	}
	if err := writeRowsAt(f, SheetAnalysis, "H", 1, symptoms); err != nil {
		return err
	}

	for _, rng := range [][2]string{{"A1", "B1"}, {"D1", "F1"}, {"H1", "I1"}} {
		if err := f.SetCellStyle(SheetAnalysis, rng[0], rng[1], header); err != nil {
			return err
		}
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, startRow int, rows [][]any) error {
	return writeRowsAt(f, sheet, "A", startRow, rows)
}

func writeRowsAt(f *excelize.File, sheet, col string, startRow int, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell := fmt.Sprintf("%s%d", col, startRow+i)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("reporting: write %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
