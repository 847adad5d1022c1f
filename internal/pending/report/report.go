// Package report renders pending registrations as spreadsheets for the
// administrative office.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"enrollgate/internal/pending/models"
)

const sheetName = "Pending"

// Header is the column order of the export.
var Header = []string{
	"National ID",
	"Last Name",
	"First Name",
	"Email",
	"Phone",
	"Modality",
	"Plan / Year",
	"Module",
	"State",
	"Submitted",
	"Required",
	"Missing",
	"Days Remaining",
	"Urgency",
	"Expires At",
	"Alarm Resets",
	"Updated At",
}

var columnWidths = []float64{14, 20, 20, 28, 16, 14, 12, 10, 20, 10, 10, 48, 14, 10, 20, 12, 20}

// ExportXLSX writes one row per view in the given order.
func ExportXLSX(views []*models.View, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	if err := writeRow(f, 1, toAny(Header)); err != nil {
		return nil, err
	}
	last, err := excelize.CoordinatesToCellName(len(Header), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("set header style: %w", err)
	}
	for i, w := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheetName, col, col, w); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	row := 2
	for _, v := range views {
		if v == nil || v.Registration == nil {
			continue
		}
		if err := writeRow(f, row, rowFor(v, loc)); err != nil {
			return nil, err
		}
		row++
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func rowFor(v *models.View, loc *time.Location) []any {
	r := v.Registration
	p := r.Personal
	urgency := string(v.Urgency)
	if v.Expired {
		urgency = "expired"
	} else if r.State.IsTerminal() {
		urgency = ""
	}
	return []any{
		string(r.NationalID),
		p.LastName,
		p.FirstName,
		p.Email,
		p.Phone,
		p.Modality,
		p.PlanOrYear,
		p.Module,
		string(r.State),
		v.Completeness.TotalSubmitted,
		v.Completeness.TotalRequired,
		strings.Join(v.Completeness.MissingLabels(), "; "),
		v.DaysRemaining,
		urgency,
		r.ExpiresAt.In(loc).Format("2006-01-02 15:04"),
		len(r.AlarmResets),
		r.UpdatedAt.In(loc).Format("2006-01-02 15:04"),
	}
}

func writeRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
