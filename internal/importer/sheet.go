package importer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column names of the registrar's academic load export.
const (
	ColumnResourceCode   = "espacio_aprendizaje"
	ColumnDays           = "dias_habiles"
	ColumnTime           = "hora"
	ColumnSubject        = "nombre_materia"
	ColumnCareer         = "nombre_areaacademicasCompactacion"
	ColumnInstructorID   = "codigo_th"
	ColumnInstructorName = "nombre"
	ColumnSection        = "seccion"
	ColumnEnrolled       = "matriculados"
)

var requiredColumns = []string{ColumnResourceCode, ColumnDays, ColumnTime, ColumnSubject}

var (
	// ErrEmptySheet indicates the workbook has no data rows under the header.
	ErrEmptySheet = errors.New("importer: sheet has no data rows")
	// ErrMissingColumns indicates the header row lacks a required column.
	ErrMissingColumns = errors.New("importer: sheet is missing required columns")
)

// Row is one line of the academic load sheet. Number is the 1-based sheet row.
type Row struct {
	Number         int
	ResourceCode   string
	Days           string
	Time           string
	Subject        string
	Career         string
	InstructorID   string
	InstructorName string
	Section        string
	Enrolled       string
}

func (r Row) blank() bool {
	return r.ResourceCode == "" && r.Days == "" && r.Time == "" && r.Subject == "" &&
		r.Career == "" && r.InstructorID == "" && r.InstructorName == "" &&
		r.Section == "" && r.Enrolled == ""
}

// ReadSheet parses the first worksheet of an xlsx workbook. Columns are
// located by header name in any order; fully blank rows are skipped.
func ReadSheet(reader io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("importer: open workbook: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	sheetRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("importer: read sheet %q: %w", sheetName, err)
	}
	if len(sheetRows) < 2 {
		return nil, ErrEmptySheet
	}

	index := headerIndex(sheetRows[0])
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := index[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	cell := func(values []string, column string) string {
		idx, ok := index[strings.ToLower(column)]
		if !ok || idx >= len(values) {
			return ""
		}
		return strings.TrimSpace(values[idx])
	}

	rows := make([]Row, 0, len(sheetRows)-1)
	for i := 1; i < len(sheetRows); i++ {
		values := sheetRows[i]
		row := Row{
			Number:         i + 1,
			ResourceCode:   cell(values, ColumnResourceCode),
			Days:           cell(values, ColumnDays),
			Time:           cell(values, ColumnTime),
			Subject:        cell(values, ColumnSubject),
			Career:         cell(values, ColumnCareer),
			InstructorID:   cell(values, ColumnInstructorID),
			InstructorName: cell(values, ColumnInstructorName),
			Section:        cell(values, ColumnSection),
			Enrolled:       cell(values, ColumnEnrolled),
		}
		if row.blank() {
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	return index
}
