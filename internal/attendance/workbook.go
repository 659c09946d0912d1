package attendance

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// workbookDayLayout renders date cells the way text sheets write them.
const workbookDayLayout = "02/01/2006"

var zipMagic = []byte("PK\x03\x04")

// IsWorkbook reports whether data is an .xlsx workbook.
func IsWorkbook(data []byte) bool {
	return bytes.HasPrefix(data, zipMagic)
}

// parseWorkbook reads the first worksheet. Its first row is the header.
func (p *Parser) parseWorkbook(data []byte) ([]RowResult, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("attendance: open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	rows, err := book.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("attendance: read worksheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	raw := excelize.Options{RawCellValue: true}
	if !rows.Next() {
		if err := rows.Error(); err != nil {
			return nil, fmt.Errorf("attendance: read header: %w", err)
		}
		return nil, ErrEmptyFile
	}
	header, err := rows.Columns(raw)
	if err != nil {
		return nil, fmt.Errorf("attendance: read header: %w", err)
	}
	if blank(header) {
		return nil, ErrEmptyFile
	}
	index, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	dayCol := index[ColDay]
	line := 1
	return p.collect(index, func() ([]string, int, error) {
		if !rows.Next() {
			if err := rows.Error(); err != nil {
				return nil, 0, err
			}
			return nil, 0, io.EOF
		}
		line++
		record, err := rows.Columns(raw)
		if err != nil {
			return nil, 0, &RowError{Line: line, Err: err}
		}
		if dayCol < len(record) {
			record[dayCol] = workbookDay(record[dayCol])
		}
		return record, line, nil
	})
}

// workbookDay turns a date cell, stored as a serial number, into
// day/month/year. Text cells are returned unchanged.
func workbookDay(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.Contains(v, "/") {
		return v
	}
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil || serial <= 0 {
		return v
	}
	day, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return v
	}
	return day.Format(workbookDayLayout)
}
