package attendance

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/refeitorio/refeitorio/internal/meals"
)

// DateLayout is the day/month/year format used by the sheets.
const DateLayout = "2/1/2006"

// Required columns, in the order they are reported when missing.
const (
	ColDay        = "Dia"
	ColEnrollment = "Identificação"
	ColUser       = "Usuário"
	ColProgram    = "Curso/Departamento"
	ColMeal       = "Refeição"
	ColAttendance = "Comparecimento"
)

var columns = []struct {
	name    string
	aliases []string
}{
	{ColDay, []string{"Day", "Data"}},
	{ColEnrollment, []string{"Identificacao", "Identification", "Matricula", "Matrícula"}},
	{ColUser, []string{"Usuario", "User", "Nome"}},
	{ColProgram, []string{"Curso", "Program/Department", "Program"}},
	{ColMeal, []string{"Refeicao", "Meal"}},
	{ColAttendance, []string{"Attendance", "Presença", "Presenca"}},
}

var fieldLabels = map[string]string{
	"EnrollmentID": ColEnrollment,
	"Meal":         ColMeal,
}

var presentMarkers = []string{"sim", "yes"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parser turns attendance sheets, CSV or .xlsx, into row results.
type Parser struct {
	now      func() time.Time
	validate *validator.Validate
}

// NewParser builds a Parser. now supplies the day used for rows whose date
// is not in day/month/year form; nil means time.Now.
func NewParser(now func() time.Time) *Parser {
	if now == nil {
		now = time.Now
	}
	return &Parser{now: now, validate: validator.New()}
}

// ParseCSV parses r with the current clock. Workbooks are detected and read
// as well.
func ParseCSV(r io.Reader) ([]RowResult, error) {
	return NewParser(nil).Parse(r)
}

// rowSource yields the next record and its sheet line. It returns io.EOF
// after the last record and a *RowError for a record it could not read.
type rowSource func() ([]string, int, error)

// Parse reads the whole sheet. The format is chosen from the content: .xlsx
// workbooks are read from their first worksheet, anything else as delimited
// text. A missing required column fails the call before any row is
// returned; malformed rows become RowResults with Err set.
func (p *Parser) Parse(r io.Reader) ([]RowResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("attendance: read sheet: %w", err)
	}
	if IsWorkbook(data) {
		return p.parseWorkbook(data)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}
	return p.parseDelimited(data)
}

func (p *Parser) parseDelimited(data []byte) ([]RowResult, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("attendance: read header: %w", err)
	}
	index, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}
	return p.collect(index, func() ([]string, int, error) {
		record, err := reader.Read()
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, 0, &RowError{Line: parseErr.StartLine, Err: parseErr.Err}
			}
			return nil, 0, err
		}
		line, _ := reader.FieldPos(0)
		return record, line, nil
	})
}

func (p *Parser) collect(index map[string]int, next rowSource) ([]RowResult, error) {
	today := truncateDay(p.now())
	var results []RowResult
	for {
		record, line, err := next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var unreadable *RowError
			if errors.As(err, &unreadable) {
				results = append(results, RowResult{Err: unreadable})
				continue
			}
			return nil, fmt.Errorf("attendance: read row: %w", err)
		}
		if blank(record) {
			continue
		}
		row, rowErr := p.parseRow(record, index, line, today)
		if rowErr != nil {
			results = append(results, RowResult{Err: rowErr})
			continue
		}
		results = append(results, RowResult{Row: row})
	}
	return results, nil
}

func (p *Parser) parseRow(record []string, index map[string]int, line int, today time.Time) (Row, *RowError) {
	field := func(col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	day, err := parseDay(field(ColDay), today)
	if err != nil {
		return Row{}, &RowError{Line: line, Err: err}
	}
	meal := field(ColMeal)
	marker := field(ColAttendance)
	row := Row{
		Line:         line,
		Day:          day,
		EnrollmentID: field(ColEnrollment),
		Name:         field(ColUser),
		Program:      field(ColProgram),
		Meal:         meal,
		Marker:       marker,
		Present:      isPresent(marker),
		Rank:         meals.Rank(meal),
	}
	if err := p.validate.Struct(row); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Row{}, &RowError{Line: line, Err: fmt.Errorf("%s is required", fieldLabels[verrs[0].Field()])}
		}
		return Row{}, &RowError{Line: line, Err: err}
	}
	return row, nil
}

// parseDay accepts day/month/year. Values without a slash fall back to today.
func parseDay(raw string, today time.Time) (time.Time, error) {
	if !strings.Contains(raw, "/") {
		return today, nil
	}
	day, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return day, nil
}

func isPresent(marker string) bool {
	for _, m := range presentMarkers {
		if strings.EqualFold(marker, m) {
			return true
		}
	}
	return false
}

func resolveColumns(header []string) (map[string]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		positions[strings.ToLower(strings.TrimSpace(h))] = i
	}
	index := make(map[string]int, len(columns))
	for _, col := range columns {
		found := false
		for _, name := range append([]string{col.name}, col.aliases...) {
			if i, ok := positions[strings.ToLower(name)]; ok {
				index[col.name] = i
				found = true
				break
			}
		}
		if !found {
			return nil, &MissingColumnError{Column: col.name}
		}
	}
	return index, nil
}

// sniffDelimiter picks ';' when the header uses it more than ','.
func sniffDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	if bytes.Count(first, []byte{';'}) > bytes.Count(first, []byte{','}) {
		return ';'
	}
	return ','
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
