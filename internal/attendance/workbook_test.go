package attendance

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()
	sheet := book.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow(sheet, cell, &row))
	}
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

var workbookHeader = []any{"Dia", "Identificação", "Usuário", "Curso/Departamento", "Refeição", "Comparecimento"}

func TestParseWorkbook(t *testing.T) {
	data := workbook(t,
		workbookHeader,
		[]any{"01/03/2024", "2024001", "Ana Souza", "Informática", "Almoço", "Não"},
		[]any{time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC), 2024002, "Bruno Lima", "Agropecuária", "Jantar", "SIM"},
		[]any{"31/02/2024", "2024003", "Carla", "Info", "Ceia", "Não"},
		[]any{"texto", "2024004", "Davi", "Info", "Ceia", "Não"},
	)
	require.True(t, IsWorkbook(data))

	results, err := NewParser(fixedNow).Parse(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, results, 4)

	require.Nil(t, results[0].Err)
	require.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), results[0].Row.Day)
	require.Equal(t, 2, results[0].Row.Line)

	require.Nil(t, results[1].Err)
	require.Equal(t, "2024002", results[1].Row.EnrollmentID)
	require.Equal(t, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC), results[1].Row.Day)
	require.True(t, results[1].Row.Present)

	require.NotNil(t, results[2].Err)
	require.Equal(t, 4, results[2].Err.Line)

	require.Equal(t, time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC), results[3].Row.Day)
}

func TestParseWorkbookMissingColumn(t *testing.T) {
	data := workbook(t, []any{"Dia", "Identificação", "Usuário", "Refeição", "Comparecimento"})
	_, err := NewParser(fixedNow).Parse(bytes.NewReader(data))
	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, ColProgram, missing.Column)
}

func TestParseEmptyWorkbook(t *testing.T) {
	_, err := NewParser(fixedNow).Parse(bytes.NewReader(workbook(t)))
	require.ErrorIs(t, err, ErrEmptyFile)
}

func TestImportWorkbook(t *testing.T) {
	im, repo := newImporter(2)
	data := workbook(t,
		workbookHeader,
		[]any{"02/03/2024", "2024001", "Ana", "Info", "Almoço", "Não"},
		[]any{"01/03/2024", "2024001", "Ana", "Info", "Almoço", "Não"},
	)

	summary, err := im.ImportReader(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 1, summary.NewStudents)
	require.Equal(t, 2, summary.Absences)
	require.Equal(t, []string{"Ana"}, summary.Blocked)

	s, err := repo.FindByEnrollment(context.Background(), "2024001")
	require.NoError(t, err)
	require.True(t, s.Blocked)
	require.Equal(t, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC), s.LastAbsence.Day)
}

func TestWorkbookDay(t *testing.T) {
	require.Equal(t, "01/03/2024", workbookDay("45352"))
	require.Equal(t, "1/3/2024", workbookDay(" 1/3/2024 "))
	require.Equal(t, "hoje", workbookDay("hoje"))
	require.Equal(t, "", workbookDay(""))
}
