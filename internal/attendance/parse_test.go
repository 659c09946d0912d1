package attendance

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2024, time.May, 20, 15, 4, 0, 0, time.UTC) }

const header = "Dia,Identificação,Usuário,Curso/Departamento,Refeição,Comparecimento\n"

func TestParseReadsRows(t *testing.T) {
	sheet := header +
		"01/03/2024,2024001,Ana Souza,Informática,Almoço,Não\n" +
		"1/3/2024,2024002,Bruno Lima,Agropecuária,LANCHE DA MANHÃ,SIM\n"

	results, err := NewParser(fixedNow).Parse(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	require.Nil(t, first.Err)
	require.Equal(t, "2024001", first.Row.EnrollmentID)
	require.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), first.Row.Day)
	require.False(t, first.Row.Present)
	require.Equal(t, 2, first.Row.Rank)
	require.Equal(t, 2, first.Row.Line)

	second := results[1]
	require.True(t, second.Row.Present)
	require.Equal(t, 1, second.Row.Rank)
	require.Equal(t, first.Row.Day, second.Row.Day)
}

func TestParseMissingColumnFailsBeforeRows(t *testing.T) {
	sheet := "Dia,Identificação,Usuário,Refeição,Comparecimento\n01/03/2024,1,Ana,Almoço,Não\n"
	results, err := NewParser(fixedNow).Parse(strings.NewReader(sheet))
	require.Nil(t, results)
	require.ErrorIs(t, err, ErrMissingColumn)

	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, ColProgram, missing.Column)
}

func TestParseAcceptsEnglishHeadersAndSemicolons(t *testing.T) {
	sheet := "Day;Identification;User;Program/Department;Meal;Attendance\n" +
		"02/03/2024;77;Carla;Math;Dinner;yes\n"
	results, err := NewParser(fixedNow).Parse(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Row.Present)
	require.Equal(t, "Dinner", results[0].Row.Meal)
}

func TestParseDateWithoutSlashDefaultsToToday(t *testing.T) {
	sheet := header + "2024-03-01,1,Ana,Info,Jantar,Não\n"
	results, err := NewParser(fixedNow).Parse(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC), results[0].Row.Day)
}

func TestParseRowErrorsDoNotAbort(t *testing.T) {
	sheet := header +
		"31/02/2024,1,Ana,Info,Almoço,Não\n" +
		"01/03/2024,,Sem Matricula,Info,Almoço,Não\n" +
		"01/03/2024,3,Sem Refeicao,Info,,Não\n" +
		",,,,,\n" +
		"01/03/2024,4,Davi,Info,Ceia,Não\n"

	results, err := NewParser(fixedNow).Parse(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, results, 4)
	require.NotNil(t, results[0].Err)
	require.Equal(t, 2, results[0].Err.Line)
	require.Contains(t, results[0].Err.Error(), `invalid date "31/02/2024"`)
	require.Contains(t, results[1].Err.Error(), "Identificação is required")
	require.Contains(t, results[2].Err.Error(), "Refeição is required")
	require.Nil(t, results[3].Err)
	require.Equal(t, "4", results[3].Row.EnrollmentID)
}

func TestParseEmptyInput(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("  \n"))
	require.ErrorIs(t, err, ErrEmptyFile)
}
