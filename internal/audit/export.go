package audit

import (
	"encoding/csv"
	"io"
	"time"
)

// WriteCSV serialises entries as CSV with a header row.
func WriteCSV(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Timestamp", "Actor", "Action", "Severity", "Detail"}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writer.Write([]string{
			e.At.Format(time.DateTime),
			e.Actor,
			e.Action,
			string(e.Severity),
			e.Detail,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
