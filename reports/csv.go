package reports

import (
	"encoding/csv"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV writes doc as ";" separated UTF-8 with a byte order mark.
// Blocks are separated by an empty line.
func WriteCSV(w io.Writer, doc Document) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	cw.Comma = ';'

	if err := cw.Write([]string{doc.Title}); err != nil {
		return err
	}
	for _, b := range doc.Blocks {
		if err := cw.Write([]string{}); err != nil {
			return err
		}
		if b.Title != "" {
			if err := cw.Write([]string{b.Title}); err != nil {
				return err
			}
		}
		if err := cw.WriteAll(b.Rows); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
