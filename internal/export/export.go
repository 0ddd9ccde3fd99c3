// Package export renders a transcript as a downloadable file.
package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	FormatText = "txt"
	FormatXLSX = "xlsx"

	// DefaultText is served when no transcript text is supplied.
	DefaultText = "Default text content"

	sheetName = "Transcript"
)

// File is a rendered download.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// Render returns text in the requested format. An empty format means plain text.
func Render(format, text string) (File, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return File{Name: "download.txt", ContentType: "text/plain", Body: []byte(text)}, nil
	case FormatXLSX:
		var buf bytes.Buffer
		if err := WriteXLSX(&buf, text); err != nil {
			return File{}, err
		}
		return File{
			Name:        "download.xlsx",
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Body:        buf.Bytes(),
		}, nil
	default:
		return File{}, fmt.Errorf("unsupported format %q", format)
	}
}

// WriteXLSX writes a single sheet workbook with one row per non-blank line of text.
func WriteXLSX(w io.Writer, text string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &[]any{"Line", "Text"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := 2
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &[]any{row - 1, line}); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		row++
	}
	if err := f.SetColWidth(sheetName, "B", "B", 120); err != nil {
		return fmt.Errorf("set width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// ReadXLSX returns the transcript lines stored by WriteXLSX.
func ReadXLSX(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	var lines []string
	for i, r := range rows {
		if i == 0 || len(r) < 2 {
			continue
		}
		lines = append(lines, r[1])
	}
	return lines, nil
}
