package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/sheets/v4"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

// ReadRows reads a whole sheet. The first row is the header; an empty
// section selects the first sheet of the spreadsheet.
func (c *Client) ReadRows(ctx context.Context, docID, section string) (core.SheetData, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	title, err := c.sheetTitle(ctx, docID, section)
	if err != nil {
		return core.SheetData{}, err
	}

	vr, err := c.sheets.Spreadsheets.Values.Get(docID, quoteSheet(title)).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).
		Do()
	if err != nil {
		return core.SheetData{}, classify("sheets.read", err)
	}
	return sheetData(vr.Values), nil
}

// WriteCells writes every cell in one batch. A write without a section uses
// the section argument.
func (c *Client) WriteCells(ctx context.Context, docID, section string, writes []core.CellWrite) error {
	if len(writes) == 0 {
		return nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()

	title, err := c.sheetTitle(ctx, docID, section)
	if err != nil {
		return err
	}

	data := make([]*sheets.ValueRange, 0, len(writes))
	for _, w := range writes {
		sheet := title
		if w.Section != "" {
			sheet = w.Section
		}
		data = append(data, &sheets.ValueRange{
			Range:  cellRange(sheet, w.Row, w.Column),
			Values: [][]any{{w.Value}},
		})
	}

	_, err = c.sheets.Spreadsheets.Values.BatchUpdate(docID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}).Context(ctx).Do()
	return classify("sheets.write", err)
}

// sheetTitle returns section, or the first sheet's title when section is empty.
func (c *Client) sheetTitle(ctx context.Context, docID, section string) (string, error) {
	if s := strings.TrimSpace(section); s != "" {
		return s, nil
	}
	ss, err := c.sheets.Spreadsheets.Get(docID).
		Fields("sheets(properties(title))").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("sheets.metadata", err)
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return "", fmt.Errorf("sheets.metadata: spreadsheet %s: %w", docID, core.ErrNotFound)
	}
	return ss.Sheets[0].Properties.Title, nil
}

// sheetData turns a value grid into headers and rows. Short rows are padded
// so values stay aligned with headers.
func sheetData(values [][]any) core.SheetData {
	data := core.SheetData{Headers: []string{}, Rows: []core.SourceRow{}}
	if len(values) == 0 {
		return data
	}

	for _, h := range values[0] {
		data.Headers = append(data.Headers, strings.TrimSpace(core.Stringify(h)))
	}
	width := len(data.Headers)

	for i, raw := range values[1:] {
		n := width
		if len(raw) > n {
			n = len(raw)
		}
		row := make([]any, n)
		copy(row, raw)
		data.Rows = append(data.Rows, core.SourceRow{Index: i + 1, Values: row})
	}
	return data
}

// quoteSheet quotes a sheet title for A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// columnLetter converts a 0-based column index to A1 letters: 0 -> A, 26 -> AA.
func columnLetter(col int) string {
	var b []byte
	for col >= 0 {
		b = append([]byte{byte('A' + col%26)}, b...)
		col = col/26 - 1
	}
	return string(b)
}

// cellRange addresses one cell. row is the 1-based data row, so the header
// occupies sheet row 1 and data row 1 is sheet row 2.
func cellRange(sheet string, row, col int) string {
	return fmt.Sprintf("%s!%s%d", quoteSheet(sheet), columnLetter(col), row+1)
}

var _ core.SourceStore = (*Client)(nil)
