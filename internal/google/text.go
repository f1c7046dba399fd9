package google

import (
	"strconv"
	"strings"

	"google.golang.org/api/slides/v1"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

// flattenPage lists the text of every shape on a slide. Groups are walked
// recursively and each table cell becomes its own element with id
// "<table>[r,c]".
func flattenPage(page *slides.Page) []core.TextElement {
	var out []core.TextElement
	for _, el := range page.PageElements {
		out = appendElement(out, page.ObjectId, el)
	}
	return out
}

func appendElement(out []core.TextElement, pageID string, el *slides.PageElement) []core.TextElement {
	switch {
	case el == nil:
	case el.Shape != nil:
		if text := textOf(el.Shape.Text); text != "" {
			out = append(out, core.TextElement{PageID: pageID, ElementID: el.ObjectId, Text: text})
		}
	case el.ElementGroup != nil:
		for _, child := range el.ElementGroup.Children {
			out = appendElement(out, pageID, child)
		}
	case el.Table != nil:
		for r, row := range el.Table.TableRows {
			for col, cell := range row.TableCells {
				if text := textOf(cell.Text); text != "" {
					id := el.ObjectId + "[" + strconv.Itoa(r) + "," + strconv.Itoa(col) + "]"
					out = append(out, core.TextElement{PageID: pageID, ElementID: id, Text: text})
				}
			}
		}
	}
	return out
}

// textOf joins the text runs of a shape or cell. The trailing newline the
// API appends to every paragraph is dropped.
func textOf(tc *slides.TextContent) string {
	if tc == nil {
		return ""
	}
	var b strings.Builder
	for _, te := range tc.TextElements {
		if te.TextRun != nil {
			b.WriteString(te.TextRun.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
