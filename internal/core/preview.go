package core

// preview.go builds non-destructive previews of a target presentation.
//
// A preview never touches the target itself:
//  1. Read the target's text and collect its placeholder tokens
//  2. Duplicate the target
//  3. Substitute the row's values into the duplicate
//  4. Return a pointer to the duplicate
//
// Per-placeholder substitution failures are returned as warnings alongside a
// usable preview. Any other failure deletes the duplicate before reporting,
// so a half-written copy is never handed back as a success.

import (
	"context"
	"errors"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/logging"
)

// PreviewResult points at a substituted copy of the target.
type PreviewResult struct {
	PreviewDocID string   `json:"preview_doc_id"`
	URL          string   `json:"url"`
	Warnings     []string `json:"warnings,omitempty"`
}

// PreviewBuilder duplicates and substitutes presentations.
type PreviewBuilder struct {
	decks DeckStore
}

// NewPreviewBuilder returns a builder writing through decks.
func NewPreviewBuilder(decks DeckStore) *PreviewBuilder {
	return &PreviewBuilder{decks: decks}
}

// Build creates a preview of targetDocID with record substituted through
// mapping. The target is only read.
func (b *PreviewBuilder) Build(ctx context.Context, targetDocID, title string, record map[string]any, mapping ColumnMapping) (*PreviewResult, error) {
	elements, err := b.decks.TextElements(ctx, targetDocID)
	if err != nil {
		return nil, err
	}
	table := SubstitutionTable(ScanTokens(elements), mapping, record)

	copyID, err := b.decks.Duplicate(ctx, targetDocID, title)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{PreviewDocID: copyID, URL: b.decks.URL(copyID)}
	if len(table) == 0 {
		return result, nil
	}

	if err := b.decks.Substitute(ctx, copyID, table, nil); err != nil {
		var subErr *SubstitutionError
		if errors.As(err, &subErr) && len(subErr.Failed) < len(table) {
			result.Warnings = subErr.Warnings()
			return result, nil
		}
		b.discard(ctx, copyID)
		return nil, err
	}
	return result, nil
}

// discard deletes a failed preview copy. Failure is logged, not returned,
// because the caller is already reporting the substitution error.
func (b *PreviewBuilder) discard(ctx context.Context, docID string) {
	if err := b.decks.Delete(context.WithoutCancel(ctx), docID); err != nil {
		logging.WithFields(ctx, "preview_doc_id", docID).
			Warn("failed to delete abandoned preview copy", "error", err)
	}
}
