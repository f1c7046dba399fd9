package google

import (
	"context"
	"sort"
	"strconv"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/slides/v1"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

const presentationURL = "https://docs.google.com/presentation/d/"

// URL returns the editor link of a presentation.
func (c *Client) URL(docID string) string {
	return presentationURL + docID + "/edit"
}

func (c *Client) presentation(ctx context.Context, docID string) (*slides.Presentation, error) {
	p, err := c.slides.Presentations.Get(docID).Context(ctx).Do()
	if err != nil {
		return nil, classify("slides.get", err)
	}
	return p, nil
}

// TextElements returns every text-bearing node of the presentation.
func (c *Client) TextElements(ctx context.Context, docID string) ([]core.TextElement, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	p, err := c.presentation(ctx, docID)
	if err != nil {
		return nil, err
	}
	var out []core.TextElement
	for _, page := range p.Slides {
		out = append(out, flattenPage(page)...)
	}
	return out, nil
}

// PageIDs lists the slide ids in presentation order.
func (c *Client) PageIDs(ctx context.Context, docID string) ([]string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	p, err := c.presentation(ctx, docID)
	if err != nil {
		return nil, err
	}
	return slideIDs(p), nil
}

func slideIDs(p *slides.Presentation) []string {
	ids := make([]string, 0, len(p.Slides))
	for _, page := range p.Slides {
		ids = append(ids, page.ObjectId)
	}
	return ids
}

// Duplicate copies the presentation file through Drive.
func (c *Client) Duplicate(ctx context.Context, docID, title string) (string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	f, err := c.drive.Files.Copy(docID, &drive.File{Name: title}).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("drive.copy", err)
	}
	return f.Id, nil
}

// Delete removes a presentation file.
func (c *Client) Delete(ctx context.Context, docID string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	err := c.drive.Files.Delete(docID).SupportsAllDrives(true).Context(ctx).Do()
	return classify("drive.delete", err)
}

// Substitute applies one replaceAllText request per key in a single batch.
// When the batch is rejected each key is retried alone so one bad
// replacement does not block the others; keys that still fail are reported
// as *core.SubstitutionError.
func (c *Client) Substitute(ctx context.Context, docID string, table map[string]string, pageIDs []string) error {
	if len(table) == 0 {
		return nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()

	keys := sortedKeys(table)
	requests := make([]*slides.Request, 0, len(keys))
	for _, k := range keys {
		requests = append(requests, replaceRequest(k, table[k], pageIDs))
	}

	err := c.batch(ctx, docID, requests)
	if err == nil {
		return nil
	}
	if core.IsRetryable(err) || core.KindOf(err) != core.KindUpstream {
		return err
	}

	failed := make(map[string]error)
	for i, k := range keys {
		if err := c.batch(ctx, docID, requests[i:i+1]); err != nil {
			if core.IsRetryable(err) || core.KindOf(err) != core.KindUpstream {
				return err
			}
			failed[k] = err
		}
	}
	if len(failed) == len(keys) {
		return err
	}
	if len(failed) > 0 {
		return &core.SubstitutionError{Failed: failed}
	}
	return nil
}

// CopyPages duplicates pageIDs with object ids idPrefix+N and moves the
// copies to the end of the deck. Copies that already exist are reused.
func (c *Client) CopyPages(ctx context.Context, docID string, pageIDs []string, idPrefix string) ([]string, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	p, err := c.presentation(ctx, docID)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(p.Slides))
	for _, id := range slideIDs(p) {
		existing[id] = true
	}

	copies := derivedIDs(idPrefix, len(pageIDs))
	var requests []*slides.Request
	for i, src := range pageIDs {
		if existing[copies[i]] {
			continue
		}
		requests = append(requests, &slides.Request{
			DuplicateObject: &slides.DuplicateObjectRequest{
				ObjectId:  src,
				ObjectIds: map[string]string{src: copies[i]},
			},
		})
	}
	if len(requests) == 0 {
		return copies, nil
	}

	requests = append(requests, &slides.Request{
		UpdateSlidesPosition: &slides.UpdateSlidesPositionRequest{
			SlideObjectIds:  copies,
			InsertionIndex:  int64(len(p.Slides) + len(requests)),
			ForceSendFields: []string{"InsertionIndex"},
		},
	})
	if err := c.batch(ctx, docID, requests); err != nil {
		return nil, err
	}
	return copies, nil
}

// DeletePages removes slides in one batch.
func (c *Client) DeletePages(ctx context.Context, docID string, pageIDs []string) error {
	if len(pageIDs) == 0 {
		return nil
	}
	ctx, cancel := c.bound(ctx)
	defer cancel()

	requests := make([]*slides.Request, 0, len(pageIDs))
	for _, id := range pageIDs {
		requests = append(requests, &slides.Request{DeleteObject: &slides.DeleteObjectRequest{ObjectId: id}})
	}
	return c.batch(ctx, docID, requests)
}

func (c *Client) batch(ctx context.Context, docID string, requests []*slides.Request) error {
	_, err := c.slides.Presentations.BatchUpdate(docID, &slides.BatchUpdatePresentationRequest{
		Requests: requests,
	}).Context(ctx).Do()
	return classify("slides.batch_update", err)
}

func replaceRequest(find, replace string, pageIDs []string) *slides.Request {
	return &slides.Request{
		ReplaceAllText: &slides.ReplaceAllTextRequest{
			ContainsText:    &slides.SubstringMatchCriteria{Text: find, MatchCase: true},
			ReplaceText:     replace,
			PageObjectIds:   pageIDs,
			ForceSendFields: []string{"ReplaceText"},
		},
	}
}

func derivedIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = prefix + strconv.Itoa(i)
	}
	return ids
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ core.DeckStore = (*Client)(nil)
