package core

import "context"

// gatedDecks passes every upstream presentation call through the shared
// rate limiter. URL builds a link locally and is not gated.
type gatedDecks struct {
	DeckStore
	limiter *RateLimiter
}

// gateDecks wraps decks so its calls share limiter with spreadsheet reads.
func gateDecks(decks DeckStore, limiter *RateLimiter) DeckStore {
	if g, ok := decks.(*gatedDecks); ok && g.limiter == limiter {
		return g
	}
	return &gatedDecks{DeckStore: decks, limiter: limiter}
}

func (g *gatedDecks) TextElements(ctx context.Context, docID string) ([]TextElement, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.DeckStore.TextElements(ctx, docID)
}

func (g *gatedDecks) Duplicate(ctx context.Context, docID, title string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return g.DeckStore.Duplicate(ctx, docID, title)
}

func (g *gatedDecks) Substitute(ctx context.Context, docID string, table map[string]string, pageIDs []string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return g.DeckStore.Substitute(ctx, docID, table, pageIDs)
}

func (g *gatedDecks) PageIDs(ctx context.Context, docID string) ([]string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.DeckStore.PageIDs(ctx, docID)
}

func (g *gatedDecks) CopyPages(ctx context.Context, docID string, pageIDs []string, idPrefix string) ([]string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.DeckStore.CopyPages(ctx, docID, pageIDs, idPrefix)
}

func (g *gatedDecks) DeletePages(ctx context.Context, docID string, pageIDs []string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return g.DeckStore.DeletePages(ctx, docID, pageIDs)
}

func (g *gatedDecks) Delete(ctx context.Context, docID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return g.DeckStore.Delete(ctx, docID)
}
