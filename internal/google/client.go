// Package google implements the document store contracts on the Google
// Sheets, Slides and Drive APIs.
//
// Every call is bounded by the configured timeout and every API error is
// classified into the core error taxonomy (see classify), so the loader and
// runner can decide what is retryable without knowing about googleapi.
package google

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"google.golang.org/api/slides/v1"
)

// Options configures the API clients.
type Options struct {
	CredentialsFile string
	AccessToken     string
	Timeout         time.Duration

	// ClientOptions are appended after the credential options. Tests use
	// them to point the clients at a local server.
	ClientOptions []option.ClientOption
}

// Client bundles the three services behind core.SourceStore and core.DeckStore.
type Client struct {
	sheets  *sheets.Service
	slides  *slides.Service
	drive   *drive.Service
	timeout time.Duration
}

func (o Options) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case o.AccessToken != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: o.AccessToken})
		opts = append(opts, option.WithTokenSource(ts))
	case o.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(o.CredentialsFile))
	}
	return append(opts, o.ClientOptions...)
}

// New creates the Sheets, Slides and Drive services.
func New(ctx context.Context, o Options) (*Client, error) {
	opts := o.clientOptions()

	sh, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	sl, err := slides.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create slides service: %w", err)
	}
	dr, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{sheets: sh, slides: sl, drive: dr, timeout: timeout}, nil
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}
