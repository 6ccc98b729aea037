// Package placeholder provides the client used for platforms that are
// accepted as provider tokens but have no backend yet.
package placeholder

import (
	"context"
	"fmt"

	"musicmanager/internal/resource"
)

// Client answers every call with resource.ErrNotImplemented.
type Client struct {
	provider resource.Provider
}

// New creates a placeholder client standing in for p.
func New(p resource.Provider) *Client {
	return &Client{provider: p}
}

func (c *Client) Name() string { return string(c.provider) }

func (c *Client) FetchLyric(ctx context.Context, songID string) (string, error) {
	return "", fmt.Errorf("%s lyric: %w", c.provider, resource.ErrNotImplemented)
}

func (c *Client) FetchID3ByTitle(ctx context.Context, title string) ([]resource.TrackCandidate, error) {
	return nil, fmt.Errorf("%s search: %w", c.provider, resource.ErrNotImplemented)
}
