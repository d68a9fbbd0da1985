package tmdb

import (
	"context"
	"fmt"
	"net/url"
)

// SearchTV searches series by name
func (c *Client) SearchTV(ctx context.Context, query string) (*SearchResults, error) {
	params := url.Values{}
	params.Set("query", query)

	var results SearchResults
	if err := c.Get(ctx, "/search/tv", params, &results); err != nil {
		return nil, fmt.Errorf("failed to search for %q: %w", query, err)
	}

	c.logger.Debug().
		Str("query", query).
		Int("count", len(results.Results)).
		Msg("Searched TMDB series")

	return &results, nil
}

// FindTVID resolves a series name to the id of the first search result
func (c *Client) FindTVID(ctx context.Context, name string) (int64, error) {
	results, err := c.SearchTV(ctx, name)
	if err != nil {
		return 0, err
	}

	if len(results.Results) == 0 {
		return 0, fmt.Errorf("%w for show %q", ErrNotFound, name)
	}

	return results.Results[0].ID, nil
}

// GetTV retrieves the details of a series
func (c *Client) GetTV(ctx context.Context, id int64) (*TVShow, error) {
	var show TVShow
	if err := c.Get(ctx, fmt.Sprintf("/tv/%d", id), nil, &show); err != nil {
		return nil, fmt.Errorf("failed to get show %d: %w", id, err)
	}

	return &show, nil
}

func formatEpisodeCode(season, episode int) string {
	return fmt.Sprintf("s%02de%02d", season, episode)
}
