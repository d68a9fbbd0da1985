package tracker

import (
	"context"
	"fmt"

	"github.com/s0up4200/airdate/tmdb"
)

// ShowAPI is the subset of the TMDB client the tracker needs
type ShowAPI interface {
	FindTVID(ctx context.Context, name string) (int64, error)
	GetTV(ctx context.Context, id int64) (*tmdb.TVShow, error)
}

// Query identifies a show to track. ID is resolved from Name when zero.
// Season is the last season already watched; zero tracks every season.
type Query struct {
	Name   string `mapstructure:"name" json:"name"`
	ID     int64  `mapstructure:"id" json:"id,omitempty"`
	Season int    `mapstructure:"season" json:"season,omitempty"`
}

// String returns a human readable label for log lines and failure reports
func (q Query) String() string {
	switch {
	case q.Name != "" && q.ID != 0:
		return fmt.Sprintf("%s (%d)", q.Name, q.ID)
	case q.Name != "":
		return q.Name
	default:
		return fmt.Sprintf("#%d", q.ID)
	}
}

// Result is the outcome of fetching one show.
// Show is nil when the fetch failed, in which case Err explains why.
type Result struct {
	Query Query
	Show  *tmdb.TVShow
	Err   error
}

// OK reports whether the show was fetched
func (r Result) OK() bool {
	return r.Show != nil
}
