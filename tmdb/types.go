package tmdb

import (
	"time"
)

// airDateLayout is the date format TMDB uses for air dates
const airDateLayout = "2006-01-02"

// ShowStatus is the production status reported for a series
type ShowStatus string

const (
	StatusReturning    ShowStatus = "Returning Series"
	StatusEnded        ShowStatus = "Ended"
	StatusCanceled     ShowStatus = "Canceled"
	StatusInProduction ShowStatus = "In Production"
	StatusPlanned      ShowStatus = "Planned"
)

// IsFinished reports whether no further episodes are expected
func (s ShowStatus) IsFinished() bool {
	return s == StatusEnded || s == StatusCanceled
}

// IsUpcoming reports whether the series has not started airing yet
func (s ShowStatus) IsUpcoming() bool {
	return s == StatusInProduction || s == StatusPlanned
}

// SearchResults is the response of /search/tv
type SearchResults struct {
	Page         int           `json:"page"`
	TotalResults int           `json:"total_results"`
	TotalPages   int           `json:"total_pages"`
	Results      []ShowSummary `json:"results"`
}

// ShowSummary is a single search hit
type ShowSummary struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	FirstAirDate string `json:"first_air_date"`
}

// Episode is an aired or announced episode of a series
type Episode struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
	AirDate       string `json:"air_date"`
}

// Code returns the episode number in sNNeNN form
func (e *Episode) Code() string {
	return formatEpisodeCode(e.SeasonNumber, e.EpisodeNumber)
}

// AirTime parses AirDate. The zero time is returned when the date is missing or malformed.
func (e *Episode) AirTime() time.Time {
	t, err := time.Parse(airDateLayout, e.AirDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// TVShow is the response of /tv/{id}, trimmed to the fields airdate uses
type TVShow struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Status           ShowStatus `json:"status"`
	NumberOfSeasons  int        `json:"number_of_seasons"`
	NumberOfEpisodes int        `json:"number_of_episodes"`
	FirstAirDate     string     `json:"first_air_date"`
	LastAirDate      string     `json:"last_air_date"`
	InProduction     bool       `json:"in_production"`
	LastEpisodeToAir *Episode   `json:"last_episode_to_air"`
	NextEpisodeToAir *Episode   `json:"next_episode_to_air"`
}

// HasNewSeason reports whether the show has more seasons than the one being tracked.
// A tracked season of zero means every season is of interest.
func (s *TVShow) HasNewSeason(trackedSeason int) bool {
	return trackedSeason == 0 || trackedSeason < s.NumberOfSeasons
}
