// Package filter selects fetched shows with expr-lang expressions such as
//
//	Status == "Returning Series" && HasNext && daysUntil(NextAirDate) <= 7
//
// Available variables: Name, ID, Status, Seasons, TrackedSeason, Finished,
// HasNewSeason, HasNext, NextAirDate, NextEpisode, HasLast, LastAirDate,
// LastEpisode, Upcoming. Helpers: daysUntil, daysSince, includes (case
// insensitive substring), lower, upper, now. The built-in contains operator is
// case sensitive: lower(Name) contains "the".
package filter

import (
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/s0up4200/airdate/tmdb"
	"github.com/s0up4200/airdate/tracker"
)

// Filter is a compiled filter expression. It is safe for concurrent use.
type Filter struct {
	expression string
	program    *vm.Program
}

// Compile parses and type checks an expression against the show environment
func Compile(expression string) (*Filter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "empty expression",
		}
	}

	program, err := expr.Compile(expression,
		expr.Env(environment(tracker.Result{Show: &tmdb.TVShow{}})),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &CompilationError{
			Expression: expression,
			Reason:     "failed to compile expression",
			Err:        err,
		}
	}

	return &Filter{
		expression: expression,
		program:    program,
	}, nil
}

// Expression returns the original expression
func (f *Filter) Expression() string {
	return f.expression
}

// Match evaluates the filter against a fetched show
func (f *Filter) Match(result tracker.Result) (bool, error) {
	if !result.OK() {
		return false, nil
	}

	out, err := expr.Run(f.program, environment(result))
	if err != nil {
		return false, &EvaluationError{
			Expression: f.expression,
			Show:       result.Show.Name,
			Err:        err,
		}
	}

	// AsBool guarantees the type
	return out.(bool), nil
}

// Apply keeps the fetched shows matching the filter. Failed results are always
// kept so they still get reported.
func (f *Filter) Apply(results []tracker.Result) ([]tracker.Result, error) {
	kept := make([]tracker.Result, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			kept = append(kept, r)
			continue
		}

		ok, err := f.Match(r)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// environment builds the variables and helpers an expression can use
func environment(result tracker.Result) map[string]any {
	show := result.Show

	env := map[string]any{
		"Name":          show.Name,
		"ID":            show.ID,
		"Status":        string(show.Status),
		"Seasons":       show.NumberOfSeasons,
		"TrackedSeason": result.Query.Season,
		"Finished":      show.Status.IsFinished(),
		"Upcoming":      show.Status.IsUpcoming(),
		"HasNewSeason":  show.HasNewSeason(result.Query.Season),
		"HasNext":       show.NextEpisodeToAir != nil,
		"NextAirDate":   time.Time{},
		"NextEpisode":   "",
		"HasLast":       show.LastEpisodeToAir != nil,
		"LastAirDate":   time.Time{},
		"LastEpisode":   "",
	}

	if next := show.NextEpisodeToAir; next != nil {
		env["NextAirDate"] = next.AirTime()
		env["NextEpisode"] = next.Code()
	}
	if last := show.LastEpisodeToAir; last != nil {
		env["LastAirDate"] = last.AirTime()
		env["LastEpisode"] = last.Code()
	}

	addHelperFunctions(env)
	return env
}

// addHelperFunctions adds all helper functions to the provided map
func addHelperFunctions(env map[string]any) {
	// Date helpers
	env["daysUntil"] = func(t time.Time) int {
		return int(time.Until(t).Hours() / 24)
	}
	env["daysSince"] = func(t time.Time) int {
		return int(time.Since(t).Hours() / 24)
	}
	// String helpers
	env["includes"] = func(str, substr string) bool {
		return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
	}
	env["lower"] = strings.ToLower
	env["upper"] = strings.ToUpper
	env["now"] = time.Now
}
