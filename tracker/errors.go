package tracker

import "errors"

// ErrNoIdentifier is returned for a query with neither a name nor an id
var ErrNoIdentifier = errors.New("show has neither a name nor an id")
