package quotes

import (
	"errors"
	"fmt"
)

// ErrNoData is returned when the upstream answers without the expected data array.
var ErrNoData = errors.New("no data received from NSE")

// ValidationError reports a bad request parameter. It is raised before any
// upstream call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}
