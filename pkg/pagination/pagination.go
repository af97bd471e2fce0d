package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 50
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=. A limit may shrink the page but
// never grow it past MaxLimit; missing or invalid values fall back to
// DefaultLimit and zero.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam("limit"), c.QueryParam("offset"))
}

// Parse is FromContext for raw query values.
func Parse(limitParam, offsetParam string) Params {
	limit, _ := strconv.Atoi(limitParam)
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(offsetParam)
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}
