// Package pagination parses the page_size/page_token listing parameters and
// provides the opaque cursor codec the Firestore repositories feed them with.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultMaxPageSize caps page sizes when the caller does not set its own cap.
const DefaultMaxPageSize = 200

// ErrInvalidPageSize is returned for page_size values that are not
// non-negative integers.
var ErrInvalidPageSize = errors.New("pagination: invalid page_size")

// Params carries the listing window requested by the client. A zero PageSize
// means the repository default applies; the token is opaque to callers.
type Params struct {
	PageSize  int
	PageToken string
}

// Options adjust parsing per endpoint.
type Options struct {
	MaxPageSize int
}

// FromRequest parses the listing parameters from the request query string.
func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse consumes query values and returns the normalised Params. Oversized
// page sizes are clamped rather than rejected.
func Parse(values url.Values, opts Options) (Params, error) {
	if values == nil {
		values = url.Values{}
	}

	params := Params{PageToken: strings.TrimSpace(values.Get("page_token"))}

	raw := strings.TrimSpace(values.Get("page_size"))
	if raw == "" {
		return params, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size < 0 {
		return Params{}, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
	}

	maxPageSize := opts.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	params.PageSize = size
	return params, nil
}
