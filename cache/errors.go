package cache

import (
	"github.com/cockroachdb/errors"
)

// ErrInvalidConfiguration is matched (with errors.Is) by every error caused by
// bad input rather than by the store: a Config that cannot work, an empty key
// or nil value, or an absolute expiration that is not in the future.
//
// Store failures are returned exactly as the driver reported them, and a key
// that is missing or expired is not an error at all.
var ErrInvalidConfiguration = errors.New("invalid configuration")

func invalidf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidConfiguration)
}
