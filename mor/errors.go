package mor

import (
	"fmt"

	"github.com/pkg/errors"
)

// FormatError reports a container stream that can't be parsed: bad magic byte,
// unknown block tag, inconsistent lengths or truncated data.
type FormatError struct {
	// Offset is the position in the stream where parsing failed
	Offset int64
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("mor: malformed container at offset %d: %s", e.Offset, e.Reason)
}

func formatErrorf(offset int64, format string, args ...any) *FormatError {
	return &FormatError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// IsFormatError reports whether err or anything it wraps is *FormatError
func IsFormatError(err error) bool {
	var formatErr *FormatError
	return errors.As(err, &formatErr)
}
