package ioutil

import (
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned when a body exceeds the read limit.
var ErrTooLarge = errors.New("body exceeds size limit")

// ReadLimited reads all of r, failing with ErrTooLarge once more than limit
// bytes arrive. Truncated JSON would otherwise surface as a confusing decode
// error.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	return body, nil
}
