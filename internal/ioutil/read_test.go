package ioutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLimited(t *testing.T) {
	t.Run("reads content up to limit", func(t *testing.T) {
		body, err := ReadLimited(strings.NewReader("hello world"), 1024)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(body))
	})

	t.Run("exactly at limit", func(t *testing.T) {
		body, err := ReadLimited(strings.NewReader("hello"), 5)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	})

	t.Run("over limit", func(t *testing.T) {
		_, err := ReadLimited(strings.NewReader("hello world"), 5)
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("empty reader", func(t *testing.T) {
		body, err := ReadLimited(strings.NewReader(""), 1024)
		require.NoError(t, err)
		assert.Empty(t, body)
	})

	t.Run("read error is returned", func(t *testing.T) {
		_, err := ReadLimited(&failingReader{err: fmt.Errorf("connection reset")}, 1024)
		assert.EqualError(t, err, "connection reset")
	})
}

type failingReader struct {
	err error
}

func (r *failingReader) Read(_ []byte) (int, error) {
	return 0, r.err
}
