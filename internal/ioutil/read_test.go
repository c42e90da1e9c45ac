package ioutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestReadLimited(t *testing.T) {
	body, err := ReadLimited(strings.NewReader("hello world"), 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	body, err = ReadLimited(strings.NewReader("hi"), 5)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(body))

	_, err = ReadLimited(failingReader{}, 5)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "abc", Describe(strings.NewReader("abcdef"), 3))
	assert.Equal(t, "<unreadable: connection reset>", Describe(failingReader{}, 3))
}
