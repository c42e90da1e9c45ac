package ioutil

import (
	"fmt"
	"io"
)

// ReadLimited reads up to limit bytes from r. Anything past limit is drained
// and discarded so the underlying connection can be reused.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, err
	}
	_, _ = io.Copy(io.Discard, r)
	return body, nil
}

// Describe renders a response body for logs, never failing: unreadable
// bodies are described instead of silenced.
func Describe(r io.Reader, limit int64) string {
	body, err := ReadLimited(r, limit)
	if err != nil {
		return fmt.Sprintf("<unreadable: %v>", err)
	}
	return string(body)
}
