package audio

import (
	"bytes"
	"iter"
)

// Collect drains a chunk sequence into one contiguous buffer in arrival
// order. Iteration stops at the first error, which is returned together with
// the bytes received so far.
func Collect(chunks iter.Seq2[[]byte, error]) ([]byte, error) {
	var buf bytes.Buffer
	for chunk, err := range chunks {
		if err != nil {
			return buf.Bytes(), err
		}
		buf.Write(chunk)
	}
	return buf.Bytes(), nil
}
