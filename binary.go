package tscore

import (
	"io"

	"github.com/icza/bitio"
)

// tryReadFull reads len(p) bytes into p from r, recording a failure on
// r's sticky TryError instead of returning it, so callers can chain a
// long sequence of reads and check the error once at the end.
func tryReadFull(r *bitio.CountReader, p []byte) {
	if r.TryError == nil {
		_, r.TryError = io.ReadFull(r, p)
	}
}
