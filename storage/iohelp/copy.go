package iohelp

import (
	"io"
	"sync"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 32*1024)
		return &b
	},
}

// Like io.CopyBuffer except the reader's error and the writer's error are
// returned separately so that callers can tell a failed download (source)
// from a failed archive write (dest).
func CopyBuffer(
	dest io.Writer,
	source io.Reader,
	buff []byte,
) (
	written int64,
	desterr error,
	sourceerr error,
) {
	for {
		rn, rerr := source.Read(buff)
		if rn > 0 {
			wn, werr := dest.Write(buff[0:rn])
			written += int64(wn)
			if werr != nil {
				return written, werr, nil
			} else if wn != rn {
				return written, io.ErrShortWrite, nil
			}
		}
		if rerr == io.EOF {
			return written, nil, nil
		} else if rerr != nil {
			return written, nil, rerr
		}
	}
}

// CopyBuffer using a pooled 32KiB buffer.
func Copy(dest io.Writer, source io.Reader) (int64, error, error) {
	bp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bp)
	return CopyBuffer(dest, source, *bp)
}
