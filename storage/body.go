package storage

import "io"

// Reads an S3 response body that advertised a Content-Length. Reads stop
// at the advertised length. A body that ends early or has data beyond it
// fails with ErrInvalidLength.
type boundedBody struct {
	body io.ReadCloser

	// The advertised length and the bytes still expected.
	size   int64
	remain int64
}

func newBoundedBody(body io.ReadCloser, size int64) *boundedBody {
	return &boundedBody{body: body, size: size, remain: size}
}

func (b *boundedBody) Close() error {
	return b.body.Close()
}

func (b *boundedBody) Read(p []byte) (int, error) {
	if b.remain <= 0 {
		var extra [1]byte
		n, err := b.body.Read(extra[:])
		if n > 0 {
			return 0, ErrInvalidLength{Expected: b.size, Got: b.size + int64(n)}
		} else if err != nil && err != io.EOF {
			return 0, err
		}
		return 0, io.EOF
	}
	if int64(len(p)) > b.remain {
		p = p[:b.remain]
	}
	n, err := b.body.Read(p)
	b.remain -= int64(n)
	if err == io.EOF && b.remain > 0 {
		return n, ErrInvalidLength{Expected: b.size, Got: b.size - b.remain}
	}
	return n, err
}
