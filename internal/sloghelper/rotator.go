package sloghelper

import (
	"bufio"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// An io.Writer for log handlers that writes to a file which can be reopened
// on demand (SIGHUP). This does not move the underlying file; something like
// logrotate is expected to do that.
type Rotator struct {
	// The file name that is re-opened when rotation happens.
	fileName string

	// The current file descriptor and the buffered writer on top of it.
	fd     *os.File
	buffer *bufio.Writer

	// Protects fd and buffer; held during every write so that concurrent
	// handlers do not interleave lines.
	lock sync.Mutex
}

func NewRotator(file string) (*Rotator, error) {
	r := &Rotator{
		fileName: file,
	}
	if err := r.Rotate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Opens the file on disk, swapping it in for the previous one. Errors
// flushing or closing the old file are returned after the swap has
// happened, so logging continues either way.
func (r *Rotator) Rotate() error {
	newfd, err := os.OpenFile(
		r.fileName,
		os.O_WRONLY|os.O_CREATE|os.O_APPEND,
		0644)
	if err != nil {
		return errors.Wrapf(err, "opening log file %s", r.fileName)
	}
	newbuffer := bufio.NewWriter(newfd)
	r.lock.Lock()
	oldfd, oldbuffer := r.fd, r.buffer
	r.fd, r.buffer = newfd, newbuffer
	r.lock.Unlock()

	if oldbuffer != nil {
		if err := oldbuffer.Flush(); err != nil {
			oldfd.Close()
			return errors.Wrap(err, "rotation succeeded but flushing the old log failed")
		}
	}
	if oldfd != nil {
		if err := oldfd.Close(); err != nil {
			return errors.Wrap(err, "rotation succeeded but closing the old log failed")
		}
	}
	return nil
}

// Writes a single log record. Handlers emit one record per Write call so
// the buffer is flushed every time to keep the file current.
func (r *Rotator) Write(data []byte) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	n, err := r.buffer.Write(data)
	if err != nil {
		return n, err
	}
	return n, r.buffer.Flush()
}

// Flushes and closes the current file.
func (r *Rotator) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if err := r.buffer.Flush(); err != nil {
		r.fd.Close()
		return err
	}
	return r.fd.Close()
}
