package errors

import (
	goerrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/liquidgecka/testlib"
)

func TestMultipleError(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	errs := make([]error, 3)
	for i := range errs {
		errs[i] = fmt.Errorf("series %d", i)
	}
	err := NewMultipleError("3 series failed", errs)
	T.NotEqual(err, nil)
	T.Equal(err.Error(), "3 series failed: series 0, series 1, series 2")

	// The caller's slice can be reused without changing the error.
	errs[0] = io.EOF
	T.Equal(err.Error(), "3 series failed: series 0, series 1, series 2")
}

func TestMultipleError_Empty(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	T.Equal(NewMultipleError("nothing", nil), nil)
}

func TestMultipleError_Unwrap(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	err := NewMultipleError("failed", []error{
		fmt.Errorf("fetch: %w", io.ErrUnexpectedEOF),
		io.EOF,
	})
	T.Equal(goerrors.Is(err, io.EOF), true)
	T.Equal(goerrors.Is(err, io.ErrUnexpectedEOF), true)
	T.Equal(goerrors.Is(err, io.ErrShortWrite), false)
}
