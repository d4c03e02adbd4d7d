package report

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/liquidgecka/testlib"
)

func TestStatus_String(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	T.Equal(Success.String(), "success")
	T.Equal(Skipped.String(), "skipped")
	T.Equal(Failed.String(), "failed")
	T.Equal(Fatal.String(), "fatal")
	T.Equal(Status(99).String(), "unknown")
}

func TestSummary(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	s := NewSummary("package")
	T.ExpectSuccess(s.Err())

	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Add(Result{
				Unit:   fmt.Sprintf("s%d", i),
				Status: Success,
				Files:  3,
			})
		}(i)
	}
	wg.Wait()
	s.Add(Result{Unit: "done", Status: Skipped, Reason: "already archived"})
	s.Add(Result{
		Unit:    "bad",
		Status:  Failed,
		Err:     fmt.Errorf("EXPECTED"),
		Files:   1,
		Missing: []string{"a.dcm"},
	})
	s.Add(Result{Unit: "worse", Status: Fatal, Reason: "no reason"})

	T.Equal(s.Len(), 13)
	T.Equal(s.Count(Success), 10)
	T.Equal(s.Count(Skipped), 1)
	T.Equal(s.Count(Failed), 1)
	T.Equal(s.Count(Fatal), 1)
	T.Equal(s.Count(Status(-1)), 0)
	T.Equal(s.Fatal(), true)
	T.Equal(len(s.Results()), 13)
	T.Equal(
		s.Err().Error(),
		"package failed: bad: EXPECTED, worse: no reason")

	buffer := bytes.Buffer{}
	l := slog.New(slog.NewTextHandler(&buffer, nil))
	s.Log(context.Background(), l)
	out := buffer.String()
	T.Equal(strings.Count(out, "msg=\"Unit failed.\""), 2)
	T.Equal(strings.Contains(out, "level=WARN msg=\"Stage complete.\""), true)
	T.Equal(strings.Contains(out, "success=10 skipped=1 failed=1 fatal=1 files=31 missing=1"), true)
}
