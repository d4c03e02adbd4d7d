package tracing

import (
	"testing"
	"time"

	"github.com/liquidgecka/testlib"
)

// Pins a trace to exactly 1ms.
func fix(t *Trace) *Trace {
	t.end = t.start.Add(time.Millisecond)
	return t
}

func TestTrace_String(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	expected := `series 1ms
+-fetch: 1ms
| +-get: 1ms
| | \-retry: 1ms
| \-zip: 1ms
\-upload: 1ms
`
	top := fix(New("series"))
	fetch := fix(top.NewChild("fetch"))
	get := fix(fetch.NewChild("get"))
	fix(get.NewChild("retry"))
	fix(fetch.NewChild("zip"))
	fix(top.NewChild("upload"))
	T.Equal(top.String(), expected)
}

func TestTrace_Total(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	top := fix(New("series"))
	fix(top.NewChild("fetch"))
	fix(top.NewChild("fetch"))
	fix(top.NewChild("upload"))
	T.Equal(top.Total("fetch"), 2*time.Millisecond)
	T.Equal(top.Total("upload"), time.Millisecond)
	T.Equal(top.Total("missing"), time.Duration(0))
}

func TestTrace_Nil(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	var top *Trace
	c := top.NewChild("fetch")
	c.End()
	T.Equal(c == nil, true)
	T.Equal(top.String(), "")
	T.Equal(top.Duration(), time.Duration(0))
	T.Equal(top.Total("fetch"), time.Duration(0))
}
