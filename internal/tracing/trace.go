package tracing

import (
	"strings"
	"time"
)

// Records how long one unit of work and each of its steps took. Traces are
// built by a single goroutine; a nil *Trace is valid and records nothing so
// that callers can disable tracing by passing nil.
type Trace struct {
	name  string
	start time.Time
	end   time.Time

	// Children in the order they were started.
	children []*Trace
}

func New(name string) *Trace {
	return &Trace{
		name:  name,
		start: time.Now(),
	}
}

// Starts a step below this trace.
func (t *Trace) NewChild(name string) *Trace {
	if t == nil {
		return nil
	}
	c := New(name)
	t.children = append(t.children, c)
	return c
}

func (t *Trace) End() {
	if t != nil {
		t.end = time.Now()
	}
}

// Returns the elapsed time, or the time so far if End has not been called.
func (t *Trace) Duration() time.Duration {
	if t == nil {
		return 0
	} else if t.end.IsZero() {
		return time.Since(t.start)
	}
	return t.end.Sub(t.start)
}

// Sums the durations of every direct child with the given name.
func (t *Trace) Total(name string) (d time.Duration) {
	if t == nil {
		return 0
	}
	for _, c := range t.children {
		if c.name == name {
			d += c.Duration()
		}
	}
	return d
}

// Renders the trace as an ascii tree, one step per line:
//
//	series 12ms
//	+-fetch: 3ms
//	\-upload: 9ms
func (t *Trace) String() string {
	if t == nil {
		return ""
	}
	s := strings.Builder{}
	s.WriteString(t.name)
	s.WriteByte(' ')
	s.WriteString(t.Duration().String())
	s.WriteByte('\n')
	t.render(&s, "")
	return s.String()
}

func (t *Trace) render(s *strings.Builder, indent string) {
	for i, c := range t.children {
		last := i == len(t.children)-1
		s.WriteString(indent)
		if last {
			s.WriteString(`\-`)
		} else {
			s.WriteString(`+-`)
		}
		s.WriteString(c.name)
		s.WriteString(": ")
		s.WriteString(c.Duration().String())
		s.WriteByte('\n')
		if last {
			c.render(s, indent+"  ")
		} else {
			c.render(s, indent+"| ")
		}
	}
}
