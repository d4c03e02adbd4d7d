package backoff

import (
	"fmt"
	"testing"
	"time"

	"github.com/liquidgecka/testlib"
)

func TestBackOff_Failure(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	b := BackOff{
		Period: time.Second,
		X:      time.Millisecond,
		Max:    time.Second,
		queue:  make([]time.Time, 100),
	}

	// Add 200 items so the ring buffer wraps around.
	now := time.Now()
	for i := 0; i < 200; i++ {
		b.Failure()
	}
	for i, t := range b.queue {
		T.Equal(now.After(t), false, fmt.Sprintf("item %d", i))
	}
	T.Equal(b.length, 100)
}

func TestBackOff_Healthy(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	b := BackOff{}
	T.Equal(b.Healthy(), true)
	b.length += 1
	T.Equal(b.Healthy(), false)
}

func TestBackOff_Nil(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	var b *BackOff
	b.Failure()
	T.Equal(b.Healthy(), true)
	T.Equal(b.Wait(), time.Duration(0))
}

func TestBackOff_Wait_Allocate(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	b := BackOff{
		Period: time.Second,
		X:      time.Millisecond,
		Max:    time.Hour,
	}
	T.Equal(b.Wait(), time.Duration(0))
	T.NotEqual(b.queue, nil)
	T.Equal(len(b.queue), 1000)
}

func TestBackOff_Wait_MaxWait(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	b := BackOff{
		Period: time.Hour,
		X:      time.Second,
		Max:    time.Second,
	}
	for i := 0; i < 100; i++ {
		b.Failure()
	}
	T.Equal(b.Wait(), time.Second)
}

func TestBackOff_Wait(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	b := BackOff{
		Period: time.Second,
		X:      time.Millisecond,
		Max:    time.Hour,
		queue:  make([]time.Time, 100),
	}
	T.Equal(b.Wait(), time.Duration(0))

	// The first failure is free, so a full queue waits X * 99.
	for range b.queue {
		b.Failure()
	}
	T.Equal(b.Wait(), b.X*99)

	// Expire the oldest entry.
	b.queue[0] = time.Time{}
	T.Equal(b.Wait(), b.X*98)
	T.Equal(b.length, 99)

	// Expire half.
	for i := 0; i < 50; i++ {
		b.queue[i] = time.Time{}
	}
	T.Equal(b.Wait(), b.X*49)
	T.Equal(b.length, 50)

	// Expire everything.
	for i := 0; i < len(b.queue); i++ {
		b.queue[i] = time.Time{}
	}
	T.Equal(b.Wait(), time.Duration(0))
	T.Equal(b.length, 0)
}
