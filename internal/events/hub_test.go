package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ayusman/playsight/internal/geometry"
)

func newTestHub(t *testing.T, buffer int) *Hub {
	return NewHub(HubConfig{BufferSize: buffer, Logger: zaptest.NewLogger(t).Sugar()})
}

func numbered(i int) CVEvent {
	return New(FingerCountDetected, "h1", 0.9, time.Unix(int64(i), 0)).With("count", i)
}

// drain reads everything currently buffered without blocking.
func drain(sub *Subscription) []CVEvent {
	var out []CVEvent
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func counts(evs []CVEvent) []int {
	out := make([]int, 0, len(evs))
	for _, ev := range evs {
		v, _ := ev.Meta("count")
		out = append(out, v.(int))
	}
	return out
}

func TestHub_DeliversInOrder(t *testing.T) {
	hub := newTestHub(t, 16)
	sub := hub.Subscribe("rps")

	for i := 1; i <= 5; i++ {
		hub.Publish(numbered(i))
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, counts(drain(sub)))
}

func TestHub_NothingAfterUnsubscribe(t *testing.T) {
	hub := newTestHub(t, 16)
	sub := hub.Subscribe("rps")

	hub.Publish(numbered(1))
	hub.Publish(numbered(2))
	got := []int{}
	got = append(got, counts(drain(sub))...)

	hub.Unsubscribe("rps")
	hub.Publish(numbered(3))

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel closed")
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, 0, hub.Len())
}

func TestHub_ReplacementDoesNotReplay(t *testing.T) {
	hub := newTestHub(t, 16)
	first := hub.Subscribe("sudoku")
	hub.Publish(numbered(1))
	hub.Publish(numbered(2))

	second := hub.Subscribe("sudoku")
	hub.Publish(numbered(3))

	assert.Equal(t, []int{1, 2}, counts(drain(first)))
	_, ok := <-first.Events()
	assert.False(t, ok, "replaced subscription is finished")

	assert.Equal(t, []int{3}, counts(drain(second)))

	// Closing the stale subscription must not remove its successor.
	first.Close()
	assert.Equal(t, 1, hub.Len())
	hub.Publish(numbered(4))
	assert.Equal(t, []int{4}, counts(drain(second)))
}

func TestHub_KindFilter(t *testing.T) {
	hub := newTestHub(t, 16)
	hands := hub.Subscribe("hands", HandDetected, HandLost)
	all := hub.Subscribe("all")

	hub.Publish(New(HandDetected, "h1", 1, time.Time{}))
	hub.Publish(New(SudokuGridDetected, "b1", 1, time.Time{}))
	hub.Publish(New(HandLost, "h1", 1, time.Time{}))

	got := drain(hands)
	require.Len(t, got, 2)
	assert.Equal(t, HandDetected, got[0].Kind)
	assert.Equal(t, HandLost, got[1].Kind)
	assert.Len(t, drain(all), 3)
}

func TestHub_StopClosesEverything(t *testing.T) {
	hub := newTestHub(t, 16)
	a := hub.Subscribe("a")
	b := hub.Subscribe("b")

	hub.Stop()
	hub.Publish(numbered(1))

	for _, sub := range []*Subscription{a, b} {
		_, ok := <-sub.Events()
		assert.False(t, ok)
	}
	assert.True(t, hub.Stopped())
	assert.Equal(t, 0, hub.Len())

	// Stopping twice ends in the same state.
	hub.Stop()
	assert.Equal(t, 0, hub.Len())

	c := hub.Subscribe("c")
	hub.Publish(numbered(2))
	assert.Empty(t, drain(c), "no publishes while stopped")

	hub.Reopen()
	hub.Publish(numbered(3))
	assert.Equal(t, []int{3}, counts(drain(c)))
}

func TestHub_FullSubscriberDropsWithoutBlocking(t *testing.T) {
	hub := newTestHub(t, 2)
	slow := hub.Subscribe("slow")
	fast := hub.Subscribe("fast")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 5; i++ {
			hub.Publish(numbered(i))
			counts(drain(fast))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	assert.Equal(t, []int{1, 2}, counts(drain(slow)))
	assert.Equal(t, uint64(3), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())
	assert.Equal(t, uint64(3), hub.Dropped())
}

func TestSubscription_AllBreakCloses(t *testing.T) {
	hub := newTestHub(t, 16)
	sub := hub.Subscribe("rps")
	for i := 1; i <= 3; i++ {
		hub.Publish(numbered(i))
	}

	var seen []int
	for ev := range sub.All() {
		v, _ := ev.Meta("count")
		seen = append(seen, v.(int))
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, 0, hub.Len())

	sub.Close()
	sub.Close()
}

func TestFinished(t *testing.T) {
	sub := Finished("chess")
	assert.Equal(t, "chess", sub.ID())

	n := 0
	for range sub.All() {
		n++
	}
	assert.Zero(t, n)
	sub.Close()
}

func TestHub_Stream(t *testing.T) {
	hub := newTestHub(t, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan int, 8)
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		first := true
		for ev := range hub.Stream(ctx, "stream", FingerCountDetected) {
			if first {
				close(started)
				first = false
			}
			v, _ := ev.Meta("count")
			got <- v.(int)
		}
	}()

	// The subscription exists once the iterator runs; publish until the
	// consumer has seen something.
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, time.Millisecond)
	hub.Publish(numbered(1))
	<-started
	hub.Publish(numbered(2))
	assert.Equal(t, 1, <-got)
	assert.Equal(t, 2, <-got)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop on cancel")
	}
	assert.Equal(t, 0, hub.Len())
}

func TestHub_ConcurrentUse(t *testing.T) {
	hub := newTestHub(t, 4)
	var wg sync.WaitGroup

	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				hub.Publish(numbered(i))
			}
		}()
	}
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			id := fmt.Sprintf("game-%d", c%2)
			for i := 0; i < 100; i++ {
				sub := hub.Subscribe(id)
				drain(sub)
				if i%3 == 0 {
					hub.Unsubscribe(id)
				} else {
					sub.Close()
				}
			}
		}(c)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			hub.Stop()
			hub.Reopen()
		}
	}()

	wg.Wait()
	hub.Stop()
	assert.Equal(t, 0, hub.Len())
}

func TestCVEvent_Immutable(t *testing.T) {
	ev := New(SudokuCellWritten, "b1", 0.8, time.Unix(5, 0)).
		At(geometry.Pt(0.4, 0.6)).
		With("row", 1).
		With("col", 2)

	md := ev.Metadata()
	md["row"] = 99
	v, _ := ev.Meta("row")
	assert.Equal(t, 1, v)

	derived := ev.With("number", 3)
	_, ok := ev.Meta("number")
	assert.False(t, ok, "With does not touch the original")
	_, ok = derived.Meta("number")
	assert.True(t, ok)

	pos, ok := ev.Position()
	require.True(t, ok)
	assert.Equal(t, geometry.Pt(0.4, 0.6), pos)

	_, ok = New(HandLost, "h", 1, time.Time{}).Position()
	assert.False(t, ok)
}

func TestCVEvent_JSON(t *testing.T) {
	ev := New(GestureDetected, "h1", 0.9, time.Unix(10, 0).UTC()).
		At(geometry.Pt(0.5, 0.25)).
		With("gesture", "rock")

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	want := map[string]any{
		"kind":       "gestureDetected",
		"entityId":   "h1",
		"confidence": 0.9,
		"position":   map[string]any{"x": 0.5, "y": 0.25},
		"metadata":   map[string]any{"gesture": "rock"},
		"timestamp":  "1970-01-01T00:00:10Z",
	}
	if diff := cmp.Diff(want, decoded); diff != "" {
		t.Errorf("event JSON mismatch (-want +got):\n%s", diff)
	}

	var back CVEvent
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ev.Kind, back.Kind)
	g, _ := back.Meta("gesture")
	assert.Equal(t, "rock", g)
}

func TestKind(t *testing.T) {
	assert.True(t, HandDetected.Valid())
	assert.False(t, Kind("bogus").Valid())
	assert.True(t, SudokuGridLost.Lifecycle())
	assert.False(t, FingerCountDetected.Lifecycle())
}
