package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "github.com/Azelphur/Monord/pkg/logx"
)

type fakeSource struct {
	mu    sync.Mutex
	items []Item
	fired []int64
	// nextErr is returned once from Next, then cleared.
	nextErr error
	// fireErr fails every Fire for the item with this id.
	fireErrID int64
	fireErr   error
	firedCh   chan int64
}

func newFakeSource() *fakeSource {
	return &fakeSource{firedCh: make(chan int64, 16)}
}

func (f *fakeSource) add(id int64, at time.Time) {
	f.mu.Lock()
	f.items = append(f.items, Item{ID: id, At: at})
	f.mu.Unlock()
}

func (f *fakeSource) Next(ctx context.Context) (*Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nextErr != nil {
		err := f.nextErr
		f.nextErr = nil
		return nil, err
	}
	var best *Item
	for i := range f.items {
		if best == nil || f.items[i].At.Before(best.At) {
			best = &f.items[i]
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (f *fakeSource) Fire(ctx context.Context, item Item) error {
	f.mu.Lock()
	if f.fireErr != nil && item.ID == f.fireErrID {
		err := f.fireErr
		f.mu.Unlock()
		return err
	}
	for i := range f.items {
		if f.items[i].ID == item.ID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			break
		}
	}
	f.fired = append(f.fired, item.ID)
	f.mu.Unlock()
	f.firedCh <- item.ID
	return nil
}

func waitFired(t *testing.T, ch <-chan int64, want int64) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("fired %d, want %d", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for item %d to fire", want)
	}
}

func TestSchedulerFiresDueItem(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.add(1, time.Now().Add(-time.Second))

	s := New("test", src, Config{Poll: 10 * time.Millisecond, Retry: 10 * time.Millisecond}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFired(t, src.firedCh, 1)
}

func TestSchedulerParksUntilArmed(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	s := New("test", src, Config{Poll: 10 * time.Millisecond, Retry: 10 * time.Millisecond}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	// Empty queue: nothing should fire.
	select {
	case id := <-src.firedCh:
		t.Fatalf("unexpected fire of %d on empty queue", id)
	case <-time.After(50 * time.Millisecond):
	}

	src.add(2, time.Now())
	s.Arm()
	waitFired(t, src.firedCh, 2)
}

func TestSchedulerArmSurfacesEarlierDeadline(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.add(1, time.Now().Add(time.Hour))

	s := New("test", src, Config{Poll: 20 * time.Millisecond, Retry: 10 * time.Millisecond}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	src.add(2, time.Now())
	s.Arm()

	waitFired(t, src.firedCh, 2)
}

func TestSchedulerArmSingleFlight(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	s := New("test", src, Config{Poll: 10 * time.Millisecond, Retry: 10 * time.Millisecond}, logx.Nop())

	// Not started: repeated arms must not block.
	for i := 0; i < 100; i++ {
		s.Arm()
	}

	src.add(3, time.Now())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFired(t, src.firedCh, 3)
}

func TestSchedulerSurvivesNextError(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.nextErr = errors.New("db locked")
	src.add(4, time.Now())

	s := New("test", src, Config{Poll: 10 * time.Millisecond, Retry: 5 * time.Millisecond}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	waitFired(t, src.firedCh, 4)
}

func TestSchedulerRetriesFireError(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.add(5, time.Now())
	src.fireErrID = 5
	src.fireErr = errors.New("send failed")

	s := New("test", src, Config{Poll: 5 * time.Millisecond, Retry: 5 * time.Millisecond}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	// Let it fail at least once, then clear the fault.
	time.Sleep(25 * time.Millisecond)
	src.mu.Lock()
	src.fireErr = nil
	src.mu.Unlock()

	waitFired(t, src.firedCh, 5)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	s := New("test", src, Config{}, logx.Nop())
	s.Start(context.Background())
	s.Stop(context.Background())
	s.Stop(context.Background())

	// Restart works after a stop.
	src.add(6, time.Now())
	s.Start(context.Background())
	defer s.Stop(context.Background())
	waitFired(t, src.firedCh, 6)
}
