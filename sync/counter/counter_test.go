package counter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ICounter = (*Counter)(nil)
	_ ICounter = (*AtomicCounter)(nil)
)

func TestCounter(t *testing.T) {
	t.Run("incrementing the counter 3 times leaves it at 3", func(t *testing.T) {
		counter := New(0)
		counter.Inc()
		counter.Inc()
		counter.Inc()

		assertCounter(t, counter, 3)
	})

	t.Run("it starts from the initial value", func(t *testing.T) {
		counter := New(5)

		assertCounter(t, counter, 5)
	})

	t.Run("it runs safely concurrently", func(t *testing.T) {
		wantedCount := 1000
		counter := New(0)

		var wg sync.WaitGroup
		wg.Add(wantedCount)

		for i := 0; i < wantedCount; i++ {
			go func() {
				counter.Inc()
				wg.Done()
			}()
		}
		wg.Wait()

		assertCounter(t, counter, wantedCount)
	})

	t.Run("it runs safely concurrently by Atomic", func(t *testing.T) {
		wantedCount := 1000
		counter := &AtomicCounter{}

		var wg sync.WaitGroup
		wg.Add(wantedCount)

		for i := 0; i < wantedCount; i++ {
			go func() {
				counter.Inc()
				wg.Done()
			}()
		}
		wg.Wait()

		assertCounter(t, counter, wantedCount)
	})

	t.Run("atomic counter decrements", func(t *testing.T) {
		counter := &AtomicCounter{}
		counter.Inc()
		counter.Inc()
		counter.Dec()

		assertCounter(t, counter, 1)
	})
}

func TestCounter_Update(t *testing.T) {
	t.Run("failed update leaves the value untouched", func(t *testing.T) {
		counter := New(10)

		err := counter.Update(context.Background(), func(v *int64) error {
			*v = -1

			return errors.New("abort")
		})
		require.Error(t, err)

		assertCounter(t, counter, 10)
	})

	t.Run("readers never observe a partial write", func(t *testing.T) {
		// Each update writes the value in two steps; a reader must only
		// ever see even numbers.
		counter := New(0)

		const writers = 50

		var wg sync.WaitGroup
		wg.Add(writers)

		for range writers {
			go func() {
				defer wg.Done()

				err := counter.Update(context.Background(), func(v *int64) error {
					*v++
					time.Sleep(time.Microsecond)
					*v++

					return nil
				})
				assert.NoError(t, err)
			}()
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		for {
			got := counter.Value()
			assert.Zero(t, got%2, "observed odd value %d", got)

			select {
			case <-done:
				assertCounter(t, counter, 2*writers)

				return
			default:
			}
		}
	})
}

func TestCounter_Acquire(t *testing.T) {
	counter := New(0)

	g, err := counter.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err = counter.Add(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	g.Set(g.Get() + 1)
	g.Release()

	got, err := counter.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func assertCounter(t testing.TB, got ICounter, want int) {
	t.Helper()
	if got.Value() != int64(want) {
		t.Errorf("got %d, want %d", got.Value(), want)
	}
}
