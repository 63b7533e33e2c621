package guarded_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quii/guardedcounter/sync/guarded"
)

func TestValue(t *testing.T) {
	t.Parallel()

	t.Run("with mutates in place", func(t *testing.T) {
		t.Parallel()

		v := guarded.New("Lucifer")
		err := v.With(context.Background(), func(s *string) error {
			*s += " How are you?"

			return nil
		})
		require.NoError(t, err)

		got, err := v.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Lucifer How are you?", got)
	})

	t.Run("same value serializes access", func(t *testing.T) {
		t.Parallel()

		v := guarded.New(0)

		const n = 100

		var wg sync.WaitGroup
		wg.Add(n)

		for range n {
			go func() {
				defer wg.Done()

				err := v.With(context.Background(), func(i *int) error {
					*i++

					return nil
				})
				assert.NoError(t, err)
			}()
		}

		wg.Wait()

		got, err := v.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, n, got)
	})

	t.Run("lock is released when fn panics", func(t *testing.T) {
		t.Parallel()

		v := guarded.New(1)

		assert.Panics(t, func() {
			_ = v.With(context.Background(), func(_ *int) error {
				panic("boom")
			})
		})

		g, ok := v.TryAcquire()
		require.True(t, ok, "lock should be free after a panic")
		g.Release()
	})

	t.Run("lock is released when fn errors", func(t *testing.T) {
		t.Parallel()

		v := guarded.New(1)
		sentinel := errors.New("nope")

		err := v.With(context.Background(), func(_ *int) error { return sentinel })
		require.ErrorIs(t, err, sentinel)

		g, ok := v.TryAcquire()
		require.True(t, ok)
		g.Release()
	})
}

func TestValue_Update(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fn   func(v *int) error
		want int
		err  bool
	}{
		"commits on success": {
			fn: func(v *int) error {
				*v += 2

				return nil
			},
			want: 7,
		},
		"discards on error": {
			fn: func(v *int) error {
				*v += 2

				return errors.New("rejected")
			},
			want: 5,
			err:  true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			v := guarded.New(5)

			err := v.Update(context.Background(), tc.fn)
			if tc.err {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			got, err := v.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("discards on panic", func(t *testing.T) {
		t.Parallel()

		v := guarded.New(5)

		assert.Panics(t, func() {
			_ = v.Update(context.Background(), func(v *int) error {
				*v = 100

				panic("mid-write")
			})
		})

		got, err := v.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, got)
	})
}

func TestValue_Acquire(t *testing.T) {
	t.Parallel()

	t.Run("blocks while held", func(t *testing.T) {
		t.Parallel()

		v := guarded.New(0)

		g, err := v.Acquire(context.Background())
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err = v.Acquire(ctx)
		require.ErrorIs(t, err, guarded.ErrAcquire)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		g.Release()

		g2, err := v.Acquire(context.Background())
		require.NoError(t, err)
		g2.Release()
	})

	t.Run("waiter proceeds after release", func(t *testing.T) {
		t.Parallel()

		v := guarded.New(0)

		g, err := v.Acquire(context.Background())
		require.NoError(t, err)

		acquired := make(chan struct{})
		go func() {
			defer close(acquired)

			g2, err := v.Acquire(context.Background())
			assert.NoError(t, err)
			g2.Set(g2.Get() + 1)
			g2.Release()
		}()

		select {
		case <-acquired:
			t.Fatal("acquired while another guard held the lock")
		case <-time.After(20 * time.Millisecond):
		}

		g.Set(41)
		g.Release()

		<-acquired

		got, err := v.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		t.Parallel()

		v := guarded.New(0)

		g, err := v.Acquire(context.Background())
		require.NoError(t, err)
		g.Release()
		g.Release()

		g2, ok := v.TryAcquire()
		require.True(t, ok)

		_, ok = v.TryAcquire()
		assert.False(t, ok, "a double release must not free a second slot")

		g2.Release()
	})

	t.Run("use after release panics", func(t *testing.T) {
		t.Parallel()

		v := guarded.New(0)

		g, err := v.Acquire(context.Background())
		require.NoError(t, err)
		g.Release()

		assert.PanicsWithValue(t, guarded.ErrReleased, func() { g.Set(1) })
		assert.PanicsWithValue(t, guarded.ErrReleased, func() { _ = g.Get() })
	})
}

func TestValue_ScopedWriters(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		v := guarded.New("Lucifer")

		var wg sync.WaitGroup
		wg.Go(func() {
			time.Sleep(2 * time.Second)

			assert.NoError(t, v.With(context.Background(), func(s *string) error {
				*s += " How are you?"

				return nil
			}))
		})
		wg.Go(func() {
			assert.NoError(t, v.With(context.Background(), func(s *string) error {
				*s += ". I'm fine"

				return nil
			}))
		})
		wg.Wait()

		got, err := v.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Lucifer. I'm fine How are you?", got)
	})
}

func TestValue_ScopedGuard(t *testing.T) {
	t.Parallel()

	v := guarded.New(5)

	func() {
		g, err := v.Acquire(context.Background())
		require.NoError(t, err)
		defer g.Release()

		assert.Equal(t, 5, g.Get())
		g.Set(6)
	}()

	got, err := v.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, got)
}
