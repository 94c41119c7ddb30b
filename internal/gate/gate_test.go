package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopRunsInline(t *testing.T) {
	ran := false
	err := Nop{}.Run(context.Background(), func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestFIFOReturnsFnError(t *testing.T) {
	g := NewFIFO(1)
	boom := errors.New("boom")
	err := g.Run(context.Background(), func() error { return boom })
	assert.Equal(t, boom, err)
}

func TestFIFOSerializesSingleSlot(t *testing.T) {
	g := NewFIFO(1)

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Run(context.Background(), func() error {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight)
}

func TestFIFOAdmitsInSubmissionOrder(t *testing.T) {
	g := NewFIFO(1)

	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = g.Run(context.Background(), func() error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		queued := make(chan struct{})
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			close(queued)
			_ = g.Run(context.Background(), func() error {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return nil
			})
		}(i)
		// Wait for goroutine n to be queued before submitting n+1 so
		// submission order is deterministic.
		<-queued
		time.Sleep(5 * time.Millisecond)
	}

	close(release)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFIFOHonorsConcurrencyN(t *testing.T) {
	g := NewFIFO(3)

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Run(context.Background(), func() error {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()

				time.Sleep(2 * time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxInFlight, 3)
	assert.Greater(t, maxInFlight, 1)
}

func TestFIFOCancelWhileQueued(t *testing.T) {
	g := NewFIFO(1)

	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = g.Run(context.Background(), func() error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan error, 1)
	go func() {
		got <- g.Run(ctx, func() error { return nil })
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-got:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	// The gate must still be usable after the abandoned wait.
	close(release)
	err := g.Run(context.Background(), func() error { return nil })
	assert.NoError(t, err)
}

func TestFIFOAdmittedCallIgnoresCancel(t *testing.T) {
	g := NewFIFO(1)
	ctx, cancel := context.WithCancel(context.Background())

	ran := false
	err := g.Run(ctx, func() error {
		cancel()
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}
