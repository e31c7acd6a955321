package fifo

import (
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrderAndClose(t *testing.T) {
	q := New[string]()
	n, ok := q.Push("a")
	require.True(t, ok)
	assert.Equal(t, 1, n)
	n, _ = q.Push("b")
	assert.Equal(t, 2, n)

	v, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, q.Len())

	q.Close()
	q.Close()
	_, ok = q.Push("c")
	assert.False(t, ok)
	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	q := New[int]()
	got := make(chan int, 1)
	go func() {
		v, _ := q.Pop()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("pop returned before push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(7)
	select {
	case v := <-got:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake")
	}
}

func TestQueueCloseWakesPop(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Pop()
			assert.False(t, ok)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not wake every pop")
	}
}

func TestQueueProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("pops return pushes in order", prop.ForAll(
		func(items []int) bool {
			q := New[int]()
			for _, v := range items {
				q.Push(v)
			}
			for _, want := range items {
				got, ok := q.Pop()
				if !ok || got != want {
					return false
				}
			}
			return q.Len() == 0
		},
		gen.SliceOf(gen.Int()),
	))

	properties.TestingRun(t)
}
