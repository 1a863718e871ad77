package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffer_Latest(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		add      []int
		n        int
		want     []int
	}{
		{name: "empty", capacity: 3, add: nil, n: 2, want: []int{}},
		{name: "fewer than n", capacity: 5, add: []int{1, 2, 3}, n: 10, want: []int{3, 2, 1}},
		{name: "exactly n", capacity: 5, add: []int{1, 2, 3}, n: 3, want: []int{3, 2, 1}},
		{name: "limited", capacity: 5, add: []int{1, 2, 3}, n: 2, want: []int{3, 2}},
		{name: "evicted", capacity: 3, add: []int{1, 2, 3, 4, 5}, n: 5, want: []int{5, 4, 3}},
		{name: "negative n", capacity: 3, add: []int{1}, n: -1, want: []int{}},
		{name: "duplicates kept", capacity: 3, add: []int{7, 7}, n: 3, want: []int{7, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New[int](tt.capacity)
			for _, v := range tt.add {
				b.Add(v)
			}
			assert.Equal(t, tt.want, b.Latest(tt.n))
			assert.LessOrEqual(t, b.Len(), b.Cap())
		})
	}
}

func TestBuffer_newestFirstProperty(t *testing.T) {
	for k := 0; k <= 10; k++ {
		b := New[int](10)
		want := make([]int, 0, k)
		for i := range k {
			b.Add(i)
			want = append([]int{i}, want...)
		}
		for n := k; n <= k+3; n++ {
			assert.Equal(t, want, b.Latest(n), "k=%d n=%d", k, n)
		}
	}
}

func TestBuffer_AllAndClear(t *testing.T) {
	b := New[string](2)
	b.Add("a")
	b.Add("b")
	b.Add("c")
	assert.Equal(t, []string{"b", "c"}, b.All())

	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.All())
	b.Add("d")
	assert.Equal(t, []string{"d"}, b.Latest(5))
}

func TestNew_defaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New[int](0).Cap())
	assert.Equal(t, 7, New[int](7, WithMetrics[int]("test")).Cap())
}

func TestBuffer_concurrent(t *testing.T) {
	b := New[int](50)
	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				b.Add(w*1000 + i)
				_ = b.Latest(5)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, b.Len())
}
