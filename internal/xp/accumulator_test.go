package xp

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulator_Basics(t *testing.T) {
	a := NewAccumulator()
	assert.True(t, a.Empty())

	a.Add("Go", 1)
	a.Add("Go", 2)
	a.Add("Rust", 5)
	assert.False(t, a.Empty())
	assert.Equal(t, uint32(8), a.Total())

	snap := a.SnapshotAndClear()
	assert.Equal(t, map[string]uint32{"Go": 3, "Rust": 5}, snap)
	assert.True(t, a.Empty())
	assert.Equal(t, uint32(0), a.Total())
}

func TestAccumulator_IgnoresEmptyAndZero(t *testing.T) {
	a := NewAccumulator()
	a.Add("", 10)
	a.Add("Go", 0)
	assert.True(t, a.Empty())
}

func TestAccumulator_SnapshotDoesNotClear(t *testing.T) {
	a := NewAccumulator()
	a.Add("Go", 2)

	snap := a.Snapshot()
	assert.Equal(t, map[string]uint32{"Go": 2}, snap)
	assert.False(t, a.Empty())

	// The returned copy is detached from the live store.
	snap["Go"] = 99
	assert.Equal(t, uint32(2), a.Total())
}

func TestAccumulator_ConcurrentAdds(t *testing.T) {
	a := NewAccumulator()
	const goroutines = 20
	const perG = 1000
	langs := []string{"Go", "Rust", "Plain text"}

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		lang := langs[i%len(langs)]
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				a.Add(lang, 1)
			}
		}()
	}
	wg.Wait()

	var total uint32
	for _, n := range a.SnapshotAndClear() {
		total += n
	}
	assert.Equal(t, uint32(goroutines*perG), total)
}

func TestAccumulator_NoIncrementLostAcrossSnapshots(t *testing.T) {
	a := NewAccumulator()
	const goroutines = 8
	const perG = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				a.Add("Go", 1)
			}
		}()
	}

	// Snapshot-and-clear repeatedly while producers are running; every
	// increment must land in exactly one snapshot.
	var collected uint32
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			collected += a.SnapshotAndClear()["Go"]
			require.Equal(t, uint32(goroutines*perG), collected)
			return
		default:
			collected += a.SnapshotAndClear()["Go"]
		}
	}
}
