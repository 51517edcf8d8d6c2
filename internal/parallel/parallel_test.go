package parallel

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// cover runs cfg.Range and returns how often each index was visited and the
// chunks it was split into.
func cover(cfg Config, n int) ([]int, [][2]int) {
	visits := make([]int, n)
	var (
		mu     sync.Mutex
		chunks [][2]int
	)
	cfg.Range(n, func(start, end int) {
		mu.Lock()
		chunks = append(chunks, [2]int{start, end})
		mu.Unlock()
		for i := start; i < end; i++ {
			visits[i]++
		}
	})
	return visits, chunks
}

func TestRange_VisitsEveryIndexOnce(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), Sequential(), {Workers: 3, MinChunk: 1}, {Workers: 16, MinChunk: 5}} {
		visits, _ := cover(cfg, 1000)
		for i, v := range visits {
			if !assert.Equal(t, 1, v, "index %d with %+v", i, cfg) {
				break
			}
		}
	}
}

func TestRange_SmallLoopsRunInline(t *testing.T) {
	_, chunks := cover(Config{Workers: 8, MinChunk: 64}, 100)
	assert.Equal(t, [][2]int{{0, 100}}, chunks)

	_, chunks = cover(Sequential(), 5000)
	assert.Equal(t, [][2]int{{0, 5000}}, chunks)

	_, chunks = cover(DefaultConfig(), 0)
	assert.Empty(t, chunks)
}

func TestRange_RespectsMinChunk(t *testing.T) {
	_, chunks := cover(Config{Workers: 4, MinChunk: 1}.WithMinChunk(30), 100)
	for _, c := range chunks {
		if c[1] != 100 {
			assert.GreaterOrEqual(t, c[1]-c[0], 30)
		}
	}
	assert.Len(t, chunks, 4)
}
