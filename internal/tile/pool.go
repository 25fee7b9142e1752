package tile

import (
	"reflect"
	"sync"

	"github.com/xpusim/xpusim/internal/matrix"
)

// Vector buffers handed across channel boundaries are pooled, bucketed by
// (element type, link capacity): every payload a given mesh moves is
// exactly one link_cap vector, so that pair is the natural bucket key.
var (
	poolMu sync.Mutex
	pools  = map[poolKey]*sync.Pool{}
)

type poolKey struct {
	elem reflect.Type
	size int
}

func getPool[E matrix.Scalar](size int) *sync.Pool {
	var zero E
	key := poolKey{elem: reflect.TypeOf(zero), size: size}

	poolMu.Lock()
	p, ok := pools[key]
	if !ok {
		p = &sync.Pool{New: func() any {
			b := make([]E, size)
			return &b
		}}
		pools[key] = p
	}
	poolMu.Unlock()
	return p
}

// getVector returns a pooled vector of exactly size elements, zeroed by the
// pool's New function on first allocation only; callers must overwrite every
// element before use since a reused buffer carries the previous tenant's data.
func getVector[E matrix.Scalar](size int) []E {
	p := getPool[E](size)
	buf := p.Get().(*[]E)
	return (*buf)[:size]
}

// putVector returns buf to its size-bucketed pool. buf's capacity determines
// the bucket; a buffer with a shrunk length is restored to full capacity
// before being pooled.
func putVector[E matrix.Scalar](buf []E) {
	size := cap(buf)
	p := getPool[E](size)
	buf = buf[:size]
	p.Put(&buf)
}
