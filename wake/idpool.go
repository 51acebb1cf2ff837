package wake

import (
	"fmt"
	"sync"
)

// IDPool hands out the lowest non-negative id that is not currently held. A
// pool with a positive size never holds more than size ids at once.
type IDPool struct {
	mtx  sync.Mutex
	used []bool
	held int
	size int
}

// NewIDPool returns a pool bounded to size ids; size <= 0 means unbounded.
func NewIDPool(size int) *IDPool {
	return &IDPool{size: size}
}

// Acquire returns the lowest free id, or ErrExhausted when the pool is full.
func (p *IDPool) Acquire() (int, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if p.size > 0 && p.held >= p.size {
		return 0, fmt.Errorf("%w: %d of %d in use", ErrExhausted, p.held, p.size)
	}

	for id, inUse := range p.used {
		if !inUse {
			p.used[id] = true
			p.held++
			return id, nil
		}
	}

	p.used = append(p.used, true)
	p.held++
	return len(p.used) - 1, nil
}

// Release returns id to the pool. It reports false if id was not held.
func (p *IDPool) Release(id int) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if id < 0 || id >= len(p.used) || !p.used[id] {
		return false
	}
	p.used[id] = false
	p.held--

	// trim free ids off the tail so the slice doesn't keep its high-water mark
	for n := len(p.used); n > 0 && !p.used[n-1]; n-- {
		p.used = p.used[:n-1]
	}
	return true
}

// Len returns the number of ids currently held.
func (p *IDPool) Len() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.held
}
