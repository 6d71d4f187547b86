package sandbox

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dop251/goja"

	"github.com/GriffinCanCode/jscsandbox/internal/monitoring"
)

// programCache is a bounded LRU of compiled scripts. Compiled programs are
// realm-independent, so every context of a runtime shares one cache.
type programCache struct {
	size    int
	metrics *monitoring.Metrics

	mu    sync.Mutex
	order *list.List
	items map[uint64]*list.Element
}

type programEntry struct {
	key  uint64
	code string
	prog *goja.Program
}

func newProgramCache(size int, metrics *monitoring.Metrics) *programCache {
	return &programCache{
		size:    size,
		metrics: metrics,
		order:   list.New(),
		items:   make(map[uint64]*list.Element),
	}
}

// compile returns the compiled form of code, compiling on a miss.
// Syntax errors are returned unwrapped as *goja.CompilerSyntaxError.
func (c *programCache) compile(code string) (*goja.Program, error) {
	if c.size <= 0 {
		return goja.Compile("<eval>", code, false)
	}

	key := xxhash.Sum64String(code)

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		entry := el.Value.(*programEntry)
		// Guard against hash collisions
		if entry.code == code {
			c.order.MoveToFront(el)
			c.mu.Unlock()
			c.metrics.ProgramCache(true)
			return entry.prog, nil
		}
	}
	c.mu.Unlock()
	c.metrics.ProgramCache(false)

	prog, err := goja.Compile("<eval>", code, false)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
	}
	c.items[key] = c.order.PushFront(&programEntry{key: key, code: code, prog: prog})
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*programEntry).key)
	}
	return prog, nil
}

func (c *programCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *programCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[uint64]*list.Element)
}
