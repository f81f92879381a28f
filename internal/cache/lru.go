package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type stored struct {
	body    []byte
	expires time.Time
}

// LRU keeps up to size admin response bodies, each for ttl. Expired bodies are
// never returned; a sweeper drops them every ttl/2 until Close.
type LRU struct {
	entries *lru.Cache[string, stored]
	ttl     time.Duration
	now     func() time.Time

	done     chan struct{}
	doneOnce sync.Once
}

func NewLRU(size int, ttl time.Duration) (*LRU, error) {
	entries, err := lru.New[string, stored](size)
	if err != nil {
		return nil, err
	}
	c := &LRU{
		entries: entries,
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepEvery(ttl / 2)
	return c, nil
}

func (c *LRU) Get(key string) ([]byte, bool) {
	s, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.now().Before(s.expires) {
		c.entries.Remove(key)
		return nil, false
	}
	return s.body, true
}

func (c *LRU) Set(key string, value []byte) {
	c.entries.Add(key, stored{body: value, expires: c.now().Add(c.ttl)})
}

func (c *LRU) Purge() {
	c.entries.Purge()
}

// Len counts stored bodies, including expired ones the sweeper has not reached
func (c *LRU) Len() int {
	return c.entries.Len()
}

// Close stops the sweeper. It is safe to call more than once.
func (c *LRU) Close() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *LRU) sweepEvery(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *LRU) sweep() {
	now := c.now()
	for _, key := range c.entries.Keys() {
		if s, ok := c.entries.Peek(key); ok && !now.Before(s.expires) {
			c.entries.Remove(key)
		}
	}
}

// Nop never stores anything. Clients without a cache size use it.
type Nop struct{}

func (Nop) Get(string) ([]byte, bool) { return nil, false }
func (Nop) Set(string, []byte)        {}
func (Nop) Purge()                    {}
func (Nop) Close()                    {}
