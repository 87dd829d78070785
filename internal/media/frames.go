package media

import (
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

type frameCache = lru.Cache[frameKey, frameResult]

func newFrameCache(size int) *frameCache {
	if size < 1 {
		size = 1
	}
	// New only fails for a non-positive size.
	c, _ := lru.New[frameKey, frameResult](size)
	return c
}

// dropAsset evicts every cached frame of one asset.
func dropAsset(c *frameCache, id uuid.UUID) {
	for _, k := range c.Keys() {
		if k.asset == id {
			c.Remove(k)
		}
	}
}
