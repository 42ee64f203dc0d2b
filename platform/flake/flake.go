package flake

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

var (
	mu     sync.Mutex
	flakes = map[string]*sonyflake.Sonyflake{}
)

// Namespace returns the canonical flake namespace for an entity.
func Namespace(ns, entity string) string {
	return fmt.Sprintf("%s_%s", ns, entity)
}

// NextID returns the next safe to use ID for the given namespace.
func NextID(namespace string) (uint64, error) {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := flakes[namespace]; !ok {
		var s sonyflake.Settings
		s.StartTime = time.Date(2015, 8, 31, 18, 7, 0, 0, time.UTC)

		flakes[namespace] = sonyflake.NewSonyflake(s)
	}

	return flakes[namespace].NextID()
}
