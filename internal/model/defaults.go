package model

import (
	"math"
	"time"
)

// Shared defaults used by both the server and TUI binaries.
const (
	DefaultPageSize       = 20
	MaxPageSize           = 100
	DefaultCarouselLimit  = 8
	DefaultPromptDwell    = 30 * time.Second
	DefaultPromptItems    = 50
	DefaultTickInterval   = 2 * time.Second
	DefaultFetchTimeout   = 10 * time.Second
	DefaultRecentCapacity = 20
	DefaultSkin           = "default"
)

// ClampPageSize applies DefaultPageSize to non-positive sizes and caps the
// rest at MaxPageSize.
func ClampPageSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	}
	return size
}

// PageOffset returns the absolute position of the first item on page
// pageIndex. ok is false for negative indexes and for pages whose last
// position would not fit in an int.
func PageOffset(pageIndex, pageSize int) (offset int, ok bool) {
	if pageIndex < 0 || pageSize <= 0 || pageIndex > math.MaxInt/pageSize-1 {
		return 0, false
	}
	return pageIndex * pageSize, true
}
