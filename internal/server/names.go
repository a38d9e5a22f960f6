package server

import (
	"strconv"
	"sync/atomic"
)

// DefaultPrefix is the stem of generated server names.
const DefaultPrefix = "VIMBOT"

// NameAllocator hands out server names of the form <prefix>_<n>, n counting
// up from 1. It is safe for concurrent use and never reuses a name.
type NameAllocator struct {
	prefix  string
	counter atomic.Uint64
}

// NewNameAllocator returns an allocator for prefix. An empty prefix means
// DefaultPrefix.
func NewNameAllocator(prefix string) *NameAllocator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &NameAllocator{prefix: prefix}
}

// Prefix returns the name stem.
func (a *NameAllocator) Prefix() string {
	return a.prefix
}

// Next returns a fresh name.
func (a *NameAllocator) Next() string {
	n := a.counter.Add(1)
	return a.prefix + "_" + strconv.FormatUint(n, 10)
}

// Issued returns how many names have been handed out.
func (a *NameAllocator) Issued() uint64 {
	return a.counter.Load()
}

var defaultNames = NewNameAllocator(DefaultPrefix)

// DefaultNames returns the process-wide allocator used by sessions that are
// not given one.
func DefaultNames() *NameAllocator {
	return defaultNames
}
