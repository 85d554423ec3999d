package upload

import (
	"fmt"
	"sort"
	"sync"
)

type entry struct {
	nParts int
	parts  map[int][]byte
}

// Buffer accumulates payload chunks keyed by logical name until all declared
// parts have arrived. Entries persist until explicitly deleted, so abandoned
// uploads occupy memory for the life of the process.
//
// There is no upload id: two clients uploading different payloads under the
// same name share one entry, last writer wins per part. Resubmitting a part
// index overwrites the previous chunk, and a changed part count replaces the
// stored expectation.
type Buffer struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewBuffer() *Buffer {
	return &Buffer{entries: make(map[string]*entry)}
}

func (b *Buffer) Update(name string, partIdx, nParts int, chunk []byte) error {
	if nParts <= 0 {
		return fmt.Errorf("invalid part count %d for upload %v", nParts, name)
	}
	if partIdx < 0 || partIdx >= nParts {
		return fmt.Errorf("part index %d out of range [0, %d) for upload %v", partIdx, nParts, name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[name]
	if !ok {
		e = &entry{nParts: nParts, parts: make(map[int][]byte)}
		b.entries[name] = e
	}
	if nParts < e.nParts {
		// A lowered part count invalidates chunks beyond the new range.
		for idx := range e.parts {
			if idx >= nParts {
				delete(e.parts, idx)
			}
		}
	}
	e.nParts = nParts
	e.parts[partIdx] = chunk

	return nil
}

func (b *Buffer) IsComplete(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[name]
	return ok && len(e.parts) == e.nParts
}

// Get concatenates the stored chunks in ascending part index order.
func (b *Buffer) Get(name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[name]
	if !ok {
		return nil, fmt.Errorf("no upload in progress for %v", name)
	}

	indices := make([]int, 0, len(e.parts))
	total := 0
	for idx, chunk := range e.parts {
		indices = append(indices, idx)
		total += len(chunk)
	}
	sort.Ints(indices)

	payload := make([]byte, 0, total)
	for _, idx := range indices {
		payload = append(payload, e.parts[idx]...)
	}

	return payload, nil
}

func (b *Buffer) Delete(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.entries, name)
}
