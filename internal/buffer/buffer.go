// Package buffer implements the append-only byte buffer and the
// case-insensitive header map used throughout the connection pipeline.
package buffer

import (
	"bytes"
	"io"
)

// Bytes is an append-only accumulator for byte chunks. Chunks are stored
// without premature concatenation; Read joins them once, on demand.
type Bytes struct {
	chunks [][]byte
	length int
}

// Write appends chunk to the buffer. The chunk is not copied; callers must
// not mutate it afterward.
func (b *Bytes) Write(chunk []byte) (int, error) {
	if len(chunk) == 0 {
		return 0, nil
	}
	b.chunks = append(b.chunks, chunk)
	b.length += len(chunk)
	return len(chunk), nil
}

// WriteLines appends every chunk in lines, in order.
func (b *Bytes) WriteLines(lines [][]byte) {
	for _, line := range lines {
		_, _ = b.Write(line)
	}
}

// Len returns the total number of bytes written so far.
func (b *Bytes) Len() int {
	return b.length
}

// Read joins every chunk into a single slice. The joined slice replaces the
// stored chunks, so later calls return it without joining again.
func (b *Bytes) Read() []byte {
	if len(b.chunks) == 0 {
		return nil
	}
	if len(b.chunks) == 1 {
		return b.chunks[0]
	}
	out := make([]byte, 0, b.length)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	b.chunks = [][]byte{out}
	return out
}

// WriteTo writes the coalesced contents to w without an extra copy when
// only a single chunk is held.
func (b *Bytes) WriteTo(w io.Writer) (int64, error) {
	data := b.Read()
	n, err := w.Write(data)
	return int64(n), err
}

// Clear empties the buffer.
func (b *Bytes) Clear() {
	b.chunks = nil
	b.length = 0
}

// Header is an ordered sequence of (name, value) byte pairs with
// case-insensitive lookup by name. Values are preserved verbatim.
type Header struct {
	pairs []HeaderPair
	index map[string]int
}

// HeaderPair is one raw (name, value) entry as it appeared on the wire.
type HeaderPair struct {
	Name  []byte
	Value []byte
}

// NewHeader builds a Header from an ordered sequence of raw pairs. Names
// are expected to already be lower-cased by the parser; lookup lower-cases
// again defensively so callers constructing a Header by hand don't have to.
func NewHeader(pairs []HeaderPair) *Header {
	h := &Header{
		pairs: pairs,
		index: make(map[string]int, len(pairs)),
	}
	for i, p := range pairs {
		key := lowerASCII(string(p.Name))
		if _, exists := h.index[key]; !exists {
			h.index[key] = i
		}
	}
	return h
}

// Get returns the value for name (case-insensitive) and whether it was
// present.
func (h *Header) Get(name string) (string, bool) {
	if h == nil {
		return "", false
	}
	i, ok := h.index[lowerASCII(name)]
	if !ok {
		return "", false
	}
	return string(h.pairs[i].Value), true
}

// Contains reports whether name is present (case-insensitive).
func (h *Header) Contains(name string) bool {
	if h == nil {
		return false
	}
	_, ok := h.index[lowerASCII(name)]
	return ok
}

// Set adds or overwrites a header. If name is already present, its value is
// replaced in place and order is preserved; otherwise the pair is appended.
func (h *Header) Set(name, value string) {
	key := lowerASCII(name)
	if i, ok := h.index[key]; ok {
		h.pairs[i].Value = []byte(value)
		return
	}
	h.index[key] = len(h.pairs)
	h.pairs = append(h.pairs, HeaderPair{Name: []byte(name), Value: []byte(value)})
}

// Pairs returns the ordered raw pairs.
func (h *Header) Pairs() []HeaderPair {
	if h == nil {
		return nil
	}
	return h.pairs
}

func lowerASCII(s string) string {
	return string(bytes.ToLower([]byte(s)))
}
