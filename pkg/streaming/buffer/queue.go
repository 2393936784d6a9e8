// Package buffer implements the chunk queue that backs every stream side.
package buffer

import (
	"fmt"
	"unicode/utf8"

	"github.com/valyala/bytebufferpool"
)

// Queue is an ordered sequence of chunks with a running length.
//
// In object mode every chunk counts as one unit. Otherwise chunks are []byte
// or string; a []byte counts its bytes and a string counts its runes, which is
// the unit a text decoder reports. A Queue holds only one of the two kinds at
// a time in practice, but Concat and Join accept both.
type Queue struct {
	head       *node
	tail       *node
	count      int
	length     int
	objectMode bool
}

type node struct {
	chunk any
	next  *node
}

// New returns an empty queue.
func New(objectMode bool) *Queue {
	return &Queue{objectMode: objectMode}
}

// Size returns the length contributed by a chunk.
func (q *Queue) Size(chunk any) int {
	if q.objectMode {
		return 1
	}
	return ChunkSize(chunk)
}

// ChunkSize returns the byte length of a []byte or the rune count of a string.
// Any other value counts as one unit.
func ChunkSize(chunk any) int {
	switch c := chunk.(type) {
	case []byte:
		return len(c)
	case string:
		return utf8.RuneCountInString(c)
	default:
		return 1
	}
}

// Push appends chunk at the tail.
func (q *Queue) Push(chunk any) {
	n := &node{chunk: chunk}
	if q.tail == nil {
		q.head = n
	} else {
		q.tail.next = n
	}
	q.tail = n
	q.count++
	q.length += q.Size(chunk)
}

// Unshift inserts chunk at the head.
func (q *Queue) Unshift(chunk any) {
	n := &node{chunk: chunk, next: q.head}
	if q.head == nil {
		q.tail = n
	}
	q.head = n
	q.count++
	q.length += q.Size(chunk)
}

// Shift removes and returns the head chunk, or nil when empty.
func (q *Queue) Shift() any {
	if q.head == nil {
		return nil
	}
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.count--
	q.length -= q.Size(n.chunk)
	return n.chunk
}

// First returns the head chunk without removing it.
func (q *Queue) First() any {
	if q.head == nil {
		return nil
	}
	return q.head.chunk
}

// Len returns the buffered length in units.
func (q *Queue) Len() int { return q.length }

// Count returns the number of chunks.
func (q *Queue) Count() int { return q.count }

// Clear drops every chunk.
func (q *Queue) Clear() {
	q.head, q.tail = nil, nil
	q.count, q.length = 0, 0
}

// Chunks returns the buffered chunks in order without consuming them.
func (q *Queue) Chunks() []any {
	out := make([]any, 0, q.count)
	for n := q.head; n != nil; n = n.next {
		out = append(out, n.chunk)
	}
	return out
}

// Concat copies the first n bytes of the queue into a new slice without
// consuming anything. n larger than the buffered length is clamped.
func (q *Queue) Concat(n int) []byte {
	if n > q.length {
		n = q.length
	}
	out := make([]byte, 0, n)
	for p := q.head; p != nil && len(out) < n; p = p.next {
		out = appendChunk(out, p.chunk, n-len(out))
	}
	return out
}

// Join returns every chunk as one string without consuming anything.
func (q *Queue) Join() string {
	if q.count == 1 {
		if s, ok := q.head.chunk.(string); ok {
			return s
		}
	}
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	for p := q.head; p != nil; p = p.next {
		switch c := p.chunk.(type) {
		case string:
			_, _ = bb.WriteString(c)
		case []byte:
			_, _ = bb.Write(c)
		default:
			_, _ = bb.WriteString(fmt.Sprint(c))
		}
	}
	return bb.String()
}

// Consume removes n units from the front of the queue and returns them.
// Text queues (string chunks) yield a string; byte queues yield []byte.
// A head chunk longer than n is split and its remainder stays queued.
func (q *Queue) Consume(n int) any {
	if q.head == nil || n <= 0 {
		return nil
	}
	if n > q.length {
		n = q.length
	}

	switch head := q.head.chunk.(type) {
	case string:
		if c := utf8.RuneCountInString(head); n < c {
			cut := runeOffset(head, n)
			q.head.chunk = head[cut:]
			q.length -= n
			return head[:cut]
		} else if n == c {
			return q.Shift()
		}
		return q.consumeString(n)
	case []byte:
		if n < len(head) {
			q.head.chunk = head[n:]
			q.length -= n
			return head[:n:n]
		} else if n == len(head) {
			return q.Shift()
		}
		return q.consumeBytes(n)
	default:
		return q.Shift()
	}
}

func (q *Queue) consumeBytes(n int) []byte {
	out := make([]byte, 0, n)
	for q.head != nil && len(out) < n {
		want := n - len(out)
		b, ok := q.head.chunk.([]byte)
		if !ok {
			b = []byte(fmt.Sprint(q.head.chunk))
		}
		if len(b) <= want {
			out = append(out, b...)
			q.Shift()
			continue
		}
		out = append(out, b[:want]...)
		q.head.chunk = b[want:]
		q.length -= want
	}
	return out
}

func (q *Queue) consumeString(n int) string {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)
	taken := 0
	for q.head != nil && taken < n {
		want := n - taken
		s, ok := q.head.chunk.(string)
		if !ok {
			s = fmt.Sprint(q.head.chunk)
		}
		c := utf8.RuneCountInString(s)
		if c <= want {
			_, _ = bb.WriteString(s)
			taken += c
			q.Shift()
			continue
		}
		cut := runeOffset(s, want)
		_, _ = bb.WriteString(s[:cut])
		q.head.chunk = s[cut:]
		q.length -= want
		taken += want
	}
	return bb.String()
}

func appendChunk(dst []byte, chunk any, max int) []byte {
	var b []byte
	switch c := chunk.(type) {
	case []byte:
		b = c
	case string:
		b = []byte(c)
	default:
		return dst
	}
	if len(b) > max {
		b = b[:max]
	}
	return append(dst, b...)
}

// runeOffset returns the byte offset of the n-th rune of s.
func runeOffset(s string, n int) int {
	i := 0
	for off := range s {
		if i == n {
			return off
		}
		i++
	}
	return len(s)
}
