// Package sourcemap relates byte offsets of a file before and after a
// rewrite and composes such relations across transform stages.
//
// A rewrite stage reports one Delta per edit it made. NewPositionMap turns
// the deltas into a sorted list of unchanged segments, which is all Chain
// needs to compose maps without re-scanning either text.
package sourcemap

import "sort"

// Delta records a single edit against the original text: Removed bytes
// starting at Offset were replaced by Inserted bytes.
type Delta struct {
	Offset   int
	Removed  int
	Inserted int
}

// Segment maps original bytes [Src, Src+Len) onto output bytes [Dst, Dst+Len).
type Segment struct {
	Src int
	Dst int
	Len int
}

// PositionMap maps offsets of an original text onto a rewritten text.
// The zero value is not usable; build one with NewPositionMap or Identity.
type PositionMap struct {
	segments []Segment
	srcLen   int
	dstLen   int
}

// Identity returns the map of an untouched text of n bytes.
func Identity(n int) *PositionMap {
	m := &PositionMap{srcLen: n, dstLen: n}
	m.add(Segment{Src: 0, Dst: 0, Len: n})
	return m
}

// NewPositionMap builds the map of a text of srcLen bytes after the given
// edits. Deltas may arrive in any order but must not overlap.
func NewPositionMap(srcLen int, deltas []Delta) *PositionMap {
	sorted := make([]Delta, len(deltas))
	copy(sorted, deltas)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	m := &PositionMap{srcLen: srcLen}
	src, dst := 0, 0
	for _, d := range sorted {
		if d.Offset < src {
			// Overlapping edit; keep the earlier one's accounting.
			continue
		}
		if d.Offset > src {
			m.add(Segment{Src: src, Dst: dst, Len: d.Offset - src})
			dst += d.Offset - src
			src = d.Offset
		}
		if d.Removed == d.Inserted {
			// Same-width replacements (blanked decorators) map byte for byte.
			m.add(Segment{Src: src, Dst: dst, Len: d.Removed})
		}
		src += d.Removed
		dst += d.Inserted
	}
	if src < srcLen {
		m.add(Segment{Src: src, Dst: dst, Len: srcLen - src})
		dst += srcLen - src
	}
	m.dstLen = dst
	return m
}

// add appends s, merging it into the previous segment when both sides are
// contiguous. Equal-length replacements therefore map one to one.
func (m *PositionMap) add(s Segment) {
	if s.Len <= 0 {
		return
	}
	if n := len(m.segments); n > 0 {
		last := &m.segments[n-1]
		if last.Src+last.Len == s.Src && last.Dst+last.Len == s.Dst {
			last.Len += s.Len
			return
		}
	}
	m.segments = append(m.segments, s)
}

// SourceLen is the length of the original text.
func (m *PositionMap) SourceLen() int { return m.srcLen }

// OutputLen is the length of the rewritten text.
func (m *PositionMap) OutputLen() int { return m.dstLen }

// Segments returns the unchanged runs in source order.
func (m *PositionMap) Segments() []Segment {
	out := make([]Segment, len(m.segments))
	copy(out, m.segments)
	return out
}

// Forward maps an original offset to the rewritten text. An offset inside
// a replaced span maps to the start of its replacement.
func (m *PositionMap) Forward(off int) int {
	if off <= 0 {
		if len(m.segments) > 0 && m.segments[0].Src == 0 {
			return m.segments[0].Dst
		}
		return 0
	}
	if off >= m.srcLen {
		return m.dstLen
	}
	i := sort.Search(len(m.segments), func(i int) bool { return m.segments[i].Src > off }) - 1
	if i < 0 {
		return 0
	}
	s := m.segments[i]
	if off < s.Src+s.Len {
		return s.Dst + off - s.Src
	}
	return s.Dst + s.Len
}

// Backward maps a rewritten offset to the original text. The boolean is
// false when the offset lies inside inserted text; the returned offset is
// then the original position the insertion was made at.
func (m *PositionMap) Backward(off int) (int, bool) {
	if off >= m.dstLen {
		return m.srcLen, off == m.dstLen
	}
	if off < 0 {
		return 0, false
	}
	i := sort.Search(len(m.segments), func(i int) bool { return m.segments[i].Dst > off }) - 1
	if i < 0 {
		return 0, false
	}
	s := m.segments[i]
	if off < s.Dst+s.Len {
		return s.Src + off - s.Dst, true
	}
	return s.Src + s.Len, false
}

// Chain composes prior (original -> intermediate) with next (intermediate
// -> final) into a single original -> final map. A nil argument is treated
// as the identity.
func Chain(prior, next *PositionMap) *PositionMap {
	if prior == nil {
		return next
	}
	if next == nil {
		return prior
	}
	out := &PositionMap{srcLen: prior.srcLen, dstLen: next.dstLen}
	j := 0
	for _, p := range prior.segments {
		pEnd := p.Dst + p.Len
		for j < len(next.segments) && next.segments[j].Src+next.segments[j].Len <= p.Dst {
			j++
		}
		for k := j; k < len(next.segments); k++ {
			n := next.segments[k]
			if n.Src >= pEnd {
				break
			}
			lo := max(p.Dst, n.Src)
			hi := min(pEnd, n.Src+n.Len)
			if lo < hi {
				out.add(Segment{Src: p.Src + lo - p.Dst, Dst: n.Dst + lo - n.Src, Len: hi - lo})
			}
		}
	}
	return out
}
