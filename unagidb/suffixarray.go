package unagidb

// suffixArray is an online, incrementally-maintained index over a shared
// text buffer: a physical slot array of suffix start offsets, kept in
// non-decreasing lexicographic order. The array is over-provisioned with
// duplicated slots (the spread factor f) so that a single insertion can
// usually be made room for by shifting a short run rather than the whole
// tail.
type suffixArray struct {
	text  *byteBuffer
	table *documentTable

	ptrs []uint32 // physical slots, length sz
	n    int       // number of distinct logical entries
	f    int       // spread factor: insert grows ptrs so (n+1)*f <= len(ptrs) before placing an entry
}

const suffixArrayInitSpread = 2

func newSuffixArray(text *byteBuffer, table *documentTable) *suffixArray {
	return &suffixArray{
		text:  text,
		table: table,
		f:     suffixArrayInitSpread,
	}
}

func (sa *suffixArray) size() int { return len(sa.ptrs) }

// suffixLen returns the length of the suffix starting at offset: the
// remaining bytes in the document that contains it. Document boundaries
// act as an implicit terminator, so a pattern can never match across two
// documents.
func (sa *suffixArray) suffixLen(offset int) int {
	return sa.table.dataLengthFrom(int(offset))
}

func (sa *suffixArray) suffixBytes(offset uint32) []byte {
	o := int(offset)
	return sa.text.slice(o, sa.suffixLen(o))
}

// textCompare is the lexicographic comparator of §4.3: compare up to
// min(len(a), len(b)) bytes; on a tie the shorter string sorts first.
func textCompare(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return len(a) - len(b)
}

// ensureSize grows the physical array, if necessary, to at least reqSize
// slots, replicating existing entries to preserve the spread factor.
func (sa *suffixArray) ensureSize(reqSize int) {
	sz := len(sa.ptrs)
	if sz >= reqSize {
		return
	}
	newSz := sz
	if newSz == 0 {
		newSz = reqSize
	}
	for newSz < reqSize {
		newSz *= 2
	}

	newPtrs := make([]uint32, newSz)
	if sa.ptrs != nil {
		g := newSz / sz
		for i := 0; i < sz; i++ {
			for j := 0; j < g; j++ {
				newPtrs[i*g+j] = sa.ptrs[i]
			}
		}
	}
	sa.ptrs = newPtrs
}

// shiftPtrs moves ptrs[i:j] to ptrs[i+s:j+s]. s may be positive (shift
// right, copying from the high end down) or negative (shift left,
// copying from the low end up).
func (sa *suffixArray) shiftPtrs(i, j, s int) {
	if s > 0 {
		for k := j - 1; k >= i; k-- {
			sa.ptrs[k+s] = sa.ptrs[k]
		}
	} else {
		for k := i; k < j; k++ {
			sa.ptrs[k+s] = sa.ptrs[k]
		}
	}
}

func (sa *suffixArray) setAll(x uint32) {
	for i := range sa.ptrs {
		sa.ptrs[i] = x
	}
	sa.n = 1
}

// locateRange returns the least slot index i such that the suffix at
// ptrs[i] is >= pattern under textCompare. Returns size() if every
// indexed suffix is less than pattern, and -1 if the array is empty.
func (sa *suffixArray) locateRange(pattern []byte) int {
	sz := len(sa.ptrs)
	if sz == 0 {
		return -1
	}

	a, b := 0, sz-1
	aSuf := sa.suffixBytes(sa.ptrs[a])
	bSuf := sa.suffixBytes(sa.ptrs[b])

	if textCompare(pattern, aSuf) <= 0 {
		return 0
	}
	if textCompare(bSuf, pattern) < 0 {
		return sz
	}
	// suffix(ptrs[a]) < pattern <= suffix(ptrs[b])
	for b-a > 1 {
		c := (a + b) / 2
		cSuf := sa.suffixBytes(sa.ptrs[c])
		if textCompare(cSuf, pattern) < 0 {
			a = c
		} else {
			b = c
		}
	}
	return b
}

// insert places offset into the array at its sorted position, growing
// and/or shifting slots as necessary.
func (sa *suffixArray) insert(offset int) {
	sa.ensureSize((sa.n + 1) * sa.f)

	if sa.n == 0 {
		sa.setAll(uint32(offset))
		return
	}

	pattern := sa.text.slice(offset, sa.suffixLen(offset))
	i := sa.locateRange(pattern)
	sa.insertPtrBefore(i, uint32(offset))
}

// insertPtrBefore makes ptrs[i] == x true, preserving sort order, by
// stealing a slot from the nearest run of equal neighbors: scanning
// outward j = 1, 2, ..., the first adjacent-equal run found (right side
// checked first on a tie) is shrunk by one shift to make room.
func (sa *suffixArray) insertPtrBefore(i int, x uint32) {
	sz := len(sa.ptrs)
	limit := i
	if sz-i > limit {
		limit = sz - i
	}
	for j := 1; j < limit; j++ {
		if i+j < sz {
			if sa.ptrs[i+j] == sa.ptrs[i+j-1] {
				sa.shiftPtrs(i, i+j, 1)
				sa.ptrs[i] = x
				sa.n++
				return
			}
		}
		if i-j >= 1 {
			if sa.ptrs[i-j-1] == sa.ptrs[i-j] {
				sa.shiftPtrs(i-j, i, -1)
				sa.ptrs[i-1] = x
				sa.n++
				return
			}
		}
	}
	panic("unagidb: suffix array insertion found no room to shift pointers; spread factor invariant violated")
}

// nextString computes the lexicographic successor of s: s incremented as
// a big-endian unsigned integer, with carry propagation. Returns nil if s
// is entirely 0xFF bytes, in which case s has no successor.
func nextString(s []byte) []byte {
	if len(s) == 0 {
		return nil
	}
	t := make([]byte, len(s))
	copy(t, s)
	for i := len(t) - 1; i >= 0; i-- {
		t[i]++
		if t[i] != 0 {
			return t
		}
	}
	return nil
}
