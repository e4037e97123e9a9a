package unagidb

import "sort"

// Document is a single label+data record stored by the repository.
// Offsets are into the repository's shared label/text buffers; a
// Document never holds a direct byte slice so it stays valid across
// buffer reallocation.
type Document struct {
	LabelOffset int
	LabelLength int
	DataOffset  int
	DataLength  int
}

// documentTable is an append-only, insertion-ordered sequence of
// documents. Because documents are packed contiguously into the text
// buffer, the table is also sorted by DataOffset, which is what makes
// findByTextOffset a binary search rather than a linear scan.
type documentTable struct {
	docs []Document
}

const documentTableInitCapacity = 16

func newDocumentTable() *documentTable {
	return &documentTable{}
}

func (t *documentTable) push(d Document) int {
	if cap(t.docs) == len(t.docs) {
		newCap := cap(t.docs)
		if newCap == 0 {
			newCap = documentTableInitCapacity
		} else {
			newCap *= 2
		}
		grown := make([]Document, len(t.docs), newCap)
		copy(grown, t.docs)
		t.docs = grown
	}
	t.docs = append(t.docs, d)
	return len(t.docs) - 1
}

func (t *documentTable) n() int {
	return len(t.docs)
}

func (t *documentTable) at(i int) Document {
	return t.docs[i]
}

// findByTextOffset returns the document whose [DataOffset,
// DataOffset+DataLength) range contains x. x must lie within
// [0, totalTextLength) of at least one document.
func (t *documentTable) findByTextOffset(x int) Document {
	n := len(t.docs)
	i := sort.Search(n, func(i int) bool {
		return t.docs[i].DataOffset+t.docs[i].DataLength > x
	})
	return t.docs[i]
}

// dataLengthFrom returns the number of bytes remaining in the document
// containing x, starting at x: the suffix length used by the index.
func (t *documentTable) dataLengthFrom(x int) int {
	d := t.findByTextOffset(x)
	return d.DataOffset + d.DataLength - x
}
