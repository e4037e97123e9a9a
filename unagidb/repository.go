// Package unagidb implements the in-memory document repository: a
// growable text/label store with an incremental suffix-array substring
// index, safe for concurrent readers and a single writer at a time.
package unagidb

import (
	"bytes"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

const (
	snippetPrefixLen = 12
	snippetSuffixLen = 12
)

// Occurrence is a single match of a query pattern: the document it
// occurred in, and the byte offset within that document's data.
type Occurrence struct {
	Document Document
	Offset   int
}

// Config controls repository behavior that affects observable results,
// as opposed to server-level configuration (port, backlog, ...).
type Config struct {
	// UseIndex selects the suffix-array index (true) or brute-force
	// scanning (false, kept as a test oracle per the fallback mode).
	UseIndex bool
	// CacheSize bounds the LRU query/count result cache. Zero disables
	// nothing (a cache of size 1 is still kept so Purge has somewhere to
	// act on); callers wanting effectively-no-cache should not issue
	// repeat queries.
	CacheSize int
}

func DefaultConfig() Config {
	return Config{UseIndex: true, CacheSize: 1024}
}

// Repository composes the label/text buffers, document table, and
// suffix array into the add/query/count/dump surface. add takes the
// exclusive lock; every read operation takes the shared lock.
type Repository struct {
	mu sync.RWMutex

	labels *byteBuffer
	text   *byteBuffer
	docs   *documentTable
	sa     *suffixArray

	useIndex bool
	cache    *lru.Cache[string, []Occurrence]

	metrics *Metrics
}

func NewRepository(cfg Config, metrics *Metrics) (*Repository, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[string, []Occurrence](size)
	if err != nil {
		return nil, errors.Wrap(err, "creating query result cache")
	}

	text := newByteBuffer()
	docs := newDocumentTable()
	return &Repository{
		labels:   newByteBuffer(),
		text:     text,
		docs:     docs,
		sa:       newSuffixArray(text, docs),
		useIndex: cfg.UseIndex,
		cache:    cache,
		metrics:  metrics,
	}, nil
}

// Add appends a new document and, if indexing is enabled, indexes its
// selected suffixes. Returns the new document's index.
func (r *Repository) Add(label, data []byte) int {
	r.mu.Lock()
	labelOffset := r.labels.append(label)
	dataOffset := r.text.append(data)
	idx := r.docs.push(Document{
		LabelOffset: labelOffset,
		LabelLength: len(label),
		DataOffset:  dataOffset,
		DataLength:  len(data),
	})
	if r.useIndex {
		r.indexSuffixes(dataOffset, len(data))
	}
	r.cache.Purge()
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.DocumentsAdded.Inc()
		r.metrics.BytesIndexed.Add(float64(len(data)))
	}
	return idx
}

// indexSuffixes inserts into the suffix array every offset in
// [base, base+length) that satisfies the token-start rule: document
// start, a multi-byte UTF-8 leading byte, or an ASCII byte immediately
// following ASCII whitespace. Must be called with the write lock held.
func (r *Repository) indexSuffixes(base, length int) {
	data := r.text.slice(base, length)
	for i := 0; i < length; i++ {
		if i == 0 {
			r.sa.insert(base + i)
			continue
		}
		b := data[i]
		if b>>6 == 3 {
			r.sa.insert(base + i)
			continue
		}
		if b>>7 == 0 && isASCIIWhitespace(data[i-1]) {
			r.sa.insert(base + i)
		}
	}
}

func isASCIIWhitespace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// slotRange returns the [begin, end) suffix-array slots whose suffixes
// start with pattern.
func (r *Repository) slotRange(pattern []byte) (int, int) {
	begin := r.sa.locateRange(pattern)
	if begin < 0 {
		begin = 0
	}
	end := r.sa.size()
	if next := nextString(pattern); next != nil {
		end = r.sa.locateRange(next)
		if end < 0 {
			end = 0
		}
	}
	return begin, end
}

// occurrences computes the full occurrence set for pattern. Must be
// called with the read lock held.
func (r *Repository) occurrences(pattern []byte) []Occurrence {
	if r.useIndex {
		begin, end := r.slotRange(pattern)
		var occs []Occurrence
		var prev uint32
		for i := begin; i < end; i++ {
			v := r.sa.ptrs[i]
			if i > begin && v == prev {
				continue
			}
			prev = v
			doc := r.docs.findByTextOffset(int(v))
			if int(v)+len(pattern) <= doc.DataOffset+doc.DataLength {
				occs = append(occs, Occurrence{Document: doc, Offset: int(v) - doc.DataOffset})
			}
		}
		return occs
	}

	var occs []Occurrence
	n := r.docs.n()
	for i := 0; i < n; i++ {
		doc := r.docs.at(i)
		data := r.text.slice(doc.DataOffset, doc.DataLength)
		pos := 0
		for pos <= len(data) {
			rel := bytes.Index(data[pos:], pattern)
			if rel < 0 {
				break
			}
			occs = append(occs, Occurrence{Document: doc, Offset: pos + rel})
			pos = pos + rel + 1
		}
	}
	return occs
}

// cachedOccurrences is occurrences with the LRU wrapper. Must be called
// with the read lock held; a cache miss computes and stores the result
// under the same lock (add holds the exclusive lock, so no writer can
// interleave between compute and store).
func (r *Repository) cachedOccurrences(pattern []byte) []Occurrence {
	key := string(pattern)
	if v, ok := r.cache.Get(key); ok {
		return v
	}
	occs := r.occurrences(pattern)
	r.cache.Add(key, occs)
	return occs
}

// Query locates every occurrence of pattern and returns a cursor that
// yields them in suffix-array order (indexed mode) or document order
// (fallback mode).
func (r *Repository) Query(pattern []byte) *QueryCursor {
	start := time.Now()
	r.mu.RLock()
	occs := r.cachedOccurrences(pattern)
	r.mu.RUnlock()

	if r.metrics != nil {
		r.metrics.QueriesServed.Inc()
		r.metrics.QueryDuration.Observe(time.Since(start).Seconds())
	}
	return &QueryCursor{occurrences: occs}
}

// Count returns the number of occurrences of pattern without building a
// cursor.
func (r *Repository) Count(pattern []byte) int {
	r.mu.RLock()
	occs := r.cachedOccurrences(pattern)
	r.mu.RUnlock()

	if r.metrics != nil {
		r.metrics.QueriesServed.Inc()
	}
	return len(occs)
}

// Dump returns a cursor over every document in insertion order.
func (r *Repository) Dump() *DumpCursor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &DumpCursor{repo: r, n: r.docs.n()}
}

func (r *Repository) NDocs() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.docs.n()
}

// Label returns a copy of a document's label bytes.
func (r *Repository) Label(d Document) []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]byte(nil), r.labels.slice(d.LabelOffset, d.LabelLength)...)
}

// Data returns a copy of a document's full data bytes.
func (r *Repository) Data(d Document) []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]byte(nil), r.text.slice(d.DataOffset, d.DataLength)...)
}

// Snippet returns a copy of the window of text around an occurrence at
// offset within d, extended patternLen+snippetSuffixLen bytes past the
// match and snippetPrefixLen bytes before it, clipped to the document.
func (r *Repository) Snippet(d Document, offset, patternLen int) []byte {
	start := offset - snippetPrefixLen
	if start < 0 {
		start = 0
	}
	end := offset + patternLen + snippetSuffixLen
	if end > d.DataLength {
		end = d.DataLength
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]byte(nil), r.text.slice(d.DataOffset+start, end-start)...)
}

// QueryCursor yields the occurrences found by Query, one at a time.
type QueryCursor struct {
	occurrences []Occurrence
	next        int
}

func (qc *QueryCursor) Next() (Occurrence, bool) {
	if qc.next >= len(qc.occurrences) {
		return Occurrence{}, false
	}
	o := qc.occurrences[qc.next]
	qc.next++
	return o, true
}

// DumpCursor yields documents in insertion order.
type DumpCursor struct {
	repo *Repository
	n    int
	next int
}

// Len returns the document count fixed at the moment Dump was called.
func (dc *DumpCursor) Len() int {
	return dc.n
}

func (dc *DumpCursor) Next() (Document, bool) {
	if dc.next >= dc.n {
		return Document{}, false
	}
	dc.repo.mu.RLock()
	d := dc.repo.docs.at(dc.next)
	dc.repo.mu.RUnlock()
	dc.next++
	return d, true
}
