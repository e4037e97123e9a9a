package unagidb

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, useIndex bool) *Repository {
	t.Helper()
	reg := prometheus.NewRegistry()
	repo, err := NewRepository(Config{UseIndex: useIndex, CacheSize: 32}, NewMetrics(reg))
	require.NoError(t, err)
	return repo
}

func occurrenceOffsets(cur *QueryCursor) []int {
	var offsets []int
	for {
		o, ok := cur.Next()
		if !ok {
			break
		}
		offsets = append(offsets, o.Offset)
	}
	sort.Ints(offsets)
	return offsets
}

func TestRepositoryScenarioRepeatedSubstring(t *testing.T) {
	repo := newTestRepository(t, true)
	repo.Add([]byte("a"), []byte("abcabc"))

	assert.Equal(t, 2, repo.Count([]byte("bc")))
	assert.Equal(t, []int{1, 4}, occurrenceOffsets(repo.Query([]byte("bc"))))
}

func TestRepositoryScenarioTokenStartAcrossDocuments(t *testing.T) {
	repo := newTestRepository(t, true)
	repo.Add([]byte("l1"), []byte("foo bar"))
	repo.Add([]byte("l2"), []byte("bar foo"))

	assert.Equal(t, 2, repo.Count([]byte("bar")))
}

func TestRepositoryScenarioUTF8LeadingByte(t *testing.T) {
	repo := newTestRepository(t, true)
	repo.Add([]byte("x"), []byte("野球"))

	assert.Equal(t, 1, repo.Count([]byte("球")))
}

func TestRepositoryScenarioCrossDocumentBoundaryNotMatched(t *testing.T) {
	repo := newTestRepository(t, true)
	repo.Add([]byte("a"), []byte("ab"))
	repo.Add([]byte("b"), []byte("cd"))

	assert.Equal(t, 0, repo.Count([]byte("bc")))
}

func TestRepositoryScenarioDumpCount(t *testing.T) {
	repo := newTestRepository(t, true)
	repo.Add([]byte("a"), []byte("one"))
	repo.Add([]byte("b"), []byte("two"))
	repo.Add([]byte("c"), []byte("three"))

	assert.Equal(t, 3, repo.NDocs())

	cur := repo.Dump()
	n := 0
	for {
		_, ok := cur.Next()
		if !ok {
			break
		}
		n++
	}
	assert.Equal(t, 3, n)
}

func TestRepositorySnippetWindow(t *testing.T) {
	repo := newTestRepository(t, true)
	data := []byte("this is a prefix foo suffix of more text")
	repo.Add([]byte("doc"), data)

	cur := repo.Query([]byte("foo"))
	o, ok := cur.Next()
	require.True(t, ok)

	snippet := repo.Snippet(o.Document, o.Offset, len("foo"))
	start := o.Offset - snippetPrefixLen
	if start < 0 {
		start = 0
	}
	end := o.Offset + len("foo") + snippetSuffixLen
	if end > o.Document.DataLength {
		end = o.Document.DataLength
	}
	assert.Equal(t, data[start:end], snippet)
}

func TestRepositoryEmptyDocumentIndexesNoSuffixes(t *testing.T) {
	repo := newTestRepository(t, true)
	idx := repo.Add([]byte("empty"), nil)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 0, repo.Count([]byte("x")))
}

func TestRepositoryIndexedAndFallbackAgree(t *testing.T) {
	indexed := newTestRepository(t, true)
	fallback := newTestRepository(t, false)

	docs := []struct{ label, data string }{
		{"a", "the quick brown fox"},
		{"b", "jumps over the lazy dog"},
		{"c", "the the the"},
		{"d", "foxfoxfox"},
	}
	for _, d := range docs {
		indexed.Add([]byte(d.label), []byte(d.data))
		fallback.Add([]byte(d.label), []byte(d.data))
	}

	// "the", "quick", and "jumps" sit at a document start or right after a
	// space at every occurrence in this corpus, so the token-start rule
	// admits them everywhere and the two modes must agree exactly.
	for _, pattern := range []string{"the", "quick", "jumps"} {
		p := []byte(pattern)
		assert.Equal(t, fallback.Count(p), indexed.Count(p), "pattern %q", pattern)

		want := toSet(occurrencePairs(fallback.Query(p)))
		got := toSet(occurrencePairs(indexed.Query(p)))
		assert.Equal(t, want, got, "pattern %q", pattern)
	}

	// "fox", "o", and "z" also occur at positions the token-start rule
	// does not admit (mid-word, not preceded by whitespace): "foxfoxfox"
	// only indexes its first "fox", mid-word "o" in "brown"/"dog" is
	// never inserted, and the "z" in "lazy" follows 'a'. Indexed mode
	// only guarantees a subset of fallback's raw-scan results here.
	for _, pattern := range []string{"fox", "o", "z"} {
		p := []byte(pattern)
		assert.LessOrEqual(t, indexed.Count(p), fallback.Count(p), "pattern %q", pattern)

		fallbackSet := toSet(occurrencePairs(fallback.Query(p)))
		for _, occ := range occurrencePairs(indexed.Query(p)) {
			assert.True(t, fallbackSet[occ], "pattern %q: indexed occurrence %+v missing from fallback", pattern, occ)
		}
	}
}

type docOffset struct {
	doc    int
	offset int
}

func occurrencePairs(cur *QueryCursor) []docOffset {
	var out []docOffset
	for {
		o, ok := cur.Next()
		if !ok {
			break
		}
		out = append(out, docOffset{doc: o.Document.DataOffset, offset: o.Offset})
	}
	return out
}

func toSet(pairs []docOffset) map[docOffset]bool {
	m := make(map[docOffset]bool, len(pairs))
	for _, p := range pairs {
		m[p] = true
	}
	return m
}

func TestRepositoryCacheInvalidatedOnAdd(t *testing.T) {
	repo := newTestRepository(t, true)
	repo.Add([]byte("a"), []byte("hello world"))

	assert.Equal(t, 1, repo.Count([]byte("hello")))

	repo.Add([]byte("b"), []byte("hello again"))
	assert.Equal(t, 2, repo.Count([]byte("hello")))
}

func TestRepositoryConcurrentAddAndQuery(t *testing.T) {
	repo := newTestRepository(t, true)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repo.Add([]byte(fmt.Sprintf("label-%d", i)), []byte(fmt.Sprintf("payload number %d here", i)))
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			repo.Count([]byte("payload"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, repo.NDocs())
}

func TestNextStringAllFF(t *testing.T) {
	assert.Nil(t, nextString([]byte{0xFF, 0xFF, 0xFF}))
}

func TestNextStringCarry(t *testing.T) {
	got := nextString([]byte{0x01, 0xFF})
	assert.Equal(t, []byte{0x02, 0x00}, got)
}

func TestTextCompareShorterPrefixIsLess(t *testing.T) {
	assert.True(t, textCompare([]byte("hallow"), []byte("halloween")) < 0)
	assert.Equal(t, 0, textCompare([]byte("abc"), []byte("abc")))
}

func TestRepositoryRandomizedAgreement(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	indexed := newTestRepository(t, true)
	fallback := newTestRepository(t, false)

	alphabet := []byte("ab cd")
	for i := 0; i < 20; i++ {
		n := rng.Intn(12) + 1
		data := make([]byte, n)
		for j := range data {
			data[j] = alphabet[rng.Intn(len(alphabet))]
		}
		label := []byte(fmt.Sprintf("doc%d", i))
		indexed.Add(label, data)
		fallback.Add(label, data)
	}

	// None of these patterns are guaranteed to land on a token start in
	// randomly generated data (a run of letters can follow any other
	// letter, not just a space), so indexed mode only guarantees a subset
	// of what fallback's raw scan finds; full equality is not a property
	// the spec makes for patterns outside the token-start rule.
	for _, pattern := range [][]byte{[]byte("a"), []byte("b"), []byte("ab"), []byte(" ")} {
		assert.LessOrEqual(t, indexed.Count(pattern), fallback.Count(pattern), "pattern %q", pattern)

		fallbackSet := toSet(occurrencePairs(fallback.Query(pattern)))
		for _, occ := range occurrencePairs(indexed.Query(pattern)) {
			assert.True(t, fallbackSet[occ], "pattern %q: indexed occurrence %+v missing from fallback", pattern, occ)
		}
	}
}
