package unagidb

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// snapshotMeta is the meta.json sidecar written alongside a save(),
// carrying enough summary information to sanity-check a snapshot
// without reading its data files.
type snapshotMeta struct {
	FormatVersion int `json:"format_version"`
	Documents     int `json:"documents"`
	LabelBytes    int `json:"label_bytes"`
	TextBytes     int `json:"text_bytes"`
	SuffixSlots   int `json:"suffix_slots"`
	SpreadFactor  int `json:"spread_factor"`
}

const snapshotFormatVersion = 1

const (
	metaFileName     = "meta.json"
	labelsFileName   = "labels.bin"
	textFileName     = "text.bin"
	documentsFileName = "documents.bin"
	suffixesFileName = "suffixes.bin"
)

const documentRecordLength = 32 // 4 x uint64: label offset/length, data offset/length

// Save writes the full repository state to a freshly named UUID
// subdirectory of dir, so repeated saves never clobber one another, and
// returns the subdirectory's path.
func (r *Repository) Save(dir string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshotDir := filepath.Join(dir, uuid.NewString())
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating snapshot directory")
	}

	meta := snapshotMeta{
		FormatVersion: snapshotFormatVersion,
		Documents:     r.docs.n(),
		LabelBytes:    r.labels.length(),
		TextBytes:     r.text.length(),
		SuffixSlots:   r.sa.size(),
		SpreadFactor:  r.sa.f,
	}

	if err := writeJSONFile(filepath.Join(snapshotDir, metaFileName), meta); err != nil {
		return "", errors.Wrap(err, "writing meta.json")
	}
	if err := os.WriteFile(filepath.Join(snapshotDir, labelsFileName), r.labels.bytes(), 0o644); err != nil {
		return "", errors.Wrap(err, "writing labels.bin")
	}
	if err := os.WriteFile(filepath.Join(snapshotDir, textFileName), r.text.bytes(), 0o644); err != nil {
		return "", errors.Wrap(err, "writing text.bin")
	}
	if err := r.writeDocuments(filepath.Join(snapshotDir, documentsFileName)); err != nil {
		return "", errors.Wrap(err, "writing documents.bin")
	}
	if err := r.writeSuffixes(filepath.Join(snapshotDir, suffixesFileName)); err != nil {
		return "", errors.Wrap(err, "writing suffixes.bin")
	}

	return snapshotDir, nil
}

func (r *Repository) writeDocuments(path string) error {
	buf := make([]byte, r.docs.n()*documentRecordLength)
	for i := 0; i < r.docs.n(); i++ {
		d := r.docs.at(i)
		rec := buf[i*documentRecordLength : (i+1)*documentRecordLength]
		binary.LittleEndian.PutUint64(rec[0:8], uint64(d.LabelOffset))
		binary.LittleEndian.PutUint64(rec[8:16], uint64(d.LabelLength))
		binary.LittleEndian.PutUint64(rec[16:24], uint64(d.DataOffset))
		binary.LittleEndian.PutUint64(rec[24:32], uint64(d.DataLength))
	}
	return os.WriteFile(path, buf, 0o644)
}

func (r *Repository) writeSuffixes(path string) error {
	buf := make([]byte, len(r.sa.ptrs)*4)
	for i, p := range r.sa.ptrs {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], p)
	}
	return os.WriteFile(path, buf, 0o644)
}

func writeJSONFile(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Load reconstructs the repository from the most recent snapshot
// subdirectory of dir (selected by modification time). It replaces the
// repository's buffers, document table, and suffix array in place.
func (r *Repository) Load(dir string) error {
	snapshotDir, err := latestSnapshotDir(dir)
	if err != nil {
		return err
	}

	var meta snapshotMeta
	if err := readJSONFile(filepath.Join(snapshotDir, metaFileName), &meta); err != nil {
		return errors.Wrap(err, "reading meta.json")
	}

	labels, err := os.ReadFile(filepath.Join(snapshotDir, labelsFileName))
	if err != nil {
		return errors.Wrap(err, "reading labels.bin")
	}
	text, err := os.ReadFile(filepath.Join(snapshotDir, textFileName))
	if err != nil {
		return errors.Wrap(err, "reading text.bin")
	}
	docBytes, err := os.ReadFile(filepath.Join(snapshotDir, documentsFileName))
	if err != nil {
		return errors.Wrap(err, "reading documents.bin")
	}
	if len(docBytes)%documentRecordLength != 0 {
		return errors.Errorf("documents.bin has unexpected length %d", len(docBytes))
	}
	suffixBytes, err := os.ReadFile(filepath.Join(snapshotDir, suffixesFileName))
	if err != nil {
		return errors.Wrap(err, "reading suffixes.bin")
	}
	if len(suffixBytes)%4 != 0 {
		return errors.Errorf("suffixes.bin has unexpected length %d", len(suffixBytes))
	}

	docs := newDocumentTable()
	numDocs := len(docBytes) / documentRecordLength
	for i := 0; i < numDocs; i++ {
		rec := docBytes[i*documentRecordLength : (i+1)*documentRecordLength]
		docs.push(Document{
			LabelOffset: int(binary.LittleEndian.Uint64(rec[0:8])),
			LabelLength: int(binary.LittleEndian.Uint64(rec[8:16])),
			DataOffset:  int(binary.LittleEndian.Uint64(rec[16:24])),
			DataLength:  int(binary.LittleEndian.Uint64(rec[24:32])),
		})
	}

	textBuf := &byteBuffer{a: text}
	sa := newSuffixArray(textBuf, docs)
	sa.f = meta.SpreadFactor
	if sa.f == 0 {
		sa.f = suffixArrayInitSpread
	}
	sa.ptrs = make([]uint32, len(suffixBytes)/4)
	for i := range sa.ptrs {
		sa.ptrs[i] = binary.LittleEndian.Uint32(suffixBytes[i*4 : i*4+4])
	}
	sa.n = countDistinctRuns(sa.ptrs)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = &byteBuffer{a: labels}
	r.text = textBuf
	r.docs = docs
	r.sa = sa
	r.cache.Purge()
	return nil
}

func countDistinctRuns(ptrs []uint32) int {
	n := 0
	for i, p := range ptrs {
		if i == 0 || p != ptrs[i-1] {
			n++
		}
	}
	return n
}

func readJSONFile(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// latestSnapshotDir picks the most recently modified immediate
// subdirectory of dir. Returns an error if dir has no snapshots.
func latestSnapshotDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrap(err, "reading data directory")
	}

	type candidate struct {
		path    string
		modTime int64
	}
	var candidates []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(dir, e.Name()),
			modTime: info.ModTime().UnixNano(),
		})
	}
	if len(candidates) == 0 {
		return "", errors.Errorf("no snapshots found in %s", dir)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].modTime > candidates[j].modTime })
	return candidates[0].path, nil
}
