// Package dataset reads and writes step output collections as JSON Lines.
package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gpiradze/webharvest/internal/pipeline"
)

// Exists reports whether a finished collection is already present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ReadAll loads every record from a JSONL file.
func ReadAll(path string) ([]pipeline.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var records []pipeline.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec pipeline.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("decode %s line %d: %w", path, line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return records, nil
}

// Writer accumulates records in a scratch file and assembles the final
// collection atomically on Finalize. A crash mid-step leaves only scratch
// data behind; the output path either holds the previous complete
// collection or the new one, never a prefix.
type Writer struct {
	mu      sync.Mutex
	outPath string
	tempDir string
	tmpPath string
	tmp     *os.File
	enc     *json.Encoder
	count   int
	closed  bool
}

// scratchGlob matches every scratch file ever opened for outPath, including
// ones left behind by a run that died before Finalize.
func scratchGlob(outPath, tempDir string) string {
	return filepath.Join(tempDir, filepath.Base(outPath)+".scratch.*")
}

// NewWriter opens a scratch file under tempDir for the collection that will
// land at outPath.
func NewWriter(outPath, tempDir string) (*Writer, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(tempDir, filepath.Base(outPath)+".scratch.*")
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	return &Writer{
		outPath: outPath,
		tempDir: tempDir,
		tmpPath: tmp.Name(),
		tmp:     tmp,
		enc:     json.NewEncoder(tmp),
	}, nil
}

// Append writes records to the scratch file. Safe for concurrent use.
func (w *Writer) Append(_ context.Context, records []pipeline.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("writer already finalized")
	}
	for _, rec := range records {
		if err := w.enc.Encode(rec); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
		w.count++
	}
	return nil
}

// Count returns how many records have been appended so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Finalize merges the scratch records with any existing collection at the
// output path, deduplicating by URL with new records winning, then renames
// the merged file into place and removes the scratch files. Scratch files
// left in tempDir by an earlier run that died before finalizing are swept
// into the merge too; their tasks are recorded as completed in the
// checkpoint and will not be re-attempted, so this is the only way their
// records reach the output.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.tmp.Sync(); err != nil {
		return fmt.Errorf("sync scratch file: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		return fmt.Errorf("close scratch file: %w", err)
	}

	scratches, err := filepath.Glob(scratchGlob(w.outPath, w.tempDir))
	if err != nil {
		return fmt.Errorf("list scratch files: %w", err)
	}
	// Leftovers first so the current run's records win the URL dedup.
	var fresh []pipeline.Record
	for _, path := range scratches {
		if path == w.tmpPath {
			continue
		}
		recs, err := readScratch(path)
		if err != nil {
			return err
		}
		fresh = append(fresh, recs...)
	}
	current, err := readScratch(w.tmpPath)
	if err != nil {
		return err
	}
	fresh = append(fresh, current...)

	var existing []pipeline.Record
	if Exists(w.outPath) {
		existing, err = ReadAll(w.outPath)
		if err != nil {
			return err
		}
	}

	merged := mergeByURL(existing, fresh)

	mergedTmp := w.outPath + ".merge.tmp"
	if err := writeAll(mergedTmp, merged); err != nil {
		return err
	}
	if err := os.Rename(mergedTmp, w.outPath); err != nil {
		return fmt.Errorf("publish dataset: %w", err)
	}
	for _, path := range scratches {
		_ = os.Remove(path)
	}
	return nil
}

// readScratch loads records from a scratch file, skipping lines that do not
// decode. A crash can truncate the final line mid-record; the preceding
// complete records are still good.
func readScratch(path string) ([]pipeline.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scratch file: %w", err)
	}
	defer f.Close()

	var records []pipeline.Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec pipeline.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read scratch file: %w", err)
	}
	return records, nil
}

// Discard closes and removes the scratch file without touching the output.
func (w *Writer) Discard() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	_ = w.tmp.Close()
	_ = os.Remove(w.tmpPath)
}

// mergeByURL keeps insertion order of existing records, replaces rows whose
// URL reappears in fresh, and appends the rest. Records without a URL
// (translation rows keyed by TranslationID) are always kept.
func mergeByURL(existing, fresh []pipeline.Record) []pipeline.Record {
	replace := make(map[string]pipeline.Record, len(fresh))
	for _, rec := range fresh {
		if rec.URL != "" && rec.TranslationID == "" {
			replace[rec.URL] = rec
		}
	}

	merged := make([]pipeline.Record, 0, len(existing)+len(fresh))
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		if rec.URL != "" && rec.TranslationID == "" {
			if upd, ok := replace[rec.URL]; ok {
				merged = append(merged, upd)
				seen[rec.URL] = struct{}{}
				continue
			}
			seen[rec.URL] = struct{}{}
		}
		merged = append(merged, rec)
	}
	for _, rec := range fresh {
		if rec.URL != "" && rec.TranslationID == "" {
			if _, ok := seen[rec.URL]; ok {
				continue
			}
			seen[rec.URL] = struct{}{}
			merged = append(merged, replace[rec.URL])
			continue
		}
		merged = append(merged, rec)
	}
	return merged
}

func writeAll(path string, records []pipeline.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			f.Close()
			return fmt.Errorf("encode record: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush dataset: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close dataset: %w", err)
	}
	return nil
}

var _ pipeline.RecordSink = (*Writer)(nil)
