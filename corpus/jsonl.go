// JSONL persistence for the design corpus.
//
// One JSON object per line. Design records carry a single equivalence group;
// question records carry a list (a legacy single-string form is accepted on
// read and upgraded to a singleton list). Loading skips duplicate-hash
// records so re-loading an appended file is idempotent, and a missing file
// is an empty dataset rather than an error.

package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type designRecord struct {
	Hash    string `json:"hash"`
	Group   string `json:"equivalence_group"`
	Content string `json:"content"`
}

type questionRecord struct {
	Hash    string          `json:"hash"`
	Group   json.RawMessage `json:"equivalence_group"`
	Content string          `json:"content"`
}

// WriteFiles persists designs and questions as JSONL. With replace set the
// files are truncated first; otherwise records are appended. Classes are
// written in sorted id order so an unchanged database always produces the
// same bytes.
func (db *Database) WriteFiles(designPath, questionPath string, replace bool) error {
	if err := checkJSONLPath(designPath); err != nil {
		return err
	}
	if err := checkJSONLPath(questionPath); err != nil {
		return err
	}

	for _, path := range []string{designPath, questionPath} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if replace {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	df, err := os.OpenFile(designPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open design file: %w", err)
	}
	defer df.Close()

	dw := bufio.NewWriter(df)
	classIDs := make([]Digest, 0, len(db.designsByClass))
	for id := range db.designsByClass {
		classIDs = append(classIDs, id)
	}
	sort.Strings(classIDs)
	for _, id := range classIDs {
		for _, entry := range db.designsByClass[id] {
			rec := designRecord{Hash: entry.Hash, Group: entry.ClassID, Content: entry.Content}
			if err := writeRecord(dw, rec); err != nil {
				return fmt.Errorf("failed to write design record: %w", err)
			}
		}
	}
	if err := dw.Flush(); err != nil {
		return fmt.Errorf("failed to flush design file: %w", err)
	}

	qf, err := os.OpenFile(questionPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open question file: %w", err)
	}
	defer qf.Close()

	qw := bufio.NewWriter(qf)
	for _, q := range db.questions {
		ids := make([]string, 0, len(q.ClassIDs))
		for id := range q.ClassIDs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		group, err := json.Marshal(ids)
		if err != nil {
			return fmt.Errorf("failed to encode question groups: %w", err)
		}
		rec := questionRecord{Hash: q.Hash, Group: group, Content: q.Content}
		if err := writeRecord(qw, rec); err != nil {
			return fmt.Errorf("failed to write question record: %w", err)
		}
	}
	if err := qw.Flush(); err != nil {
		return fmt.Errorf("failed to flush question file: %w", err)
	}

	return nil
}

// ReadFiles replaces the database contents with the records in the given
// JSONL files. Duplicate design hashes (globally and within a group) and
// duplicate question hashes are silently skipped. Question class references
// are loaded as recorded; designs load first so the usual write order keeps
// references intact.
func (db *Database) ReadFiles(designPath, questionPath string) error {
	if err := checkJSONLPath(designPath); err != nil {
		return err
	}
	if err := checkJSONLPath(questionPath); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	db.designsByClass = make(map[Digest][]DesignEntry)
	db.members = make(map[Digest]map[Digest]struct{})
	db.questions = nil
	db.questionHashes = make(map[Digest]struct{})
	db.questionsByClass = make(map[Digest][]*QuestionEntry)
	db.classIndex.Clear()

	seenDesigns := make(map[Digest]struct{})
	err := eachLine(designPath, func(line []byte) error {
		var rec designRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("bad design record: %w", err)
		}
		entry := NewDesignEntry(rec.Content, rec.Group)
		if _, dup := seenDesigns[entry.Hash]; dup {
			return nil
		}
		seenDesigns[entry.Hash] = struct{}{}

		hashes, exists := db.members[entry.ClassID]
		if !exists {
			hashes = make(map[Digest]struct{})
			db.members[entry.ClassID] = hashes
			db.classIndex.Insert(entry.ClassID, entry.ClassID)
		}
		if _, dup := hashes[entry.Hash]; dup {
			return nil
		}
		hashes[entry.Hash] = struct{}{}
		db.designsByClass[entry.ClassID] = append(db.designsByClass[entry.ClassID], entry)
		return nil
	})
	if err != nil {
		return err
	}

	err = eachLine(questionPath, func(line []byte) error {
		var rec questionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("bad question record: %w", err)
		}
		ids, err := decodeGroups(rec.Group)
		if err != nil {
			return err
		}
		entry := NewQuestionEntry(rec.Content, ids)
		if _, dup := db.questionHashes[entry.Hash]; dup {
			return nil
		}
		db.questionHashes[entry.Hash] = struct{}{}
		db.questions = append(db.questions, entry)
		for id := range entry.ClassIDs {
			db.questionsByClass[id] = append(db.questionsByClass[id], entry)
		}
		return nil
	})
	return err
}

// decodeGroups accepts either the list form or the legacy single-string form
// of a question's equivalence groups.
func decodeGroups(raw json.RawMessage) (map[Digest]struct{}, error) {
	ids := make(map[Digest]struct{})
	if len(raw) == 0 {
		return ids, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, id := range list {
			ids[id] = struct{}{}
		}
		return ids, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single != "" {
			ids[single] = struct{}{}
		}
		return ids, nil
	}

	return nil, fmt.Errorf("bad question record: equivalence_group is neither list nor string: %s", raw)
}

func writeRecord(w *bufio.Writer, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// eachLine streams non-blank lines of a JSONL file. A missing file is
// treated as empty.
func eachLine(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn([]byte(line)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

func checkJSONLPath(path string) error {
	if filepath.Ext(path) != ".jsonl" {
		return fmt.Errorf("expected a .jsonl file, got %s", path)
	}
	return nil
}
