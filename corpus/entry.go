// Entry types for the design corpus.

package corpus

import "fmt"

// DesignEntry is one content blob in an equivalence class.
// Hash is derived from the content and never changes; ClassID is rewritten
// only by merges and always equals the map key the entry is stored under.
type DesignEntry struct {
	Content string
	Hash    Digest
	ClassID Digest
}

// NewDesignEntry builds an entry from canonicalized content. An empty classID
// defaults to the content's own hash (a fresh singleton class).
func NewDesignEntry(content string, classID Digest) DesignEntry {
	h := HashContent(content)
	if classID == "" {
		classID = h
	}
	return DesignEntry{Content: content, Hash: h, ClassID: classID}
}

func (d DesignEntry) String() string {
	return fmt.Sprintf("DesignEntry(hash=%s, class=%s)", short(d.Hash), short(d.ClassID))
}

// QuestionEntry is a natural-language artifact certifying membership in one
// or more equivalence classes. Hash covers content only; ClassIDs shrink and
// grow only through merges or AddQuestion.
type QuestionEntry struct {
	Content  string
	Hash     Digest
	ClassIDs map[Digest]struct{}
}

// NewQuestionEntry builds a question entry, copying classIDs.
func NewQuestionEntry(content string, classIDs map[Digest]struct{}) *QuestionEntry {
	ids := make(map[Digest]struct{}, len(classIDs))
	for id := range classIDs {
		ids[id] = struct{}{}
	}
	return &QuestionEntry{Content: content, Hash: HashContent(content), ClassIDs: ids}
}

// HasClass reports whether the question certifies membership in id.
func (q *QuestionEntry) HasClass(id Digest) bool {
	_, ok := q.ClassIDs[id]
	return ok
}

func (q *QuestionEntry) String() string {
	return fmt.Sprintf("QuestionEntry(hash=%s, classes=%d)", short(q.Hash), len(q.ClassIDs))
}

func short(d Digest) string {
	if len(d) > 16 {
		return d[:16] + "..."
	}
	return d
}
