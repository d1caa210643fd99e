// Database - the equivalence-class content store.
//
// Holds deduplicated design blobs grouped into equivalence classes and the
// question entries that reference those classes. All mutation goes through
// AddDesign, MergeClasses and AddQuestion so the structural invariants hold
// at every return:
//
//   - member hashes are unique within a class
//   - an entry's ClassID equals the key it is stored under
//   - the per-class question index mirrors each question's ClassIDs
//   - a merged-away class id survives nowhere: not as a design key, not as a
//     question back-reference, not in the prefix index
//
// Information Hiding:
// - Member lists are returned as copies; callers cannot mutate class state
// - O(1) membership via a per-class hash set alongside the entry list
// - Thread-safe via RWMutex; writers are expected to be serialized upstream

package corpus

import (
	"sort"
	"sync"

	"github.com/verideck/verideck/internal/dsa"
)

// Database is the aggregate root for designs and questions.
type Database struct {
	mu sync.RWMutex

	designsByClass map[Digest][]DesignEntry
	members        map[Digest]map[Digest]struct{} // classID -> member hash set

	questions        []*QuestionEntry
	questionHashes   map[Digest]struct{}
	questionsByClass map[Digest][]*QuestionEntry

	classIndex *dsa.Trie[Digest] // classID prefix lookup

	canon Canonicalizer
}

// NewDatabase creates an empty database using the given canonicalizer.
// A nil canonicalizer defaults to IdentityCanonicalizer.
func NewDatabase(canon Canonicalizer) *Database {
	if canon == nil {
		canon = IdentityCanonicalizer{}
	}
	return &Database{
		designsByClass:   make(map[Digest][]DesignEntry),
		members:          make(map[Digest]map[Digest]struct{}),
		questionHashes:   make(map[Digest]struct{}),
		questionsByClass: make(map[Digest][]*QuestionEntry),
		classIndex:       dsa.NewTrie[Digest](),
		canon:            canon,
	}
}

// AddDesign canonicalizes content, hashes it, and records it under classID.
// An empty classID defaults to the content's own hash (new singleton class).
// Returns true iff the hash was not already present in that class; a repeated
// byte-identical insert is a no-op returning false. Canonicalization failure
// returns a *CanonicalizationError and leaves the database unchanged.
func (db *Database) AddDesign(content string, classID Digest) (bool, error) {
	canonical, err := db.canon.Canonicalize(content)
	if err != nil {
		return false, err
	}
	return db.insert(NewDesignEntry(canonical, classID)), nil
}

// Add records content as (possibly) a new singleton class whose id is the
// content's own hash. Returns the hash and whether the content was new.
// Byte-identical canonicalized content always maps to the same hash, and
// exactly one call for it reports isNew.
func (db *Database) Add(content string) (Digest, bool, error) {
	canonical, err := db.canon.Canonicalize(content)
	if err != nil {
		return "", false, err
	}
	entry := NewDesignEntry(canonical, "")
	return entry.Hash, db.insert(entry), nil
}

// insert stores an already-canonicalized entry. Content is canonicalized
// exactly once, on the way into its entry, so even a non-idempotent
// canonicalizer cannot make the stored hash diverge from the returned one.
func (db *Database) insert(entry DesignEntry) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	hashes, exists := db.members[entry.ClassID]
	if !exists {
		hashes = make(map[Digest]struct{})
		db.members[entry.ClassID] = hashes
		db.classIndex.Insert(entry.ClassID, entry.ClassID)
	}
	if _, dup := hashes[entry.Hash]; dup {
		return false
	}
	hashes[entry.Hash] = struct{}{}
	db.designsByClass[entry.ClassID] = append(db.designsByClass[entry.ClassID], entry)
	return true
}

// MergeClasses folds two equivalence classes into one. The lexicographically
// smaller id wins; every loser entry moves to the winner with its ClassID
// rewritten, question back-references are rewritten from loser to winner, and
// the loser key is deleted everywhere. Merging a class with itself is a no-op.
//
// Both ids must exist (ErrClassNotFound otherwise), and the two classes must
// not already share a member hash (ErrSharedHash): that would mean the same
// content reached two classes through different canonical pipelines, which is
// an upstream inconsistency rather than something to silently merge.
func (db *Database) MergeClasses(a, b Digest) error {
	if a == b {
		db.mu.RLock()
		_, ok := db.designsByClass[a]
		db.mu.RUnlock()
		if !ok {
			return &ReferentialError{ClassID: a, Op: "merge"}
		}
		return nil
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.designsByClass[a]; !ok {
		return &ReferentialError{ClassID: a, Op: "merge"}
	}
	if _, ok := db.designsByClass[b]; !ok {
		return &ReferentialError{ClassID: b, Op: "merge"}
	}

	winner, loser := a, b
	if b < a {
		winner, loser = b, a
	}

	for h := range db.members[loser] {
		if _, shared := db.members[winner][h]; shared {
			return ErrSharedHash
		}
	}

	// Move designs, rewriting each entry's class id.
	for _, entry := range db.designsByClass[loser] {
		entry.ClassID = winner
		db.designsByClass[winner] = append(db.designsByClass[winner], entry)
		db.members[winner][entry.Hash] = struct{}{}
	}
	delete(db.designsByClass, loser)
	delete(db.members, loser)
	db.classIndex.Delete(loser)

	// Rewrite question back-references from loser to winner and move the
	// index entries across.
	for _, q := range db.questionsByClass[loser] {
		delete(q.ClassIDs, loser)
		q.ClassIDs[winner] = struct{}{}
	}
	db.questionsByClass[winner] = append(db.questionsByClass[winner], db.questionsByClass[loser]...)
	delete(db.questionsByClass, loser)

	return nil
}

// AddQuestion records a question certifying membership in classIDs. Every id
// must name an existing class (*ReferentialError otherwise, database left
// unchanged). A question whose hash is already recorded is treated as
// already-present: true is returned and the stored ClassIDs are not updated
// (first writer wins).
func (db *Database) AddQuestion(content string, classIDs map[Digest]struct{}) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for id := range classIDs {
		if _, ok := db.designsByClass[id]; !ok {
			return false, &ReferentialError{ClassID: id, Op: "add question"}
		}
	}

	entry := NewQuestionEntry(content, classIDs)
	if _, dup := db.questionHashes[entry.Hash]; dup {
		return true, nil
	}

	db.questionHashes[entry.Hash] = struct{}{}
	db.questions = append(db.questions, entry)
	for id := range entry.ClassIDs {
		db.questionsByClass[id] = append(db.questionsByClass[id], entry)
	}
	return true, nil
}

// QuestionsByClass returns the questions indexed under classID.
// An unknown id returns an empty slice, not an error.
func (db *Database) QuestionsByClass(classID Digest) []*QuestionEntry {
	db.mu.RLock()
	defer db.mu.RUnlock()

	entries := db.questionsByClass[classID]
	out := make([]*QuestionEntry, len(entries))
	copy(out, entries)
	return out
}

// Designs returns a copy of the member list for classID.
func (db *Database) Designs(classID Digest) []DesignEntry {
	db.mu.RLock()
	defer db.mu.RUnlock()

	entries := db.designsByClass[classID]
	out := make([]DesignEntry, len(entries))
	copy(out, entries)
	return out
}

// HasClass reports whether classID currently exists.
func (db *Database) HasClass(classID Digest) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	_, ok := db.designsByClass[classID]
	return ok
}

// ClassOf returns the class currently holding the design with the given
// hash. After a merge this is how a caller finds where a blob ended up.
func (db *Database) ClassOf(hash Digest) (Digest, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if _, ok := db.members[hash]; ok {
		return hash, true
	}
	for id, set := range db.members {
		if _, ok := set[hash]; ok {
			return id, true
		}
	}
	return "", false
}

// ClassIDs returns all current class ids in sorted order.
func (db *Database) ClassIDs() []Digest {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ids := make([]Digest, 0, len(db.designsByClass))
	for id := range db.designsByClass {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolvePrefix returns the class ids starting with prefix, sorted.
// Lets CLI users name a class by a short digest prefix.
func (db *Database) ResolvePrefix(prefix string) []Digest {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ids := db.classIndex.StartsWith(prefix)
	sort.Strings(ids)
	return ids
}

// ClassCount returns the number of equivalence classes.
func (db *Database) ClassCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.designsByClass)
}

// DesignCount returns the total number of stored design entries.
func (db *Database) DesignCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	n := 0
	for _, entries := range db.designsByClass {
		n += len(entries)
	}
	return n
}

// QuestionCount returns the number of unique questions.
func (db *Database) QuestionCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.questions)
}

// Questions returns a copy of the unique question list.
func (db *Database) Questions() []*QuestionEntry {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*QuestionEntry, len(db.questions))
	copy(out, db.questions)
	return out
}
