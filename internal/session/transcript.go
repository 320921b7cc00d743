package session

import "time"

// Entry is one phrase as last reported by the backend.
type Entry struct {
	PhraseID string    `json:"phrase_id"`
	Speaker  string    `json:"speaker"`
	Text     string    `json:"text"`
	Final    bool      `json:"final"`
	Created  time.Time `json:"created"`
}

// Transcript keeps the most recent phrases of one recorder, updated in place
// by phrase id.
type Transcript struct {
	limit   int
	entries []*Entry // oldest first
	index   map[string]*Entry
}

func NewTranscript(limit int) *Transcript {
	if limit <= 0 {
		limit = 50
	}
	return &Transcript{limit: limit, index: make(map[string]*Entry)}
}

// Apply records a result. Text is replaced; final never reverts. The second
// return value reports whether this call made the phrase final.
func (t *Transcript) Apply(phraseID, speaker, text string, final bool, now time.Time) (Entry, bool) {
	e, ok := t.index[phraseID]
	if !ok {
		e = &Entry{PhraseID: phraseID, Speaker: speaker, Created: now}
		t.index[phraseID] = e
		t.entries = append(t.entries, e)
		t.evict()
	}
	e.Text = text
	becameFinal := final && !e.Final
	if final {
		e.Final = true
	}
	return *e, becameFinal
}

func (t *Transcript) evict() {
	for len(t.entries) > t.limit {
		delete(t.index, t.entries[0].PhraseID)
		t.entries[0] = nil
		t.entries = t.entries[1:]
	}
}

// Get returns the entry for phraseID.
func (t *Transcript) Get(phraseID string) (Entry, bool) {
	e, ok := t.index[phraseID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (t *Transcript) Len() int { return len(t.entries) }

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (t *Transcript) Recent(n int) []Entry {
	if n <= 0 || n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(t.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *t.entries[i])
	}
	return out
}
