package search

import (
	"sort"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"

	"pawtalk/pkg/models"
	"pawtalk/pkg/telemetry"
)

// projection is the derived, rebuildable representation of one message.
// It is never authoritative; the store owns the truth.
type projection struct {
	ConvID    string
	SenderID  string
	Content   string
	CreatedTS int64
	tf        map[string]int
}

// Index is an in-memory lexical index over message content. Projections
// are replaced wholesale whenever content changes, so a rebuild is always
// safe.
type Index struct {
	mu       sync.RWMutex
	docs     map[string]*projection
	postings map[string]map[string]int // token -> msgID -> term frequency
	tok      Tokenizer
}

// New creates an Index using tok, or EnglishTokenizer when tok is nil.
func New(tok Tokenizer) *Index {
	if tok == nil {
		tok = EnglishTokenizer{}
	}
	return &Index{
		docs:     make(map[string]*projection),
		postings: make(map[string]map[string]int),
		tok:      tok,
	}
}

// IndexMessage replaces any prior projection for the message id.
func (ix *Index) IndexMessage(m models.Message) {
	tokens := ix.tok.Tokenize(m.Content)
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(m.ID)
	if m.Deleted {
		return
	}
	p := &projection{
		ConvID:    m.ConversationID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedTS: m.CreatedTS,
		tf:        tf,
	}
	ix.docs[m.ID] = p
	for t, n := range tf {
		post := ix.postings[t]
		if post == nil {
			post = make(map[string]int)
			ix.postings[t] = post
		}
		post[m.ID] = n
	}
	telemetry.IndexRefreshes.Inc()
}

// Remove drops a message's projection, e.g. after a tombstone.
func (ix *Index) Remove(msgID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(msgID)
}

func (ix *Index) removeLocked(msgID string) {
	p, ok := ix.docs[msgID]
	if !ok {
		return
	}
	for t := range p.tf {
		if post := ix.postings[t]; post != nil {
			delete(post, msgID)
			if len(post) == 0 {
				delete(ix.postings, t)
			}
		}
	}
	delete(ix.docs, msgID)
}

// Len returns the number of indexed projections.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Scope restricts a search to a conversation, a sender and/or a creation
// time range (ns, inclusive; zero means unbounded). When Allowed is
// non-nil only hits from those conversations are returned, which is how
// cross-conversation search stays confined to the caller's own
// conversations.
type Scope struct {
	ConversationID string
	SenderID       string
	From           int64
	To             int64
	Allowed        map[string]bool
}

// Result is one ranked hit.
type Result struct {
	MessageID      string  `json:"message_id"`
	ConversationID string  `json:"conversation_id"`
	SenderID       string  `json:"sender_id"`
	Content        string  `json:"content"`
	CreatedTS      int64   `json:"created_ts"`
	Score          float64 `json:"score"`
}

// Response is a ranked page plus the total match count and query latency.
type Response struct {
	Results []Result      `json:"results"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	Elapsed time.Duration `json:"elapsed"`
}

// Search answers a ranked query. Ranking is relevance score first,
// recency second. A query that is empty after normalization returns an
// empty response, never an error; search must not fail on user input.
func (ix *Index) Search(query string, scope Scope, page, limit int) Response {
	start := time.Now()
	telemetry.SearchQueries.Inc()
	defer func() {
		telemetry.SearchDuration.Observe(time.Since(start).Seconds())
	}()

	if limit <= 0 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	terms := ix.tok.Tokenize(query)
	if len(terms) == 0 {
		return Response{Results: []Result{}, Page: page, Elapsed: time.Since(start)}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	// candidate set: union over query terms, term-frequency aggregate score
	scores := make(map[string]float64)
	for _, t := range terms {
		for id, n := range ix.postings[t] {
			scores[id] += float64(n)
		}
	}

	hits := make([]Result, 0, len(scores))
	for id, score := range scores {
		p := ix.docs[id]
		if p == nil {
			continue
		}
		if scope.ConversationID != "" && p.ConvID != scope.ConversationID {
			continue
		}
		if scope.Allowed != nil && !scope.Allowed[p.ConvID] {
			continue
		}
		if scope.SenderID != "" && p.SenderID != scope.SenderID {
			continue
		}
		if scope.From != 0 && p.CreatedTS < scope.From {
			continue
		}
		if scope.To != 0 && p.CreatedTS > scope.To {
			continue
		}
		// contiguity bonus: reward content where the raw query appears
		// as a fuzzy-contiguous run, so "kidney disease" outranks
		// documents that merely contain both words far apart.
		if matches := fuzzy.Find(query, []string{p.Content}); len(matches) > 0 {
			score += float64(matches[0].Score) / 100
		}
		hits = append(hits, Result{
			MessageID:      id,
			ConversationID: p.ConvID,
			SenderID:       p.SenderID,
			Content:        p.Content,
			CreatedTS:      p.CreatedTS,
			Score:          score,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].CreatedTS > hits[j].CreatedTS
	})

	total := len(hits)
	lo := (page - 1) * limit
	if lo > total {
		lo = total
	}
	hi := lo + limit
	if hi > total {
		hi = total
	}
	return Response{
		Results: hits[lo:hi],
		Total:   total,
		Page:    page,
		Elapsed: time.Since(start),
	}
}
