package search

import (
	"encoding/json"
	"testing"
	"time"

	"pawtalk/pkg/models"
)

func mkMsg(id, conv, sender, content string, ts int64) models.Message {
	return models.Message{
		ID:             id,
		ConversationID: conv,
		SenderID:       sender,
		Content:        content,
		Format:         models.FormatPlain,
		CreatedTS:      ts,
	}
}

func TestSearchRanksRelevanceThenRecency(t *testing.T) {
	ix := New(nil)
	ix.IndexMessage(mkMsg("m1", "c1", "u1", "luna is a sweet dog", 100))
	ix.IndexMessage(mkMsg("m2", "c1", "u2", "dog dog dog", 200))
	ix.IndexMessage(mkMsg("m3", "c1", "u1", "no pets here", 300))

	resp := ix.Search("dog", Scope{}, 1, 10)
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	if resp.Results[0].MessageID != "m2" {
		t.Fatalf("highest term frequency should rank first, got %s", resp.Results[0].MessageID)
	}
}

func TestSearchRecencyBreaksTies(t *testing.T) {
	ix := New(nil)
	ix.IndexMessage(mkMsg("old", "c1", "u1", "vaccine records", 100))
	ix.IndexMessage(mkMsg("new", "c1", "u1", "vaccine records", 200))

	resp := ix.Search("vaccine", Scope{}, 1, 10)
	if len(resp.Results) != 2 || resp.Results[0].MessageID != "new" {
		t.Fatalf("newer message should rank first on equal score: %+v", resp.Results)
	}
}

func TestSearchScope(t *testing.T) {
	ix := New(nil)
	ix.IndexMessage(mkMsg("m1", "c1", "u1", "adoption fee question", 100))
	ix.IndexMessage(mkMsg("m2", "c2", "u2", "adoption paperwork", 200))

	resp := ix.Search("adoption", Scope{ConversationID: "c1"}, 1, 10)
	if len(resp.Results) != 1 || resp.Results[0].MessageID != "m1" {
		t.Fatalf("conversation scope leak: %+v", resp.Results)
	}

	resp = ix.Search("adoption", Scope{SenderID: "u2"}, 1, 10)
	if len(resp.Results) != 1 || resp.Results[0].MessageID != "m2" {
		t.Fatalf("sender scope leak: %+v", resp.Results)
	}

	resp = ix.Search("adoption", Scope{Allowed: map[string]bool{"c2": true}}, 1, 10)
	if len(resp.Results) != 1 || resp.Results[0].MessageID != "m2" {
		t.Fatalf("allowed-set scope leak: %+v", resp.Results)
	}
}

func TestSearchNeverErrorsOnUserInput(t *testing.T) {
	ix := New(nil)
	ix.IndexMessage(mkMsg("m1", "c1", "u1", "hello there", 100))

	for _, q := range []string{"", "   ", "a", "the and or", "?!%&", "no-hits-for-this"} {
		resp := ix.Search(q, Scope{}, 1, 10)
		if resp.Results == nil {
			t.Fatalf("query %q: results must be non-nil", q)
		}
	}
}

func TestIndexUpdateAndRemove(t *testing.T) {
	ix := New(nil)
	ix.IndexMessage(mkMsg("m1", "c1", "u1", "cats only", 100))

	// re-index with new content replaces the old projection
	ix.IndexMessage(mkMsg("m1", "c1", "u1", "dogs only", 100))
	if got := ix.Search("cats", Scope{}, 1, 10); len(got.Results) != 0 {
		t.Fatalf("stale terms survived re-index: %+v", got.Results)
	}
	if got := ix.Search("dogs", Scope{}, 1, 10); len(got.Results) != 1 {
		t.Fatalf("re-index lost the document: %+v", got.Results)
	}

	ix.Remove("m1")
	if got := ix.Search("dogs", Scope{}, 1, 10); len(got.Results) != 0 {
		t.Fatalf("removed document still searchable: %+v", got.Results)
	}
	if ix.Len() != 0 {
		t.Fatalf("index should be empty, len=%d", ix.Len())
	}
}

func TestIndexSkipsDeleted(t *testing.T) {
	ix := New(nil)
	m := mkMsg("m1", "c1", "u1", "secret content", 100)
	m.Deleted = true
	ix.IndexMessage(m)
	if got := ix.Search("secret", Scope{}, 1, 10); len(got.Results) != 0 {
		t.Fatalf("deleted message indexed: %+v", got.Results)
	}
}

func TestSearchPagination(t *testing.T) {
	ix := New(nil)
	for i := 0; i < 5; i++ {
		ix.IndexMessage(mkMsg(string(rune('a'+i)), "c1", "u1", "kibble", int64(i)))
	}
	p1 := ix.Search("kibble", Scope{}, 1, 2)
	p2 := ix.Search("kibble", Scope{}, 2, 2)
	p3 := ix.Search("kibble", Scope{}, 3, 2)
	if p1.Total != 5 || len(p1.Results) != 2 || len(p2.Results) != 2 || len(p3.Results) != 1 {
		t.Fatalf("pagination: total=%d pages=%d/%d/%d", p1.Total, len(p1.Results), len(p2.Results), len(p3.Results))
	}
	// out-of-range pages are empty, not errors
	p4 := ix.Search("kibble", Scope{}, 9, 2)
	if len(p4.Results) != 0 {
		t.Fatalf("out-of-range page should be empty: %+v", p4.Results)
	}
}

func TestTokenizer(t *testing.T) {
	tok := EnglishTokenizer{}
	got := tok.Tokenize("The QUICK brown-fox, jumps!! a")
	want := []string{"quick", "brown", "fox", "jumps"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRefresherAppliesUpdates(t *testing.T) {
	ix := New(nil)
	r := NewRefresher(ix, 16)
	r.Start()
	defer r.Stop()

	m := mkMsg("m1", "c1", "u1", "microchip registered", 100)
	payload, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	r.EnqueueIndex(m.ConversationID, m.ID, payload)

	deadline := time.Now().Add(2 * time.Second)
	for ix.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("refresher never applied the update")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := ix.Search("microchip", Scope{}, 1, 10); len(got.Results) != 1 {
		t.Fatalf("indexed message not searchable: %+v", got.Results)
	}

	r.EnqueueRemove(m.ID)
	for ix.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("refresher never applied the removal")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
