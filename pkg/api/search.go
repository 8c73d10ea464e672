package api

import (
	"net/http"

	"pawtalk/pkg/search"
	"pawtalk/pkg/utils"
)

// searchMessages handles GET /v1/search. A conversation_id narrows the
// query to one conversation (participants only); without it the search
// spans every conversation the caller belongs to. Unsearchable input
// yields an empty page, never an error.
func (a *API) searchMessages(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	convID := r.URL.Query().Get("conversation_id")
	scope := search.Scope{
		ConversationID: convID,
		SenderID:       r.URL.Query().Get("sender_id"),
	}
	if ms := queryInt64(r, "from", 0); ms > 0 {
		scope.From = ms * 1e6
	}
	if ms := queryInt64(r, "to", 0); ms > 0 {
		scope.To = ms * 1e6
	}

	if convID != "" {
		if !a.Store.IsParticipant(convID, pr.UserID) {
			utils.JSONError(w, http.StatusForbidden, "forbidden")
			return
		}
	} else {
		sums, err := a.Store.ListConversations(pr.UserID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		allowed := make(map[string]bool, len(sums))
		for _, s := range sums {
			allowed[s.Conversation.ID] = true
		}
		scope.Allowed = allowed
	}

	page := queryInt(r, "page", 1)
	limit := a.pageSize(queryInt(r, "limit", 0))
	resp := a.Index.Search(q, scope, page, limit)
	_ = utils.JSONWrite(w, http.StatusOK, resp)
}
