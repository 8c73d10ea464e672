package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"pawtalk/pkg/logger"
	"pawtalk/pkg/models"
	"pawtalk/pkg/protocol"
	"pawtalk/pkg/store"
	"pawtalk/pkg/utils"
)

type createConversationReq struct {
	ApplicationID string `json:"application_id"`
	PetID         string `json:"pet_id"`
	RescueID      string `json:"rescue_id"`
	Participants  []struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	} `json:"participants"`
}

// createConversation handles POST /v1/conversations. The caller is
// always included as a participant even when omitted from the body.
func (a *API) createConversation(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	var req createConversationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	parts := make([]store.NewParticipant, 0, len(req.Participants)+1)
	callerIncluded := false
	for _, p := range req.Participants {
		role := models.ParticipantRole(p.Role)
		if role == "" {
			role = models.RoleUser
		}
		if p.UserID == pr.UserID {
			callerIncluded = true
		}
		parts = append(parts, store.NewParticipant{UserID: p.UserID, Role: role})
	}
	if !callerIncluded {
		parts = append(parts, store.NewParticipant{UserID: pr.UserID, Role: models.ParticipantRole(pr.Role)})
	}

	conv, err := a.Store.CreateConversation(parts, store.Origin{
		ApplicationID: req.ApplicationID,
		PetID:         req.PetID,
		RescueID:      req.RescueID,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	logger.Info("conversation_created", "conversation", conv.ID, "user", pr.UserID)
	_ = utils.JSONWrite(w, http.StatusCreated, protocol.ConversationToWire(conv))
}

type conversationSummary struct {
	Conversation protocol.WireConversation `json:"conversation"`
	UnreadCount  int                       `json:"unread_count"`
	LastMessage  *protocol.WireMessage     `json:"last_message,omitempty"`
}

// listConversations handles GET /v1/conversations: the caller's
// conversations, most recently active first, with unread counts.
func (a *API) listConversations(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	sums, err := a.Store.ListConversations(pr.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]conversationSummary, 0, len(sums))
	for _, s := range sums {
		cs := conversationSummary{
			Conversation: protocol.ConversationToWire(s.Conversation),
			UnreadCount:  s.UnreadCount,
		}
		if s.LastMessage != nil {
			wm := protocol.MessageToWire(*s.LastMessage)
			cs.LastMessage = &wm
		}
		out = append(out, cs)
	}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

// getConversation handles GET /v1/conversations/{id}. Participants
// only.
func (a *API) getConversation(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if !a.Store.IsParticipant(id, pr.UserID) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	conv, err := a.Store.GetConversation(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, protocol.ConversationToWire(conv))
}

func (a *API) archiveConversation(w http.ResponseWriter, r *http.Request) {
	a.transitionConversation(w, r, a.Store.ArchiveConversation)
}

func (a *API) closeConversation(w http.ResponseWriter, r *http.Request) {
	a.transitionConversation(w, r, a.Store.CloseConversation)
}

func (a *API) transitionConversation(w http.ResponseWriter, r *http.Request, apply func(string) error) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	p, err := a.Store.GetParticipant(id, pr.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	// lifecycle changes are reserved to the rescue side
	if p.Role != models.RoleRescue && p.Role != models.RoleAdmin {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := apply(id); err != nil {
		writeStoreError(w, err)
		return
	}
	conv, err := a.Store.GetConversation(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	a.Hub.NotifyConversation(id, protocol.KindConversationUpdated, protocol.ConversationUpdated{
		Conversation: protocol.ConversationToWire(conv),
	})
	_ = utils.JSONWrite(w, http.StatusOK, protocol.ConversationToWire(conv))
}

type addParticipantReq struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (a *API) addParticipant(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if !a.Store.IsParticipant(id, pr.UserID) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req addParticipantReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	role := models.ParticipantRole(req.Role)
	if role == "" {
		role = models.RoleUser
	}
	if err := a.Store.AddParticipant(id, req.UserID, role); err != nil {
		writeStoreError(w, err)
		return
	}
	a.notifyConversationUpdated(id)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"conversation_id": id, "user_id": req.UserID})
}

func (a *API) removeParticipant(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	id, userID := vars["id"], vars["userID"]
	// participants can remove themselves; rescues can remove anyone
	if userID != pr.UserID {
		p, err := a.Store.GetParticipant(id, pr.UserID)
		if err != nil || (p.Role != models.RoleRescue && p.Role != models.RoleAdmin) {
			utils.JSONError(w, http.StatusForbidden, "forbidden")
			return
		}
	}
	if err := a.Store.RemoveParticipant(id, userID); err != nil {
		writeStoreError(w, err)
		return
	}
	a.notifyConversationUpdated(id)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"conversation_id": id, "user_id": userID})
}

func (a *API) notifyConversationUpdated(id string) {
	conv, err := a.Store.GetConversation(id)
	if err != nil {
		return
	}
	a.Hub.NotifyConversation(id, protocol.KindConversationUpdated, protocol.ConversationUpdated{
		Conversation: protocol.ConversationToWire(conv),
	})
}
