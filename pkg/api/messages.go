package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"pawtalk/pkg/models"
	"pawtalk/pkg/protocol"
	"pawtalk/pkg/utils"
)

// listMessages handles GET /v1/conversations/{id}/messages. Pages walk
// backwards in time: "before" is the opaque cursor echoed as
// next_before by the previous page, the newest page is returned when it
// is absent. The cursor keeps the store's full timestamp precision, so
// messages sharing a coarser wire timestamp are never skipped.
func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if !a.Store.IsParticipant(id, pr.UserID) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	limit := a.pageSize(queryInt(r, "limit", 0))
	page, err := a.Store.ListMessages(id, queryInt64(r, "before", 0), limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := struct {
		Messages   []protocol.WireMessage `json:"messages"`
		HasMore    bool                   `json:"has_more"`
		NextBefore int64                  `json:"next_before,omitempty"`
	}{Messages: make([]protocol.WireMessage, 0, len(page.Messages)), HasMore: page.HasMore}
	for _, m := range page.Messages {
		out.Messages = append(out.Messages, protocol.MessageToWire(m))
	}
	if page.HasMore && len(page.Messages) > 0 {
		out.NextBefore = page.Messages[len(page.Messages)-1].CreatedTS
	}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

type postMessageReq struct {
	Content     string                    `json:"content"`
	Format      string                    `json:"format"`
	Attachments []protocol.WireAttachment `json:"attachments"`
}

// postMessage handles POST /v1/conversations/{id}/messages, the REST
// twin of the websocket send event.
func (a *API) postMessage(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	var req postMessageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	format := models.ContentFormat(req.Format)
	if format == "" {
		format = models.FormatPlain
	}
	msg, err := a.Store.AppendMessage(id, pr.UserID, req.Content, format, protocol.AttachmentsFromWire(req.Attachments))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	wm := protocol.MessageToWire(msg)
	a.Hub.NotifyConversation(id, protocol.KindMessageCreated, protocol.MessageCreated{Message: wm})
	_ = utils.JSONWrite(w, http.StatusCreated, wm)
}

type editMessageReq struct {
	Content string `json:"content"`
}

// editMessage handles PUT /v1/messages/{id}. Sender only.
func (a *API) editMessage(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	var req editMessageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	msg, err := a.Store.EditMessage(id, pr.UserID, req.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	wm := protocol.MessageToWire(msg)
	a.Hub.NotifyConversation(msg.ConversationID, protocol.KindMessageUpdated, protocol.MessageUpdated{Message: wm})
	_ = utils.JSONWrite(w, http.StatusOK, wm)
}

// deleteMessage handles DELETE /v1/messages/{id}. Soft delete: the
// tombstone keeps its place in history.
func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	msg, err := a.Store.SoftDeleteMessage(id, pr.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	a.Hub.NotifyConversation(msg.ConversationID, protocol.KindMessageDeleted, protocol.MessageDeleted{
		ConversationID: msg.ConversationID,
		MessageID:      id,
	})
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"message_id": id})
}

// listVersions handles GET /v1/messages/{id}/versions: the full edit
// history, oldest first.
func (a *API) listVersions(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	msg, err := a.Store.GetMessage(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !a.Store.IsParticipant(msg.ConversationID, pr.UserID) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	versions, err := a.Store.ListMessageVersions(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]protocol.WireMessage, 0, len(versions))
	for _, v := range versions {
		out = append(out, protocol.MessageToWire(v))
	}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

type markReadReq struct {
	UpToMessageID string `json:"up_to_message_id"`
}

// markRead handles POST /v1/conversations/{id}/read.
func (a *API) markRead(w http.ResponseWriter, r *http.Request) {
	pr, ok := principal(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	var req markReadReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := a.Store.MarkRead(id, pr.UserID, req.UpToMessageID); err != nil {
		writeStoreError(w, err)
		return
	}
	a.Hub.NotifyConversation(id, protocol.KindReadReceiptChanged, protocol.ReadReceiptChanged{
		ConversationID: id,
		UserID:         pr.UserID,
		UpToMessageID:  req.UpToMessageID,
		ReadAt:         time.Now().UnixMilli(),
	})
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"conversation_id": id})
}
