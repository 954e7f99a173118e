package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"finance-assistant/internal/app"
	"finance-assistant/internal/core"
	"finance-assistant/internal/workflow"
)

type chatRequest struct {
	User    string `json:"user"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// chat handles POST /api/chat. The reply always has status 200; failures are
// described in the reply's result.
func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	handle, name, ok := h.webCaller(w, r, req.User, req.Name)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, "message is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	reply := h.svc.HandleMessage(r.Context(), app.InboundMessage{
		Channel:     core.ChannelWeb,
		Handle:      handle,
		DisplayName: name,
		Text:        req.Message,
	})
	writeJSON(w, reply)
}

type workflowRequest struct {
	User     string          `json:"user"`
	Workflow json.RawMessage `json:"workflow"`
}

// runWorkflow handles POST /api/workflows. A workflow that stops part way is
// still a 200: the execution record says which step failed.
func (h *Handler) runWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	handle, name, ok := h.webCaller(w, r, req.User, "")
	if !ok {
		return
	}
	def, err := workflow.ParseDefinition(req.Workflow)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	user, err := h.svc.IdentifyUser(r.Context(), core.ChannelWeb, handle, name)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	exec, err := h.svc.RunWorkflow(r.Context(), user.ID, def)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, exec)
}

// webCaller returns the caller's handle: the token subject when bearer auth is
// on, otherwise the user named in the body.
func (h *Handler) webCaller(w http.ResponseWriter, r *http.Request, bodyUser, bodyName string) (string, string, bool) {
	if id := identityFromContext(r.Context()); id != nil {
		return id.Handle, id.Name, true
	}
	if h.opts.JWTSecret != "" {
		writeError(w, r, "authentication required", "UNAUTHORIZED", http.StatusUnauthorized)
		return "", "", false
	}
	bodyUser = strings.TrimSpace(bodyUser)
	if bodyUser == "" {
		writeError(w, r, "user is required", "BAD_REQUEST", http.StatusBadRequest)
		return "", "", false
	}
	return bodyUser, bodyName, true
}
