package handlers

import (
	"io"
	"net/http"

	"fedbox/application/commands"
	commandbus "fedbox/application/commands/bus"
	"fedbox/interfaces/http/rest/middleware"
	"fedbox/pkg/common"
	apperrors "fedbox/pkg/errors"
)

const maxDocumentBytes = 1 << 20

// BoxHandler accepts activity documents posted to inbox and outbox
// paths under a served prefix.
type BoxHandler struct {
	commandBus *commandbus.CommandBus
	errors     *apperrors.ErrorHandler
}

// NewBoxHandler creates the handler.
func NewBoxHandler(commandBus *commandbus.CommandBus, errors *apperrors.ErrorHandler) *BoxHandler {
	return &BoxHandler{commandBus: commandBus, errors: errors}
}

// Post handles POST for an arbitrary path.
func (h *BoxHandler) Post(w http.ResponseWriter, r *http.Request) {
	if !common.IsActivityStreams(r.Header.Get("Content-Type")) {
		common.RespondJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "expected an ActivityStreams document"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentBytes+1))
	if err != nil {
		h.errors.Handle(w, r, apperrors.NewValidationError("reading request body"))
		return
	}
	if len(body) > maxDocumentBytes {
		common.RespondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "document too large"})
		return
	}

	actor, _ := common.GetActor(r.Context())
	if !common.IsAuthenticated(r.Context()) {
		actor = ""
	}

	cmd := &commands.IngestActivity{
		Document: body,
		BoxIRI:   middleware.RequestPrefix(r) + r.URL.Path,
		ActorIRI: actor,
	}
	if err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	w.Header().Set("Location", cmd.Result.Value)
	common.RespondJSON(w, http.StatusCreated, map[string]string{"id": cmd.Result.Value})
}
