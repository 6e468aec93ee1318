package handlers

import (
	"net/http"

	"fedbox/application/queries"
	querybus "fedbox/application/queries/bus"
	"fedbox/interfaces/http/rest/middleware"
	"fedbox/pkg/common"
	apperrors "fedbox/pkg/errors"
)

// ObjectHandler serves GET requests for any IRI under a served prefix
// by rendering the requester's authorized view of the node.
type ObjectHandler struct {
	queryBus *querybus.QueryBus
	errors   *apperrors.ErrorHandler
}

// NewObjectHandler creates the handler.
func NewObjectHandler(queryBus *querybus.QueryBus, errors *apperrors.ErrorHandler) *ObjectHandler {
	return &ObjectHandler{queryBus: queryBus, errors: errors}
}

// Get handles GET for an arbitrary path.
func (h *ObjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !common.AcceptsActivityStreams(r) {
		common.RespondJSON(w, http.StatusNotAcceptable, map[string]string{"error": "unsupported Accept header"})
		return
	}

	iri := middleware.RequestPrefix(r) + r.URL.Path
	actor, _ := common.GetActor(r.Context())
	if !common.IsAuthenticated(r.Context()) {
		actor = ""
	}

	result, err := h.queryBus.Ask(r.Context(), &queries.GetObject{
		IRI:      iri,
		ActorIRI: actor,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	doc, ok := result.(*queries.GetObjectResult)
	if !ok {
		h.errors.Handle(w, r, apperrors.NewInternalError("unexpected query result type"))
		return
	}
	common.RespondActivityDocument(w, http.StatusOK, doc.Document)
}
