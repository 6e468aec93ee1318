package common

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
)

// Wire content types for the ActivityStreams vocabulary.
const (
	ContentTypeLDJSON       = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`
	ContentTypeActivityJSON = "application/activity+json"
)

// AcceptsActivityStreams reports whether the request negotiates the
// ActivityStreams wire format.
func AcceptsActivityStreams(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return true
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mediaType {
		case "application/ld+json", "application/activity+json", "application/json", "*/*":
			return true
		}
	}
	return false
}

// IsActivityStreams reports whether the request body is declared as
// an ActivityStreams document.
func IsActivityStreams(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mediaType {
	case "application/ld+json", "application/activity+json", "application/json":
		return true
	}
	return false
}

// RespondActivityJSON writes an ActivityStreams document.
func RespondActivityJSON(w http.ResponseWriter, status int, doc map[string]interface{}) {
	w.Header().Set("Content-Type", ContentTypeLDJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(doc)
}

// RespondActivityDocument writes an already-encoded ActivityStreams
// document.
func RespondActivityDocument(w http.ResponseWriter, status int, doc []byte) {
	w.Header().Set("Content-Type", ContentTypeLDJSON)
	w.WriteHeader(status)
	w.Write(doc)
}

// RespondJSON sends a plain JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ParseJSONBody parses JSON request body with size limit
func ParseJSONBody(r *http.Request, v interface{}, maxBytes int64) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	return decoder.Decode(v)
}
