package geminiwebapi

import (
	"encoding/json"
	"net/url"
	"unicode/utf8"

	"github.com/tidwall/sjson"
)

// TurnRequest is one outgoing chat turn. Built fresh per call, never reused.
type TurnRequest struct {
	Prompt string
	// UploadRef is the opaque id returned by a preceding upload request; the
	// chat body carries the id, never the bytes.
	UploadRef  string
	UploadName string
	Meta       ConversationMeta
	GemID      string
}

// Sparse positions inside the inner request array, as sjson paths.
const (
	reqPathImageMarker = "49"
	reqPathGemID       = "19"
	imageMarkerValue   = 14
)

// encodeTurn builds the form body the generate endpoint expects: the request
// is a nested array, JSON-encoded into a string, wrapped in an outer array,
// JSON-encoded again, and shipped as the f.req form field next to the
// rotating token.
//
// The continuation triple is always present; for a first turn it is three
// empty strings (omitting the element entirely is rejected by the service).
func encodeTurn(req TurnRequest, token string, imageModel bool) (url.Values, error) {
	if !utf8.ValidString(req.Prompt) {
		return nil, &EncodingError{Msg: "prompt is not valid UTF-8"}
	}

	var item0 any
	if req.UploadRef != "" {
		item0 = []any{req.Prompt, 0, nil, []any{[]any{[]any{req.UploadRef}, req.UploadName}}}
	} else {
		item0 = []any{req.Prompt}
	}

	inner := []any{item0, nil, req.Meta.Triple()}
	innerJSON, err := json.Marshal(inner)
	if err != nil {
		return nil, &EncodingError{Msg: "marshal request body: " + err.Error()}
	}
	if imageModel {
		// sjson pads the array with nulls up to the sparse index.
		if innerJSON, err = sjson.SetBytes(innerJSON, reqPathImageMarker, imageMarkerValue); err != nil {
			return nil, &EncodingError{Msg: "set image marker: " + err.Error()}
		}
	}
	if req.GemID != "" {
		if innerJSON, err = sjson.SetBytes(innerJSON, reqPathGemID, req.GemID); err != nil {
			return nil, &EncodingError{Msg: "set gem id: " + err.Error()}
		}
	}

	outer := []any{nil, string(innerJSON)}
	outerJSON, err := json.Marshal(outer)
	if err != nil {
		return nil, &EncodingError{Msg: "marshal request envelope: " + err.Error()}
	}

	form := url.Values{}
	form.Set("at", token)
	form.Set("f.req", string(outerJSON))
	return form, nil
}
