package geminiwebapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPayload assembles the inner JSON-in-JSON body: metadata pair at
// position 1, candidate container at position 4.
func buildPayload(t *testing.T, cid, rid string, candidates []any) string {
	t.Helper()
	payload := []any{nil, []any{cid, rid}, nil, nil, candidates}
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return string(b)
}

// buildBody wraps nested payload strings into the newline-separated wire
// format: preamble, length line, then the envelope array.
func buildBody(t *testing.T, payloads ...string) []byte {
	t.Helper()
	var parts []any
	for _, p := range payloads {
		parts = append(parts, []any{"wrb.fr", nil, p})
	}
	env, err := json.Marshal(parts)
	require.NoError(t, err)
	return []byte(")]}'\n\n" + string(env))
}

func textCandidate(rcid, text string) []any {
	return []any{rcid, []any{text}}
}

func fixtureBody(t *testing.T) []byte {
	t.Helper()
	payload := buildPayload(t, "c1", "r1", []any{textCandidate("ch1", "Hi there")})
	return buildBody(t, payload)
}

func TestDecodeFreshTurn(t *testing.T) {
	out, err := newDecoder(nil, "").decode(http.StatusOK, fixtureBody(t))
	require.NoError(t, err)

	assert.Equal(t, "Hi there", out.Text())
	assert.Equal(t, ConversationMeta{
		ConversationID: "c1",
		ResponseID:     "r1",
		ChoiceID:       "ch1",
	}, out.Meta())
}

func TestDecodeIdempotent(t *testing.T) {
	body := fixtureBody(t)
	first, err := newDecoder(nil, "").decode(http.StatusOK, body)
	require.NoError(t, err)
	second, err := newDecoder(nil, "").decode(http.StatusOK, body)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeMultipleCandidates(t *testing.T) {
	payload := buildPayload(t, "c1", "r1", []any{
		textCandidate("ch1", "first reply"),
		textCandidate("ch2", "second reply"),
	})
	out, err := newDecoder(nil, "").decode(http.StatusOK, buildBody(t, payload))
	require.NoError(t, err)
	require.Len(t, out.Candidates, 2)
	assert.Equal(t, "first reply", out.Text())

	out.Chosen = 1
	assert.Equal(t, "second reply", out.Text())
	assert.Equal(t, "ch2", out.Meta().ChoiceID)
}

func TestDecodeHTMLEntities(t *testing.T) {
	payload := buildPayload(t, "c1", "r1", []any{textCandidate("ch1", "a &lt; b &amp; c")})
	out, err := newDecoder(nil, "").decode(http.StatusOK, buildBody(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "a < b & c", out.Text())
}

func TestDecodeWebImages(t *testing.T) {
	webImage := []any{
		[]any{[]any{"https://example.com/cat.jpg"}, nil, nil, nil, "a cat"},
		nil, nil, nil, nil, nil, nil,
		[]any{"Cat picture"},
	}
	cand := []any{"ch1", []any{"here is a cat"}, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
		[]any{nil, []any{webImage}},
	}
	payload := buildPayload(t, "c1", "r1", []any{cand})
	out, err := newDecoder(nil, "").decode(http.StatusOK, buildBody(t, payload))
	require.NoError(t, err)

	require.Len(t, out.Candidates[0].WebImages, 1)
	img := out.Candidates[0].WebImages[0]
	assert.Equal(t, "https://example.com/cat.jpg", img.URL)
	assert.Equal(t, "Cat picture", img.Title)
	assert.Equal(t, "a cat", img.Alt)
}

func TestDecodeAuthExpiredStatus(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		_, err := newDecoder(nil, "").decode(status, nil)
		var expired *AuthExpiredError
		require.ErrorAs(t, err, &expired)
		assert.Equal(t, status, expired.Status)
	}
}

func TestDecodeControlFramesOnly(t *testing.T) {
	// A session whose cookies expired yields frames without an answer
	// payload; that is the auth-expiry signal, not a parse failure.
	noPayload := `[null,["c1","r1"]]`
	_, err := newDecoder(nil, "").decode(http.StatusOK, buildBody(t, noPayload))
	var expired *AuthExpiredError
	require.ErrorAs(t, err, &expired)
}

func TestDecodeServiceErrorCode(t *testing.T) {
	part := []any{nil, nil, nil, nil, nil, []any{nil, nil, []any{[]any{nil, []any{ErrorUsageLimitExceeded}}}}}
	env, err := json.Marshal([]any{part})
	require.NoError(t, err)
	body := []byte(")]}'\n\n" + string(env))

	_, err = newDecoder(nil, "").decode(http.StatusOK, body)
	var limit *UsageLimitExceeded
	require.ErrorAs(t, err, &limit)
}

func TestDecodeTooManyRequests(t *testing.T) {
	_, err := newDecoder(nil, "").decode(http.StatusTooManyRequests, nil)
	var blocked *TemporarilyBlocked
	require.ErrorAs(t, err, &blocked)
}

func TestDecodeServerError(t *testing.T) {
	_, err := newDecoder(nil, "").decode(http.StatusBadGateway, nil)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Transient)
}

func TestDecodeShortBody(t *testing.T) {
	_, err := newDecoder(nil, "").decode(http.StatusOK, []byte("oops"))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestDecodeTruncatedCandidate(t *testing.T) {
	// Candidate array truncated below the choice-id position: a typed
	// ParseError, never an out-of-range fault.
	payload := buildPayload(t, "c1", "r1", []any{[]any{}})
	_, err := newDecoder(nil, "").decode(http.StatusOK, buildBody(t, payload))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "continuation", parseErr.Stage)
}

func TestDecodeTruncatedMetadata(t *testing.T) {
	payload := `[null,["c1"],null,null,[["ch1",["hello"]]]]`
	_, err := newDecoder(nil, "").decode(http.StatusOK, buildBody(t, payload))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "continuation", parseErr.Stage)
}

func TestDecodeMissingContinuationID(t *testing.T) {
	// A successful turn must yield the full triple; an empty id is a
	// protocol-shape violation.
	payload := buildPayload(t, "", "r1", []any{textCandidate("ch1", "hello")})
	_, err := newDecoder(nil, "").decode(http.StatusOK, buildBody(t, payload))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "continuation", parseErr.Stage)
}
