package geminiwebapi

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	reCardContent = regexp.MustCompile(`^http://googleusercontent\.com/card_content/\d+`)
	reGenContent  = regexp.MustCompile(`http://googleusercontent\.com/image_generation_content/\d+`)
)

// decoder turns the raw generate-endpoint body into a ModelOutput. The body
// is not one JSON document: it is a preamble plus newline-separated JSON
// lines whose elements are positionally significant. Every positional access
// goes through the path table and is existence-checked first; a shape
// mismatch surfaces as ParseError, never as an index fault.
type decoder struct {
	paths   pathTable
	proxy   string
	cookies map[string]string
}

func newDecoder(cookies map[string]string, proxy string) *decoder {
	return &decoder{paths: defaultPaths, cookies: cookies, proxy: proxy}
}

// decode consumes the HTTP status and body of a generate call.
//
// Auth expiry is signalled two ways: a 401/403 status, or a body that
// carries only control frames with no answer payload (the service's form of
// a silent session expiry). Both short-circuit into AuthExpiredError so the
// session engine can run its single reauthentication cycle.
func (d *decoder) decode(status int, body []byte) (*ModelOutput, error) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, &AuthExpiredError{Status: status}
	case status == http.StatusTooManyRequests:
		return nil, &TemporarilyBlocked{GeminiError{Msg: "Too many requests. IP temporarily blocked."}}
	case status != http.StatusOK:
		return nil, &NetworkError{
			Msg:       fmt.Sprintf("generate request failed: status %d", status),
			Status:    status,
			Transient: status >= 500,
		}
	}

	lines := strings.Split(string(body), "\n")
	if len(lines) < 3 {
		return nil, &ParseError{Stage: "envelope", Msg: "response body too short"}
	}

	payload, envelope, bodyIndex, err := d.locatePayload(lines)
	if err != nil {
		return nil, err
	}

	return d.extract(payload, envelope, bodyIndex)
}

// locatePayload finds the envelope part whose nested JSON body carries the
// candidate container. Earlier parts are service metadata; the payload is
// identified by shape, not by position in the whole body.
func (d *decoder) locatePayload(lines []string) (gjson.Result, gjson.Result, int, error) {
	var lastEnvelope gjson.Result
	sawEnvelope := false

	for li := 2; li < len(lines); li++ {
		line := strings.TrimSpace(lines[li])
		if line == "" || !gjson.Valid(line) {
			continue
		}
		envelope := gjson.Parse(line)
		if !envelope.IsArray() {
			continue
		}
		lastEnvelope = envelope
		sawEnvelope = true
		parts := envelope.Array()
		for i, part := range parts {
			payload, ok := nestedPayload(part)
			if !ok {
				continue
			}
			if cand := payload.Get(d.paths.CandList); cand.Exists() && cand.Type != gjson.Null {
				return payload, envelope, i, nil
			}
		}
	}

	if !sawEnvelope {
		return gjson.Result{}, gjson.Result{}, 0, &ParseError{Stage: "envelope", Msg: "no JSON line found in response"}
	}

	// Control frames only. Check the nested error code before concluding the
	// session expired.
	if code := lastEnvelope.Get(d.paths.ErrorCode); code.Exists() {
		if err := serviceError(int(code.Int())); err != nil {
			return gjson.Result{}, gjson.Result{}, 0, err
		}
	}
	return gjson.Result{}, gjson.Result{}, 0, &AuthExpiredError{}
}

// nestedPayload extracts the JSON-encoded string at part[2], the second
// decode pass of the JSON-within-JSON wire format.
func nestedPayload(part gjson.Result) (gjson.Result, bool) {
	if !part.IsArray() {
		return gjson.Result{}, false
	}
	arr := part.Array()
	if len(arr) < 3 || arr[2].Type != gjson.String {
		return gjson.Result{}, false
	}
	if !gjson.Valid(arr[2].Str) {
		return gjson.Result{}, false
	}
	return gjson.Parse(arr[2].Str), true
}

// serviceError maps a nested error code to its typed error, or nil when the
// code is not a known terminal condition.
func serviceError(code int) error {
	switch code {
	case ErrorUsageLimitExceeded:
		return &UsageLimitExceeded{GeminiError{Msg: "Usage limit exceeded. Please try switching to another model."}}
	case ErrorModelInconsistent:
		return &ModelInvalid{GeminiError{Msg: "Selected model is inconsistent or unavailable."}}
	case ErrorModelHeaderInvalid:
		return &ModelInvalid{GeminiError{Msg: "Invalid model header string. Please update the selected model header."}}
	case ErrorIPTemporarilyBlocked:
		return &TemporarilyBlocked{GeminiError{Msg: "Too many requests. IP temporarily blocked."}}
	default:
		return nil
	}
}

func (d *decoder) extract(payload, envelope gjson.Result, bodyIndex int) (*ModelOutput, error) {
	meta := payload.Get(d.paths.Metadata)
	if !meta.IsArray() {
		return nil, &ParseError{Stage: "continuation", Msg: "metadata pair missing from payload"}
	}
	metaArr := meta.Array()
	if len(metaArr) < 2 || metaArr[0].Type != gjson.String || metaArr[1].Type != gjson.String {
		return nil, &ParseError{Stage: "continuation", Msg: "conversation/response ids missing from payload"}
	}
	cid := metaArr[0].Str
	rid := metaArr[1].Str
	if cid == "" || rid == "" {
		return nil, &ParseError{Stage: "continuation", Msg: "empty conversation/response id in successful response"}
	}

	candList := payload.Get(d.paths.CandList)
	if !candList.IsArray() {
		return nil, &ParseError{Stage: "candidates", Msg: "candidate container is not an array"}
	}

	var candidates []Candidate
	for ci, cand := range candList.Array() {
		parsed, err := d.extractCandidate(cand, envelope, bodyIndex, ci)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, parsed)
	}
	if len(candidates) == 0 {
		return nil, &ParseError{Stage: "candidates", Msg: "no output data found in response"}
	}

	return &ModelOutput{
		ConversationID: cid,
		ResponseID:     rid,
		Candidates:     candidates,
		Chosen:         0,
	}, nil
}

func (d *decoder) extractCandidate(cand, envelope gjson.Result, bodyIndex, ci int) (Candidate, error) {
	rcid := cand.Get(d.paths.CandRCID)
	if rcid.Type != gjson.String || rcid.Str == "" {
		return Candidate{}, &ParseError{Stage: "continuation", Msg: "candidate choice id missing"}
	}

	text := cand.Get(d.paths.CandText).String()
	if reCardContent.MatchString(text) {
		if alt := cand.Get(d.paths.CandTextAlt); alt.Type == gjson.String {
			text = alt.Str
		}
	}

	var thoughts *string
	if th := cand.Get(d.paths.CandThoughts); th.Type == gjson.String {
		s := decodeHTML(th.Str)
		thoughts = &s
	}

	var webImages []WebImage
	if imgs := cand.Get(d.paths.CandWebImages); imgs.IsArray() {
		for _, wi := range imgs.Array() {
			webImages = append(webImages, WebImage{Image: Image{
				URL:   wi.Get(d.paths.WebImgURL).String(),
				Title: wi.Get(d.paths.WebImgTitle).String(),
				Alt:   wi.Get(d.paths.WebImgAlt).String(),
				Proxy: d.proxy,
			}})
		}
	}

	var genImages []GeneratedImage
	if flag := cand.Get(d.paths.CandGenFlag); flag.Exists() && flag.Type != gjson.Null {
		var err error
		if text, genImages, err = d.extractGenerated(envelope, bodyIndex, ci, text); err != nil {
			return Candidate{}, err
		}
	}

	return Candidate{
		RCID:            rcid.Str,
		Text:            decodeHTML(text),
		Thoughts:        thoughts,
		WebImages:       webImages,
		GeneratedImages: genImages,
	}, nil
}

// extractGenerated locates the envelope part carrying the finalized image
// payload for candidate ci. Image generation streams in a later part than
// the text payload, so the scan starts at the part the text came from.
func (d *decoder) extractGenerated(envelope gjson.Result, bodyIndex, ci int, text string) (string, []GeneratedImage, error) {
	parts := envelope.Array()
	candPath := d.paths.CandList + "." + strconv.Itoa(ci)

	var imgCand gjson.Result
	found := false
	for pi := bodyIndex; pi < len(parts); pi++ {
		payload, ok := nestedPayload(parts[pi])
		if !ok {
			continue
		}
		c := payload.Get(candPath)
		if !c.Exists() {
			continue
		}
		if list := c.Get(d.paths.CandGenImages); list.IsArray() {
			imgCand = c
			found = true
			break
		}
	}
	if !found {
		return "", nil, &ParseError{Stage: "generated images", Msg: "no finalized image payload found"}
	}

	if t := imgCand.Get(d.paths.CandText); t.Type == gjson.String {
		text = strings.TrimSpace(reGenContent.ReplaceAllString(t.Str, ""))
	}

	var out []GeneratedImage
	list := imgCand.Get(d.paths.CandGenImages)
	for ii, gi := range list.Array() {
		urlStr := gi.Get(d.paths.GenImgURL).String()
		if urlStr == "" {
			continue
		}
		title := "[Generated Image]"
		if num := gi.Get(d.paths.GenImgNum); num.Type == gjson.Number && num.Int() != 0 {
			title = fmt.Sprintf("[Generated Image %d]", num.Int())
		}
		alt := ""
		if alts := gi.Get(d.paths.GenImgAlts); alts.IsArray() {
			arr := alts.Array()
			if ii < len(arr) && arr[ii].Type == gjson.String {
				alt = arr[ii].Str
			} else if len(arr) > 0 && arr[0].Type == gjson.String {
				alt = arr[0].Str
			}
		}
		out = append(out, GeneratedImage{
			Image:   Image{URL: urlStr, Title: title, Alt: alt, Proxy: d.proxy},
			Cookies: copyCookies(d.cookies),
		})
	}
	return text, out, nil
}
