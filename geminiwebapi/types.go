package geminiwebapi

import (
	"fmt"
	"html"
)

// ConversationMeta is the continuation triple the service uses to thread a
// multi-turn dialogue. The three ids are set together after a successful
// turn, never independently.
type ConversationMeta struct {
	ConversationID string `json:"conversation_id"`
	ResponseID     string `json:"response_id"`
	ChoiceID       string `json:"choice_id"`
}

// Triple returns the ids in wire order (cid, rid, rcid). A brand-new
// conversation yields three empty strings, which is the valid form for a
// first turn.
func (m ConversationMeta) Triple() []string {
	return []string{m.ConversationID, m.ResponseID, m.ChoiceID}
}

// IsZero reports whether no turn has been applied yet.
func (m ConversationMeta) IsZero() bool {
	return m.ConversationID == "" && m.ResponseID == "" && m.ChoiceID == ""
}

func (m ConversationMeta) String() string {
	return fmt.Sprintf("ConversationMeta(cid='%s', rid='%s', rcid='%s')", m.ConversationID, m.ResponseID, m.ChoiceID)
}

// Candidate is one alternative reply within a single turn.
type Candidate struct {
	RCID            string
	Text            string
	Thoughts        *string
	WebImages       []WebImage
	GeneratedImages []GeneratedImage
}

func (c Candidate) String() string {
	t := c.Text
	if len(t) > 20 {
		t = t[:20] + "..."
	}
	return fmt.Sprintf("Candidate(rcid='%s', text='%s', images=%d)", c.RCID, t, len(c.WebImages)+len(c.GeneratedImages))
}

func (c Candidate) Images() []Image {
	images := make([]Image, 0, len(c.WebImages)+len(c.GeneratedImages))
	for _, wi := range c.WebImages {
		images = append(images, wi.Image)
	}
	for _, gi := range c.GeneratedImages {
		images = append(images, gi.Image)
	}
	return images
}

// ModelOutput is a decoded turn response.
type ModelOutput struct {
	ConversationID string
	ResponseID     string
	Candidates     []Candidate
	Chosen         int
}

func (m ModelOutput) String() string { return m.Text() }

func (m ModelOutput) Text() string {
	if len(m.Candidates) == 0 {
		return ""
	}
	return m.Candidates[m.Chosen].Text
}

func (m ModelOutput) Thoughts() *string {
	if len(m.Candidates) == 0 {
		return nil
	}
	return m.Candidates[m.Chosen].Thoughts
}

func (m ModelOutput) Images() []Image {
	if len(m.Candidates) == 0 {
		return nil
	}
	return m.Candidates[m.Chosen].Images()
}

func (m ModelOutput) RCID() string {
	if len(m.Candidates) == 0 {
		return ""
	}
	return m.Candidates[m.Chosen].RCID
}

// Meta returns the continuation triple of the chosen candidate.
func (m ModelOutput) Meta() ConversationMeta {
	return ConversationMeta{
		ConversationID: m.ConversationID,
		ResponseID:     m.ResponseID,
		ChoiceID:       m.RCID(),
	}
}

func decodeHTML(s string) string { return html.UnescapeString(s) }
