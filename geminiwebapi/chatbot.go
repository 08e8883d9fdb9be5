package geminiwebapi

import (
	"context"
	"fmt"
	"time"
)

// Chatbot is the blocking facade over GeminiClient: each call runs the
// context-suspending core to completion with a per-call deadline. There is
// one protocol implementation; this type only adds the execution model.
type Chatbot struct {
	client  *GeminiClient
	timeout time.Duration
}

// NewChatbot creates and authenticates a blocking client.
func NewChatbot(secure1psid, secure1psidts string, opts ...Option) (*Chatbot, error) {
	c := NewGeminiClient(secure1psid, secure1psidts, opts...)
	b := &Chatbot{client: c, timeout: c.timeout}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Client exposes the underlying session engine for callers that want the
// context-aware surface.
func (b *Chatbot) Client() *GeminiClient { return b.client }

func (b *Chatbot) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), b.timeout)
}

// Ask sends a turn on the default conversation and blocks until the
// response is decoded.
func (b *Chatbot) Ask(prompt string, opts ...AskOption) (*ModelOutput, error) {
	ctx, cancel := b.callCtx()
	defer cancel()
	return b.client.Ask(ctx, prompt, opts...)
}

// StartChat opens a named multi-turn session.
func (b *Chatbot) StartChat(name string) *ChatSession {
	return &ChatSession{bot: b, name: name}
}

// ResumeChat opens a named session restored from the conversation store.
func (b *Chatbot) ResumeChat(name string) (*ChatSession, error) {
	if err := b.client.RestoreConversation(name); err != nil {
		return nil, err
	}
	return &ChatSession{bot: b, name: name}, nil
}

// ChatSession threads turns onto one named conversation.
type ChatSession struct {
	bot        *Chatbot
	name       string
	lastOutput *ModelOutput
}

func (cs *ChatSession) String() string {
	meta, _ := cs.bot.client.ConversationMeta(cs.name)
	return fmt.Sprintf("ChatSession(name='%s', cid='%s', rid='%s', rcid='%s')",
		cs.name, meta.ConversationID, meta.ResponseID, meta.ChoiceID)
}

// Meta returns the continuation ids the next turn will thread from.
func (cs *ChatSession) Meta() ConversationMeta {
	meta, _ := cs.bot.client.ConversationMeta(cs.name)
	return meta
}

// SendMessage sends one turn on this session.
func (cs *ChatSession) SendMessage(prompt string, opts ...AskOption) (*ModelOutput, error) {
	opts = append(opts, WithConversation(cs.name))
	out, err := cs.bot.Ask(prompt, opts...)
	if err == nil {
		cs.lastOutput = out
	}
	return out, err
}

// ChooseCandidate re-points the session at another candidate of the last
// turn, so the next message threads off that reply.
func (cs *ChatSession) ChooseCandidate(index int) (*ModelOutput, error) {
	if cs.lastOutput == nil {
		return nil, &ValueError{Msg: "No previous output data found in this chat session."}
	}
	if index < 0 || index >= len(cs.lastOutput.Candidates) {
		return nil, &ValueError{Msg: fmt.Sprintf("Index %d exceeds candidate count %d", index, len(cs.lastOutput.Candidates))}
	}
	cs.lastOutput.Chosen = index
	conv := cs.bot.client.conversation(cs.name)
	conv.mu.Lock()
	cs.bot.client.applyTurn(cs.name, conv, cs.lastOutput.Meta())
	conv.mu.Unlock()
	return cs.lastOutput, nil
}

// SaveImages resolves every image of the chosen candidate of the last turn
// into dir and returns the saved paths.
func (cs *ChatSession) SaveImages(dir string) ([]string, error) {
	if cs.lastOutput == nil {
		return nil, &ValueError{Msg: "No previous output data found in this chat session."}
	}
	ctx, cancel := cs.bot.callCtx()
	defer cancel()
	var paths []string
	chosen := cs.lastOutput.Candidates[cs.lastOutput.Chosen]
	for _, wi := range chosen.WebImages {
		p, err := wi.Save(ctx, dir, "")
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	for _, gi := range chosen.GeneratedImages {
		p, err := gi.Save(ctx, dir, "")
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
