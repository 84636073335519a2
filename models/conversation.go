package models

// Turn is one completed exchange. It is appended to a history only after an
// answer was produced and is never edited.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ConversationHistory is the ordered list of turns of one conversation.
// Insertion order defines recency. The zero value is an empty history.
//
// A history belongs to its caller; it is not safe for concurrent use.
type ConversationHistory struct {
	turns []Turn
}

// NewConversationHistory builds a history from existing turns, oldest first.
func NewConversationHistory(turns ...Turn) *ConversationHistory {
	h := &ConversationHistory{}
	h.turns = append(h.turns, turns...)
	return h
}

// Append records a completed turn as the most recent one.
func (h *ConversationHistory) Append(question, answer string) {
	h.turns = append(h.turns, Turn{Question: question, Answer: answer})
}

// Clear drops every turn.
func (h *ConversationHistory) Clear() {
	h.turns = nil
}

// Len returns the number of turns. A nil history has length 0.
func (h *ConversationHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.turns)
}

// IsEmpty reports whether there is no prior turn.
func (h *ConversationHistory) IsEmpty() bool { return h.Len() == 0 }

// Turns returns a copy of the turns, oldest first.
func (h *ConversationHistory) Turns() []Turn {
	if h == nil {
		return nil
	}
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Last returns the most recent turn.
func (h *ConversationHistory) Last() (Turn, bool) {
	if h.Len() == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}
