package domain

// Sender identifies which side of the conversation authored a message.
type Sender string

const (
	// SenderUser marks a message typed by the user.
	SenderUser Sender = "user"
	// SenderAgent marks a message authored by the agent.
	SenderAgent Sender = "agent"
)

// Message is a single conversation entry. Ordering is append-only; a
// message's position in the transcript is its sole ordering key.
type Message struct {
	Sender   Sender `json:"sender"`
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// Transcript is the ordered conversation history for one agent.
type Transcript []Message

// Clone returns an independent copy of the transcript so callers can
// hand out snapshots without exposing the backing slice.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// LastMessage returns the most recent message, or false when empty.
func (t Transcript) LastMessage() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}
