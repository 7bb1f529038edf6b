package conversation

import (
	"github.com/BaSui01/agentcrew/types"
)

// Transcript is the append-only message history of one conversation.
// It is owned by the conversation loop and is not safe for concurrent use.
type Transcript struct {
	messages []types.Message
}

// NewTranscript creates a transcript seeded with the given messages.
func NewTranscript(seed ...types.Message) *Transcript {
	t := &Transcript{messages: make([]types.Message, 0, len(seed)+8)}
	t.messages = append(t.messages, seed...)
	return t
}

// Append adds msg at the end of the transcript.
func (t *Transcript) Append(msg types.Message) {
	t.messages = append(t.messages, msg)
}

// Len returns the number of messages.
func (t *Transcript) Len() int { return len(t.messages) }

// Last returns the most recent message.
func (t *Transcript) Last() (types.Message, bool) {
	if len(t.messages) == 0 {
		return types.Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Messages returns a copy of the whole history.
func (t *Transcript) Messages() []types.Message {
	return append([]types.Message(nil), t.messages...)
}

// Since returns a copy of the messages appended at or after index n.
func (t *Transcript) Since(n int) []types.Message {
	if n < 0 {
		n = 0
	}
	if n >= len(t.messages) {
		return nil
	}
	return append([]types.Message(nil), t.messages[n:]...)
}

// ParticipantTurns counts the messages produced by participants.
func (t *Transcript) ParticipantTurns() int {
	return participantTurns(t.messages)
}

func participantTurns(msgs []types.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == types.RoleAssistant {
			n++
		}
	}
	return n
}

// lastParticipantMessage 返回最近一条参与者消息（跳过种子与用户消息）。
func lastParticipantMessage(msgs []types.Message) (types.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == types.RoleAssistant {
			return msgs[i], true
		}
	}
	return types.Message{}, false
}
