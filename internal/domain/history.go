package domain

// HistoryCapacity is the number of messages a History retains: the last
// five user/assistant exchanges.
const HistoryCapacity = 10

// History is a fixed-capacity ring buffer of conversation messages.
//
// History is a value type. The ring is an array, so assigning or passing a
// History copies the whole buffer; Append works on the receiver copy and
// returns it, leaving the caller's value untouched. Callers own their
// History and hand it to each turn explicitly.
//
// The zero value is an empty history ready for use.
type History struct {
	ring [HistoryCapacity]Message
	head int
	size int
}

// NewHistory returns a History holding the trailing HistoryCapacity
// messages of msgs.
func NewHistory(msgs ...Message) History {
	var h History
	return h.Append(msgs...)
}

// Append returns a copy of h with msgs added. When the buffer is full the
// oldest messages are overwritten.
func (h History) Append(msgs ...Message) History {
	for _, m := range msgs {
		if h.size < HistoryCapacity {
			h.ring[(h.head+h.size)%HistoryCapacity] = m
			h.size++
			continue
		}
		h.ring[h.head] = m
		h.head = (h.head + 1) % HistoryCapacity
	}
	return h
}

// AppendExchange records one completed user/assistant exchange.
func (h History) AppendExchange(userInput, answer string) History {
	return h.Append(UserMessage(userInput), AssistantMessage(answer))
}

// Len returns the number of retained messages.
func (h History) Len() int { return h.size }

// Messages returns the retained messages, oldest first, in a fresh slice.
func (h History) Messages() []Message {
	out := make([]Message, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.ring[(h.head+i)%HistoryCapacity])
	}
	return out
}
