package app

// ExchangeState names the steps of one chat exchange.
type ExchangeState string

const (
	StateStart                     ExchangeState = "start"
	StateSessionEnsured            ExchangeState = "session_ensured"
	StateUserMessagePersisted      ExchangeState = "user_message_persisted"
	StateContextBuilt              ExchangeState = "context_built"
	StateAIAttempted               ExchangeState = "ai_attempted"
	StateAISucceeded               ExchangeState = "ai_succeeded"
	StateAIFailed                  ExchangeState = "ai_failed"
	StateFallbackAnswered          ExchangeState = "fallback_answered"
	StateAssistantMessagePersisted ExchangeState = "assistant_message_persisted"
	StateDone                      ExchangeState = "done"
)

// exchange is the per-request state. It is never persisted.
type exchange struct {
	sessionID string
	message   string

	state  ExchangeState
	states []ExchangeState

	userMessageID      uint
	assistantMessageID uint
	reply              string
	source             string
}

func newExchange(sessionID, message string) *exchange {
	return &exchange{
		sessionID: sessionID,
		message:   message,
		state:     StateStart,
		states:    []ExchangeState{StateStart},
	}
}

func (x *exchange) advance(next ExchangeState) {
	x.state = next
	x.states = append(x.states, next)
}
