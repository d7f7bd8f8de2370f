package domain

// TurnStatus is the terminal state of one agent turn.
type TurnStatus string

const (
	// StatusCompleted means the model produced a final text answer.
	StatusCompleted TurnStatus = "completed"

	// StatusRoundLimitExceeded means the model kept requesting tool calls
	// until the round budget ran out.
	StatusRoundLimitExceeded TurnStatus = "round_limit_exceeded"
)

// Usage tracks resource consumption across LLM interactions.
type Usage struct {
	// Tokens is the cumulative input plus output token count.
	Tokens int64 `json:"tokens"`

	// Calls is the cumulative number of model requests.
	Calls int64 `json:"calls"`
}

// Add returns the element-wise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{Tokens: u.Tokens + other.Tokens, Calls: u.Calls + other.Calls}
}

// TurnResult is what an agent returns for a single request.
type TurnResult struct {
	// Agent is the name of the agent that produced this result.
	Agent string `json:"agent"`

	// Answer is the final natural-language response. It is empty when the
	// round limit was exceeded.
	Answer string `json:"answer"`

	// Trace holds every tool invocation made during the turn, including
	// those made by delegated specialists, in execution order.
	Trace CallTrace `json:"trace"`

	Status TurnStatus `json:"status"`

	// Rounds counts model requests made at this agent's level.
	Rounds int `json:"rounds"`

	// Usage aggregates this agent's and all nested agents' consumption.
	Usage Usage `json:"usage"`
}
