package schemas

// ActionType is the vocabulary of UI-automation steps the model may propose.
type ActionType string

const (
	ActionClick     ActionType = "click"
	ActionTypeText  ActionType = "type"
	ActionNavigate  ActionType = "navigate"
	ActionScroll    ActionType = "scroll"
	ActionHighlight ActionType = "highlight"
	ActionExtract   ActionType = "extract"
	ActionSelect    ActionType = "select"
)

// ActionTypes lists the recognized action types in the order they are documented to the model.
var ActionTypes = []ActionType{
	ActionClick,
	ActionTypeText,
	ActionNavigate,
	ActionScroll,
	ActionHighlight,
	ActionExtract,
	ActionSelect,
}

// Valid reports whether t belongs to the recognized vocabulary.
func (t ActionType) Valid() bool {
	for _, known := range ActionTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t ActionType) String() string { return string(t) }

// DefaultActionLabel is used when the model supplies neither a label nor a description.
const DefaultActionLabel = "Execute Action"

// Action is a structured suggestion for a UI-automation step.
type Action struct {
	Type        ActionType     `json:"type"`
	Selector    string         `json:"selector"`
	Value       string         `json:"value,omitempty"`
	Label       string         `json:"label"`
	Description string         `json:"description"`
	Options     map[string]any `json:"options"`
}

// Dispatchable reports whether the action can be sent to the page host.
// Actions without a selector are informational only.
func (a Action) Dispatchable() bool {
	return a.Type.Valid() && a.Selector != ""
}

// ModelReply is the parsed form of a model completion.
type ModelReply struct {
	Response string   `json:"response"`
	Actions  []Action `json:"actions"`
}

// ModelParams are the per-request generation preferences chosen by the user.
type ModelParams struct {
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature"`
}

// CommandRequest is constructed once per user-initiated execute and is not retained.
type CommandRequest struct {
	UserCommand string        `json:"userCommand"`
	Snapshot    *PageSnapshot `json:"snapshot"`
	APIKey      string        `json:"-"`
	Provider    string        `json:"provider,omitempty"`
	ModelParams ModelParams   `json:"modelParams"`
}

// CommandResponse is what the UI receives for a command.
type CommandResponse struct {
	Success    bool     `json:"success"`
	AIResponse string   `json:"aiResponse,omitempty"`
	Actions    []Action `json:"actions,omitempty"`
	Error      string   `json:"error,omitempty"`
	ErrorKind  string   `json:"kind,omitempty"`
	RequestID  string   `json:"requestId,omitempty"`
}

// DispatchRequest carries a single action chosen by the user.
type DispatchRequest struct {
	Action Action `json:"action"`
}

// DispatchResult reports the outcome of a best-effort action execution.
type DispatchResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
