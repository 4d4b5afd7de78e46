package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aristman/ride-core/internal/domain/plan"
)

// Message type tags. Requests select a capability/operation; events announce
// orchestration state to any interested subscriber.
const (
	MsgExecuteStep = "step.execute"

	EvtPlanStatus   = "plan.status"
	EvtPlanProgress = "plan.progress"
	EvtStepStatus   = "step.status"
	EvtAgentOnline  = "agent.online"
)

// PayloadKind discriminates the closed set of payload variants.
type PayloadKind string

const (
	KindText            PayloadKind = "text"
	KindAnalysis        PayloadKind = "analysis"
	KindFileListing     PayloadKind = "file_listing"
	KindProgress        PayloadKind = "progress"
	KindExecutionStatus PayloadKind = "execution_status"
	KindError           PayloadKind = "error"
	KindKeyValue        PayloadKind = "key_value"
	KindAgentInfo       PayloadKind = "agent_info"
)

// Payload is the closed tagged union of message bodies. The unexported method
// seals the set so both ends can deserialize without ambiguity.
type Payload interface {
	Kind() PayloadKind
	isPayload()
}

// TextPayload carries free-form text.
type TextPayload struct {
	Text string `json:"text"`
}

// AnalysisPayload carries a request classification result.
type AnalysisPayload struct {
	Analysis plan.Analysis `json:"analysis"`
}

// FileListingPayload carries a project file listing artifact.
type FileListingPayload struct {
	Root  string   `json:"root,omitempty"`
	Files []string `json:"files"`
}

// ProgressPayload carries a plan progress update.
type ProgressPayload struct {
	PlanID         string  `json:"plan_id"`
	StepID         string  `json:"step_id,omitempty"`
	CompletedSteps int     `json:"completed_steps"`
	TotalSteps     int     `json:"total_steps"`
	Fraction       float64 `json:"fraction"`
}

// StatusPayload carries a plan execution status change.
type StatusPayload struct {
	PlanID string `json:"plan_id"`
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// ErrorPayload carries a structured error.
type ErrorPayload struct {
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// KeyValuePayload carries generic structured data, the lingua franca of step
// inputs and outputs.
type KeyValuePayload struct {
	Values map[string]any `json:"values"`
}

// AgentInfoPayload announces an executor agent and its capabilities.
type AgentInfoPayload struct {
	Name         string   `json:"name"`
	Version      string   `json:"version,omitempty"`
	Capabilities []string `json:"capabilities"`
}

func (TextPayload) Kind() PayloadKind        { return KindText }
func (AnalysisPayload) Kind() PayloadKind    { return KindAnalysis }
func (FileListingPayload) Kind() PayloadKind { return KindFileListing }
func (ProgressPayload) Kind() PayloadKind    { return KindProgress }
func (StatusPayload) Kind() PayloadKind      { return KindExecutionStatus }
func (ErrorPayload) Kind() PayloadKind       { return KindError }
func (KeyValuePayload) Kind() PayloadKind    { return KindKeyValue }
func (AgentInfoPayload) Kind() PayloadKind   { return KindAgentInfo }

func (TextPayload) isPayload()        {}
func (AnalysisPayload) isPayload()    {}
func (FileListingPayload) isPayload() {}
func (ProgressPayload) isPayload()    {}
func (StatusPayload) isPayload()      {}
func (ErrorPayload) isPayload()       {}
func (KeyValuePayload) isPayload()    {}
func (AgentInfoPayload) isPayload()   {}

// envelope is the wire form of a payload: a kind tag plus the raw body.
type envelope struct {
	Kind PayloadKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalPayload encodes a payload into its tagged wire form.
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Kind(), err)
	}
	return json.Marshal(envelope{Kind: p.Kind(), Data: data})
}

// UnmarshalPayload decodes a tagged wire payload. Unknown kinds are an error:
// the union is closed.
func UnmarshalPayload(data []byte) (Payload, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	var p Payload
	switch env.Kind {
	case KindText:
		p = &TextPayload{}
	case KindAnalysis:
		p = &AnalysisPayload{}
	case KindFileListing:
		p = &FileListingPayload{}
	case KindProgress:
		p = &ProgressPayload{}
	case KindExecutionStatus:
		p = &StatusPayload{}
	case KindError:
		p = &ErrorPayload{}
	case KindKeyValue:
		p = &KeyValuePayload{}
	case KindAgentInfo:
		p = &AgentInfoPayload{}
	default:
		return nil, fmt.Errorf("unknown payload kind %q", env.Kind)
	}

	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}
	return p, nil
}

// Request is a correlated A2A request addressed to the responder of its Type.
type Request struct {
	ID       string            // correlation ID, echoed by the response
	Sender   string            // originating agent identity
	Type     string            // message type tag, selects the operation
	Payload  Payload           // typed body
	Metadata map[string]string // tracing context, e.g. plan and step IDs
	At       time.Time
}

// Response answers exactly one prior request.
type Response struct {
	CorrelationID string
	Success       bool
	Payload       Payload       // set on success
	Error         *ErrorPayload // set on failure
}

// Event is an uncorrelated broadcast.
type Event struct {
	ID       string
	Sender   string
	Type     string
	Payload  Payload
	Metadata map[string]string
	At       time.Time
}

// Wire forms for transports that serialize messages (NATS).

type wireRequest struct {
	ID       string            `json:"id"`
	Sender   string            `json:"sender"`
	Type     string            `json:"type"`
	Payload  json.RawMessage   `json:"payload,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	At       time.Time         `json:"at"`
}

type wireResponse struct {
	CorrelationID string          `json:"correlation_id"`
	Success       bool            `json:"success"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         *ErrorPayload   `json:"error,omitempty"`
}

type wireEvent struct {
	ID       string            `json:"id"`
	Sender   string            `json:"sender"`
	Type     string            `json:"type"`
	Payload  json.RawMessage   `json:"payload,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	At       time.Time         `json:"at"`
}

// MarshalJSON encodes the request with its payload in tagged wire form.
func (r Request) MarshalJSON() ([]byte, error) {
	pl, err := MarshalPayload(r.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireRequest{
		ID: r.ID, Sender: r.Sender, Type: r.Type,
		Payload: pl, Metadata: r.Metadata, At: r.At,
	})
}

// UnmarshalJSON decodes a request from its wire form.
func (r *Request) UnmarshalJSON(data []byte) error {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	pl, err := UnmarshalPayload(w.Payload)
	if err != nil {
		return err
	}
	*r = Request{ID: w.ID, Sender: w.Sender, Type: w.Type, Payload: pl, Metadata: w.Metadata, At: w.At}
	return nil
}

// MarshalJSON encodes the response with its payload in tagged wire form.
func (r Response) MarshalJSON() ([]byte, error) {
	pl, err := MarshalPayload(r.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireResponse{
		CorrelationID: r.CorrelationID, Success: r.Success,
		Payload: pl, Error: r.Error,
	})
}

// UnmarshalJSON decodes a response from its wire form.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	pl, err := UnmarshalPayload(w.Payload)
	if err != nil {
		return err
	}
	*r = Response{CorrelationID: w.CorrelationID, Success: w.Success, Payload: pl, Error: w.Error}
	return nil
}

// MarshalJSON encodes the event with its payload in tagged wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	pl, err := MarshalPayload(e.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		ID: e.ID, Sender: e.Sender, Type: e.Type,
		Payload: pl, Metadata: e.Metadata, At: e.At,
	})
}

// UnmarshalJSON decodes an event from its wire form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	pl, err := UnmarshalPayload(w.Payload)
	if err != nil {
		return err
	}
	*e = Event{ID: w.ID, Sender: w.Sender, Type: w.Type, Payload: pl, Metadata: w.Metadata, At: w.At}
	return nil
}
