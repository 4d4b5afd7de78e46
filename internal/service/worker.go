package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/bus"
	"github.com/Aristman/ride-core/internal/port/executor"
)

// AgentWorker serves step execution requests from the bus against a local
// executor registry. It is the responder side of the BusInvoker.
type AgentWorker struct {
	name     string
	version  string
	registry executor.Registry
	bus      bus.Bus
	log      *slog.Logger

	cancel func()
}

func NewAgentWorker(name, version string, registry executor.Registry, b bus.Bus, log *slog.Logger) *AgentWorker {
	if log == nil {
		log = slog.Default()
	}
	return &AgentWorker{name: name, version: version, registry: registry, bus: b, log: log}
}

// Start registers the responder and announces the agent's capabilities.
func (w *AgentWorker) Start(ctx context.Context) error {
	cancel, err := w.bus.Serve(bus.MsgExecuteStep, w.handleExecute)
	if err != nil {
		return fmt.Errorf("serve %s: %w", bus.MsgExecuteStep, err)
	}
	w.cancel = cancel

	caps := w.registry.Capabilities()
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	_, err = w.bus.Publish(ctx, &bus.Event{
		ID:     uuid.NewString(),
		Sender: w.name,
		Type:   bus.EvtAgentOnline,
		Payload: &bus.AgentInfoPayload{
			Name:         w.name,
			Version:      w.version,
			Capabilities: names,
		},
		At: time.Now().UTC(),
	})
	if err != nil {
		w.log.Warn("announce agent online", "error", err)
	}
	w.log.Info("agent worker started", "agent", w.name, "capabilities", names)
	return nil
}

// Stop deregisters the responder.
func (w *AgentWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

func (w *AgentWorker) handleExecute(ctx context.Context, req *bus.Request) (*bus.Response, error) {
	if req.Payload == nil {
		return errResponse("bad_request", "missing request payload"), nil
	}
	kv, ok := req.Payload.(*bus.KeyValuePayload)
	if !ok {
		return errResponse("bad_request", fmt.Sprintf("unexpected payload kind %q", req.Payload.Kind())), nil
	}

	capability, _ := kv.Values["capability"].(string)
	ex, found := w.registry.Lookup(plan.Capability(capability))
	if !found {
		return errResponse("no_executor", fmt.Sprintf("no executor for capability %q", capability)), nil
	}

	stepID, _ := kv.Values["step_id"].(string)
	title, _ := kv.Values["title"].(string)
	input, _ := kv.Values["input"].(map[string]any)
	step := &plan.Step{
		ID:         stepID,
		Title:      title,
		Capability: plan.Capability(capability),
		Input:      input,
	}

	res, err := ex.Execute(ctx, step, input)
	if err != nil {
		return errResponse("execution_error", err.Error()), nil
	}
	if !res.Success {
		return errResponse("step_failed", res.Error), nil
	}

	resp := &bus.Response{Success: true}
	if len(res.Output) > 0 {
		out := res.Output
		if res.Summary != "" {
			if _, exists := out["summary"]; !exists {
				out["summary"] = res.Summary
			}
		}
		resp.Payload = &bus.KeyValuePayload{Values: out}
	} else if res.Summary != "" {
		resp.Payload = &bus.TextPayload{Text: res.Summary}
	}
	return resp, nil
}

func errResponse(code, msg string) *bus.Response {
	return &bus.Response{
		Success: false,
		Error:   &bus.ErrorPayload{Code: code, Message: msg},
	}
}
