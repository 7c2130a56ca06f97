package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Message is one prior turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Event is one unit of streamed runtime output.
type Event struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Tool   string `json:"tool,omitempty"`
	Args   string `json:"args,omitempty"`
	Result string `json:"result,omitempty"`
}

// EventSink receives runtime events in order. Implementations must be safe
// to call from the runtime goroutine only.
type EventSink func(Event)

// Runtime turns a chat message into a stream of events. The conversational
// model behind it is pluggable; the server only depends on this interface.
type Runtime interface {
	Stream(ctx context.Context, sessionID, message string, history []Message, sink EventSink) error
}

// DirectRuntime is the built-in runtime: it interprets messages as direct
// tool invocations of the form "tool_name {json args}" and answers anything
// else with the tool listing. Useful for development and for driving the
// tool surface without a model attached.
type DirectRuntime struct {
	tools *Tools
}

func NewDirectRuntime(tools *Tools) *DirectRuntime {
	return &DirectRuntime{tools: tools}
}

func (r *DirectRuntime) Stream(ctx context.Context, sessionID, message string, _ []Message, sink EventSink) error {
	message = strings.TrimSpace(message)
	if message == "" {
		sink(Event{Type: "text", Text: r.usage()})
		return nil
	}

	name := message
	args := ""
	if i := strings.IndexAny(message, " \t{"); i >= 0 {
		name = message[:i]
		args = strings.TrimSpace(message[i:])
	}

	tool, ok := r.tools.Lookup(name)
	if !ok {
		sink(Event{Type: "text", Text: fmt.Sprintf("Unknown tool %q.\n\n%s", name, r.usage())})
		return nil
	}

	sink(Event{Type: "status", Text: fmt.Sprintf("Running %s...", tool.Name)})
	sink(Event{Type: "tool_call", Tool: tool.Name, Args: args})

	var raw []byte
	if args != "" {
		raw = []byte(args)
	}
	result := tool.Invoke(ctx, sessionID, raw)

	sink(Event{Type: "tool_result", Tool: tool.Name, Result: result})
	sink(Event{Type: "text", Text: result})
	return nil
}

func (r *DirectRuntime) usage() string {
	tools := r.tools.Registry()
	names := make([]string, 0, len(tools))
	byName := make(map[string]string, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
		byName[t.Name] = t.Description
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Available tools (send \"tool_name {json args}\"):\n")
	for _, n := range names {
		fmt.Fprintf(&b, "- %s: %s\n", n, byName[n])
	}
	return b.String()
}
