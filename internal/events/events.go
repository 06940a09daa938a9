// Package events captures observer events from daemon components and
// forwards them to a host-registered listener. A fixed-capacity ring buffer
// retains recent events for on-demand queries, and every rendered event is
// also published on the in-process bus for the gateway websocket stream.
package events

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basket/pocketclaw/internal/bus"
)

// bufferCapacity is the ring buffer capacity for event history.
const bufferCapacity = 500

// Listener receives JSON-encoded events. OnEvent is invoked from daemon
// background goroutines, so implementations must be safe for concurrent use.
type Listener interface {
	OnEvent(eventJSON string)
}

// Event is implemented by every observer event kind.
type Event interface {
	kindAndData() (kind string, dataJSON string)
}

// AgentStart is emitted when an agent turn begins.
type AgentStart struct {
	Provider string
	Model    string
}

// AgentEnd is emitted when an agent turn finishes.
type AgentEnd struct {
	Duration   time.Duration
	TokensUsed *uint64
}

// LLMRequest is emitted before a provider request is dispatched.
type LLMRequest struct {
	Provider string
	Model    string
	Messages int
}

// LLMResponse is emitted when a provider request completes.
type LLMResponse struct {
	Provider     string
	Model        string
	Duration     time.Duration
	Success      bool
	ErrorMessage *string
}

// ToolCallStart is emitted when a tool invocation begins.
type ToolCallStart struct {
	Tool string
}

// ToolCall is emitted when a tool invocation completes.
type ToolCall struct {
	Tool     string
	Duration time.Duration
	Success  bool
}

// ChannelMessage is emitted for inbound and outbound channel traffic.
type ChannelMessage struct {
	Channel   string
	Direction string
}

// Error is emitted when a component reports a fault.
type Error struct {
	Component string
	Message   string
}

// HeartbeatTick is emitted on every heartbeat cycle.
type HeartbeatTick struct{}

// TurnComplete is emitted when a full request/response turn finishes.
type TurnComplete struct{}

func (e AgentStart) kindAndData() (string, string) {
	return "agent_start", fmt.Sprintf(`{"provider":"%s","model":"%s"}`,
		escapeJSONString(e.Provider), escapeJSONString(e.Model))
}

func (e AgentEnd) kindAndData() (string, string) {
	tokens := "null"
	if e.TokensUsed != nil {
		tokens = fmt.Sprintf("%d", *e.TokensUsed)
	}
	return "agent_end", fmt.Sprintf(`{"duration_ms":%d,"tokens":%s}`,
		e.Duration.Milliseconds(), tokens)
}

func (e LLMRequest) kindAndData() (string, string) {
	return "llm_request", fmt.Sprintf(`{"provider":"%s","model":"%s","messages":%d}`,
		escapeJSONString(e.Provider), escapeJSONString(e.Model), e.Messages)
}

func (e LLMResponse) kindAndData() (string, string) {
	errJSON := "null"
	if e.ErrorMessage != nil {
		errJSON = `"` + escapeJSONString(*e.ErrorMessage) + `"`
	}
	return "llm_response", fmt.Sprintf(`{"provider":"%s","model":"%s","duration_ms":%d,"success":%t,"error":%s}`,
		escapeJSONString(e.Provider), escapeJSONString(e.Model),
		e.Duration.Milliseconds(), e.Success, errJSON)
}

func (e ToolCallStart) kindAndData() (string, string) {
	return "tool_call_start", fmt.Sprintf(`{"tool":"%s"}`, escapeJSONString(e.Tool))
}

func (e ToolCall) kindAndData() (string, string) {
	return "tool_call", fmt.Sprintf(`{"tool":"%s","duration_ms":%d,"success":%t}`,
		escapeJSONString(e.Tool), e.Duration.Milliseconds(), e.Success)
}

func (e ChannelMessage) kindAndData() (string, string) {
	return "channel_message", fmt.Sprintf(`{"channel":"%s","direction":"%s"}`,
		escapeJSONString(e.Channel), escapeJSONString(e.Direction))
}

func (e Error) kindAndData() (string, string) {
	return "error", fmt.Sprintf(`{"component":"%s","message":"%s"}`,
		escapeJSONString(e.Component), escapeJSONString(e.Message))
}

func (HeartbeatTick) kindAndData() (string, string) { return "heartbeat_tick", "{}" }
func (TurnComplete) kindAndData() (string, string)  { return "turn_complete", "{}" }

// Bridge buffers rendered events and forwards them to the registered
// listener. One Bridge exists per runtime.
type Bridge struct {
	counter atomic.Uint64

	bufMu sync.Mutex
	buf   []string

	listenerMu sync.Mutex
	listener   Listener

	eventBus *bus.Bus
}

// NewBridge creates an event bridge. The bus is optional.
func NewBridge(eventBus *bus.Bus) *Bridge {
	return &Bridge{
		buf:      make([]string, 0, bufferCapacity),
		eventBus: eventBus,
	}
}

// Record renders the event, buffers it, and forwards it to the listener.
// Event ids are monotonically increasing and never reused in-process.
func (b *Bridge) Record(ev Event) {
	id := b.counter.Add(1) - 1
	json := formatEvent(id, ev)

	b.bufMu.Lock()
	if len(b.buf) >= bufferCapacity {
		b.buf = b.buf[1:]
	}
	b.buf = append(b.buf, json)
	b.bufMu.Unlock()

	// Snapshot the listener under the lock, invoke outside it. The callback
	// may re-enter Register/Unregister; holding the lock across it would
	// deadlock. A delivery already in flight when Unregister runs may still
	// land.
	b.listenerMu.Lock()
	l := b.listener
	b.listenerMu.Unlock()
	if l != nil {
		l.OnEvent(json)
	}

	if b.eventBus != nil {
		b.eventBus.Publish(bus.TopicEventStream, json)
	}
}

// RecordMetric accepts metric observations from producers and discards them.
// Metrics are deliberately not forwarded to the host (battery concern on
// mobile); they remain visible through the otel pipeline when enabled.
func (b *Bridge) RecordMetric(name string, value float64) {
	_ = name
	_ = value
}

// Register installs the listener, replacing any previous one.
func (b *Bridge) Register(l Listener) {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()
	b.listener = l
}

// Unregister removes the current listener. Idempotent. Events are still
// buffered afterwards but no longer forwarded.
func (b *Bridge) Unregister() {
	b.listenerMu.Lock()
	defer b.listenerMu.Unlock()
	b.listener = nil
}

// Recent returns up to limit buffered events as a JSON array string,
// ordered oldest first. limit 0 yields "[]".
func (b *Bridge) Recent(limit uint32) string {
	b.bufMu.Lock()
	defer b.bufMu.Unlock()

	start := 0
	if n := len(b.buf) - int(limit); n > 0 {
		start = n
	}
	return "[" + strings.Join(b.buf[start:], ",") + "]"
}

// Len returns the number of buffered events.
func (b *Bridge) Len() int {
	b.bufMu.Lock()
	defer b.bufMu.Unlock()
	return len(b.buf)
}

// formatEvent serialises an event to a JSON string with metadata. Rendering
// is manual rather than via encoding/json to avoid per-event allocation of a
// value tree on the hot path.
func formatEvent(id uint64, ev Event) string {
	nowMS := time.Now().UnixMilli()
	kind, data := ev.kindAndData()
	return fmt.Sprintf(`{"id":%d,"timestamp_ms":%d,"kind":"%s","data":%s}`, id, nowMS, kind, data)
}

// escapeJSONString escapes a string for safe embedding inside a JSON string
// literal. Handles double quotes, backslashes, common whitespace escapes and
// all remaining control characters (0x00-0x1F) via \uXXXX notation.
func escapeJSONString(s string) string {
	var out strings.Builder
	out.Grow(len(s) + 4)
	for _, c := range s {
		switch {
		case c == '"':
			out.WriteString(`\"`)
		case c == '\\':
			out.WriteString(`\\`)
		case c == '\n':
			out.WriteString(`\n`)
		case c == '\r':
			out.WriteString(`\r`)
		case c == '\t':
			out.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(&out, `\u%04X`, c)
		default:
			out.WriteRune(c)
		}
	}
	return out.String()
}
