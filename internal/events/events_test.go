package events

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"
)

type countingListener struct {
	count atomic.Int64
	last  atomic.Value
}

func (c *countingListener) OnEvent(eventJSON string) {
	c.count.Add(1)
	c.last.Store(eventJSON)
}

func parseEvent(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("event is not valid JSON: %v\n%s", err, s)
	}
	return m
}

func parseEvents(t *testing.T, s string) []map[string]any {
	t.Helper()
	var arr []map[string]any
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		t.Fatalf("recent events is not a JSON array: %v\n%s", err, s)
	}
	return arr
}

func TestRegisterUnregisterRoundtrip(t *testing.T) {
	b := NewBridge(nil)
	l := &countingListener{}
	b.Register(l)

	b.Record(HeartbeatTick{})
	if l.count.Load() != 1 {
		t.Fatalf("listener received %d events, want 1", l.count.Load())
	}

	b.Unregister()
	b.Record(HeartbeatTick{})
	if l.count.Load() != 1 {
		t.Fatalf("listener received events after unregister: %d", l.count.Load())
	}

	// Unregister is idempotent.
	b.Unregister()
}

func TestRegisterReplacesListener(t *testing.T) {
	b := NewBridge(nil)
	first := &countingListener{}
	second := &countingListener{}
	b.Register(first)
	b.Register(second)

	b.Record(TurnComplete{})
	if first.count.Load() != 0 {
		t.Fatalf("replaced listener still receives events")
	}
	if second.count.Load() != 1 {
		t.Fatalf("new listener received %d events, want 1", second.count.Load())
	}
}

func TestRecentReturnsValidJSON(t *testing.T) {
	b := NewBridge(nil)
	b.Record(HeartbeatTick{})
	b.Record(TurnComplete{})

	arr := parseEvents(t, b.Recent(10))
	if len(arr) != 2 {
		t.Fatalf("got %d events, want 2", len(arr))
	}
	for _, ev := range arr {
		for _, key := range []string{"id", "timestamp_ms", "kind", "data"} {
			if _, ok := ev[key]; !ok {
				t.Fatalf("event missing %q: %v", key, ev)
			}
		}
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	b := NewBridge(nil)
	for i := 0; i < 5; i++ {
		b.Record(HeartbeatTick{})
	}
	if got := len(parseEvents(t, b.Recent(3))); got != 3 {
		t.Fatalf("limit 3 returned %d events", got)
	}
	if got := len(parseEvents(t, b.Recent(100))); got != 5 {
		t.Fatalf("oversized limit returned %d events, want 5", got)
	}
	if got := b.Recent(0); got != "[]" {
		t.Fatalf("limit 0 = %q, want []", got)
	}
}

func TestRecentOldestFirst(t *testing.T) {
	b := NewBridge(nil)
	b.Record(AgentStart{Provider: "openai", Model: "gpt-4o"})
	b.Record(TurnComplete{})

	arr := parseEvents(t, b.Recent(10))
	firstID := arr[0]["id"].(float64)
	secondID := arr[1]["id"].(float64)
	if firstID >= secondID {
		t.Fatalf("events out of order: %v then %v", firstID, secondID)
	}
	if arr[0]["kind"] != "agent_start" {
		t.Fatalf("oldest event kind = %v, want agent_start", arr[0]["kind"])
	}
}

func TestRecentEmpty(t *testing.T) {
	b := NewBridge(nil)
	if got := b.Recent(10); got != "[]" {
		t.Fatalf("empty buffer = %q, want []", got)
	}
}

func TestRingBufferDropsOldest(t *testing.T) {
	b := NewBridge(nil)
	for i := 0; i < bufferCapacity+50; i++ {
		b.Record(HeartbeatTick{})
	}
	if b.Len() != bufferCapacity {
		t.Fatalf("buffer length = %d, want %d", b.Len(), bufferCapacity)
	}

	// The oldest 50 ids were evicted.
	arr := parseEvents(t, b.Recent(uint32(bufferCapacity)))
	if got := arr[0]["id"].(float64); got != 50 {
		t.Fatalf("oldest surviving id = %v, want 50", got)
	}
}

func TestEventIDsMonotonic(t *testing.T) {
	b := NewBridge(nil)
	for i := 0; i < 10; i++ {
		b.Record(TurnComplete{})
	}
	arr := parseEvents(t, b.Recent(10))
	for i := 1; i < len(arr); i++ {
		if arr[i]["id"].(float64) <= arr[i-1]["id"].(float64) {
			t.Fatalf("ids not strictly increasing: %v", arr)
		}
	}
}

func TestFormatLLMResponse(t *testing.T) {
	ev := parseEvent(t, formatEvent(42, LLMResponse{
		Provider: "openai",
		Model:    "gpt-4",
		Duration: 150 * time.Millisecond,
		Success:  true,
	}))
	if ev["id"].(float64) != 42 || ev["kind"] != "llm_response" {
		t.Fatalf("unexpected envelope: %v", ev)
	}
	data := ev["data"].(map[string]any)
	if data["provider"] != "openai" || data["success"] != true {
		t.Fatalf("unexpected data: %v", data)
	}
	if data["error"] != nil {
		t.Fatalf("error should be null: %v", data)
	}
}

func TestFormatLLMResponseWithError(t *testing.T) {
	msg := "rate limited"
	ev := parseEvent(t, formatEvent(99, LLMResponse{
		Provider:     "anthropic",
		Model:        "claude-sonnet-4",
		Duration:     time.Second,
		Success:      false,
		ErrorMessage: &msg,
	}))
	data := ev["data"].(map[string]any)
	if data["error"] != "rate limited" || data["success"] != false {
		t.Fatalf("unexpected data: %v", data)
	}
}

func TestFormatToolCall(t *testing.T) {
	ev := parseEvent(t, formatEvent(7, ToolCall{Tool: "shell", Duration: 250 * time.Millisecond, Success: true}))
	data := ev["data"].(map[string]any)
	if ev["kind"] != "tool_call" || data["tool"] != "shell" || data["duration_ms"].(float64) != 250 {
		t.Fatalf("unexpected event: %v", ev)
	}
}

func TestFormatAgentEnd(t *testing.T) {
	tokens := uint64(1200)
	ev := parseEvent(t, formatEvent(3, AgentEnd{Duration: 5 * time.Second, TokensUsed: &tokens}))
	data := ev["data"].(map[string]any)
	if data["tokens"].(float64) != 1200 || data["duration_ms"].(float64) != 5000 {
		t.Fatalf("unexpected data: %v", data)
	}

	ev = parseEvent(t, formatEvent(4, AgentEnd{Duration: 100 * time.Millisecond}))
	if ev["data"].(map[string]any)["tokens"] != nil {
		t.Fatalf("tokens should be null when absent")
	}
}

func TestFormatErrorWithQuotes(t *testing.T) {
	ev := parseEvent(t, formatEvent(1, Error{Component: "gateway", Message: `failed to parse "config"`}))
	data := ev["data"].(map[string]any)
	if data["message"] != `failed to parse "config"` {
		t.Fatalf("quoted message mangled: %v", data["message"])
	}
}

func TestFormatChannelMessage(t *testing.T) {
	ev := parseEvent(t, formatEvent(12, ChannelMessage{Channel: "telegram", Direction: "inbound"}))
	data := ev["data"].(map[string]any)
	if ev["kind"] != "channel_message" || data["direction"] != "inbound" {
		t.Fatalf("unexpected event: %v", ev)
	}
}

func TestFormatEmptyDataKinds(t *testing.T) {
	for _, ev := range []Event{HeartbeatTick{}, TurnComplete{}} {
		parsed := parseEvent(t, formatEvent(0, ev))
		data := parsed["data"].(map[string]any)
		if len(data) != 0 {
			t.Fatalf("%s data should be empty: %v", parsed["kind"], data)
		}
	}
}

func TestMetricsNeverForwarded(t *testing.T) {
	b := NewBridge(nil)
	l := &countingListener{}
	b.Register(l)

	b.RecordMetric("llm_latency_ms", 123.0)
	if l.count.Load() != 0 {
		t.Fatalf("metric reached the listener")
	}
	if b.Len() != 0 {
		t.Fatalf("metric was buffered")
	}
}

func TestEscapeJSONString(t *testing.T) {
	cases := []struct{ in, want string }{
		{`a"b`, `a\"b`},
		{`a\b`, `a\\b`},
		{"plain", "plain"},
		{"line\nbreak", `line\nbreak`},
		{"car\rret", `car\rret`},
		{"tab\there", `tab\there`},
		{"null\x00byte", "null\\u0000byte"},
		{"bell\x07ring", "bell\\u0007ring"},
	}
	for _, c := range cases {
		if got := escapeJSONString(c.in); got != c.want {
			t.Errorf("escapeJSONString(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
