package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dental-ai-assistant/internal/clinic"
	"github.com/wolfman30/dental-ai-assistant/internal/notify"
)

type stubExecutor struct {
	results map[string]string
	muts    map[string][]notify.Mutation
	calls   []ToolCall
}

func (e *stubExecutor) Execute(_ context.Context, call ToolCall, _ string, _ bool) (string, []notify.Mutation) {
	e.calls = append(e.calls, call)
	res, ok := e.results[call.Name]
	if !ok {
		res = `{"ok":true}`
	}
	return res, e.muts[call.Name]
}

func newTestAgent(t *testing.T, llm LLMClient, exec Executor) (*Agent, *fakeClients, *memHistory, *recordingNotifier) {
	t.Helper()
	return newTestAgentRetry(t, llm, exec, RetryPolicy{MaxAttempts: 3, Delay: 0, Retryable: IsTransient})
}

func newTestAgentRetry(t *testing.T, llm LLMClient, exec Executor, retry RetryPolicy) (*Agent, *fakeClients, *memHistory, *recordingNotifier) {
	t.Helper()
	clients := newFakeClients()
	bookings := newFakeBookings(time.UTC)
	history := newMemHistory()
	notifier := &recordingNotifier{}

	agent := NewAgent(AgentConfig{
		LLM:      llm,
		Executor: exec,
		Clients:  clients,
		Bookings: bookings,
		History:  history,
		Notifier: notifier,
		Info:     clinic.Info{Name: "Smile Dental", Hours: clinic.DefaultHours},
		Retry:    retry,
		Logger:   testLogger(),
		Now:      func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) },
	})
	return agent, clients, history, notifier
}

func TestProcessPlainReply(t *testing.T) {
	llm := &scriptedLLM{responses: []Completion{{Content: "Hello! How can I help?"}}}
	agent, _, history, _ := newTestAgent(t, llm, &stubExecutor{})

	reply := agent.Process(context.Background(), "+77010000001", "hi", "whatsapp")

	assert.Equal(t, "Hello! How can I help?", reply)
	turns := history.turns["+77010000001"]
	require.Len(t, turns, 2)
	assert.Equal(t, RoleUser, turns[0].Role)
	assert.Equal(t, RoleAssistant, turns[1].Role)
	assert.Equal(t, reply, turns[1].Content)
}

func TestProcessCreatesUnknownClient(t *testing.T) {
	llm := &scriptedLLM{responses: []Completion{{Content: "welcome"}}}
	agent, clients, _, _ := newTestAgent(t, llm, &stubExecutor{})

	agent.Process(context.Background(), "+77019999999", "hi", "telegram")

	_, err := clients.GetByPhone(context.Background(), "+77019999999")
	assert.NoError(t, err)
}

func TestProcessToolCallRound(t *testing.T) {
	llm := &scriptedLLM{responses: []Completion{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "get_services", Arguments: "{}"}}},
		{Content: "We offer cleaning and whitening."},
	}}
	exec := &stubExecutor{results: map[string]string{
		"get_services": `{"services":[{"name":"Cleaning"}]}`,
	}}
	agent, _, _, _ := newTestAgent(t, llm, exec)

	reply := agent.Process(context.Background(), "+77010000002", "what do you offer?", "whatsapp")

	assert.Equal(t, "We offer cleaning and whitening.", reply)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, "get_services", exec.calls[0].Name)

	// second completion must carry the assistant tool-call turn and result
	require.Equal(t, 2, llm.calls)
	last := llm.seen[1]
	assert.Equal(t, RoleAssistant, last[len(last)-2].Role)
	assert.Equal(t, RoleTool, last[len(last)-1].Role)
	assert.Equal(t, "call_1", last[len(last)-1].ToolCallID)
}

func TestProcessLoopBound(t *testing.T) {
	// the model asks for tools forever; the loop must stop at the limit
	endless := make([]Completion, 10)
	for i := range endless {
		endless[i] = Completion{ToolCalls: []ToolCall{{ID: "c", Name: "get_doctors", Arguments: "{}"}}}
	}
	llm := &scriptedLLM{responses: endless}
	agent, _, _, _ := newTestAgent(t, llm, &stubExecutor{})

	reply := agent.Process(context.Background(), "+77010000003", "loop", "whatsapp")

	assert.Equal(t, replyLoopExhausted, reply)
	assert.Equal(t, 5, llm.calls)
}

func TestProcessLoopBoundKeepsLastContent(t *testing.T) {
	// tool calls on every turn, but the later ones carry partial text;
	// exhausting the loop must surface that text, not the canned fallback
	endless := make([]Completion, 10)
	for i := range endless {
		endless[i] = Completion{ToolCalls: []ToolCall{{ID: "c", Name: "get_doctors", Arguments: "{}"}}}
	}
	endless[3].Content = "I found two doctors available on Tuesday."
	llm := &scriptedLLM{responses: endless}
	agent, _, _, _ := newTestAgent(t, llm, &stubExecutor{})

	reply := agent.Process(context.Background(), "+77010000008", "loop", "whatsapp")

	assert.Equal(t, "I found two doctors available on Tuesday.", reply)
}

type hangingLLM struct {
	mu    sync.Mutex
	calls int
}

func (l *hangingLLM) Complete(ctx context.Context, _ []Message, _ []ToolSpec) (Completion, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	<-ctx.Done()
	return Completion{}, ctx.Err()
}

func TestProcessBoundsHungModelCalls(t *testing.T) {
	llm := &hangingLLM{}
	agent, _, _, notifier := newTestAgentRetry(t, llm, &stubExecutor{}, RetryPolicy{
		MaxAttempts:    2,
		AttemptTimeout: 20 * time.Millisecond,
		Retryable:      IsTransient,
	})

	done := make(chan string, 1)
	go func() {
		done <- agent.Process(context.Background(), "+77010000009", "hi", "whatsapp")
	}()

	select {
	case reply := <-done:
		assert.Equal(t, replyTechnicalError, reply)
	case <-time.After(2 * time.Second):
		t.Fatal("hung model call was not timed out")
	}

	llm.mu.Lock()
	calls := llm.calls
	llm.mu.Unlock()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, notifier.downCalls)
}

func TestProcessOutageDegradesAndAlertsOnce(t *testing.T) {
	outage := errors.New("dial tcp: connection refused")
	llm := &scriptedLLM{errs: []error{outage, outage, outage}}
	agent, _, history, notifier := newTestAgent(t, llm, &stubExecutor{})

	reply := agent.Process(context.Background(), "+77010000004", "hello?", "whatsapp")

	assert.Equal(t, replyTechnicalError, reply)
	assert.Equal(t, 1, notifier.downCalls)

	// the degraded reply still lands in history
	turns := history.turns["+77010000004"]
	require.Len(t, turns, 2)
	assert.Equal(t, replyTechnicalError, turns[1].Content)
}

func TestProcessRetriesTransientErrors(t *testing.T) {
	llm := &scriptedLLM{
		errs:      []error{context.DeadlineExceeded, nil},
		responses: []Completion{{}, {Content: "recovered"}},
	}
	agent, _, _, notifier := newTestAgent(t, llm, &stubExecutor{})

	reply := agent.Process(context.Background(), "+77010000005", "hi", "whatsapp")

	assert.Equal(t, "recovered", reply)
	assert.Equal(t, 0, notifier.downCalls)
	assert.Equal(t, 2, llm.calls)
}

func TestProcessFansOutMutations(t *testing.T) {
	llm := &scriptedLLM{responses: []Completion{
		{ToolCalls: []ToolCall{{ID: "call_1", Name: "create_appointment", Arguments: "{}"}}},
		{Content: "Booked!"},
	}}
	exec := &stubExecutor{
		results: map[string]string{"create_appointment": `{"success":true}`},
		muts: map[string][]notify.Mutation{
			"create_appointment": {{Kind: notify.KindCreated}},
		},
	}
	agent, _, _, notifier := newTestAgent(t, llm, exec)

	reply := agent.Process(context.Background(), "+77010000006", "book me", "whatsapp")
	assert.Equal(t, "Booked!", reply)

	require.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.dispatched) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, notify.KindCreated, notifier.dispatched[0].Kind)
}

func TestTrimToBudget(t *testing.T) {
	system := Message{Role: RoleSystem, Content: strings.Repeat("s", 100)}
	old := Message{Role: RoleUser, Content: strings.Repeat("a", 400)}
	mid := Message{Role: RoleAssistant, Content: strings.Repeat("b", 400)}
	last := Message{Role: RoleUser, Content: strings.Repeat("c", 400)}

	t.Run("under budget untouched", func(t *testing.T) {
		msgs := trimToBudget([]Message{system, old, mid, last}, 10000)
		assert.Len(t, msgs, 4)
	})

	t.Run("oldest non-system dropped first", func(t *testing.T) {
		msgs := trimToBudget([]Message{system, old, mid, last}, 1000)
		require.Len(t, msgs, 3)
		assert.Equal(t, RoleSystem, msgs[0].Role)
		assert.Equal(t, strings.Repeat("b", 400), msgs[1].Content)
	})

	t.Run("system and latest always kept", func(t *testing.T) {
		msgs := trimToBudget([]Message{system, old, mid, last}, 10)
		require.Len(t, msgs, 2)
		assert.Equal(t, RoleSystem, msgs[0].Role)
		assert.Equal(t, strings.Repeat("c", 400), msgs[1].Content)
	})
}
