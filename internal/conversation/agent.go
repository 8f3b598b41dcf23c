package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/dental-ai-assistant/internal/booking"
	"github.com/wolfman30/dental-ai-assistant/internal/clinic"
	"github.com/wolfman30/dental-ai-assistant/internal/notify"
	"github.com/wolfman30/dental-ai-assistant/internal/observability/metrics"
	"github.com/wolfman30/dental-ai-assistant/internal/patients"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

// Canned replies for when the model cannot be reached or will not settle on
// an answer. The conversation keeps working on the next message.
const (
	replyTechnicalError = "Sorry, a technical error occurred. Please try writing again."
	replyLoopExhausted  = "Sorry, we could not process your request. Please try again."
)

// History persists and recalls chat turns per phone.
type History interface {
	Append(ctx context.Context, phone string, msg Message) error
	Recent(ctx context.Context, phone string, limit int) ([]Message, error)
}

// Executor runs one tool call on behalf of an identified user.
type Executor interface {
	Execute(ctx context.Context, call ToolCall, phone string, admin bool) (string, []notify.Mutation)
}

// Notifier receives the mutations a processed message produced.
type Notifier interface {
	Dispatch(ctx context.Context, m notify.Mutation)
	AIServiceDown(ctx context.Context)
}

// Agent runs the function-calling loop: one inbound message in, one reply
// out, any number of validated tool executions in between.
type Agent struct {
	llm      LLMClient
	exec     Executor
	clients  patients.Repository
	appts    booking.Repository
	history  History
	notifier Notifier
	info     clinic.Info
	retry    RetryPolicy
	loopMax  int
	budget   int
	loc      *time.Location
	log      *logging.Logger
	now      func() time.Time
}

// AgentConfig wires the agent.
type AgentConfig struct {
	LLM           LLMClient
	Executor      Executor
	Clients       patients.Repository
	Bookings      booking.Repository
	History       History
	Notifier      Notifier
	Info          clinic.Info
	Retry         RetryPolicy
	ToolLoopLimit int
	ContextBudget int
	Location      *time.Location
	Logger        *logging.Logger
	Now           func() time.Time
}

// Chat history depth differs by role: admins carry more operational context.
const (
	historyLimitAdmin  = 20
	historyLimitClient = 10
)

// NewAgent validates dependencies and builds the agent.
func NewAgent(cfg AgentConfig) *Agent {
	if cfg.LLM == nil {
		panic("conversation: llm client required")
	}
	if cfg.Executor == nil {
		panic("conversation: executor required")
	}
	if cfg.Clients == nil {
		panic("conversation: clients repository required")
	}
	if cfg.Bookings == nil {
		panic("conversation: bookings repository required")
	}
	if cfg.History == nil {
		panic("conversation: history store required")
	}
	if cfg.Notifier == nil {
		panic("conversation: notifier required")
	}
	if cfg.Logger == nil {
		panic("conversation: logger required")
	}
	if cfg.ToolLoopLimit <= 0 {
		cfg.ToolLoopLimit = 5
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = 16000
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().In(cfg.Location) }
	}
	return &Agent{
		llm:      cfg.LLM,
		exec:     cfg.Executor,
		clients:  cfg.Clients,
		appts:    cfg.Bookings,
		history:  cfg.History,
		notifier: cfg.Notifier,
		info:     cfg.Info,
		retry:    cfg.Retry,
		loopMax:  cfg.ToolLoopLimit,
		budget:   cfg.ContextBudget,
		loc:      cfg.Location,
		log:      cfg.Logger,
		now:      cfg.Now,
	}
}

// Process handles one inbound message and returns the reply text. Failures
// downstream of the model degrade to canned replies rather than errors: the
// transport always has something to send back.
func (a *Agent) Process(ctx context.Context, phone, text, source string) string {
	client, err := a.ensureClient(ctx, phone)
	if err != nil {
		a.log.Error("client lookup failed", "phone", phone, "error", err)
		return replyTechnicalError
	}

	if err := a.history.Append(ctx, phone, Message{Role: RoleUser, Content: text}); err != nil {
		a.log.Error("history append failed", "phone", phone, "error", err)
	}

	admin, err := a.clients.IsAdmin(ctx, phone)
	if err != nil {
		a.log.Error("admin check failed", "phone", phone, "error", err)
	}

	a.log.Info("processing message", "phone", phone, "is_admin", admin, "source", source)

	messages := a.buildMessages(ctx, client, admin)
	tools := ToolsFor(admin)

	answer, mutations := a.runLoop(ctx, messages, tools, phone, admin)

	if err := a.history.Append(ctx, phone, Message{Role: RoleAssistant, Content: answer}); err != nil {
		a.log.Error("history append failed", "phone", phone, "error", err)
	}

	if len(mutations) > 0 {
		// fan out after the reply; the sender should not wait on admins
		bg := context.WithoutCancel(ctx)
		go func() {
			ctx, cancel := context.WithTimeout(bg, 30*time.Second)
			defer cancel()
			for _, m := range mutations {
				a.notifier.Dispatch(ctx, m)
			}
		}()
	}

	return answer
}

func (a *Agent) ensureClient(ctx context.Context, phone string) (*patients.Client, error) {
	client, err := a.clients.GetByPhone(ctx, phone)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, patients.ErrNotFound) {
		return nil, err
	}
	return a.clients.Create(ctx, phone, "")
}

func (a *Agent) buildMessages(ctx context.Context, client *patients.Client, admin bool) []Message {
	upcoming, err := a.appts.ListUpcoming(ctx, client.Phone)
	if err != nil {
		a.log.Error("load upcoming failed", "phone", client.Phone, "error", err)
	}
	visits, err := a.appts.ListByClient(ctx, client.Phone, 5)
	if err != nil {
		a.log.Error("load visit history failed", "phone", client.Phone, "error", err)
	}

	limit := historyLimitClient
	if admin {
		limit = historyLimitAdmin
	}
	chat, err := a.history.Recent(ctx, client.Phone, limit)
	if err != nil {
		a.log.Error("load chat history failed", "phone", client.Phone, "error", err)
	}

	system := BuildSystemPrompt(PromptContext{
		Clinic:   a.info,
		Client:   *client,
		IsAdmin:  admin,
		Now:      a.now(),
		Upcoming: upcoming,
		History:  visits,
	})

	messages := make([]Message, 0, len(chat)+1)
	messages = append(messages, Message{Role: RoleSystem, Content: system})
	messages = append(messages, chat...)
	return trimToBudget(messages, a.budget)
}

// trimToBudget drops the oldest non-system turns until the total content
// size fits. The system prompt and the latest turn always survive.
func trimToBudget(messages []Message, budget int) []Message {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	for total > budget && len(messages) > 2 {
		total -= len(messages[1].Content)
		messages = append(messages[:1], messages[2:]...)
	}
	return messages
}

// runLoop drives the model until it produces text, alternating completions
// and tool executions within the iteration bound.
func (a *Agent) runLoop(ctx context.Context, messages []Message, tools []ToolSpec, phone string, admin bool) (string, []notify.Mutation) {
	var mutations []notify.Mutation
	lastContent := ""

	for i := 0; i < a.loopMax; i++ {
		var completion Completion
		err := a.retry.Do(ctx, func(ctx context.Context) error {
			var cerr error
			completion, cerr = a.llm.Complete(ctx, messages, tools)
			return cerr
		})
		if err != nil {
			a.log.Error("llm completion failed", "phone", phone, "error", err)
			metrics.LLMCalls.WithLabelValues("failure").Inc()
			a.notifier.AIServiceDown(ctx)
			return replyTechnicalError, mutations
		}
		metrics.LLMCalls.WithLabelValues("success").Inc()

		if len(completion.ToolCalls) == 0 {
			return strings.TrimSpace(completion.Content), mutations
		}
		if c := strings.TrimSpace(completion.Content); c != "" {
			lastContent = c
		}

		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})
		for _, call := range completion.ToolCalls {
			a.log.Info("tool call", "phone", phone, "tool", call.Name, "args", call.Arguments)
			result, muts := a.exec.Execute(ctx, call, phone, admin)
			status := "ok"
			if strings.Contains(result, `"error"`) {
				status = "rejected"
			}
			metrics.ToolExecutions.WithLabelValues(call.Name, status).Inc()
			mutations = append(mutations, muts...)
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	a.log.Warn("tool loop exhausted", "phone", phone, "limit", a.loopMax)
	if lastContent != "" {
		return lastContent, mutations
	}
	return replyLoopExhausted, mutations
}
