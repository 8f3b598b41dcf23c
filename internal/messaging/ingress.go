package messaging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/dental-ai-assistant/internal/observability/metrics"
	"github.com/wolfman30/dental-ai-assistant/internal/patients"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

const (
	replyRateLimited = "You are sending messages too quickly. Please wait a minute and try again."
	replyUnsupported = "I can only read text messages for now. Please type your request."
	replyPanic       = "Sorry, a technical error occurred. Please try writing again."
)

// Responder produces the assistant's reply for one inbound message.
// Implemented by conversation.Agent.
type Responder interface {
	Process(ctx context.Context, phone, text, source string) string
}

// IngressConfig wires the inbound pipeline.
type IngressConfig struct {
	Agent           Responder
	Clients         patients.Repository
	Redis           *redis.Client
	Logger          *logging.Logger
	DedupTTL        time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	LockWaitTimeout time.Duration
}

// Ingress guards the agent: it deduplicates webhook retries, silently drops
// blocked senders, rate limits floods, and serializes processing per phone
// number so one client's messages always run in arrival order.
type Ingress struct {
	agent           Responder
	clients         patients.Repository
	rdb             *redis.Client
	log             *logging.Logger
	dedupTTL        time.Duration
	rateLimitMax    int
	rateLimitWindow time.Duration
	lockWaitTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*identityLock
}

// NewIngress validates dependencies and builds the pipeline.
func NewIngress(cfg IngressConfig) *Ingress {
	if cfg.Agent == nil {
		panic("messaging: agent required")
	}
	if cfg.Clients == nil {
		panic("messaging: clients repository required")
	}
	if cfg.Redis == nil {
		panic("messaging: redis client required")
	}
	if cfg.Logger == nil {
		panic("messaging: logger required")
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 5 * time.Minute
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 20
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.LockWaitTimeout <= 0 {
		cfg.LockWaitTimeout = 30 * time.Second
	}
	return &Ingress{
		agent:           cfg.Agent,
		clients:         cfg.Clients,
		rdb:             cfg.Redis,
		log:             cfg.Logger,
		dedupTTL:        cfg.DedupTTL,
		rateLimitMax:    cfg.RateLimitMax,
		rateLimitWindow: cfg.RateLimitWindow,
		lockWaitTimeout: cfg.LockWaitTimeout,
	}
}

// Handle runs one inbound message through the pipeline and returns the text
// to send back. An empty reply means nothing should be sent.
func (g *Ingress) Handle(ctx context.Context, in Inbound) (reply string) {
	start := time.Now()
	status := "ok"
	defer func() {
		metrics.InboundMessages.WithLabelValues(in.Source, status).Inc()
		metrics.ProcessLatency.WithLabelValues(in.Source).Observe(time.Since(start).Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			g.log.Error("panic while handling message",
				"source", in.Source, "phone", in.Phone,
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			reply = replyPanic
		}
	}()

	fresh, err := g.markSeen(ctx, in)
	if err != nil {
		// dedup is best effort: an unreachable Redis must not drop care
		// requests, so process anyway
		g.log.Error("dedup check failed", "source", in.Source, "error", err)
	} else if !fresh {
		status = "duplicate"
		return ""
	}

	blocked, err := g.clients.IsBlocked(ctx, in.Phone)
	if err != nil {
		g.log.Error("blocklist check failed", "phone", in.Phone, "error", err)
	} else if blocked {
		status = "blocked"
		g.log.Info("dropped message from blocked client", "phone", in.Phone, "source", in.Source)
		return ""
	}

	allowed, err := g.allowRate(ctx, in.Phone)
	if err != nil {
		g.log.Error("rate limit check failed", "phone", in.Phone, "error", err)
	} else if !allowed {
		status = "rate_limited"
		return replyRateLimited
	}

	if in.Unsupported {
		status = "unsupported"
		return replyUnsupported
	}

	release, ok := g.acquire(ctx, in.Phone)
	if !ok {
		status = "lock_timeout"
		g.log.Warn("lock wait timed out", "phone", in.Phone, "source", in.Source)
		return replyPanic
	}
	defer release()

	return g.agent.Process(ctx, in.Phone, in.Text, in.Source)
}

// markSeen records the message id in Redis. Returns false when the same id
// was already seen inside the dedup window.
func (g *Ingress) markSeen(ctx context.Context, in Inbound) (bool, error) {
	key := "dedup:" + in.Source + ":" + dedupID(in)
	return g.rdb.SetNX(ctx, key, 1, g.dedupTTL).Result()
}

// dedupID prefers the transport's message id; transports without one fall
// back to a content hash bucketed per minute.
func dedupID(in Inbound) string {
	if in.MessageID != "" {
		return in.MessageID
	}
	sum := sha256.Sum256([]byte(in.Phone + "\x00" + in.Text + "\x00" + time.Now().UTC().Format("200601021504")))
	return hex.EncodeToString(sum[:16])
}

// allowRate counts messages per phone in a fixed window.
func (g *Ingress) allowRate(ctx context.Context, phone string) (bool, error) {
	key := "ratelimit:" + phone
	n, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := g.rdb.Expire(ctx, key, g.rateLimitWindow).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(g.rateLimitMax), nil
}

// identityLock is a one-slot semaphore with a waiter count so idle entries
// can be removed from the registry.
type identityLock struct {
	slot    chan struct{}
	waiters int
}

// acquire takes the per-phone lock, waiting up to lockWaitTimeout. The
// returned release func must be called exactly once when ok is true.
func (g *Ingress) acquire(ctx context.Context, phone string) (func(), bool) {
	g.mu.Lock()
	l, ok := g.locks[phone]
	if !ok {
		if g.locks == nil {
			g.locks = make(map[string]*identityLock)
		}
		l = &identityLock{slot: make(chan struct{}, 1)}
		g.locks[phone] = l
	}
	l.waiters++
	g.mu.Unlock()

	timer := time.NewTimer(g.lockWaitTimeout)
	defer timer.Stop()

	select {
	case l.slot <- struct{}{}:
		return func() {
			<-l.slot
			g.forget(phone, l)
		}, true
	case <-timer.C:
	case <-ctx.Done():
	}
	g.forget(phone, l)
	return nil, false
}

func (g *Ingress) forget(phone string, l *identityLock) {
	g.mu.Lock()
	l.waiters--
	if l.waiters == 0 {
		delete(g.locks, phone)
	}
	g.mu.Unlock()
}
