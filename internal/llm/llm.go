// Package llm is the single boundary to the language-model provider. Callers
// hand it role-tagged messages and get raw text back; nothing downstream
// assumes the text is well-formed.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrNotConfigured is returned when no provider credentials are available.
var ErrNotConfigured = errors.New("llm provider not configured")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System and User build single messages.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message   { return Message{Role: RoleUser, Content: content} }

// Caller is a text-completion provider.
type Caller interface {
	Invoke(ctx context.Context, messages []Message) (string, error)
	ModelName() string
}

type failureClass int

const (
	failureNone failureClass = iota
	failureTimeout
	failureRateLimit
	failureServer
	failureClient
)

func (c failureClass) String() string {
	switch c {
	case failureTimeout:
		return "timeout"
	case failureRateLimit:
		return "rate_limit"
	case failureServer:
		return "server"
	case failureClient:
		return "client"
	default:
		return "none"
	}
}

var statusCodeRe = regexp.MustCompile(`(?:status(?:\s+code)?[:=\s]+|http\s+)(\d{3})`)

// AdapterOptions tune retries and timeouts around a Caller.
type AdapterOptions struct {
	Timeout     time.Duration
	MaxAttempts int
	Logger      *slog.Logger
	// Sleep waits out a backoff; it returns early with ctx's error.
	Sleep func(context.Context, time.Duration) error
}

// Adapter wraps a Caller with a per-call timeout, retry on transient
// transport failures and a tracing span per invocation.
type Adapter struct {
	caller      Caller
	timeout     time.Duration
	maxAttempts int
	logger      *slog.Logger
	sleep       func(context.Context, time.Duration) error
}

func NewAdapter(caller Caller, opts AdapterOptions) *Adapter {
	a := &Adapter{
		caller:      caller,
		timeout:     opts.Timeout,
		maxAttempts: opts.MaxAttempts,
		logger:      opts.Logger,
		sleep:       opts.Sleep,
	}
	if a.timeout <= 0 {
		a.timeout = 60 * time.Second
	}
	if a.maxAttempts <= 0 {
		a.maxAttempts = 3
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.sleep == nil {
		a.sleep = sleepContext
	}
	return a
}

func (a *Adapter) ModelName() string {
	if a == nil || a.caller == nil {
		return ""
	}
	return a.caller.ModelName()
}

// Invoke sends messages to the provider. Timeouts, rate limits and server
// errors are retried with backoff; client errors are returned at once.
func (a *Adapter) Invoke(ctx context.Context, messages []Message) (string, error) {
	if a == nil || a.caller == nil {
		return "", ErrNotConfigured
	}
	ctx, span := otel.Tracer("github.com/joelkehle/consultkit/internal/llm").Start(ctx, "llm.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", a.caller.ModelName()),
		attribute.Int("llm.messages", len(messages)),
	)

	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		text, err := a.caller.Invoke(callCtx, messages)
		cancel()
		if err == nil {
			a.logger.Debug("llm attempt_success", "attempt", attempt, "elapsed_ms", time.Since(start).Milliseconds(), "response_chars", len(text))
			span.SetAttributes(attribute.Int("llm.attempts", attempt))
			return text, nil
		}
		lastErr = err
		class := classifyTransportError(err)
		a.logger.Warn("llm attempt_transport_error", "attempt", attempt, "class", class.String(), "elapsed_ms", time.Since(start).Milliseconds(), "err", err.Error())
		if ctx.Err() != nil {
			break
		}
		if class == failureClient || attempt == a.maxAttempts {
			break
		}
		if err := a.sleep(ctx, backoffDelay(attempt)); err != nil {
			break
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "llm invoke failed")
	return "", fmt.Errorf("llm invoke: %w", lastErr)
}

func classifyTransportError(err error) failureClass {
	if err == nil {
		return failureNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return failureTimeout
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		switch {
		case m[1] == "429":
			return failureRateLimit
		case strings.HasPrefix(m[1], "5"):
			return failureServer
		case m[1] == "408":
			return failureTimeout
		case strings.HasPrefix(m[1], "4"):
			return failureClient
		}
	}
	switch {
	case strings.Contains(msg, "rate limit"):
		return failureRateLimit
	case strings.Contains(msg, "server error"), strings.Contains(msg, "overloaded"):
		return failureServer
	default:
		return failureServer
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDelay(attempt int) time.Duration {
	switch attempt {
	case 1:
		return 1 * time.Second
	case 2:
		return 2 * time.Second
	default:
		return 4 * time.Second
	}
}
