package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
)

type scriptedCaller struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedCaller) Invoke(context.Context, []Message) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", nil
}

func (s *scriptedCaller) ModelName() string { return "test-model" }

type assertErr string

func (e assertErr) Error() string { return string(e) }

func noSleep(context.Context, time.Duration) error { return nil }

func TestAdapterRetriesServerErrors(t *testing.T) {
	c := &scriptedCaller{
		errs:      []error{assertErr("status code: 503 overloaded"), nil},
		responses: []string{"", "ok"},
	}
	a := NewAdapter(c, AdapterOptions{MaxAttempts: 3, Sleep: noSleep})
	got, err := a.Invoke(context.Background(), []Message{User("hi")})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "ok" || c.calls != 2 {
		t.Fatalf("got %q after %d calls", got, c.calls)
	}
}

func TestAdapterDoesNotRetryClientErrors(t *testing.T) {
	c := &scriptedCaller{errs: []error{assertErr("status code: 400 bad request"), nil}}
	a := NewAdapter(c, AdapterOptions{MaxAttempts: 3, Sleep: noSleep})
	if _, err := a.Invoke(context.Background(), []Message{User("hi")}); err == nil {
		t.Fatal("expected client error")
	}
	if c.calls != 1 {
		t.Fatalf("expected 1 call, got %d", c.calls)
	}
}

func TestAdapterStopsBackoffWhenCancelled(t *testing.T) {
	c := &scriptedCaller{errs: []error{assertErr("status code: 503 overloaded"), nil}, responses: []string{"", "ok"}}
	a := NewAdapter(c, AdapterOptions{MaxAttempts: 3})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	if _, err := a.Invoke(ctx, []Message{User("hi")}); err == nil {
		t.Fatal("expected an error from a cancelled invoke")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("cancelled invoke waited %v", elapsed)
	}
	if c.calls != 1 {
		t.Fatalf("expected 1 call, got %d", c.calls)
	}
}

func TestSleepContextReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	if err := sleepContext(ctx, 4*time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("sleep ignored cancellation")
	}
}

func TestAdapterWithoutCallerIsNotConfigured(t *testing.T) {
	var a *Adapter
	if _, err := a.Invoke(context.Background(), nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestClassifyTransportError(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want failureClass
	}{
		{err: context.DeadlineExceeded, want: failureTimeout},
		{err: assertErr("status code: 429 too many requests"), want: failureRateLimit},
		{err: assertErr("status=500 upstream"), want: failureServer},
		{err: assertErr("status code: 401 unauthorized"), want: failureClient},
		{err: assertErr("failed after 5 retries while waiting 4 seconds"), want: failureServer},
	} {
		if got := classifyTransportError(tc.err); got != tc.want {
			t.Fatalf("classify(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestParseObjectToleratesWrapperText(t *testing.T) {
	type out struct {
		LogicalID string `json:"logical_id"`
	}
	res := ParseObject[out]("Sure! Here it is:\n```json\n{\"logical_id\":\"LA-7\"}\n```\nThanks")
	v, ok := res.Ok()
	if !ok {
		t.Fatalf("expected ok, err=%v", res.Err())
	}
	if v.LogicalID != "LA-7" {
		t.Fatalf("unexpected value %+v", v)
	}
	if _, bad := res.Malformed(); bad {
		t.Fatal("Malformed should be false on success")
	}
}

func TestParseObjectMalformedKeepsRaw(t *testing.T) {
	res := ParseObject[map[string]any]("no json here")
	raw, bad := res.Malformed()
	if !bad || raw != "no json here" {
		t.Fatalf("expected malformed with raw text, got %q %v", raw, bad)
	}
	if _, ok := res.Ok(); ok {
		t.Fatal("Ok should be false")
	}
}

func TestParseArray(t *testing.T) {
	res := ParseArray[[]string](`The list: ["a", "b"] done`)
	v, ok := res.Ok()
	if !ok || len(v) != 2 || v[1] != "b" {
		t.Fatalf("unexpected %v %v", v, res.Err())
	}
}

func TestStripCodeFences(t *testing.T) {
	if got := StripCodeFences("```json\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Fatalf("unexpected: %q", got)
	}
}

type fakeMessager struct {
	params anthropic.MessageNewParams
}

func (f *fakeMessager) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	f.params = params
	return &anthropic.Message{Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "hello"}}}, nil
}

func TestAnthropicCallerSplitsSystemMessages(t *testing.T) {
	fm := &fakeMessager{}
	prev := newAnthropicClient
	newAnthropicClient = func(string, string) AnthropicMessager { return fm }
	t.Cleanup(func() { newAnthropicClient = prev })

	c, err := NewAnthropicCaller(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewAnthropicCaller: %v", err)
	}
	got, err := c.Invoke(context.Background(), []Message{System("be terse"), User("hi")})
	if err != nil || got != "hello" {
		t.Fatalf("Invoke = %q, %v", got, err)
	}
	if len(fm.params.System) != 1 || fm.params.System[0].Text != "be terse" {
		t.Fatalf("system prompt not forwarded: %+v", fm.params.System)
	}
	if len(fm.params.Messages) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(fm.params.Messages))
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config{Provider: ProviderAnthropic}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := New(Config{Provider: "mystery", APIKey: "k"}, nil); err == nil {
		t.Fatal("expected unknown provider error")
	}
}

type fakeCompleter struct {
	req openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "pong"}}}}, nil
}

func TestOpenAICallerMapsRoles(t *testing.T) {
	fc := &fakeCompleter{}
	c := &OpenAICaller{client: fc, model: "gpt-test"}
	got, err := c.Invoke(context.Background(), []Message{System("sys"), User("ping")})
	if err != nil || got != "pong" {
		t.Fatalf("Invoke = %q, %v", got, err)
	}
	if fc.req.Messages[0].Role != openai.ChatMessageRoleSystem || fc.req.Messages[1].Role != openai.ChatMessageRoleUser {
		t.Fatalf("unexpected roles %+v", fc.req.Messages)
	}
}
