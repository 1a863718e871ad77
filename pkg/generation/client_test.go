//nolint:lll // readability
package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/iracelog-strategy-service-go/pkg/utils/cache/loadercache"
)

type reply struct {
	text string
	err  error
}

type fakeBackend struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
}

func (f *fakeBackend) Generate(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)
	if len(f.replies) == 0 {
		return "", errors.New("no more replies")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.text, r.err
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

const validJSON = `{"strategies":[{"strategy_id":1,"pit_laps":[30]}]}`

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "json fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "other tag", in: "```JSON5 {\"a\":1}```", want: `{"a":1}`},
		{name: "surrounding space", in: "  \n```json\n{\"a\":1}\n```  \n", want: `{"a":1}`},
		{name: "trailing only", in: "{\"a\":1}\n```", want: `{"a":1}`},
		{name: "empty fence", in: "```json\n```", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFence(tt.in))
		})
	}
}

func TestParseJSON_fencedEqualsPlain(t *testing.T) {
	plain, err := ParseJSON(validJSON)
	require.NoError(t, err)
	fenced, err := ParseJSON("```json\n" + validJSON + "\n```")
	require.NoError(t, err)
	assert.Equal(t, plain, fenced)
}

func TestParseJSON_errors(t *testing.T) {
	_, err := ParseJSON("here you go: {")
	assert.ErrorIs(t, err, ErrMalformedOutput)
	_, err = ParseJSON("null")
	assert.ErrorIs(t, err, ErrMalformedOutput)
	_, err = ParseJSON("[1,2]")
	assert.ErrorIs(t, err, ErrMalformedOutput)
	_, err = ParseJSON("```\n```")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestLadder(t *testing.T) {
	l := DefaultLadder()
	assert.Equal(t, 2, l.Steps())
	assert.Equal(t, "base", l.Prompt("base", 0))
	assert.Equal(t, "base\n\n"+StructuredOnlyInstruction, l.Prompt("base", 1))
	assert.Equal(t, l.Prompt("base", 1), l.Prompt("base", 5))

	assert.Equal(t, 1, l.Next(0, true))
	assert.Equal(t, 1, l.Next(1, true))
	assert.Equal(t, 0, l.Next(0, false))

	custom := NewLadder("first", "second")
	assert.Equal(t, "p\n\nfirst\n\nsecond", custom.Prompt("p", 2))
}

func TestClient_parseFailureEscalates(t *testing.T) {
	be := &fakeBackend{replies: []reply{{text: "Sure! Here is the plan"}, {text: validJSON}}}
	rec := &sleepRecorder{}
	c := NewClient(be, WithSleep(rec.sleep))

	res, err := c.GenerateJSON(context.Background(), "prompt", 0.9, 0)
	require.NoError(t, err)
	assert.Contains(t, res, "strategies")
	require.Len(t, be.prompts, 2)
	assert.Equal(t, "prompt", be.prompts[0])
	assert.Contains(t, be.prompts[1], StructuredOnlyInstruction)
	assert.Equal(t, []time.Duration{time.Second}, rec.waits)
}

func TestClient_transportFailureKeepsPrompt(t *testing.T) {
	be := &fakeBackend{replies: []reply{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
	}}
	rec := &sleepRecorder{}
	c := NewClient(be, WithSleep(rec.sleep))

	_, err := c.GenerateJSON(context.Background(), "prompt", 0.9, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 3, genErr.Attempts)
	assert.Contains(t, genErr.Last.Error(), "connection reset")
	assert.Equal(t, []string{"prompt", "prompt", "prompt"}, be.prompts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.waits)
}

func TestClient_timeoutBacksOffLonger(t *testing.T) {
	be := &fakeBackend{replies: []reply{
		{err: errors.New("504 Gateway Timeout")},
		{err: context.DeadlineExceeded},
		{text: validJSON},
	}}
	rec := &sleepRecorder{}
	c := NewClient(be, WithSleep(rec.sleep))

	_, err := c.GenerateJSON(context.Background(), "prompt", 0.9, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, rec.waits)
}

func TestClient_maxAttempts(t *testing.T) {
	be := &fakeBackend{}
	c := NewClient(be, WithMaxAttempts(5), WithSleep((&sleepRecorder{}).sleep))
	_, err := c.GenerateJSON(context.Background(), "prompt", 0.9, time.Second)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, 5, genErr.Attempts)
	assert.Len(t, be.prompts, 5)
}

func TestClient_cancelledDuringWait(t *testing.T) {
	be := &fakeBackend{replies: []reply{{err: errors.New("unavailable")}, {text: validJSON}}}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient(be, WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))
	_, err := c.GenerateJSON(ctx, "prompt", 0.9, time.Second)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, be.prompts, 1)
}

func TestClient_perAttemptTimeout(t *testing.T) {
	be := backendFunc(func(ctx context.Context, req Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	c := NewClient(be, WithMaxAttempts(1))
	start := time.Now()
	_, err := c.GenerateJSON(context.Background(), "prompt", 0.9, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_cache(t *testing.T) {
	be := &fakeBackend{replies: []reply{{text: validJSON}, {text: `{"other":true}`}}}
	c := NewClient(be, WithCache(loadercache.New[string, Result]()))

	first, err := c.GenerateJSON(context.Background(), "prompt", 0.9, time.Second)
	require.NoError(t, err)
	second, err := c.GenerateJSON(context.Background(), "prompt", 0.9, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, be.prompts, 1)

	_, err = c.GenerateJSON(context.Background(), "prompt", 0.5, time.Second)
	require.NoError(t, err)
	assert.Len(t, be.prompts, 2)
}

func Test_cacheKey(t *testing.T) {
	long := string(make([]rune, 150))
	assert.Equal(t, cacheKey(long, 0.9), cacheKey(long+"tail", 0.9))
	assert.NotEqual(t, cacheKey("a", 0.9), cacheKey("a", 0.7))
}

type backendFunc func(ctx context.Context, req Request) (string, error)

func (f backendFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
