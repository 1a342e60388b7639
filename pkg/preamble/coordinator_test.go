package preamble

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadira/kirin/pkg/chat"
	"github.com/nadira/kirin/pkg/provider"
)

type fakeProvider struct {
	resp    *provider.Response
	err     error
	lastReq provider.Request
	calls   int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(_ context.Context, req provider.Request) (*provider.Response, error) {
	f.calls++
	f.lastReq = req
	return f.resp, f.err
}

func (f *fakeProvider) Stream(_ context.Context, _ provider.Request) (provider.DeltaStream, error) {
	return nil, errors.New("not streamable")
}

func userTurn(content string) []chat.Message {
	return []chat.Message{
		{Role: chat.RoleInstruction, Content: "You are helpful."},
		{Role: chat.RoleUser, Content: content},
	}
}

func newTestCoordinator(t *testing.T, p provider.CompletionProvider, enabled bool) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(Config{
		Provider: p,
		Model:    "fast-model",
		Enabled:  enabled,
	})
	require.NoError(t, err)
	return c
}

func TestPreambleEmitted(t *testing.T) {
	p := &fakeProvider{resp: &provider.Response{Content: "One moment while I look into that."}}
	c := newTestCoordinator(t, p, true)

	var emitted []string
	ok := c.MaybeEmitPreamble(context.Background(), userTurn("tell me about turtles"), nil, func(s string) error {
		emitted = append(emitted, s)
		return nil
	})

	assert.True(t, ok)
	require.Len(t, emitted, 1)
	assert.Equal(t, "One moment while I look into that.", emitted[0])
	assert.Equal(t, "fast-model", p.lastReq.Model)
	assert.Equal(t, "tell me about turtles", p.lastReq.Messages[1].Content)
}

func TestPreambleDisabledByDefault(t *testing.T) {
	p := &fakeProvider{resp: &provider.Response{Content: "ack"}}
	c := newTestCoordinator(t, p, false)

	ok := c.MaybeEmitPreamble(context.Background(), userTurn("hi"), nil, func(string) error { return nil })
	assert.False(t, ok)
	assert.Equal(t, 0, p.calls)
}

func TestPreambleOverrideForcesOn(t *testing.T) {
	p := &fakeProvider{resp: &provider.Response{Content: "ack"}}
	c := newTestCoordinator(t, p, false)

	on := true
	ok := c.MaybeEmitPreamble(context.Background(), userTurn("hi"), &on, func(string) error { return nil })
	assert.True(t, ok)
	assert.Equal(t, 1, p.calls)
}

func TestPreambleOverrideForcesOff(t *testing.T) {
	p := &fakeProvider{resp: &provider.Response{Content: "ack"}}
	c := newTestCoordinator(t, p, true)

	off := false
	ok := c.MaybeEmitPreamble(context.Background(), userTurn("hi"), &off, func(string) error { return nil })
	assert.False(t, ok)
	assert.Equal(t, 0, p.calls)
}

func TestPreambleSkippedWhenLatestNotUser(t *testing.T) {
	p := &fakeProvider{resp: &provider.Response{Content: "ack"}}
	c := newTestCoordinator(t, p, true)

	history := append(userTurn("hi"), chat.Message{Role: chat.RoleAssistant, Content: "hello"})
	ok := c.MaybeEmitPreamble(context.Background(), history, nil, func(string) error { return nil })
	assert.False(t, ok)
	assert.Equal(t, 0, p.calls)
}

func TestPreambleProviderErrorSwallowed(t *testing.T) {
	p := &fakeProvider{err: errors.New("upstream timeout")}
	c := newTestCoordinator(t, p, true)

	ok := c.MaybeEmitPreamble(context.Background(), userTurn("hi"), nil, func(string) error {
		t.Fatal("emit should not be called")
		return nil
	})
	assert.False(t, ok)
}

func TestPreambleEmitErrorSwallowed(t *testing.T) {
	p := &fakeProvider{resp: &provider.Response{Content: "ack"}}
	c := newTestCoordinator(t, p, true)

	ok := c.MaybeEmitPreamble(context.Background(), userTurn("hi"), nil, func(string) error {
		return errors.New("channel closed")
	})
	assert.False(t, ok)
}

func TestNewCoordinatorValidation(t *testing.T) {
	_, err := NewCoordinator(Config{Model: "m"})
	assert.Error(t, err)

	_, err = NewCoordinator(Config{Provider: &fakeProvider{}})
	assert.Error(t, err)
}
