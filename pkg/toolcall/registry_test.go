package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResult(t *testing.T, payload string) Result {
	t.Helper()
	var result Result
	require.NoError(t, json.Unmarshal([]byte(payload), &result))
	return result
}

func weatherDefinition(handler Handler) Definition {
	return Definition{
		Name:        "get_weather",
		Description: "Returns the weather for a location.",
		Parameters: []Parameter{
			{Name: "location", Type: "string", Description: "City name.", Required: true},
		},
		Handler: handler,
	}
}

func TestRegistryExecuteSuccess(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(weatherDefinition(
		func(_ context.Context, params map[string]any) (any, error) {
			return "Sunny in " + params["location"].(string), nil
		},
	)))

	result := decodeResult(t, registry.Execute(context.Background(), "get_weather", `{"location":"Beijing"}`))
	assert.True(t, result.Success)
	assert.Equal(t, "Sunny in Beijing", result.Output)
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	result := decodeResult(t, NewRegistry().Execute(context.Background(), "missing", `{}`))
	assert.False(t, result.Success)
	assert.True(t, result.NotImplemented)
	assert.Contains(t, result.Error, "not implemented")
}

func TestRegistryExecuteSchemaViolation(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(weatherDefinition(
		func(_ context.Context, _ map[string]any) (any, error) {
			t.Fatal("handler should not run")
			return nil, nil
		},
	)))

	result := decodeResult(t, registry.Execute(context.Background(), "get_weather", `{"city":"Beijing"}`))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "invalid arguments")
}

func TestRegistryExecuteHandlerError(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(weatherDefinition(
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("upstream weather service unavailable")
		},
	)))

	result := decodeResult(t, registry.Execute(context.Background(), "get_weather", `{"location":"Beijing"}`))
	assert.False(t, result.Success)
	assert.Equal(t, "upstream weather service unavailable", result.Error)
}

func TestRegistryExecuteTruncatesLargeOutput(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(Definition{
		Name:        "big",
		Description: "big output",
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return strings.Repeat("x", maxOutputBytes*2), nil
		},
	}))

	result := decodeResult(t, registry.Execute(context.Background(), "big", `{}`))
	assert.True(t, result.Success)
	assert.True(t, result.Truncated)
	assert.Contains(t, result.Output.(string), "[output truncated]")
}

func TestRegistryRejectsDuplicateName(t *testing.T) {
	registry := NewRegistry()
	def := weatherDefinition(func(_ context.Context, _ map[string]any) (any, error) { return nil, nil })
	require.NoError(t, registry.Register(def))
	assert.Error(t, registry.Register(def))
}

func TestRegistryRegisterValidation(t *testing.T) {
	registry := NewRegistry()
	assert.Error(t, registry.Register(Definition{Description: "nameless"}))
	assert.Error(t, registry.Register(Definition{Name: "handlerless"}))
}

func TestRegistryDeclarations(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(weatherDefinition(
		func(_ context.Context, _ map[string]any) (any, error) { return nil, nil },
	)))

	decls := registry.Declarations()
	require.Len(t, decls, 1)
	assert.Equal(t, "get_weather", decls[0].Name)

	props, ok := decls[0].InputSchema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "location")
	assert.Equal(t, []string{"location"}, decls[0].InputSchema["required"])
}

func TestRegisterBuiltins(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, RegisterBuiltins(registry))
	assert.Equal(t, 2, registry.Len())

	result := decodeResult(t, registry.Execute(context.Background(), "current_time", `{}`))
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Output)
}
