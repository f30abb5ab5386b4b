package inference_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docpipe/internal/inference"
	"docpipe/internal/port"
	"docpipe/mocks"
)

func TestRetryingClient_PassesThroughSuccess(t *testing.T) {
	inner := new(mocks.MockInferenceClient)
	inner.On("Generate", mock.Anything, mock.Anything).Return("ok", nil).Once()

	client := inference.NewRetryingClient(inner, 2, 100, 10)
	out, err := client.Generate(context.Background(), port.GenerateRequest{Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	inner.AssertNumberOfCalls(t, "Generate", 1)
}

func TestRetryingClient_RetriesTransportErrors(t *testing.T) {
	transportErr := inference.NewTransportError("ollama", errors.New("connection refused"))

	inner := new(mocks.MockInferenceClient)
	inner.On("Generate", mock.Anything, mock.Anything).Return("", transportErr).Twice()
	inner.On("Generate", mock.Anything, mock.Anything).Return("ok", nil).Once()

	client := inference.NewRetryingClient(inner, 2, 100, 10)
	out, err := client.Generate(context.Background(), port.GenerateRequest{Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	inner.AssertNumberOfCalls(t, "Generate", 3)
}

func TestRetryingClient_GivesUpAfterMaxRetries(t *testing.T) {
	transportErr := inference.NewTransportError("ollama", errors.New("connection refused"))

	inner := new(mocks.MockInferenceClient)
	inner.On("Generate", mock.Anything, mock.Anything).Return("", transportErr).Times(3)

	client := inference.NewRetryingClient(inner, 2, 100, 10)
	_, err := client.Generate(context.Background(), port.GenerateRequest{Prompt: "hi"})

	require.Error(t, err)
	assert.True(t, inference.IsTransport(err))
	inner.AssertNumberOfCalls(t, "Generate", 3)
}

func TestRetryingClient_DoesNotRetryModelErrors(t *testing.T) {
	inner := new(mocks.MockInferenceClient)
	inner.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("model not found")).Once()

	client := inference.NewRetryingClient(inner, 2, 100, 10)
	_, err := client.Generate(context.Background(), port.GenerateRequest{Prompt: "hi"})

	require.Error(t, err)
	inner.AssertNumberOfCalls(t, "Generate", 1)
}

func TestRetryingClient_CancelledContext(t *testing.T) {
	inner := new(mocks.MockInferenceClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := inference.NewRetryingClient(inner, 2, 100, 10)
	_, err := client.Generate(ctx, port.GenerateRequest{Prompt: "hi"})

	assert.ErrorIs(t, err, context.Canceled)
	inner.AssertNumberOfCalls(t, "Generate", 0)
}
