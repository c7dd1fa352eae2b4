package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatserver/models"
)

type capturedRequest struct {
	Path   string
	Auth   string
	Model  string
	Roles  []string
	Bodies []string
}

// fakeProvider serves /chat/completions in the OpenAI wire format.
func fakeProvider(t *testing.T, status int, body string) (*httptest.Server, func() capturedRequest) {
	t.Helper()
	var (
		mu  sync.Mutex
		got capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		mu.Lock()
		got = capturedRequest{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Model: req.Model}
		for _, m := range req.Messages {
			got.Roles = append(got.Roles, m.Role)
			got.Bodies = append(got.Bodies, m.Content)
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

const okBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"model": "gpt-3.5-turbo",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hi there"}, "finish_reason": "stop"}]
}`

var helloPrompt = []models.PromptTurn{
	{Role: models.RoleUser, Content: "Hello"},
	{Role: models.RoleAssistant, Content: "Hi there"},
	{Role: models.RoleUser, Content: "How are you?"},
}

func completionClients(baseURL string) map[string]CompletionClient {
	return map[string]CompletionClient{
		"openai": NewOpenAIClient("sk-test", baseURL, "gpt-3.5-turbo", nil),
		"http":   NewHTTPCompletionClient("sk-test", baseURL, "gpt-3.5-turbo"),
	}
}

func TestCompletionClientsSendOrderedLowercaseRoles(t *testing.T) {
	srv, captured := fakeProvider(t, http.StatusOK, okBody)

	for name, client := range completionClients(srv.URL + "/v1") {
		t.Run(name, func(t *testing.T) {
			reply, err := client.Complete(context.Background(), helloPrompt)
			require.NoError(t, err)
			assert.Equal(t, models.PromptTurn{Role: models.RoleAssistant, Content: "Hi there"}, reply)

			got := captured()
			assert.Equal(t, "/v1/chat/completions", got.Path)
			assert.Equal(t, "Bearer sk-test", got.Auth)
			assert.Equal(t, "gpt-3.5-turbo", got.Model)
			assert.Equal(t, []string{"user", "assistant", "user"}, got.Roles)
			assert.Equal(t, []string{"Hello", "Hi there", "How are you?"}, got.Bodies)
		})
	}
}

func TestCompletionClientsWrapProviderErrors(t *testing.T) {
	srv, _ := fakeProvider(t, http.StatusInternalServerError,
		`{"error": {"message": "model overloaded", "type": "server_error"}}`)

	for name, client := range completionClients(srv.URL) {
		t.Run(name, func(t *testing.T) {
			_, err := client.Complete(context.Background(), helloPrompt)
			var ce *CompletionError
			require.ErrorAs(t, err, &ce)
		})
	}
}

func TestCompletionClientsRejectEmptyChoices(t *testing.T) {
	srv, _ := fakeProvider(t, http.StatusOK, `{"id": "x", "choices": []}`)

	for name, client := range completionClients(srv.URL) {
		t.Run(name, func(t *testing.T) {
			_, err := client.Complete(context.Background(), helloPrompt)
			var ce *CompletionError
			require.ErrorAs(t, err, &ce)
			assert.Contains(t, err.Error(), "no choices")
		})
	}
}

func TestCompletionClientsRejectInvalidRole(t *testing.T) {
	for name, client := range completionClients("http://127.0.0.1:1") {
		t.Run(name, func(t *testing.T) {
			_, err := client.Complete(context.Background(), []models.PromptTurn{{Role: models.Role(9), Content: "?"}})
			var ce *CompletionError
			require.ErrorAs(t, err, &ce)
		})
	}
}

func TestCompletionClientsHonorContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	for name, client := range completionClients(srv.URL) {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, err := client.Complete(ctx, helloPrompt)
			var ce *CompletionError
			require.ErrorAs(t, err, &ce)
		})
	}
}

func TestHTTPCompletionErrorIncludesProviderMessage(t *testing.T) {
	srv, _ := fakeProvider(t, http.StatusTooManyRequests,
		`{"error": {"message": "rate limited", "type": "requests"}}`)

	_, err := NewHTTPCompletionClient("sk-test", srv.URL, "m").Complete(context.Background(), helloPrompt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestRoleTag(t *testing.T) {
	tag, err := roleTag(models.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "user", tag)

	tag, err = roleTag(models.RoleAssistant)
	require.NoError(t, err)
	assert.Equal(t, "assistant", tag)

	_, err = roleTag(models.Role(0))
	assert.Error(t, err)
}
