package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetResolve(t *testing.T) {
	set := NewSet()
	set.Register(Mock("chat"))
	set.Register(Mock("email"))

	a, err := set.Resolve("chat")
	require.NoError(t, err)
	assert.Equal(t, "chat", a.Name())

	_, err = set.Resolve("ticket")
	assert.ErrorIs(t, err, ErrAdapterUnavailable)

	assert.ElementsMatch(t, []string{"chat", "email"}, set.Names())
}

func TestMockAdapterDeterministic(t *testing.T) {
	m := Mock("ticket")
	input := map[string]any{"title": "t", "description": "d"}

	r1, err := m.Execute(context.Background(), input)
	require.NoError(t, err)
	r2, err := m.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, true, r1["mock"])
	assert.Equal(t, "mock-ticket-0001", r1["id"])
	assert.Equal(t, []string{"description", "title"}, r1["input_keys"])
}

func TestNewChatWithoutTokenIsMock(t *testing.T) {
	a := NewChat(ChatConfig{})
	result, err := a.Execute(context.Background(), map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, true, result["mock"])
}

func TestChatAdapterPostsMessage(t *testing.T) {
	var gotChannel, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotChannel = r.FormValue("channel")
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true, "channel": "C123", "ts": "1700000000.000100"}`))
	}))
	defer srv.Close()

	a := NewChat(ChatConfig{Token: "xoxb-test", DefaultChannel: "#alerts", APIURL: srv.URL + "/"})
	result, err := a.Execute(context.Background(), map[string]any{"message": "deploy done"})
	require.NoError(t, err)

	assert.Equal(t, "#alerts", gotChannel)
	assert.Equal(t, "deploy done", gotText)
	assert.Equal(t, "C123", result["channel"])
	assert.Equal(t, "1700000000.000100", result["timestamp"])
}

func TestChatAdapterRequiresMessage(t *testing.T) {
	a := NewChat(ChatConfig{Token: "xoxb-test", DefaultChannel: "#alerts"})
	_, err := a.Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestNewEmailWithoutHostIsMock(t *testing.T) {
	a := NewEmail(EmailConfig{})
	result, err := a.Execute(context.Background(), map[string]any{"to": "x@example.com"})
	require.NoError(t, err)
	assert.Equal(t, true, result["mock"])
}

func TestEmailAdapterBuildsMessage(t *testing.T) {
	var gotTo []string
	var gotMsg string
	a := NewEmail(EmailConfig{Host: "smtp.example.com", From: "relay@example.com"}).(*EmailAdapter)
	a.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "smtp.example.com:587", addr)
		assert.Equal(t, "relay@example.com", from)
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	result, err := a.Execute(context.Background(), map[string]any{
		"to":      "ops@example.com",
		"subject": "Nightly report",
		"body":    "All green.",
		"cc":      []any{"lead@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Nightly report")
	assert.Contains(t, gotMsg, "Cc: lead@example.com")
	assert.Contains(t, gotMsg, "All green.")
	assert.NotEmpty(t, result["message_id"])
}

func TestEmailAdapterRequiresFields(t *testing.T) {
	a := NewEmail(EmailConfig{Host: "smtp.example.com", From: "relay@example.com"})
	_, err := a.Execute(context.Background(), map[string]any{"to": "ops@example.com"})
	assert.Error(t, err)
}

func TestNewHTTPWithoutURLIsMock(t *testing.T) {
	a := NewHTTP(HTTPConfig{Name: "ticket"})
	result, err := a.Execute(context.Background(), map[string]any{"title": "x"})
	require.NoError(t, err)
	assert.Equal(t, true, result["mock"])
	assert.Equal(t, "ticket", result["adapter"])
}

func TestHTTPAdapterPostsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var input map[string]any
		require.NoError(t, json.Unmarshal(body, &input))
		assert.Equal(t, "Investigate pod restarts", input["title"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ticket_id": "TCK-991", "url": "https://tracker/TCK-991"}`))
	}))
	defer srv.Close()

	a := NewHTTP(HTTPConfig{Name: "ticket", BaseURL: srv.URL, Token: "tok-123"})
	result, err := a.Execute(context.Background(), map[string]any{"title": "Investigate pod restarts"})
	require.NoError(t, err)
	assert.Equal(t, "TCK-991", result["ticket_id"])
}

func TestHTTPAdapterNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewHTTP(HTTPConfig{Name: "workflow", BaseURL: srv.URL})
	_, err := a.Execute(context.Background(), map[string]any{"workflow_id": "w1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestEscalationAdapter(t *testing.T) {
	chat := &capturingAdapter{name: "chat"}
	a := NewEscalation(chat, "#incidents")

	result, err := a.Execute(context.Background(), map[string]any{
		"incident_id": "INC-2041",
		"severity":    "high",
		"summary":     "API error rate above 5%",
		"details":     map[string]any{"region": "us-east-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, true, result["notified"])
	assert.Contains(t, result["escalation_id"], "esc-")
	assert.Equal(t, "#incidents", chat.lastInput["channel"])
	msg := chat.lastInput["message"].(string)
	assert.Contains(t, msg, "INC-2041")
	assert.Contains(t, msg, "HIGH")
	assert.Contains(t, msg, "region: us-east-1")
}

func TestEscalationRequiresIncident(t *testing.T) {
	a := NewEscalation(Mock("chat"), "#incidents")
	_, err := a.Execute(context.Background(), map[string]any{"severity": "low"})
	assert.Error(t, err)
}

type capturingAdapter struct {
	name      string
	lastInput map[string]any
}

func (c *capturingAdapter) Name() string { return c.name }

func (c *capturingAdapter) Execute(_ context.Context, input map[string]any) (map[string]any, error) {
	c.lastInput = input
	return map[string]any{"channel": "C1", "timestamp": "1.2"}, nil
}
