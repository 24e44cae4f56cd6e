package adapters

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// ChatConfig holds the parameters for the chat adapter.
type ChatConfig struct {
	Token          string
	DefaultChannel string
	// APIURL overrides the Slack API endpoint. Used by tests with a mock
	// server.
	APIURL string
}

// ChatAdapter posts messages through the Slack API.
type ChatAdapter struct {
	api            *goslack.Client
	defaultChannel string
	logger         *slog.Logger
}

// NewChat creates the chat adapter. Returns a mock when no token is
// configured.
func NewChat(cfg ChatConfig) Adapter {
	if cfg.Token == "" {
		slog.Info("Chat token not configured, using mock adapter")
		return Mock("chat")
	}
	opts := []goslack.Option{}
	if cfg.APIURL != "" {
		opts = append(opts, goslack.OptionAPIURL(cfg.APIURL))
	}
	return &ChatAdapter{
		api:            goslack.New(cfg.Token, opts...),
		defaultChannel: cfg.DefaultChannel,
		logger:         slog.Default().With("component", "chat-adapter"),
	}
}

func (a *ChatAdapter) Name() string { return "chat" }

// Execute posts input["message"] to input["channel"] (falling back to the
// configured default). input["thread_ts"] threads the message.
func (a *ChatAdapter) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	message, _ := input["message"].(string)
	if message == "" {
		return nil, fmt.Errorf("chat adapter requires a message")
	}
	channel, _ := input["channel"].(string)
	if channel == "" {
		channel = a.defaultChannel
	}
	if channel == "" {
		return nil, fmt.Errorf("chat adapter requires a channel")
	}

	opts := []goslack.MsgOption{goslack.MsgOptionText(message, false)}
	if threadTS, _ := input["thread_ts"].(string); threadTS != "" {
		opts = append(opts, goslack.MsgOptionTS(threadTS))
	}

	respChannel, ts, err := a.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return nil, fmt.Errorf("chat.postMessage failed: %w", err)
	}
	a.logger.Debug("Posted chat message", "channel", respChannel, "ts", ts)
	return map[string]any{
		"channel":   respChannel,
		"timestamp": ts,
	}, nil
}
