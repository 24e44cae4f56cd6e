package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EscalationAdapter turns incident escalations into chat notifications.
// It wraps the chat adapter rather than owning a transport of its own.
type EscalationAdapter struct {
	chat    Adapter
	channel string
}

// NewEscalation creates the escalation adapter posting to channel via
// chat. A mock chat adapter propagates mock behavior naturally.
func NewEscalation(chat Adapter, channel string) *EscalationAdapter {
	return &EscalationAdapter{chat: chat, channel: channel}
}

func (a *EscalationAdapter) Name() string { return "escalation" }

func (a *EscalationAdapter) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	incidentID, _ := input["incident_id"].(string)
	severity, _ := input["severity"].(string)
	summary, _ := input["summary"].(string)
	if incidentID == "" || summary == "" {
		return nil, fmt.Errorf("escalation requires incident_id and summary")
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, ":rotating_light: *Incident escalation* [%s]\n", strings.ToUpper(severity))
	fmt.Fprintf(&msg, "*%s*: %s", incidentID, summary)
	if details, ok := input["details"].(map[string]any); ok {
		for k, v := range details {
			fmt.Fprintf(&msg, "\n> %s: %v", k, v)
		}
	}

	chatInput := map[string]any{"message": msg.String()}
	if a.channel != "" {
		chatInput["channel"] = a.channel
	}
	result, err := a.chat.Execute(ctx, chatInput)
	if err != nil {
		return nil, fmt.Errorf("escalation notify failed: %w", err)
	}

	return map[string]any{
		"escalation_id": "esc-" + uuid.New().String(),
		"notified":      true,
		"chat_result":   result,
	}, nil
}
