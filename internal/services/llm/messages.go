package llm

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ternarybob/quaero/internal/interfaces"
	"google.golang.org/genai"
)

// convertMessagesToClaude converts provider-agnostic messages to Claude's
// MessageParam format, pulling any system message out to be set separately
// via params.System.
func convertMessagesToClaude(messages []interfaces.ContentMessage) ([]anthropic.MessageParam, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		switch msg.Role {
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	if len(claudeMessages) == 0 {
		return nil, "", fmt.Errorf("at least one non-system message is required")
	}

	return claudeMessages, systemText, nil
}

// convertMessagesToGemini converts provider-agnostic messages to Gemini's
// Content format, pulling any system message out for SystemInstruction.
func convertMessagesToGemini(messages []interfaces.ContentMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}

		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}

	if len(contents) == 0 {
		return nil, "", fmt.Errorf("at least one non-system message is required")
	}

	return contents, systemText, nil
}
