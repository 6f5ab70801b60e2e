package interfaces

import "context"

// ContentMessage is one turn in a chat-style LLM request.
type ContentMessage struct {
	Role    string // "user", "assistant", or "system"
	Content string
}

// ContentRequest is a provider-agnostic request to generate content.
// OutputSchema, when set, asks the provider to constrain its response to
// the given JSON Schema; providers that cannot enforce this ignore it
// (see internal/services/llm).
type ContentRequest struct {
	Messages          []ContentMessage
	Model             string
	Temperature       float32
	MaxTokens         int
	SystemInstruction string
	OutputSchema      map[string]interface{}
}

// ContentResponse is a provider-agnostic LLM response.
type ContentResponse struct {
	Text     string
	Provider string
	Model    string
}

// ContentGenerator is the interface the Extractor depends on. It is
// satisfied by internal/services/llm.ProviderFactory, which dispatches to
// Claude or Gemini based on the configured model name.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, req *ContentRequest) (*ContentResponse, error)
}
