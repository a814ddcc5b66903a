package llm

import (
	"context"
	"fmt"
)

// azureOpenAIProvider implements Provider against an Azure OpenAI deployment.
// Unlike the public OpenAI API, Azure scopes requests to a specific
// deployment name and authenticates with an api-key header instead of a
// bearer token (azureEndpoint, azureDeployment, azureAPIVersion all come
// from Config).
type azureOpenAIProvider struct {
	base openAICompatClient
}

// NewAzureOpenAI creates a provider for an Azure OpenAI deployment. It
// returns an error (unlike the other constructors) because Azure requires
// three fields the others don't: endpoint, deployment, and api-version.
func NewAzureOpenAI(cfg Config) (Provider, error) {
	if cfg.AzureEndpoint == "" {
		return nil, fmt.Errorf("llm: azure_openai requires azure_endpoint")
	}
	if cfg.AzureDeployment == "" {
		return nil, fmt.Errorf("llm: azure_openai requires azure_deployment")
	}
	if cfg.AzureAPIVersion == "" {
		cfg.AzureAPIVersion = "2024-06-01"
	}
	return &azureOpenAIProvider{base: newAzureOpenAIClient(cfg)}, nil
}

func (p *azureOpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}

func (p *azureOpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.base.embed(ctx, texts)
}

func (p *azureOpenAIProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	return p.base.chatWithImages(ctx, req)
}
