// Package content wraps the generative AI calls used to fill receipts:
// signature images, a signatory name and batches of student/parent names.
//
// Every call degrades to a zero value on failure. Callers never see errors;
// failures are logged under the content category.
package content

import (
	"context"
	"fmt"
	"time"

	"receiptgen/internal/config"
	"receiptgen/internal/logging"
	"receiptgen/internal/receipt"

	"google.golang.org/genai"
)

// MaxNamePairs bounds a single NamePairs request.
const MaxNamePairs = 100

// Provider supplies AI generated receipt content.
type Provider interface {
	// SignatureImage returns a data:image/png;base64 URL or "".
	SignatureImage(ctx context.Context, name string, detail int) string
	// PrincipalName returns a multi-word name or "".
	PrincipalName(ctx context.Context) string
	// NamePairs returns count student/parent pairs or nil.
	NamePairs(ctx context.Context, count int) []receipt.NamePair
}

// Models is the subset of *genai.Models the provider calls.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Options configures a Gemini provider.
type Options struct {
	TextModel      string
	ImageModel     string
	AspectRatio    string
	Timeout        time.Duration
	SignatureMaxPx int
}

// OptionsFromConfig extracts provider options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TextModel:      cfg.Content.TextModel,
		ImageModel:     cfg.Content.ImageModel,
		AspectRatio:    cfg.Content.AspectRatio,
		Timeout:        cfg.GetContentTimeout(),
		SignatureMaxPx: cfg.Content.SignatureMaxPx,
	}
}

// ValidCount reports whether n is an acceptable NamePairs count.
func ValidCount(n int) bool {
	return n >= 1 && n <= MaxNamePairs
}

// New returns a Gemini backed provider, or a Disabled one when no API key is
// configured.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	if cfg.Content.APIKey == "" {
		logging.Get(logging.CategoryContent).Warn("API key is not configured; AI generation disabled")
		return Disabled{}, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Content.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return NewGemini(client.Models, OptionsFromConfig(cfg)), nil
}

// Disabled is the provider used when no API key is configured.
type Disabled struct{}

func (Disabled) SignatureImage(ctx context.Context, name string, detail int) string {
	logging.Get(logging.CategoryContent).Debug("signature requested for %q but AI is disabled", name)
	return ""
}

func (Disabled) PrincipalName(ctx context.Context) string { return "" }

func (Disabled) NamePairs(ctx context.Context, count int) []receipt.NamePair { return nil }
