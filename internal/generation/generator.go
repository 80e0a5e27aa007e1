package generation

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Request is the input of a generation job.
type Request struct {
	Prompt string `json:"prompt" validate:"required,min=3,max=8000"`
	Style  string `json:"style,omitempty" validate:"omitempty,max=200"`
}

// Image is a binary image returned by the provider.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Result is the output of a completed generation job.
type Result struct {
	Text   string  `json:"text"`
	Images []Image `json:"images,omitempty"`
	Model  string  `json:"model"`
}

// Generator defines the interface for producing content from a prompt.
// This interface is the boundary between the job queue and external LLM
// services.
type Generator interface {
	// Generate sends the rendered prompt to the provider and returns its output.
	// Errors wrap one of the sentinels in errors.go.
	Generate(ctx context.Context, prompt string) (Result, error)
}

var validate = validator.New()

// Validate checks the request against its struct constraints.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
