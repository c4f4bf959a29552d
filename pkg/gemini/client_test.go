package gemini

import (
	"context"
	"errors"
	"testing"

	"histai-go/internal/config"

	"google.golang.org/genai"
)

type fakeModels struct {
	calls   []string
	respond func(model string) (*genai.GenerateContentResponse, error)
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls = append(f.calls, model)
	return f.respond(model)
}

func imageResponse(data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here is your portrait"},
				{InlineData: &genai.Blob{Data: data, MIMEType: "image/png"}},
			}},
		}},
	}
}

func TestGenerateFallsBackAcrossModels(t *testing.T) {
	fm := &fakeModels{respond: func(model string) (*genai.GenerateContentResponse, error) {
		switch model {
		case "m1":
			return nil, errors.New("404 model not found")
		case "m2":
			return &genai.GenerateContentResponse{}, nil
		}
		return imageResponse([]byte{1, 2, 3}), nil
	}}
	c := &Client{cfg: config.GeminiConfig{ImageModels: []string{"m1", "m2", "m3"}}, models: fm}

	img, err := c.Generate(context.Background(), "portrait")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if img.Model != "m3" || len(img.Data) != 3 || img.MIMEType != "image/png" {
		t.Fatalf("img = %+v", img)
	}
	if len(fm.calls) != 3 {
		t.Fatalf("calls = %v", fm.calls)
	}
}

func TestGenerateAllModelsFail(t *testing.T) {
	fm := &fakeModels{respond: func(string) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{}, nil
	}}
	c := &Client{cfg: config.GeminiConfig{ImageModels: []string{"m1"}}, models: fm}
	if _, err := c.Generate(context.Background(), "p"); !errors.Is(err, ErrNoImage) {
		t.Fatalf("err = %v", err)
	}
}

func TestWritePrompt(t *testing.T) {
	fm := &fakeModels{respond: func(string) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "  A portrait of Napoleon  "}}},
		}}}, nil
	}}
	c := &Client{cfg: config.GeminiConfig{TextModel: "text"}, models: fm}
	out, err := c.WritePrompt(context.Background(), "sys", "user")
	if err != nil || out != "A portrait of Napoleon" {
		t.Fatalf("out=%q err=%v", out, err)
	}
}

func TestUnconfigured(t *testing.T) {
	c, err := NewClient(context.Background(), config.GeminiConfig{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Configured() {
		t.Fatal("expected unconfigured")
	}
	if _, err := c.WritePrompt(context.Background(), "", ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}
