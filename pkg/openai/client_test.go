package openai

import (
	"context"
	"errors"
	"testing"

	"histai-go/internal/config"

	goopenai "github.com/sashabaranov/go-openai"
)

type fakeAPI struct {
	chatReq  goopenai.ChatCompletionRequest
	chatResp goopenai.ChatCompletionResponse
	imgReq   goopenai.ImageRequest
	imgResp  goopenai.ImageResponse
	err      error
}

func (f *fakeAPI) CreateChatCompletion(ctx context.Context, r goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
	f.chatReq = r
	return f.chatResp, f.err
}

func (f *fakeAPI) CreateImage(ctx context.Context, r goopenai.ImageRequest) (goopenai.ImageResponse, error) {
	f.imgReq = r
	return f.imgResp, f.err
}

func TestWritePrompt(t *testing.T) {
	fa := &fakeAPI{chatResp: goopenai.ChatCompletionResponse{Choices: []goopenai.ChatCompletionChoice{
		{Message: goopenai.ChatCompletionMessage{Content: "Portrait of Caesar "}},
	}}}
	c := &Client{cfg: config.OpenAIConfig{ChatModel: "gpt-4o-mini", Temperature: 0.8, MaxTokens: 300}, api: fa}

	out, err := c.WritePrompt(context.Background(), "sys", "user")
	if err != nil || out != "Portrait of Caesar" {
		t.Fatalf("out=%q err=%v", out, err)
	}
	if fa.chatReq.Model != "gpt-4o-mini" || fa.chatReq.MaxTokens != 300 || len(fa.chatReq.Messages) != 2 {
		t.Fatalf("request = %+v", fa.chatReq)
	}
}

func TestGenerateImage(t *testing.T) {
	fa := &fakeAPI{imgResp: goopenai.ImageResponse{Data: []goopenai.ImageResponseDataInner{{URL: "https://img/1.png"}}}}
	c := &Client{cfg: config.OpenAIConfig{ImageModel: "dall-e-3"}, api: fa}

	img, err := c.Generate(context.Background(), "p")
	if err != nil || img.URL != "https://img/1.png" || img.Provider != ProviderName {
		t.Fatalf("img=%+v err=%v", img, err)
	}
	if fa.imgReq.Size != goopenai.CreateImageSize1024x1024 {
		t.Fatalf("size = %s", fa.imgReq.Size)
	}
}

func TestErrors(t *testing.T) {
	c := NewClient(config.OpenAIConfig{})
	if c.Configured() {
		t.Fatal("expected unconfigured")
	}
	if _, err := c.Generate(context.Background(), "p"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}

	fa := &fakeAPI{err: &goopenai.APIError{HTTPStatusCode: 429, Message: "rate limit"}}
	c = &Client{api: fa}
	if _, err := c.WritePrompt(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error")
	}
	if callStatus(fa.err) != "4xx" {
		t.Fatalf("status = %s", callStatus(fa.err))
	}
}
