package tts

import (
	"context"
	"fmt"
	"strings"

	speakapi "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/speak/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	speak "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/speak"
)

// DefaultDeepgramModel is the Aura voice used when none is configured
const DefaultDeepgramModel = "aura-asteria-en"

type speakFunc func(ctx context.Context, text string) ([]byte, error)

// DeepgramClient calls the Deepgram speak REST API
type DeepgramClient struct {
	speak speakFunc
}

// NewDeepgramClient creates a Deepgram speech client returning mp3
func NewDeepgramClient(apiKey, model string) *DeepgramClient {
	if model == "" {
		model = DefaultDeepgramModel
	}

	dg := speakapi.New(speak.NewREST(apiKey, &interfaces.ClientOptions{}))
	options := &interfaces.SpeakOptions{
		Model:    model,
		Encoding: "mp3",
	}

	return &DeepgramClient{
		speak: func(ctx context.Context, text string) ([]byte, error) {
			var buf interfaces.RawResponse
			if _, err := dg.ToStream(ctx, text, options, &buf); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	}
}

// Synthesize returns the mp3 rendering of text
func (c *DeepgramClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	audio, err := c.speak(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("deepgram speak failed: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("deepgram speak returned no audio")
	}
	return audio, nil
}
