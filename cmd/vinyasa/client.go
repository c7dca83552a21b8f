package main

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/vango-go/vinyasa/internal/dotenv"
	"github.com/vango-go/vinyasa/pkg/credentials"
	"github.com/vango-go/vinyasa/pkg/studio"
)

var errNoKey = errors.New("no API key: run `vinyasa login` or set GEMINI_API_KEY")

// ensureCredential prompts once when no key is configured.
func (a *app) ensureCredential() error {
	if credentials.HasCredential() {
		return nil
	}
	if err := credentials.SelectCredential(a.stdin, a.stderr); err != nil {
		if errors.Is(err, credentials.ErrNoCredential) {
			return errNoKey
		}
		return err
	}
	return nil
}

func (a *app) newGenAIClient(ctx context.Context) (*genai.Client, error) {
	if err := a.ensureCredential(); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  credentials.Key(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

func (a *app) studioOptions() []studio.Option {
	return []studio.Option{
		studio.WithTextModel(a.cfg.TextModel),
		studio.WithImageModels(a.cfg.ImageModel, a.cfg.ImageProModel),
		studio.WithVideoModel(a.cfg.VideoModel),
		studio.WithSpeech(a.cfg.SpeechModel, a.cfg.Voice),
		studio.WithPollInterval(a.cfg.VideoPollInterval),
		studio.WithLogger(a.logger),
	}
}

// withBackend runs fn against a fresh backend. When the service rejects the key
// the user is asked for another one and fn runs once more.
func (a *app) withBackend(ctx context.Context, fn func(studio.Backend) error) error {
	client, err := a.newGenAIClient(ctx)
	if err != nil {
		return err
	}
	err = fn(studio.NewBackend(client))
	if !credentials.IsAuthError(err) {
		return err
	}

	a.logger.Warn("API key was rejected", "error", err)
	if err := credentials.SelectCredential(a.stdin, a.stderr); err != nil {
		return errNoKey
	}
	client, err = a.newGenAIClient(ctx)
	if err != nil {
		return err
	}
	if err := fn(studio.NewBackend(client)); err != nil {
		return err
	}
	if path, perr := dotenv.EnsureUserFile(); perr == nil {
		if serr := credentials.Save(path); serr != nil {
			a.logger.Warn("could not save API key", "path", path, "error", serr)
		}
	}
	return nil
}
