// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/awnumar/memguard"
	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible backend.
type OpenAIConfig struct {
	Model string

	// BaseURL overrides the endpoint for OpenAI-compatible servers.
	// Empty means api.openai.com.
	BaseURL string

	// Key holds the sealed API key, from LoadAPIKey.
	Key *memguard.Enclave

	Logger *slog.Logger
}

// OpenAIClient generates completions through any OpenAI-compatible chat
// endpoint.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var _ Generator = (*OpenAIClient)(nil)

// NewOpenAIClient builds the client. The key enclave is opened once here
// and the plaintext handed to the SDK config.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Key == nil {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	key, err := openKey(cfg.Key)
	if err != nil {
		return nil, err
	}
	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	cfg.Logger.Info("Initializing OpenAI client", "model", cfg.Model, "base_url", cfg.BaseURL)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}, nil
}

func (o *OpenAIClient) Name() string  { return "openai" }
func (o *OpenAIClient) Model() string { return o.model }

// Generate implements Generator.
func (o *OpenAIClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	o.logger.Debug("Generating via OpenAI", "model", o.model, "stage", req.Stage)

	apiReq := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.rendered()},
		},
	}
	if req.Temperature > 0 {
		apiReq.Temperature = float32(req.Temperature)
	}
	if req.MaxTokens > 0 {
		apiReq.MaxCompletionTokens = req.MaxTokens
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		o.logger.Error("OpenAI API call failed", "error", err, "stage", req.Stage)
		return nil, fmt.Errorf("openai call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrEmptyCompletion)
	}

	o.logger.Debug("Received response from OpenAI",
		"finish_reason", resp.Choices[0].FinishReason,
		"total_tokens", resp.Usage.TotalTokens)

	return &Result{
		Raw:   resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
