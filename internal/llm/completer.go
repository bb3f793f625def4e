// Package llm agrupa as chamadas ao modelo de linguaxe: xerar SQL, reparalo,
// enrutar a pregunta a unha skill ou a un QuerySpec e resumir resultados.
// Ningunha función devolve erro a quen chama: os fallos viaxan como
// diagnóstico dentro de Outcome.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel úsase cando a configuración non indica outro.
const DefaultModel = "gpt-4o-mini"

var (
	// ErrNoAPIKey: non hai clave do modelo configurada.
	ErrNoAPIKey = errors.New("llm: OPENAI_API_KEY no presente")
	// ErrEmptyReply: o modelo non devolveu contido.
	ErrEmptyReply = errors.New("llm: respuesta vacía")
)

// Completer é unha chamada opaca ao modelo: un prompt de sistema e un de
// usuario, un texto de volta.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAI implementa Completer sobre a API de chat completions.
type OpenAI struct {
	client      openai.Client
	Model       string
	Temperature float64
}

// NewOpenAI crea o cliente. baseURL pode ir baleiro.
func NewOpenAI(apiKey, model, baseURL string, temperature float64) (*OpenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{
		client:      openai.NewClient(opts...),
		Model:       model,
		Temperature: temperature,
	}, nil
}

// Complete implementa Completer.
func (o *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	msgs = append(msgs, openai.UserMessage(user))

	params := openai.ChatCompletionNewParams{
		Model:    o.Model,
		Messages: msgs,
	}
	if o.Temperature > 0 {
		params.Temperature = openai.Float(o.Temperature)
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}
