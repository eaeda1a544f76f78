package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Task selects what the provider is asked to produce.
type Task string

// Supported tasks.
const (
	TaskImage    Task = "image"
	TaskAnalyze  Task = "analyze"
	TaskValidate Task = "validate"
)

// ParseTask maps a request task name; an empty name means analyze.
func ParseTask(name string) (Task, error) {
	switch Task(strings.ToLower(strings.TrimSpace(name))) {
	case "", TaskAnalyze:
		return TaskAnalyze, nil
	case TaskImage:
		return TaskImage, nil
	case TaskValidate:
		return TaskValidate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
}

// Cost returns the credits charged for a successful task.
func (t Task) Cost() int64 {
	if t == TaskValidate {
		return 0
	}
	return 1
}

// Image is an input picture as base64 or a data URL.
type Image struct {
	Data     string `json:"data"`
	MimeType string `json:"mime_type"`
}

// Request is one AI invocation.
type Request struct {
	Task   Task
	Prompt string
	Images []Image
}

// Analysis is the structured result of the analyze task.
type Analysis struct {
	Title   string   `json:"title"`
	Score   *float64 `json:"score,omitempty"`
	Content string   `json:"content"`
	Advice  []string `json:"advice,omitempty"`
}

// Detection is the result of the validate task.
type Detection struct {
	HasFace   *bool `json:"hasFace,omitempty"`
	HasTongue *bool `json:"hasTongue,omitempty"`
}

// Result holds exactly one of the task outputs.
type Result struct {
	Task      Task       `json:"task"`
	Image     string     `json:"image,omitempty"` // data:<mime>;base64,<data>
	Analysis  *Analysis  `json:"analysis,omitempty"`
	Detection *Detection `json:"detection,omitempty"`
}

// Invocation reports how a request went upstream.
type Invocation struct {
	Model    string
	Attempts int
}

var analysisSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"title":   map[string]any{"type": "STRING"},
		"score":   map[string]any{"type": "NUMBER"},
		"content": map[string]any{"type": "STRING"},
		"advice": map[string]any{
			"type":  "ARRAY",
			"items": map[string]any{"type": "STRING"},
		},
	},
	"required": []string{"title", "content"},
}

var detectionSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"hasFace":   map[string]any{"type": "BOOLEAN"},
		"hasTongue": map[string]any{"type": "BOOLEAN"},
	},
}

// Invoke runs req against the provider, retrying transient failures.
func (c *Client) Invoke(ctx context.Context, req Request) (*Result, Invocation, error) {
	model := c.Model(req.Task)
	info := Invocation{Model: model}
	if c.apiKey == "" {
		return nil, info, ErrNotConfigured
	}
	if strings.TrimSpace(req.Prompt) == "" && len(req.Images) == 0 {
		return nil, info, fmt.Errorf("%w: prompt or image required", ErrInvalidRequest)
	}

	body := generateRequest{Contents: []content{{Role: "user", Parts: buildParts(req)}}}
	switch req.Task {
	case TaskImage:
		body.GenerationConfig = &generationConfig{ResponseModalities: []string{"IMAGE"}}
	case TaskValidate:
		body.GenerationConfig = &generationConfig{ResponseMimeType: "application/json", ResponseSchema: detectionSchema}
	case TaskAnalyze:
		body.GenerationConfig = &generationConfig{ResponseMimeType: "application/json", ResponseSchema: analysisSchema}
	default:
		return nil, info, fmt.Errorf("%w: %q", ErrUnknownTask, req.Task)
	}

	var result *Result
	attempts, err := c.retrier.Do(ctx, func(ctx context.Context, _ int) error {
		resp, errGenerate := c.generate(ctx, model, body)
		if errGenerate != nil {
			return errGenerate
		}
		parsed, errParse := parseResult(req.Task, resp)
		if errParse != nil {
			return errParse
		}
		result = parsed
		return nil
	})
	info.Attempts = attempts
	if err != nil {
		return nil, info, err
	}
	return result, info, nil
}

// buildParts places images before the prompt text.
func buildParts(req Request) []part {
	parts := make([]part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		data := img.Data
		if idx := strings.Index(data, ","); idx >= 0 {
			data = data[idx+1:]
		}
		parts = append(parts, part{InlineData: &inlineData{MimeType: img.MimeType, Data: data}})
	}
	if strings.TrimSpace(req.Prompt) != "" {
		parts = append(parts, part{Text: req.Prompt})
	}
	return parts
}

func parseResult(task Task, resp *generateResponse) (*Result, error) {
	var parts []part
	if len(resp.Candidates) > 0 {
		parts = resp.Candidates[0].Content.Parts
	}

	switch task {
	case TaskImage:
		for _, p := range parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				return &Result{
					Task:  task,
					Image: "data:" + p.InlineData.MimeType + ";base64," + p.InlineData.Data,
				}, nil
			}
		}
		return nil, fmt.Errorf("%w: no image generated", ErrEmptyResponse)
	case TaskValidate:
		var detection Detection
		if err := decodeJSONText(parts, &detection); err != nil {
			return nil, err
		}
		return &Result{Task: task, Detection: &detection}, nil
	default:
		var analysis Analysis
		if err := decodeJSONText(parts, &analysis); err != nil {
			return nil, err
		}
		return &Result{Task: task, Analysis: &analysis}, nil
	}
}

// decodeJSONText decodes the first text part; a missing part decodes as {}.
func decodeJSONText(parts []part, out any) error {
	text := "{}"
	for _, p := range parts {
		if strings.TrimSpace(p.Text) != "" {
			text = p.Text
			break
		}
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("gemini: decode response: %w", err)
	}
	return nil
}
