// Package questions generates interview question banks for a target role and
// company using the Gemini API.
package questions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/voxprep/voxprep/pkg/interview"
)

// DefaultModel is the text model used for question generation.
const DefaultModel = "gemini-2.0-flash"

// Request describes the interview to generate questions for.
type Request struct {
	// Role is the position being interviewed for. Required.
	Role string

	// Company tailors questions to a specific employer. Optional.
	Company string

	// Seniority tunes difficulty, e.g. "junior", "senior". Optional.
	Seniority string

	// PerCategory is how many questions to request per category. Default: 5.
	PerCategory int
}

// Generator produces question banks.
type Generator struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string

	// Model overrides DefaultModel.
	Model string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewGenerator creates a question generator.
func NewGenerator(ctx context.Context, cfg GeneratorConfig) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("questions: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("questions: create client: %w", err)
	}
	return &Generator{client: client, model: cfg.Model, logger: cfg.Logger}, nil
}

// Generate asks the model for a categorized question bank.
func (g *Generator) Generate(ctx context.Context, req Request) (interview.QuestionSet, error) {
	if strings.TrimSpace(req.Role) == "" {
		return interview.QuestionSet{}, fmt.Errorf("questions: role is required")
	}
	if req.PerCategory <= 0 {
		req.PerCategory = 5
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(buildPrompt(req)),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return interview.QuestionSet{}, fmt.Errorf("questions: generate: %w", err)
	}

	set, err := parseQuestionSet(resp.Text())
	if err != nil {
		return interview.QuestionSet{}, err
	}
	g.logger.Debug("generated question bank",
		"role", req.Role,
		"technical", len(set.Technical),
		"behavioral", len(set.Behavioral),
		"hr", len(set.HR),
		"hands_on", len(set.HandsOn))
	return set, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate interview questions for a %s position", req.Role)
	if req.Seniority != "" {
		fmt.Fprintf(&b, " at %s level", req.Seniority)
	}
	if req.Company != "" {
		fmt.Fprintf(&b, " at %s", req.Company)
	}
	fmt.Fprintf(&b, ".\nReturn strictly JSON with this shape, %d questions per list:\n", req.PerCategory)
	b.WriteString(`{"technical": [...], "behavioral": [...], "hr": [...], "hands_on": [...]}` + "\n")
	b.WriteString("Each entry is one question as a plain string, phrased the way an interviewer would say it aloud.")
	return b.String()
}

// parseQuestionSet decodes the model's JSON, tolerating a markdown code fence
// around the payload.
func parseQuestionSet(text string) (interview.QuestionSet, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload struct {
		Technical  []string `json:"technical"`
		Behavioral []string `json:"behavioral"`
		HR         []string `json:"hr"`
		HandsOn    []string `json:"hands_on"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return interview.QuestionSet{}, fmt.Errorf("questions: parse response: %w", err)
	}
	set := interview.QuestionSet{
		Technical:  payload.Technical,
		Behavioral: payload.Behavioral,
		HR:         payload.HR,
		HandsOn:    payload.HandsOn,
	}
	if len(set.Technical)+len(set.Behavioral)+len(set.HR)+len(set.HandsOn) == 0 {
		return interview.QuestionSet{}, fmt.Errorf("questions: response contained no questions")
	}
	return set, nil
}
