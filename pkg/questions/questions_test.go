package questions

import (
	"strings"
	"testing"
)

func TestParseQuestionSet(t *testing.T) {
	t.Parallel()

	set, err := parseQuestionSet(`{
		"technical": ["Design a URL shortener."],
		"behavioral": ["Tell me about a failed project."],
		"hr": ["Why are you leaving your current role?"],
		"hands_on": ["Debug this goroutine leak."]
	}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(set.Technical) != 1 || set.Technical[0] != "Design a URL shortener." {
		t.Fatalf("technical=%v", set.Technical)
	}
	if len(set.HandsOn) != 1 {
		t.Fatalf("hands_on=%v", set.HandsOn)
	}
}

func TestParseQuestionSet_CodeFenced(t *testing.T) {
	t.Parallel()

	set, err := parseQuestionSet("```json\n{\"technical\": [\"Explain channels.\"], \"behavioral\": [], \"hr\": [], \"hands_on\": []}\n```")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if len(set.Technical) != 1 {
		t.Fatalf("technical=%v", set.Technical)
	}
}

func TestParseQuestionSet_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := parseQuestionSet("I'd be happy to help with that!"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := parseQuestionSet(`{"technical": [], "behavioral": [], "hr": [], "hands_on": []}`); err == nil {
		t.Fatalf("expected empty-set error")
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	prompt := buildPrompt(Request{Role: "Backend Engineer", Company: "Initech", Seniority: "senior", PerCategory: 3})
	for _, want := range []string{"Backend Engineer", "Initech", "senior", "3 questions"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
