package interview

import (
	"fmt"
	"strings"

	"github.com/voxprep/voxprep/pkg/transcript"
)

// renderTurns formats turns as one "speaker: text" line each, the shape used
// for conversation context inside prompts and directives.
func renderTurns(turns []transcript.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, turn.Speaker+": "+turn.Text)
	}
	return strings.Join(lines, "\n")
}

func questionBlock(questions []string) string {
	if len(questions) == 0 {
		return "Improvise questions appropriate for the role."
	}
	var b strings.Builder
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	return strings.TrimRight(b.String(), "\n")
}

// singleSystemInstruction builds the instruction for a single-interviewer
// session. When finalized history exists (a reconnect), it is replayed and the
// agent is told to continue rather than restart.
func singleSystemInstruction(setup Setup, history []transcript.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a professional interviewer at %s conducting a live voice interview with the candidate %s.\n",
		interviewerName(setup), orDefault(setup.Company, "the company"), orDefault(setup.CandidateName, "the candidate"))
	if setup.Style != "" {
		fmt.Fprintf(&b, "Your interviewing style is %s.\n", setup.Style)
	}
	b.WriteString("Ask one question at a time, listen to the full answer, and ask natural follow-ups before moving on.\n")
	b.WriteString("Keep your speech concise and conversational; you are talking, not writing.\n\n")
	b.WriteString("Your question list, in order:\n")
	b.WriteString(questionBlock(setup.Questions))
	b.WriteString("\n")

	if len(history) > 0 {
		b.WriteString("\nThe session was interrupted and has just reconnected. The conversation so far:\n")
		b.WriteString(renderTurns(history))
		last := history[len(history)-1]
		fmt.Fprintf(&b, "\nDo not restart or greet again. Resume the interview naturally from the last turn: %q.\n", last.Text)
	}
	return b.String()
}

// panelSystemInstruction builds the per-persona instruction for a panel
// session. Each persona owns its category and is told it shares the panel.
func panelSystemInstruction(setup Setup, cfg PersonaConfig, role string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a %s at %s, one of three interviewers on a live voice interview panel for the candidate %s.\n",
		orDefault(cfg.DisplayName, role), role, orDefault(setup.Company, "the company"), orDefault(setup.CandidateName, "the candidate"))
	if setup.Style != "" {
		fmt.Fprintf(&b, "The panel's interviewing style is %s.\n", setup.Style)
	}
	switch cfg.Persona {
	case PersonaTechnical:
		b.WriteString("You own the technical portion: coding, system design, and hands-on problem solving.\n")
	case PersonaBehavioral:
		b.WriteString("You own the behavioral portion: past experience, teamwork, and situational judgment.\n")
	default:
		b.WriteString("You own the HR portion: motivation, culture fit, and logistics. You also open and close the interview.\n")
	}
	b.WriteString("Only speak when addressed. When you receive a context update, another panelist has handed the conversation to you; continue from that context without re-introducing the whole panel.\n")
	b.WriteString("Ask one question at a time and keep your speech concise and conversational.\n\n")
	b.WriteString("Your question list, in order:\n")
	b.WriteString(questionBlock(cfg.Questions))
	b.WriteString("\n")
	return b.String()
}

// greetingDirective opens the session.
func greetingDirective(setup Setup) string {
	return fmt.Sprintf("Greet %s warmly, introduce yourself, and begin the interview with your first question.",
		orDefault(setup.CandidateName, "the candidate"))
}

// panelGreetingDirective opens a panel session; the opening persona also
// introduces the rest of the panel.
func panelGreetingDirective(setup Setup, panelists []string) string {
	return fmt.Sprintf("Greet %s warmly, introduce yourself and your fellow panelists (%s), explain how the panel interview will flow, and hand off with your first question.",
		orDefault(setup.CandidateName, "the candidate"), strings.Join(panelists, ", "))
}

// inviteQuestionsDirective flips the session into candidate-questions mode.
func inviteQuestionsDirective() string {
	return "The interview questions are done. Invite the candidate to ask any questions they have about the role, the team, or the company, and answer them helpfully."
}

// contextSwitchDirective is sent to a persona when it becomes active. Recent
// turns are replayed so the persona can follow up instead of starting cold.
func contextSwitchDirective(recent []transcript.Turn, nextQuestion string) string {
	var b strings.Builder
	b.WriteString("You are now the active interviewer.")
	if len(recent) > 0 {
		b.WriteString(" The recent conversation:\n")
		b.WriteString(renderTurns(recent))
		b.WriteString("\n")
	} else {
		b.WriteString("\n")
	}
	b.WriteString("Briefly acknowledge the handoff, then either ask a natural follow-up to the candidate's last answer or move on to your next question.")
	if nextQuestion != "" {
		fmt.Fprintf(&b, " Your next unasked question is: %q.", nextQuestion)
	}
	return b.String()
}

func interviewerName(setup Setup) string {
	return orDefault(setup.InterviewerName, "Interviewer")
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
