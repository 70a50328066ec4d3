// Package interview contains the live-session controllers: a single-persona
// controller, the three-persona panel controller, and the reconnection
// supervisor layered on top of either.
package interview

import (
	"errors"
	"fmt"
	"strings"
)

// Persona is one of the three fixed interviewer roles in panel mode.
type Persona string

const (
	PersonaTechnical  Persona = "technical"
	PersonaBehavioral Persona = "behavioral"
	PersonaHR         Persona = "hr"
)

// Roster roles. Panel mode requires exactly one interviewer per role.
const (
	RoleSoftwareEngineer = "Software Engineer"
	RoleHiringManager    = "Hiring Manager"
	RoleHRSpecialist     = "HR Specialist"
)

// ErrMissingRole indicates a panel roster without one of the required roles.
var ErrMissingRole = errors.New("interview: roster is missing a required role")

// Prebuilt voice names, one stable distinct voice per persona.
const (
	voiceTechnical  = "Charon"
	voiceBehavioral = "Puck"
	voiceHR         = "Kore"
)

// Interviewer is one entry of the panel roster.
type Interviewer struct {
	Name string
	Role string
}

// QuestionSet is a categorized question bank for panel mode.
type QuestionSet struct {
	Technical  []string
	Behavioral []string
	HR         []string
	HandsOn    []string
}

// Setup is the read-only session configuration handed in by the caller.
// Unknown concerns (resume parsing, profiles, routing) live outside this core.
type Setup struct {
	// CandidateName is used in system instructions and greetings.
	CandidateName string

	// Company is the target company the interview simulates.
	Company string

	// Style tunes interviewer tone (e.g. "friendly", "formal").
	Style string

	// InterviewerName labels the agent speaker in single mode.
	// Default: "Interviewer".
	InterviewerName string

	// Questions is the flat question list for single mode.
	Questions []string

	// QuestionSet is the categorized bank for panel mode.
	QuestionSet QuestionSet
}

// PersonaConfig is the immutable per-persona configuration a panel runs with.
type PersonaConfig struct {
	Persona           Persona
	DisplayName       string
	Questions         []string
	Voice             string
	SystemInstruction string
}

func voiceFor(p Persona) string {
	switch p {
	case PersonaTechnical:
		return voiceTechnical
	case PersonaBehavioral:
		return voiceBehavioral
	default:
		return voiceHR
	}
}

func personaForRole(role string) (Persona, bool) {
	switch strings.TrimSpace(role) {
	case RoleSoftwareEngineer:
		return PersonaTechnical, true
	case RoleHiringManager:
		return PersonaBehavioral, true
	case RoleHRSpecialist:
		return PersonaHR, true
	default:
		return "", false
	}
}

func questionsFor(p Persona, set QuestionSet) []string {
	switch p {
	case PersonaTechnical:
		return append(append([]string(nil), set.Technical...), set.HandsOn...)
	case PersonaBehavioral:
		return append([]string(nil), set.Behavioral...)
	default:
		return append([]string(nil), set.HR...)
	}
}

// buildPersonaConfigs validates the roster and produces the three persona
// configurations. Fails before any connection is opened.
func buildPersonaConfigs(setup Setup, roster []Interviewer) (map[Persona]PersonaConfig, error) {
	configs := make(map[Persona]PersonaConfig, 3)
	for _, member := range roster {
		persona, ok := personaForRole(member.Role)
		if !ok {
			return nil, fmt.Errorf("interview: unknown roster role %q", member.Role)
		}
		if _, dup := configs[persona]; dup {
			return nil, fmt.Errorf("interview: duplicate roster role %q", member.Role)
		}
		cfg := PersonaConfig{
			Persona:     persona,
			DisplayName: strings.TrimSpace(member.Name),
			Questions:   questionsFor(persona, setup.QuestionSet),
			Voice:       voiceFor(persona),
		}
		cfg.SystemInstruction = panelSystemInstruction(setup, cfg, member.Role)
		configs[persona] = cfg
	}

	for _, required := range []struct {
		persona Persona
		role    string
	}{
		{PersonaTechnical, RoleSoftwareEngineer},
		{PersonaBehavioral, RoleHiringManager},
		{PersonaHR, RoleHRSpecialist},
	} {
		if _, ok := configs[required.persona]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingRole, required.role)
		}
	}
	return configs, nil
}
