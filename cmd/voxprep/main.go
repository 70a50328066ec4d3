// Package main runs a live voice mock interview from the terminal.
//
// Usage:
//
//	go run ./cmd/voxprep -mode panel -role "Backend Engineer" -company Initech
//
// Environment variables:
//
//	GEMINI_API_KEY - Required.
//
// Controls (panel mode):
//
//	1    Hand the conversation to the technical interviewer
//	2    Hand the conversation to the behavioral interviewer
//	3    Hand the conversation to the HR interviewer
//	m    Toggle mute
//	?    Ask to move into candidate questions
//	q    Quit and print the transcript
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voxprep/voxprep/internal/device"
	"github.com/voxprep/voxprep/pkg/interview"
	"github.com/voxprep/voxprep/pkg/live"
	"github.com/voxprep/voxprep/pkg/questions"
	"github.com/voxprep/voxprep/pkg/transcript"
)

func main() {
	_ = godotenv.Load()

	mode := flag.String("mode", "single", "interview mode: single or panel")
	role := flag.String("role", "Software Engineer", "position to interview for")
	company := flag.String("company", "", "target company")
	candidate := flag.String("candidate", "Candidate", "candidate name")
	style := flag.String("style", "friendly but thorough", "interviewing style")
	model := flag.String("model", "", "live model override")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "GEMINI_API_KEY required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	setup := buildSetup(ctx, apiKey, *role, *company, *candidate, *style, logger)

	mic, err := device.OpenMic()
	if err != nil {
		logger.Error("microphone unavailable", "error", err)
		os.Exit(1)
	}
	defer mic.Close()

	speaker, err := device.OpenSpeaker()
	if err != nil {
		logger.Error("speaker unavailable", "error", err)
		os.Exit(1)
	}
	defer speaker.Close()

	dialer := &live.Dialer{APIKey: apiKey, Logger: logger}
	events := interview.Events{
		Transcript: func(name, text string, final bool) {
			if final {
				fmt.Printf("%s: %s\n", name, text)
			}
		},
		ActivePersona: func(name string) {
			fmt.Printf("[now speaking with %s]\n", name)
		},
		Status: func(status interview.Status, attempt int) {
			if attempt > 0 {
				fmt.Printf("[%s attempt %d]\n", status, attempt)
				return
			}
			fmt.Printf("[%s]\n", status)
		},
	}

	var controller interview.Controller
	var panel *interview.Panel
	var single *interview.Single
	switch *mode {
	case "panel":
		panel, err = interview.NewPanel(interview.PanelConfig{
			Dial:   dialer.Dial,
			Setup:  setup,
			Roster: defaultRoster(),
			Model:  *model,
			Sink:   speaker,
			Events: events,
			Logger: logger,
		})
		controller = panel
	case "single":
		single, err = interview.NewSingle(interview.SingleConfig{
			Dial:   dialer.Dial,
			Setup:  setup,
			Model:  *model,
			Sink:   speaker,
			Events: events,
			Logger: logger,
		})
		controller = single
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("session setup failed", "error", err)
		os.Exit(1)
	}

	supervisor, err := interview.NewSupervisor(interview.SupervisorConfig{
		Controller: controller,
		Events:     events,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("supervisor setup failed", "error", err)
		os.Exit(1)
	}

	runDone := make(chan error, 1)
	go func() { runDone <- supervisor.Run(ctx, mic) }()

	go readCommands(cancel, panel, single)

	if err := <-runDone; err != nil {
		logger.Error("session ended", "error", err)
	}
	printTranscript(panel, single)
}

// buildSetup generates a question bank for the role and folds it into the
// session setup. Generation failures fall back to a generic bank so the
// session can still run.
func buildSetup(ctx context.Context, apiKey, role, company, candidate, style string, logger *slog.Logger) interview.Setup {
	set := fallbackQuestions(role)
	if generator, err := questions.NewGenerator(ctx, questions.GeneratorConfig{APIKey: apiKey, Logger: logger}); err != nil {
		logger.Warn("question generator unavailable, using fallback bank", "error", err)
	} else {
		genCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if generated, err := generator.Generate(genCtx, questions.Request{Role: role, Company: company}); err != nil {
			logger.Warn("question generation failed, using fallback bank", "error", err)
		} else {
			set = generated
		}
	}

	flat := append(append(append(append([]string(nil),
		set.HR...), set.Behavioral...), set.Technical...), set.HandsOn...)
	return interview.Setup{
		CandidateName: candidate,
		Company:       company,
		Style:         style,
		Questions:     flat,
		QuestionSet:   set,
	}
}

func fallbackQuestions(role string) interview.QuestionSet {
	return interview.QuestionSet{
		Technical: []string{
			fmt.Sprintf("Walk me through a system you designed that is relevant to a %s role.", role),
			"How do you approach debugging a problem you have never seen before?",
		},
		Behavioral: []string{
			"Tell me about a time you disagreed with a teammate and how it was resolved.",
			"Describe a project that failed and what you learned from it.",
		},
		HR: []string{
			"Tell me about yourself and what you are looking for in your next role.",
			"Why are you interested in this position?",
		},
	}
}

func defaultRoster() []interview.Interviewer {
	return []interview.Interviewer{
		{Name: "Alex", Role: interview.RoleSoftwareEngineer},
		{Name: "Jordan", Role: interview.RoleHiringManager},
		{Name: "Sam", Role: interview.RoleHRSpecialist},
	}
}

func readCommands(cancel context.CancelFunc, panel *interview.Panel, single *interview.Single) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "q":
			cancel()
			return
		case "m":
			if panel != nil {
				panel.SetMuted(!panel.Muted())
				fmt.Printf("[muted: %v]\n", panel.Muted())
			} else if single != nil {
				single.SetMuted(!single.Muted())
				fmt.Printf("[muted: %v]\n", single.Muted())
			}
		case "?":
			if panel != nil {
				panel.AskForCandidateQuestions()
			} else if single != nil {
				single.AskForCandidateQuestions()
			}
		case "1":
			if panel != nil {
				panel.SwitchTo(interview.PersonaTechnical)
			}
		case "2":
			if panel != nil {
				panel.SwitchTo(interview.PersonaBehavioral)
			}
		case "3":
			if panel != nil {
				panel.SwitchTo(interview.PersonaHR)
			}
		}
	}
}

func printTranscript(panel *interview.Panel, single *interview.Single) {
	var turns []transcript.Turn
	if panel != nil {
		turns = panel.Transcript()
	} else if single != nil {
		turns = single.Transcript()
	}
	if len(turns) == 0 {
		return
	}
	fmt.Println("\n--- transcript ---")
	for _, turn := range turns {
		fmt.Printf("%s: %s\n", turn.Speaker, turn.Text)
	}
}
