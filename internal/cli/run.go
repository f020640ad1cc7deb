package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"surgicalprep-study/internal/app"
	"surgicalprep-study/internal/config"
	"surgicalprep-study/internal/domain"
	"surgicalprep-study/internal/infra/api"
	"surgicalprep-study/internal/infra/local"
	"surgicalprep-study/internal/infra/memory"
)

// NewRunCmd builds the CLI subcommand that runs a quiz in the terminal.
func NewRunCmd(configPath *string) *cobra.Command {
	var (
		useLocal     bool
		count        int
		category     string
		timerEnabled bool
		timerSeconds int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Take a multiple-choice quiz in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := domain.QuizConfig{
				QuizType:      domain.QuizMultipleChoice,
				QuestionCount: count,
				Category:      category,
				TimerEnabled:  timerEnabled,
				TimerSeconds:  timerSeconds,
			}
			return runQuiz(cmd.Context(), *configPath, useLocal, cfg)
		},
	}
	cmd.Flags().BoolVar(&useLocal, "local", false, "use the in-process backend instead of the remote API")
	cmd.Flags().IntVar(&count, "count", 10, "number of questions")
	cmd.Flags().StringVar(&category, "category", "", "limit questions to one instrument category")
	cmd.Flags().BoolVar(&timerEnabled, "timer", false, "enable the per-question countdown")
	cmd.Flags().IntVar(&timerSeconds, "seconds", 30, "countdown seconds per question")
	return cmd
}

// terminalPrompter renders gate denials as upgrade prompts on stdout.
type terminalPrompter struct{}

func (terminalPrompter) ShowUpgradePrompt(feature app.Action, reason string) {
	fmt.Printf("\n*** %s\n", reason)
}

func runQuiz(ctx context.Context, configPath string, useLocal bool, quizCfg domain.QuizConfig) error {
	backend, err := buildBackend(configPath, useLocal)
	if err != nil {
		return err
	}
	service := app.NewStudyService(backend, terminalPrompter{})

	decision, err := service.StartQuiz(ctx, quizCfg)
	if err != nil {
		return fmt.Errorf("start quiz: %w", err)
	}
	if !decision.Allowed {
		return nil
	}

	reader := bufio.NewReader(os.Stdin)
	_, total := service.Progress()
	fmt.Printf("Quiz started: %d questions.\n", total)

	for {
		question, ok := service.CurrentQuestion()
		if !ok {
			break
		}
		index, total := service.Progress()
		fmt.Printf("\nQuestion %d/%d: %s\n", index+1, total, question.Prompt)
		for i, option := range question.Options {
			fmt.Printf("  %d) %s\n", i+1, option)
		}

		option, err := readOption(reader, question.Options)
		if err != nil {
			service.Reset()
			return err
		}

		result, err := service.Answer(ctx, question.ID, option)
		if err != nil {
			fmt.Printf("submission failed (%v), try again\n", err)
			continue
		}
		if fb, ok := service.Feedback(); ok {
			result = fb
		}
		if result.Correct {
			fmt.Println("Correct!")
		} else {
			fmt.Printf("Incorrect. The answer is: %s\n", result.CorrectAnswer)
		}

		if err := service.Next(ctx); err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if service.Status() != app.StatusInProgress {
			break
		}
	}

	if result, ok := service.Result(); ok {
		fmt.Printf("\nDone: %d/%d correct (%.1f%%) in %ds.\n",
			result.Score, result.TotalQuestions, result.Percentage, result.TimeSpentSeconds)
	}
	return nil
}

func readOption(reader *bufio.Reader, options []string) (string, error) {
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		choice, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || choice < 1 || choice > len(options) {
			fmt.Printf("enter a number between 1 and %d\n", len(options))
			continue
		}
		return options[choice-1], nil
	}
}

func buildBackend(configPath string, useLocal bool) (app.StudyBackend, error) {
	cfg, err := config.Load(configPath)
	if err != nil && !useLocal {
		return nil, err
	}

	if useLocal || cfg.API.BaseURL == "" {
		backend := local.NewBackend(
			memory.NewInstrumentBank(sampleInstruments()),
			memory.NewUsageStore(),
			domain.Tier(cfg.Server.Tier),
		)
		return local.NewClient(backend, "local"), nil
	}

	timeout := config.TTLDuration(cfg.API.Timeout, 0)
	return api.NewClient(cfg.API.BaseURL, cfg.API.Token, timeout), nil
}
