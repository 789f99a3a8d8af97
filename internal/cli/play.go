package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
)

// NewPlayCmd plays a quiz session in the terminal against the configured stores.
func NewPlayCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Play a quiz session in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(*configPath, io.Discard)
			if err != nil {
				return err
			}
			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			p := &terminalPlayer{
				service: app.NewQuizService(st.serviceConfig()),
				in:      bufio.NewScanner(cmd.InOrStdin()),
				out:     cmd.OutOrStdout(),
			}
			return p.run(ctx)
		},
	}
}

var errQuit = errors.New("quit")

type terminalPlayer struct {
	service *app.QuizService
	in      *bufio.Scanner
	out     io.Writer
}

func (p *terminalPlayer) run(ctx context.Context) error {
	v := p.service.Start(ctx)
	defer p.service.End(ctx, v.SessionID)

	for {
		var err error
		switch v.Phase {
		case app.PhaseSelectingPlayer:
			v, err = p.choosePlayer(ctx, v)
		case app.PhaseSelectingCategory:
			v, err = p.chooseCategory(ctx, v)
		case app.PhaseAwaitingGuess:
			fmt.Fprintf(p.out, "\nRound %d/%d (difficulty %d, rating %d)\n%s\n",
				v.Round, v.MaxRounds, v.Question.Difficulty, v.Question.Rating, v.Question.Text)
			var guess string
			if guess, err = p.prompt("your answer"); err == nil {
				v, err = p.service.SubmitGuess(ctx, v.SessionID, guess)
			}
		case app.PhaseShowingResult:
			if *v.WasCorrect {
				fmt.Fprintln(p.out, "Correct!")
			} else {
				fmt.Fprintf(p.out, "Wrong, the answer was: %s\n", v.Answer)
			}
			if _, err = p.prompt("press enter for the next question"); err == nil {
				v, err = p.service.RequestNext(ctx, v.SessionID)
			}
		case app.PhaseFinished:
			fmt.Fprintf(p.out, "\nQuiz over (%s). You answered %d of %d correctly. Total score: %d\n",
				v.FinishReason, v.Correct, v.Round, *v.CumulativeScore)
			var again string
			if again, err = p.prompt("play again? [y/N]"); err == nil {
				if !strings.EqualFold(again, "y") {
					return nil
				}
				v, err = p.service.Restart(ctx, v.SessionID)
			}
		}

		switch {
		case errors.Is(err, errQuit):
			return nil
		case errors.Is(err, domain.ErrTransient):
			fmt.Fprintf(p.out, "Something went wrong (%v), please try again.\n", err)
		case err != nil && !errors.Is(err, domain.ErrStaleResponse):
			fmt.Fprintf(p.out, "Error: %v\n", err)
		}
	}
}

func (p *terminalPlayer) choosePlayer(ctx context.Context, v app.View) (app.View, error) {
	players, err := p.service.Players(ctx)
	if err != nil {
		return v, domain.Transient("list players", err)
	}
	fmt.Fprintln(p.out, "\nPlayers:")
	for _, pl := range players {
		fmt.Fprintf(p.out, "  %d) %s (score %d)\n", pl.ID, pl.Username, pl.Score)
	}
	answer, err := p.prompt("player id, or 'new <username>'")
	if err != nil {
		return v, err
	}
	if name, ok := strings.CutPrefix(answer, "new "); ok {
		player, err := p.service.CreatePlayer(ctx, name)
		if err != nil {
			return v, err
		}
		return p.service.SelectPlayer(ctx, v.SessionID, player.ID)
	}
	id, err := strconv.ParseInt(answer, 10, 64)
	if err != nil {
		return v, fmt.Errorf("%q is not a player id", answer)
	}
	return p.service.SelectPlayer(ctx, v.SessionID, id)
}

func (p *terminalPlayer) chooseCategory(ctx context.Context, v app.View) (app.View, error) {
	categories, err := p.service.Categories(ctx)
	if err != nil {
		return v, domain.Transient("list categories", err)
	}
	fmt.Fprintln(p.out, "\nCategories:\n  0) All")
	for _, c := range categories {
		fmt.Fprintf(p.out, "  %d) %s\n", c.ID, c.Name)
	}
	answer, err := p.prompt("category id")
	if err != nil {
		return v, err
	}
	id, err := strconv.ParseInt(answer, 10, 64)
	if err != nil {
		return v, fmt.Errorf("%q is not a category id", answer)
	}
	return p.service.SelectCategory(ctx, v.SessionID, domain.ForCategory(id))
}

// prompt reads one trimmed line. End of input, or a read error, quits.
func (p *terminalPlayer) prompt(label string) (string, error) {
	fmt.Fprintf(p.out, "%s> ", label)
	if !p.in.Scan() {
		return "", errQuit
	}
	return strings.TrimSpace(p.in.Text()), nil
}
