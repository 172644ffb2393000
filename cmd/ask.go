package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"course-rag/internal/helper"
	"course-rag/internal/models"
	"course-rag/internal/rag"
)

var (
	answerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	sourceHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212"))

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	linkStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Italic(true)

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("135"))
)

func newAskCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed courses",
		Long: `Ask a single question, or start an interactive session when no question
is given. Interactive questions share one conversation; type "exit" to quit.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(os.Stderr)
			if err != nil {
				return err
			}
			sys, err := rag.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer sys.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				resp, err := sys.Query(cmd.Context(), args[0], sessionID)
				if err != nil {
					return err
				}
				printResponse(out, resp)
				return nil
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, promptStyle.Render("> "))
				if !scanner.Scan() {
					return scanner.Err()
				}
				q := strings.TrimSpace(scanner.Text())
				switch q {
				case "":
					continue
				case "exit", "quit":
					return nil
				}
				resp, err := sys.Query(cmd.Context(), q, sessionID)
				if err != nil {
					fmt.Fprintf(out, "Error: %v\n", err)
					if cmd.Context().Err() != nil {
						return nil
					}
					continue
				}
				sessionID = resp.SessionID
				printResponse(out, resp)
			}
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	return cmd
}

func printResponse(w io.Writer, resp models.Response) {
	fmt.Fprintln(w, answerStyle.Render(resp.Answer))
	sources := helper.UniqueSources(resp.Sources)
	if len(sources) > 0 {
		fmt.Fprintln(w, sourceHeaderStyle.Render("Sources"))
		for _, s := range sources {
			line := sourceStyle.Render("  " + helper.FormatSource(s))
			if s.Link != "" {
				line += " " + linkStyle.Render(s.Link)
			}
			fmt.Fprintln(w, line)
		}
	}
	fmt.Fprintln(w, sourceStyle.Render("session "+resp.SessionID))
}
