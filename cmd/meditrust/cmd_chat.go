package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kavlartius217/meditrust/internal/sessions"
)

var chatFlags struct {
	proceed bool
	city    string
}

var chatCmd = &cobra.Command{
	Use:   "chat <report>",
	Short: "Analyze a report, then answer questions about it",
	Long: `Analyze a report and open an interactive chat grounded in the results.

Each line read from stdin is one question. Enter "exit" or "quit", or close
stdin, to end the session.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func init() {
	f := chatCmd.Flags()
	f.BoolVar(&chatFlags.proceed, "proceed", false, "Recommend doctors before chatting")
	f.StringVar(&chatFlags.city, "city", "", "City used for doctor recommendations (required with --proceed)")
}

func runChat(cmd *cobra.Command, args []string) error {
	d := decision{proceed: chatFlags.proceed, city: chatFlags.city}
	if err := d.validate(); err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	sess, err := a.analyze(cmd.Context(), out, args[0], d)
	if err != nil {
		return err
	}
	if sess.Phase != sessions.PhaseChat {
		return fmt.Errorf("session %s is in phase %s; chat is unavailable", sess.ID, sess.Phase)
	}

	return chatLoop(cmd, a.sessions, sess, cmd.InOrStdin(), out)
}

func chatLoop(cmd *cobra.Command, sys sessions.System, sess *sessions.Session, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "\nAsk about your report (exit to quit).")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		switch question {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		turn, err := sys.Ask(cmd.Context(), sess.ID, question)
		if err != nil {
			return err
		}
		if turn.Degraded {
			fmt.Fprintln(out, "(report context unavailable; answering from conversation only)")
		}
		fmt.Fprintln(out, turn.BotText)
	}
}
