package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/codesmith/pkg/events"
	"github.com/go-go-golems/codesmith/pkg/turns"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

func newRunCommand() *cobra.Command {
	var historyFile, saveHistory string
	var showMetrics bool

	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run a single request against the workspace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if prompt == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "read prompt from stdin")
				}
				prompt = string(b)
			}

			sess, err := newSession(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer sess.Close()

			if historyFile != "" {
				if err := loadHistoryFile(sess, historyFile); err != nil {
					return err
				}
			}

			var answer string
			err = sess.run(cmd.Context(), func(ctx context.Context, sink events.EventSink) error {
				var err error
				answer, err = sess.agent.ProcessRequest(ctx, prompt, sink)
				return err
			})
			if err != nil {
				return err
			}

			if err := renderAnswer(cmd.OutOrStdout(), answer); err != nil {
				return err
			}
			if saveHistory != "" {
				if err := turns.SaveHistoryFile(saveHistory, sess.agent.History()); err != nil {
					return err
				}
			}
			if showMetrics {
				printMetrics(cmd.ErrOrStderr(), sess.agent)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&historyFile, "history", "", "JSON or YAML file with a prior conversation to continue")
	cmd.Flags().StringVar(&saveHistory, "save-history", "", "Write the conversation to this .json or .yaml file afterwards")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print tool metrics after the request")
	return cmd
}

func loadHistoryFile(sess *session, path string) error {
	msgs, err := turns.LoadHistoryFile(path)
	if err != nil {
		return err
	}
	return sess.agent.LoadHistory(msgs)
}

// renderAnswer prints the final answer, styled as markdown when stdout is a terminal.
func renderAnswer(w io.Writer, answer string) error {
	if isatty.IsTerminal(os.Stdout.Fd()) {
		styled, err := glamour.Render(answer, "dark")
		if err == nil {
			_, err = fmt.Fprint(w, styled)
			return err
		}
		log.Debug().Err(err).Msg("codesmith: markdown rendering failed, printing plain text")
	}
	_, err := fmt.Fprintln(w, answer)
	return err
}

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session",
		Long: `Start an interactive session against the workspace.

Commands:
  /history       print the conversation
  /save <file>   write the conversation to a .json or .yaml file
  /reset         clear the conversation
  /metrics       show tool metrics
  /quit          exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer sess.Close()

			ui := &input.UI{
				Writer: cmd.ErrOrStderr(),
				Reader: cmd.InOrStdin(),
			}
			out := cmd.OutOrStdout()

			return sess.run(cmd.Context(), func(ctx context.Context, sink events.EventSink) error {
				for {
					line, err := ui.Ask("\n>", &input.Options{HideOrder: true})
					if err != nil {
						// interrupt or closed stdin ends the session
						log.Debug().Err(err).Msg("codesmith: input closed")
						return nil
					}

					line = strings.TrimSpace(line)
					if path, ok := strings.CutPrefix(line, "/save "); ok {
						if err := turns.SaveHistoryFile(strings.TrimSpace(path), sess.agent.History()); err != nil {
							_, _ = fmt.Fprintf(out, "error: %s\n", err)
						}
						continue
					}
					switch line {
					case "":
						continue
					case "/history":
						turns.FprintHistory(out, sess.agent.History(), turns.WithIndent(2), turns.WithMaxTextLines(5))
						continue
					case "/quit", "/exit":
						return nil
					case "/reset":
						sess.agent.ResetHistory()
						_, _ = fmt.Fprintln(out, "conversation cleared")
						continue
					case "/metrics":
						printMetrics(out, sess.agent)
						continue
					}

					answer, err := sess.agent.ProcessRequest(ctx, line, sink)
					if err != nil {
						if ctx.Err() != nil {
							return ctx.Err()
						}
						log.Error().Err(err).Msg("codesmith: request failed")
						_, _ = fmt.Fprintf(out, "error: %s\n", err)
						continue
					}
					if err := renderAnswer(out, answer); err != nil {
						return err
					}
				}
			})
		},
	}
}
