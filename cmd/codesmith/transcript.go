package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/go-go-golems/codesmith/pkg/transcript"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newTranscriptCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Inspect recorded transcripts (needs --transcript-db or --transcript-dir)",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List transcripts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, closeRec, err := requireRecorder()
			if err != nil {
				return err
			}
			if closeRec != nil {
				defer func() { _ = closeRec() }()
			}
			summaries, err := rec.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tSESSION\tCREATED\tENTRIES\tFINALIZED")
			for _, s := range summaries {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n",
					s.ID, s.SessionID, s.CreatedAt.Format("2006-01-02 15:04:05"), s.Entries, s.Finalized)
			}
			return tw.Flush()
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a transcript as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, closeRec, err := requireRecorder()
			if err != nil {
				return err
			}
			if closeRec != nil {
				defer func() { _ = closeRec() }()
			}
			t, err := rec.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(t); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func requireRecorder() (transcript.Recorder, func() error, error) {
	rec, closeRec, err := openRecorder()
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, errors.New("no transcript store configured, set --transcript-db or --transcript-dir")
	}
	return rec, closeRec, nil
}
