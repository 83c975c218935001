package main

import (
	"github.com/go-go-golems/codesmith/pkg/inference/tools/workspace"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type toolDescription struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Kind        string         `yaml:"kind"`
	Parameters  map[string]any `yaml:"parameters,omitempty"`
}

func newToolsCommand() *cobra.Command {
	var withSQL bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the workspace tools and their parameter schemas as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := workspace.Definitions(workspace.WithSQL(withSQL))
			if err != nil {
				return err
			}
			out := make([]toolDescription, 0, len(defs))
			for _, def := range defs {
				params, err := def.ParametersMap()
				if err != nil {
					return err
				}
				out = append(out, toolDescription{
					Name:        def.Name,
					Description: def.Description,
					Kind:        string(def.Kind),
					Parameters:  params,
				})
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVar(&withSQL, "sql", false, "Include the sql_query tool")
	return cmd
}
