package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odpi/egeria-sub244/internal/domain"
	"github.com/odpi/egeria-sub244/internal/matcher"
)

// explainInput pairs an entity with the search to evaluate against it.
type explainInput struct {
	Entity domain.EntityDetail `json:"entity"`
	Search domain.EntitySearch `json:"search"`
}

func newExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <file>",
		Short: "Show how a search evaluates against one entity",
		Long: `Reads {"entity": ..., "search": ...} and prints the evaluation trace of every
condition node, marking each with [+] when it holds and [-] when it does not.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, args[0])
		},
	}
}

func runExplain(cmd *cobra.Command, path string) error {
	var input explainInput
	if err := readJSONFile(path, &input); err != nil {
		return err
	}
	trace, err := matcher.New().Explain(input.Entity, input.Search)
	if err != nil {
		return fmt.Errorf("failed to evaluate search: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, trace.String())
	if trace.Matched {
		fmt.Fprintln(out, "MATCH")
	} else {
		fmt.Fprintln(out, "NO MATCH")
	}
	return nil
}
