package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odpi/egeria-sub244/internal/config"
	"github.com/odpi/egeria-sub244/internal/domain"
	"github.com/odpi/egeria-sub244/internal/logging"
	"github.com/odpi/egeria-sub244/internal/repository"
	"github.com/odpi/egeria-sub244/internal/service"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a search request against the configured limits",
		Long: `Reads a findEntities request (JSON) and reports whether the server would
accept it, together with its explain form and fingerprint.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			return runValidate(cmd, cfg.Search, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, limits config.SearchConfig, path string) error {
	var query domain.EntitySearch
	if err := readJSONFile(path, &query); err != nil {
		return err
	}

	svc := service.NewSearchService(repository.NewMemoryEntityRepository(nil), limits, logging.NewNopLogger(), nil)
	report := svc.Validate(query)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.Valid {
		return fmt.Errorf("%s is not a valid search: %s", path, report.Error.ExceptionErrorMessage)
	}
	return nil
}

func readJSONFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
