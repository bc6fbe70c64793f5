package main

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/raaihank/relay-scrubber/internal/annotated"
	"github.com/raaihank/relay-scrubber/internal/datascrubbing"
	"github.com/raaihank/relay-scrubber/internal/pii"
	"github.com/raaihank/relay-scrubber/internal/processor"
	"github.com/raaihank/relay-scrubber/internal/protocol"
)

// errInvalidConfig is returned by validate after the problems are printed
var errInvalidConfig = errors.New("invalid PII config")

func newSelectorsCmd(a *app) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "selectors",
		Short: "Suggest selectors that address the PII-bearing values of an event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, input)
			if err != nil {
				return err
			}
			tree, err := annotated.FromJSON(data)
			if err != nil {
				return fmt.Errorf("failed to decode event: %w", err)
			}
			if a.cfg.Processing.Normalize {
				protocol.Normalize(tree)
			}

			suggestions := pii.SelectorSuggestions(tree,
				processor.WithSchema(protocol.EventSchema()),
				processor.WithMaxDepth(a.cfg.Processing.MaxDepth))
			for _, s := range suggestions {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "event file, - for stdin")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pii-config>",
		Short: "Check a PII config for errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if msg := pii.Validate(data); msg != "" {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return errInvalidConfig
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}

func newConvertCmd(a *app) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "convert <datascrubbing-settings>",
		Short: "Print the PII config equivalent to legacy data scrubbing settings",
		Long: `Print the PII config equivalent to legacy data scrubbing settings.
The output is null when the settings would never scrub anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode == "" {
				mode = a.cfg.Processing.LegacyMode
			}
			m, err := datascrubbing.ParseMode(mode)
			if err != nil {
				return err
			}
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			settings, err := datascrubbing.ParseConfig(data)
			if err != nil {
				return err
			}

			cfg := datascrubbing.ToPiiConfig(settings, m)
			if cfg == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "null")
				return nil
			}
			raw, err := cfg.ToJSON()
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), buf.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "conversion mode (fine-grained or simple); defaults to processing.legacy_mode")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		// version works without a configuration
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relay-scrubber %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
