// Copyright 2024 AgriGenius Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/agrigenius/internal/advisory"
	"github.com/your-org/agrigenius/internal/audit"
	"github.com/your-org/agrigenius/internal/bootstrap"
	"github.com/your-org/agrigenius/internal/config"
	"github.com/your-org/agrigenius/internal/flow"
	"github.com/your-org/agrigenius/internal/logging"
	"github.com/your-org/agrigenius/internal/resilience"
)

// errReported marks errors whose message was already printed.
var errReported = errors.New("reported")

// appBuilder wires the application; tests replace it to inject a model.
type appBuilder func(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts bootstrap.Options) (*bootstrap.App, error)

type rootOptions struct {
	configPath string
	verbose    bool
	build      appBuilder
}

func newRootCmd(build appBuilder) *cobra.Command {
	opts := &rootOptions{build: build}

	root := &cobra.Command{
		Use:           "agrictl",
		Short:         "Run AgriGenius advisory flows from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(
		newFlowsCmd(opts),
		newRenderCmd(opts),
		newRunCmd(opts),
		newLedgerCmd(opts),
	)
	return root
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{ConfigPath: o.configPath})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func (o *rootOptions) logger(cfg *config.Config) (*zap.Logger, error) {
	logCfg := cfg.Logging
	logCfg.Output = "stderr"
	logCfg.Format = "console"
	logCfg.Level = "warn"
	if o.verbose {
		logCfg.Level = "debug"
	}
	logger, _, err := logging.New(logCfg)
	return logger, err
}

// offlineRegistry builds the flow catalogue without a model backend. Its
// runners can describe and render but not run.
func offlineRegistry(cfg *config.Config) *flow.Registry {
	images := advisory.PlaceholderImage(cfg.Encyclopedia.PlaceholderURL)
	return advisory.NewSuite(nil, images).Registry()
}

func newFlowsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "flows",
		Short: "List the advisory flows and their input fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			catalogue := offlineRegistry(cfg).Catalogue()

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), catalogue)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, d := range catalogue {
				fmt.Fprintf(w, "%s\t%s\n", d.Name, d.Description)
				for _, f := range d.Fields {
					fmt.Fprintf(w, "  --set %s=<%s>\t%s\n", f.Name, f.Type, fieldNote(f.Required, f.Default, f.Options))
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalogue as JSON")
	return cmd
}

func fieldNote(required bool, def string, options []string) string {
	var parts []string
	if required {
		parts = append(parts, "required")
	}
	if def != "" {
		parts = append(parts, "default "+def)
	}
	if len(options) > 0 {
		parts = append(parts, "one of "+strings.Join(options, "|"))
	}
	return strings.Join(parts, ", ")
}

type inputFlags struct {
	set   []string
	photo string
}

func (f *inputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.set, "set", "s", nil, "Input field as key=value; repeat a key to pass a list")
	cmd.Flags().StringVar(&f.photo, "photo", "", "Image file sent as photoDataUri")
}

// form turns --set pairs into form fields. Repeated keys are joined with commas.
func (f *inputFlags) form() (map[string]string, error) {
	form := make(map[string]string, len(f.set)+1)
	for _, pair := range f.set {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", pair)
		}
		if prev, exists := form[key]; exists {
			value = prev + "," + value
		}
		form[key] = value
	}

	if f.photo != "" {
		uri, err := fileDataURI(f.photo)
		if err != nil {
			return nil, err
		}
		form["photoDataUri"] = uri
	}
	return form, nil
}

func fileDataURI(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}
	mimeType := http.DetectContentType(data)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var input inputFlags

	cmd := &cobra.Command{
		Use:   "render <flow>",
		Short: "Print the prompt a flow would send, without calling the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			runner, err := offlineRegistry(cfg).Get(args[0])
			if err != nil {
				return reportError(cmd.ErrOrStderr(), err)
			}
			form, err := input.form()
			if err != nil {
				return err
			}

			prompt, err := runner.Render(form)
			if err != nil {
				return reportError(cmd.ErrOrStderr(), err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), prompt)
			return err
		},
	}
	input.register(cmd)
	return cmd
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var input inputFlags

	cmd := &cobra.Command{
		Use:   "run <flow>",
		Short: "Run a flow against the configured model and print its JSON output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := input.form()
			if err != nil {
				return err
			}

			app, err := opts.buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close(context.WithoutCancel(cmd.Context())) }()

			runner, err := app.Registry.Get(args[0])
			if err != nil {
				return reportError(cmd.ErrOrStderr(), err)
			}
			result, err := runner.Run(cmd.Context(), form)
			if err != nil {
				return reportError(cmd.ErrOrStderr(), err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
	input.register(cmd)
	return cmd
}

func newLedgerCmd(opts *rootOptions) *cobra.Command {
	ledger := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the invocation ledger",
	}

	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List the most recent invocations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withLedger(cmd.Context(), func(l *audit.Ledger) error {
				entries, err := l.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "STARTED\tFLOW\tOUTCOME\tDURATION\tREQUEST")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.StartedAt.Format("2006-01-02 15:04:05"), e.Flow, e.Outcome, e.Duration, e.RequestID)
				}
				return w.Flush()
			})
		},
	}
	recent.Flags().IntVarP(&limit, "limit", "n", 20, "Number of invocations to show")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Summarise invocations per flow and outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withLedger(cmd.Context(), func(l *audit.Ledger) error {
				rows, err := l.Stats(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "FLOW\tTOTAL\tAVG MS\tOUTCOMES")
				for _, row := range rows {
					fmt.Fprintf(w, "%s\t%d\t%.1f\t%s\n", row.Flow, row.Total, row.AvgDurationMS, formatOutcomes(row.Outcomes))
				}
				return w.Flush()
			})
		},
	}

	ledger.AddCommand(recent, stats)
	return ledger
}

func formatOutcomes(outcomes map[flow.Outcome]int) string {
	keys := make([]string, 0, len(outcomes))
	for outcome := range outcomes {
		keys = append(keys, string(outcome))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, outcomes[flow.Outcome(k)]))
	}
	return strings.Join(parts, " ")
}

// buildApp leaves credential checks to bootstrap, which only needs the key of
// the selected provider.
func (o *rootOptions) buildApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := o.logger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return o.build(ctx, cfg, logger, bootstrap.Options{Version: version})
}

func (o *rootOptions) withLedger(ctx context.Context, fn func(*audit.Ledger) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	logger, err := o.logger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	l, err := audit.NewLedger(audit.Config{
		StorageType: cfg.Audit.StorageType,
		FilePath:    cfg.Audit.FilePath,
		DBPath:      cfg.Audit.DBPath,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open audit ledger: %w", err)
	}
	defer func() { _ = l.Close() }()

	if err := fn(l); err != nil {
		if errors.Is(err, audit.ErrUnsupported) {
			return fmt.Errorf("ledger queries need audit.storage_type sqlite, have %q", l.StorageType())
		}
		return err
	}
	return nil
}

// reportError prints the user-facing message and any field errors of err.
func reportError(w io.Writer, err error) error {
	var serviceErr *resilience.ServiceError
	if !resilience.AsServiceError(err, &serviceErr) {
		return err
	}

	fmt.Fprintln(w, serviceErr.Message)
	fields := make([]string, 0, len(serviceErr.Fields))
	for name := range serviceErr.Fields {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	for _, name := range fields {
		fmt.Fprintf(w, "  %s: %s\n", name, serviceErr.Fields[name])
	}
	return fmt.Errorf("%w: %s", errReported, strings.ToLower(string(serviceErr.Code)))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
