package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pitabwire/util"
	"github.com/spf13/cobra"

	"github.com/antinvestor/releasegate/internal/llm"
	"github.com/antinvestor/releasegate/internal/pipeline"
	"github.com/antinvestor/releasegate/internal/policy"
	"github.com/antinvestor/releasegate/internal/report"
	"github.com/antinvestor/releasegate/internal/risk"
)

// gateFailedError reports a run whose gate reached the --fail-on level.
type gateFailedError struct {
	gate      risk.Gate
	threshold risk.Gate
}

func (e *gateFailedError) Error() string {
	return fmt.Sprintf("release gate %s reached fail-on level %s", e.gate, e.threshold)
}

type assessOptions struct {
	original   string
	candidate  string
	policyPath string
	batchSize  int
	format     string
	intent     string
	failOn     string
	output     string
}

func newAssessCmd() *cobra.Command {
	opts := &assessOptions{}

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Assess a candidate tree against the original",
		Long: `Pairs files of the original and candidate trees by relative path, scores
each pair and prints a report. Without --candidate every unit is assessed
as unmodified. With --intent, units lacking a candidate are rewritten by the
configured LLM provider before assessment.`,
		Example: `  releasegate assess --original ./v1 --candidate ./v2
  releasegate assess --original ./src --intent "add input validation" --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAssess(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.original, "original", "", "directory holding the original sources")
	flags.StringVar(&opts.candidate, "candidate", "", "directory holding the candidate sources")
	flags.StringVar(&opts.policyPath, "policy", "", "release policy YAML file")
	flags.IntVar(&opts.batchSize, "batch-size", 0, "units assessed concurrently (overrides the policy)")
	flags.StringVar(&opts.format, "format", string(report.FormatMarkdown), "report format: markdown or json")
	flags.StringVar(&opts.intent, "intent", "", "modification intent sent to the LLM for units without a candidate")
	flags.StringVar(&opts.failOn, "fail-on", string(risk.GateBlock), "exit non-zero when the gate reaches this level")
	flags.StringVarP(&opts.output, "output", "o", "", "write the report to a file instead of stdout")
	_ = cmd.MarkFlagRequired("original")

	return cmd
}

func runAssess(cmd *cobra.Command, opts *assessOptions) error {
	ctx := cmd.Context()

	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	threshold, ok := risk.ParseGate(strings.ToUpper(opts.failOn))
	if !ok {
		return fmt.Errorf("invalid --fail-on %q: want PASS, WARN or BLOCK", opts.failOn)
	}

	pol, err := policy.Resolve(opts.policyPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("batch-size") {
		pol.BatchSize = opts.batchSize
	}

	runner, err := pipeline.NewRunner(pol)
	if err != nil {
		return err
	}

	var provider pipeline.Provider = pipeline.NewDirProvider(opts.original, opts.candidate)
	if strings.TrimSpace(opts.intent) != "" {
		cfg, cfgErr := env.ParseAs[llm.ClientConfig]()
		if cfgErr != nil {
			return fmt.Errorf("parse LLM configuration: %w", cfgErr)
		}
		engine, engineErr := llm.NewModificationClient(cfg)
		if engineErr != nil {
			return fmt.Errorf("create modification engine: %w", engineErr)
		}
		provider = pipeline.NewModifyingProvider(provider, engine, opts.intent)
	}

	units, err := provider.Units(ctx)
	if err != nil {
		return err
	}

	rep, err := runner.Run(ctx, units)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		f, createErr := os.Create(opts.output)
		if createErr != nil {
			return fmt.Errorf("create report file: %w", createErr)
		}
		defer util.CloseAndLogOnError(ctx, f, "failed to close report file")
		out = f
	}
	if err = report.Write(out, format, rep); err != nil {
		return err
	}

	gate := rep.Gate()
	util.Log(ctx).Debug("assessment finished", "run_id", rep.RunID.String(), "gate", gate, "units", len(rep.Units))
	if gate.Severity() >= threshold.Severity() {
		return &gateFailedError{gate: gate, threshold: threshold}
	}
	return nil
}
