package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/healthos/healthos/internal/config"
	"github.com/healthos/healthos/internal/domain/manage"
	"github.com/healthos/healthos/internal/platform/predictor"
)

type predictOptions struct {
	file    string
	offline bool
	output  string
}

// predictCmd runs one prediction from a YAML (or JSON) input file, going
// through the same model-then-fallback path as the API.
func predictCmd() *cobra.Command {
	opts := &predictOptions{}
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run a single prediction from an input file",
	}
	cmd.PersistentFlags().StringVarP(&opts.file, "file", "f", "", "input file (YAML or JSON), - for stdin")
	cmd.PersistentFlags().BoolVar(&opts.offline, "offline", false, "skip the predictor and use the heuristics only")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "json", "output format: json or yaml")
	cmd.MarkPersistentFlagRequired("file")

	cmd.AddCommand(&cobra.Command{
		Use:   "wait-time",
		Short: "Estimate the wait for a department queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, opts, func(ctx context.Context, svc *manage.Service, raw []byte) (any, error) {
				q, err := decodeInput[manage.QueueState](raw)
				if err != nil {
					return nil, err
				}
				return svc.PredictWaitTime(ctx, q), nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "triage",
		Short: "Classify a patient's urgency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, opts, func(ctx context.Context, svc *manage.Service, raw []byte) (any, error) {
				p, err := decodeInput[manage.PatientInfo](raw)
				if err != nil {
					return nil, err
				}
				return svc.ClassifyTriage(ctx, p), nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "optimize",
		Short: "Recommend staff and room allocation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, opts, func(ctx context.Context, svc *manage.Service, raw []byte) (any, error) {
				q, err := decodeInput[manage.QueueState](raw)
				if err != nil {
					return nil, err
				}
				return svc.OptimizeResources(ctx, q), nil
			})
		},
	})
	return cmd
}

type predictFunc func(ctx context.Context, svc *manage.Service, raw []byte) (any, error)

func runPredict(cmd *cobra.Command, opts *predictOptions, fn predictFunc) error {
	raw, err := readInput(cmd.InOrStdin(), opts.file)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger().Level(cfg.Level())

	var p predictor.Predictor = predictor.Disabled{}
	if !opts.offline {
		p, err = predictor.New(cmd.Context(), cfg.Predictor())
		if err != nil {
			return fmt.Errorf("build predictor: %w", err)
		}
	}
	svc := manage.NewService(p, logger)
	svc.SetTimeout(cfg.PredictorTimeout)

	out, err := fn(cmd.Context(), svc, raw)
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), opts.output, out)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return raw, nil
}

// decodeInput parses raw as YAML, which also accepts JSON documents, and
// validates the result.
func decodeInput[T interface{ Validate() error }](raw []byte) (T, error) {
	var v T
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("parse input: %w", err)
	}
	if err := v.Validate(); err != nil {
		return v, fmt.Errorf("invalid input: %w", err)
	}
	return v, nil
}

func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		// Round-trip through JSON so the YAML keys match the API field names.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := yaml.Unmarshal(b, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
