package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/notargets/vadd/config"
	"github.com/notargets/vadd/device"
	"github.com/notargets/vadd/runner"
	"github.com/notargets/vadd/runner/builder"
	"github.com/notargets/vadd/utils"
	"github.com/notargets/vadd/vectorstore"
)

// settingsFlags are shared by every command that selects a device
type settingsFlags struct {
	configPath    string
	backend       string
	deviceType    string
	workGroupSize int
	logLevel      string
	logFormat     string
}

func (s *settingsFlags) register(f *pflag.FlagSet) {
	f.StringVar(&s.configPath, "config", "", "Config file (default: $VADD_CONFIG, ./vadd.yaml, ~/.config/vadd/config.yaml)")
	f.StringVar(&s.backend, "backend", builder.DefaultBackend, "Compute backend: opencl, occa, host")
	f.StringVar(&s.deviceType, "device-type", "all", "Device type filter: all, cpu, accelerator")
	f.IntVar(&s.workGroupSize, "work-group-size", builder.DefaultWorkGroupSize, "Work-group (local) size")
	f.StringVar(&s.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&s.logFormat, "log-format", "text", "Log format: text, json")
}

// load resolves the configuration: flags set on the command line win over
// the environment, which wins over the config file
func (s *settingsFlags) load(cmd *cobra.Command) (*config.Config, *utils.Logger, error) {
	path := s.configPath
	if !cmd.Flags().Changed("config") {
		path = config.FindConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, withCode(exitUsage, err)
	}

	f := cmd.Flags()
	if f.Changed("backend") {
		cfg.Dispatch.Backend = s.backend
	}
	if f.Changed("device-type") {
		t, err := device.ParseType(s.deviceType)
		if err != nil {
			return nil, nil, withCode(exitUsage, err)
		}
		cfg.Dispatch.DeviceType = t
	}
	if f.Changed("work-group-size") {
		cfg.Dispatch.WorkGroupSize = s.workGroupSize
	}
	if f.Changed("log-level") {
		cfg.Log.Level = s.logLevel
	}
	if f.Changed("log-format") {
		cfg.Log.Format = s.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, withCode(exitUsage, err)
	}

	level, err := utils.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, withCode(exitUsage, err)
	}
	logger, err := utils.NewLoggerFor(cmd.ErrOrStderr(), cfg.Log.Format, level)
	if err != nil {
		return nil, nil, withCode(exitUsage, err)
	}
	return cfg, logger, nil
}

type runOptions struct {
	settingsFlags
	inputs      []string
	output      string
	expected    string
	printKernel bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run -i A -i B [-o OUT] [-e EXPECTED]",
		Short: "Add two vectors on a compute device",
		Long: `Add two vectors on a compute device.

The result is written to --output, or printed to stdout in text format when
no output file is given. With --expected the result is checked against a
reference vector and the command fails with status 4 on a mismatch.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringArrayVarP(&opts.inputs, "input", "i", nil, "Input vector file; give exactly two")
	f.StringVarP(&opts.output, "output", "o", "", "Write the result vector to this file")
	f.StringVarP(&opts.expected, "expected", "e", "", "Check the result against this vector file")
	f.BoolVar(&opts.printKernel, "print-kernel", false, "Print the generated kernel source before running")
	opts.settingsFlags.register(f)
	return cmd
}

func runAdd(cmd *cobra.Command, opts *runOptions) error {
	if len(opts.inputs) != 2 {
		return withCode(exitUsage, fmt.Errorf("expected two input files, got %d", len(opts.inputs)))
	}
	cfg, logger, err := opts.load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	timer := utils.NewTimer()

	var a, b []float32
	err = timer.Time("Generic", "Importing data and creating memory on host", func() (err error) {
		if a, err = vectorstore.Import(opts.inputs[0]); err != nil {
			return err
		}
		b, err = vectorstore.Import(opts.inputs[1])
		return err
	})
	if err != nil {
		return withCode(exitIO, err)
	}
	logger.DebugContext(ctx, "inputs imported", "a", opts.inputs[0], "b", opts.inputs[1], "length", len(a))

	rt, err := openRuntime(cfg.Dispatch)
	if err != nil {
		return err
	}

	if opts.printKernel {
		if len(a) == 0 {
			return withCode(exitUsage, errors.New("cannot generate a kernel for empty vectors"))
		}
		bld, err := builder.NewBuilder(cfg.Dispatch, len(a))
		if err != nil {
			return withCode(exitUsage, err)
		}
		src, err := bld.KernelSource(rt.Dialect())
		if err != nil {
			return withCode(exitUsage, err)
		}
		fmt.Fprintln(out, src)
	}

	result, err := runner.AddVectors(ctx, rt, a, b, cfg.Dispatch,
		runner.WithLogger(logger), runner.WithTimer(timer))
	if err != nil {
		return err
	}

	if opts.output != "" {
		err = timer.Time("Generic", "Exporting output", func() error {
			return vectorstore.Export(opts.output, result)
		})
		if err != nil {
			return withCode(exitIO, err)
		}
	}

	if opts.expected != "" {
		want, err := vectorstore.Import(opts.expected)
		if err != nil {
			return withCode(exitIO, err)
		}
		sol, err := vectorstore.CheckSolution(want, result)
		if err != nil {
			return withCode(exitMismatch, err)
		}
		fmt.Fprintf(out, "Solution is correct: %d elements, max abs error %g\n", sol.N, sol.MaxError)
	} else if opts.output == "" {
		if err := vectorstore.Write(out, result, vectorstore.FormatText); err != nil {
			return withCode(exitIO, err)
		}
	}

	if logger.Enabled(ctx, slog.LevelDebug) {
		for _, tm := range timer.Timings() {
			logger.DebugContext(ctx, "timing", "kind", tm.Kind, "message", tm.Message, "elapsed", tm.Elapsed)
		}
	}
	return nil
}
