package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fyrc/internal/buildpipeline"
	"fyrc/internal/cache"
	"fyrc/internal/observ"
	"fyrc/internal/prof"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] [inputs...]",
	Short: "Compile IR packages to C",
	Long:  "Compile .fyrir packages (files or directories holding them) to C headers and implementation files.",
	RunE:  buildExecution,
}

func init() {
	flags := buildCmd.Flags()
	flags.StringP("out", "o", "", "output directory (overrides [build].out_dir)")
	flags.IntP("jobs", "j", -1, "parallel package builds (overrides [build].jobs)")
	flags.Bool("no-cache", false, "ignore and do not update the unit cache")
	flags.Bool("emit-ir", false, "write the IR of every function after every phase")
	flags.Bool("comments", false, "annotate C statements with the IR nodes they came from")
	flags.Bool("no-runtime-headers", false, "do not write fyr.h and fyr_spawn.h")
	flags.String("ui", "auto", "progress UI (auto|on|off)")
	flags.String("cpu-profile", "", "write a CPU profile to this file")
	flags.String("mem-profile", "", "write a heap profile to this file")
	flags.String("runtime-trace", "", "write a Go runtime trace to this file")
}

func setupProfiling(cmd *cobra.Command) (*prof.Session, error) {
	flags := cmd.Flags()
	var opts prof.Options
	var err error
	if opts.CPU, err = flags.GetString("cpu-profile"); err != nil {
		return nil, err
	}
	if opts.Mem, err = flags.GetString("mem-profile"); err != nil {
		return nil, err
	}
	if opts.Trace, err = flags.GetString("runtime-trace"); err != nil {
		return nil, err
	}
	return prof.Start(opts)
}

func buildExecution(cmd *cobra.Command, args []string) (err error) {
	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer func() { cleanup(err != nil) }()

	profiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := profiling.Stop(); stopErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "profiling: %v\n", stopErr)
		}
	}()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if out, _ := flags.GetString("out"); out != "" {
		cfg.Build.OutDir = out
	}
	if jobs, _ := flags.GetInt("jobs"); jobs >= 0 {
		cfg.Build.Jobs = jobs
	}
	if noCache, _ := flags.GetBool("no-cache"); noCache {
		cfg.Build.Cache = false
	}
	if emitIR, _ := flags.GetBool("emit-ir"); emitIR {
		cfg.Emit.IR = true
	}
	if comments, _ := flags.GetBool("comments"); comments {
		cfg.Emit.Comments = true
	}
	if noHeaders, _ := flags.GetBool("no-runtime-headers"); noHeaders {
		cfg.Build.RuntimeHeaders = false
	}
	uiValue, err := flags.GetString("ui")
	if err != nil {
		return err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}
	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")
	timings, _ := cmd.Root().PersistentFlags().GetBool("timings")

	inputs, err := expandInputs(args)
	if err != nil {
		return err
	}
	req := &buildpipeline.Request{
		Inputs:  inputs,
		Config:  cfg,
		BaseDir: ".",
		Timer:   observ.NewTimer(),
	}
	if cfg.Build.Cache {
		req.Cache, err = cache.Open(filepath.Join(cfg.Build.OutDir, ".cache"))
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
	}

	var res buildpipeline.Result
	if !quiet && shouldUseTUI(mode) {
		res, err = runBuildWithUI(cmd.Context(), "fyrc build", req)
	} else {
		res, err = buildpipeline.Build(cmd.Context(), req)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !quiet {
		for _, u := range res.Units {
			state := color.GreenString("built ")
			if u.Cached {
				state = color.CyanString("cached")
			}
			fmt.Fprintf(out, "%s %s -> %s\n", state, u.Package, u.ImplPath)
		}
	}
	if timings {
		fmt.Fprint(out, req.Timer.Summary())
	}
	return nil
}
