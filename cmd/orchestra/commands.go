package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/nerrad567/device-orchestra/internal/device"
	"github.com/nerrad567/device-orchestra/internal/orchestra"
	"github.com/nerrad567/device-orchestra/internal/pipeline"
)

// ─── status ───

func runStatus(ctx context.Context, env *environment, args []string) error {
	flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
	asJSON := flagSet.Bool("json", false, "print statuses as JSON")
	if err := parseCommandFlags(env, flagSet, "status [--json]", args); err != nil {
		return ignoreHelp(err)
	}
	if flagSet.NArg() > 0 {
		return usageError("status: unexpected argument %q", flagSet.Arg(0))
	}

	o, err := bootstrap(ctx, env, env.stderr)
	if err != nil {
		return err
	}
	defer shutdown(o, env)

	statuses := o.Manager.StatusList()
	if *asJSON {
		return printJSON(env, statuses)
	}

	if len(statuses) == 0 {
		fmt.Fprintln(env.stdout, "no devices configured")
		return nil
	}
	tw := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATE\tFIELDS")
	for _, st := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.ID, st.Type, st.State, formatFields(st.Fields))
	}
	return tw.Flush()
}

// formatFields renders status fields as sorted key=value pairs.
func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

// ─── test ───

func runTest(ctx context.Context, env *environment, args []string) error {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	asJSON := flagSet.Bool("json", false, "print the report as JSON")
	if err := parseCommandFlags(env, flagSet, "test <device-id> [--json]", args); err != nil {
		return ignoreHelp(err)
	}
	if flagSet.NArg() != 1 {
		return usageError("test: expected exactly one device id")
	}
	id := flagSet.Arg(0)

	o, err := bootstrap(ctx, env, env.stderr)
	if err != nil {
		return err
	}
	defer shutdown(o, env)

	report, err := o.Tester.Test(ctx, id)
	if err != nil {
		return err
	}

	if *asJSON {
		if err := printJSON(env, report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(env.stdout, "Testing %s (%s)\n", report.DeviceID, report.Type)
		for _, c := range report.Checks {
			mark := "✓"
			if !c.Passed {
				mark = "✗"
			}
			line := fmt.Sprintf("  %s %-7s %4dms", mark, c.Name, c.DurationMS)
			if c.Error != "" {
				line += "  " + c.Error
			} else if probe, ok := c.Details["probe"]; ok {
				line += fmt.Sprintf("  probe=%v", probe)
			} else if state, ok := c.Details["state"]; ok {
				line += fmt.Sprintf("  state=%v", state)
			}
			fmt.Fprintln(env.stdout, line)
		}
		fmt.Fprintf(env.stdout, "%d/%d checks passed\n", report.PassCount(), len(report.Checks))
	}

	if !report.Passed() {
		return faultError("device %s failed diagnostics", id)
	}
	return nil
}

// ─── run ───

func runPipeline(ctx context.Context, env *environment, args []string) error {
	flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
	dryRun := flagSet.Bool("dry-run", false, "validate and walk the steps without touching devices")
	saveResult := flagSet.String("save-result", "", "write the run summary as JSON to this file")
	if err := parseCommandFlags(env, flagSet, "run <pipeline-file> [--dry-run] [--save-result FILE]", args); err != nil {
		return ignoreHelp(err)
	}
	if flagSet.NArg() != 1 {
		return usageError("run: expected exactly one pipeline file")
	}

	o, err := bootstrap(ctx, env, env.stderr)
	if err != nil {
		return err
	}
	defer shutdown(o, env)

	path := resolvePipelinePath(flagSet.Arg(0), o.Config().Pipelines.Directory)
	p, err := o.LoadPipeline(path)
	if err != nil {
		return err
	}

	if *dryRun {
		fmt.Fprintln(env.stdout, "dry run: no device will be touched")
	} else if len(o.Runner.Validate(p)) == 0 {
		// Devices only start for a pipeline that will run.
		if err := startPipelineDevices(ctx, env, o, p); err != nil {
			return err
		}
	}

	run, execErr := o.Execute(ctx, p, *dryRun)
	printRun(env, run)

	if *saveResult != "" {
		if err := writeJSONFile(*saveResult, run); err != nil {
			return fmt.Errorf("saving result: %w", err)
		}
		fmt.Fprintf(env.stdout, "result saved to %s\n", *saveResult)
	}

	if execErr != nil || run.Status != pipeline.RunCompleted {
		return faultError("pipeline %s %s", run.Pipeline, run.Status)
	}
	return nil
}

// resolvePipelinePath returns arg when it names a file, otherwise the first
// match for the bare name under dir.
func resolvePipelinePath(arg, dir string) string {
	if _, err := os.Stat(arg); err == nil || dir == "" || strings.ContainsRune(arg, filepath.Separator) {
		return arg
	}
	for _, ext := range []string{"", ".yaml", ".yml", ".json"} {
		candidate := filepath.Join(dir, arg+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return arg
}

// startPipelineDevices starts every device the pipeline names, in first-use
// order. The first failure aborts.
func startPipelineDevices(ctx context.Context, env *environment, o *orchestra.Orchestra, p pipeline.Pipeline) error {
	seen := make(map[string]bool)
	for _, step := range p.Steps {
		if step.IsBuiltin() || step.Device == "" || seen[step.Device] {
			continue
		}
		seen[step.Device] = true

		dev, err := o.Manager.Get(step.Device)
		if err != nil {
			return err
		}
		if dev.Status().State == device.StateStarted {
			continue
		}
		if err := o.Manager.Start(ctx, step.Device); err != nil {
			fmt.Fprintf(env.stdout, "✗ start %s: %v\n", step.Device, err)
			return faultError("starting %s: %w", step.Device, err)
		}
		fmt.Fprintf(env.stdout, "✓ started %s\n", step.Device)
	}
	return nil
}

func printRun(env *environment, run *pipeline.Run) {
	w := env.stdout
	fmt.Fprintf(w, "pipeline %s: %s (run %s)\n", run.Pipeline, run.Status, run.ID)

	if len(run.Faults) > 0 {
		fmt.Fprintln(w, "validation faults:")
		for _, f := range run.Faults {
			fmt.Fprintf(w, "  ✗ %s\n", f)
		}
		return
	}

	for _, s := range run.Steps {
		mark := "✓"
		if s.Status != pipeline.StepSucceeded {
			mark = "✗"
		}
		target := s.Action
		if s.Device != "" {
			target = s.Device + "." + s.Action
		}
		line := fmt.Sprintf("  %s [%d] %s  %s  %dms", mark, s.Index, s.Step, target, s.DurationMS)
		if s.Error != "" {
			line += "  " + s.Error
		}
		if s.SavedTo != "" {
			line += "  -> " + s.SavedTo
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "steps: %d total, %d succeeded, %d failed, %d skipped in %dms\n",
		run.TotalSteps, run.Succeeded, run.Failed, run.Skipped, run.DurationMS)
	if run.Error != "" {
		fmt.Fprintf(w, "error: %s\n", run.Error)
	}
}

// ─── debug ───

func runDebug(ctx context.Context, env *environment, args []string) error {
	flagSet := pflag.NewFlagSet("debug", pflag.ContinueOnError)
	if err := parseCommandFlags(env, flagSet, "debug <device-id>", args); err != nil {
		return ignoreHelp(err)
	}
	if flagSet.NArg() != 1 {
		return usageError("debug: expected exactly one device id")
	}
	id := flagSet.Arg(0)

	o, err := bootstrap(ctx, env, env.stderr)
	if err != nil {
		return err
	}
	defer shutdown(o, env)

	dev, err := o.Manager.Get(id)
	if err != nil {
		return err
	}
	if err := o.Manager.Start(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "debugging %s (%s); type help for commands, quit to exit\n", id, dev.Type())

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(env.stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	for {
		fmt.Fprintf(env.stdout, "%s> ", id)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(env.stdout)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(env.stdout)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if debugLine(ctx, env, o, dev, line) {
			return nil
		}
	}
}

// debugLine handles one console line and reports whether the session ends.
func debugLine(ctx context.Context, env *environment, o *orchestra.Orchestra, dev device.Device, line string) bool {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "quit", "exit", "q":
		return true
	case "help":
		if lister, ok := dev.(interface{ Commands() []string }); ok {
			fmt.Fprintf(env.stdout, "commands: %s\n", strings.Join(lister.Commands(), ", "))
		}
		fmt.Fprintln(env.stdout, "console: status, help, quit; arguments are key=value")
		return false
	case "status":
		//nolint:errcheck // Console output
		printJSON(env, dev.Status())
		return false
	}

	cmdArgs, err := parseConsoleArgs(fields[1:])
	if err != nil {
		fmt.Fprintf(env.stdout, "error: %v\n", err)
		return false
	}
	result, err := o.Manager.SendCommand(ctx, dev.ID(), device.Command{Name: fields[0], Args: cmdArgs})
	if err != nil {
		fmt.Fprintf(env.stdout, "error: %v\n", err)
		return false
	}
	//nolint:errcheck // Console output
	printJSON(env, result)
	return false
}

// parseConsoleArgs turns key=value tokens into command arguments. Values
// become int, float64 or bool when they parse as one.
func parseConsoleArgs(tokens []string) (device.Args, error) {
	args := device.Args{}
	for _, tok := range tokens {
		key, raw, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", tok)
		}
		args[key] = parseConsoleValue(raw)
	}
	return args, nil
}

func parseConsoleValue(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}

// ─── helpers ───

func ignoreHelp(err error) error {
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}

func printJSON(env *environment, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintln(env.stdout, string(data))
	return err
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
