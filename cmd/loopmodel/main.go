package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"loopmodel/internal/analysis"
	"loopmodel/internal/config"
	"loopmodel/internal/program"
	"loopmodel/internal/report"
	"loopmodel/internal/workspace"
)

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	long  string
	run   func(args []string) error
}

var commands = []command{
	{
		name:  "init",
		short: "Create a new loopmodel workspace",
		usage: "loopmodel init <name>",
		long: `Create a new workspace at ~/.loopmodel/<name>/ (or $LOOPMODEL_HOME/<name>/).

Errors if the workspace already exists.
`,
		run: runInit,
	},
	{
		name:  "add",
		short: "Add a machine profile to a workspace",
		usage: "loopmodel add <workspace> <profile>",
		long: `Add a machine profile to an existing workspace.

Prompts for the cache size, element byte widths and traffic scale factors,
and writes ~/.loopmodel/<workspace>/<profile>.yaml. Parameter bindings,
block bindings and condition probabilities can be added to that file by hand.

Errors if the profile already exists.
`,
		run: runAdd,
	},
	{
		name:  "analyze",
		short: "Analyze a program under every profile of a workspace",
		usage: "loopmodel analyze <workspace> <program.yaml>",
		long: `Run the analysis of a program once per profile in the workspace.

Each report is written to ~/.loopmodel/<workspace>/<profile>/<program>.md.
A report whose program and profile are unchanged is not rewritten.
`,
		run: runAnalyze,
	},
	{
		name:  "run",
		short: "Analyze a program under a single profile file",
		usage: "loopmodel run <program.yaml> <profile.yaml>",
		long: `Analyze a program under one profile and print the structured report
as YAML on stdout. Reuse diagnostics are logged on stderr.

Environment:
  LOOPMODEL_IGNORE_CONDS   treat every branch condition as certain
  LOOPMODEL_VERBOSE_CONDS  log each evaluated condition chain
  LOOPMODEL_CACHE_BYTES    override the profile's cache size
`,
		run: runRun,
	},
	{
		name:  "list",
		short: "List workspaces, or the profiles of one workspace",
		usage: "loopmodel list [workspace]",
		long: `Without arguments, list every workspace. With a workspace name, list its
profiles.
`,
		run: runList,
	},
	{
		name:  "remove",
		short: "Remove a workspace or one of its profiles",
		usage: "loopmodel remove <workspace> [profile]",
		long: `Remove a whole workspace, or only the named profile together with the
reports written under it.
`,
		run: runRemove,
	},
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "loopmodel: static performance model of loop-nested kernels\n\n")
	fmt.Fprintf(w, "Usage:\n  loopmodel <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.short)
	}
	fmt.Fprintf(w, "\nRun 'loopmodel help <command>' for details on a specific command.\n")
}

func printCommandHelp(w io.Writer, name string) {
	for _, cmd := range commands {
		if cmd.name == name {
			fmt.Fprintf(w, "Usage: %s\n\n%s", cmd.usage, cmd.long)
			return
		}
	}
	fmt.Fprintf(w, "loopmodel: unknown command %q\n\nRun 'loopmodel help' for usage.\n", name)
}

func dispatch(args []string) error {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(os.Stdout)
		return nil
	}
	if args[0] == "help" {
		if len(args) >= 2 {
			printCommandHelp(os.Stdout, args[1])
		} else {
			printUsage(os.Stdout)
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(args[1:])
		}
	}
	return fmt.Errorf("unknown command %q\n\nRun 'loopmodel help' for usage.", args[0])
}

// newLogger writes text records to stderr; verbose enables debug records.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func runInit(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: loopmodel init <name>")
	}
	name := args[0]
	if err := workspace.Init(name); err != nil {
		return err
	}
	w, err := workspace.Open(name)
	if err != nil {
		return err
	}
	fmt.Printf("created workspace %q at %s\n", name, w.Dir)
	return nil
}

// ---------------------------------------------------------------------------
// add
// ---------------------------------------------------------------------------

func runAdd(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: loopmodel add <workspace> <profile>")
	}
	wsName, profile := args[0], args[1]

	w, err := workspace.Open(wsName)
	if err != nil {
		return err
	}
	answers, err := promptQuestions(profileQuestions)
	if err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	cfg, err := profileFromAnswers(answers)
	if err != nil {
		return err
	}
	if err := w.AddProfile(profile, cfg); err != nil {
		return err
	}
	fmt.Printf("added profile %q to workspace %q\n", profile, wsName)
	return nil
}

// ---------------------------------------------------------------------------
// analyze
// ---------------------------------------------------------------------------

func runAnalyze(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: loopmodel analyze <workspace> <program.yaml>")
	}
	wsName, progPath := args[0], args[1]

	w, err := workspace.Open(wsName)
	if err != nil {
		return err
	}
	progData, err := os.ReadFile(progPath)
	if err != nil {
		return fmt.Errorf("read program: %w", err)
	}
	prog, err := program.Parse(progData)
	if err != nil {
		return fmt.Errorf("program %s: %w", progPath, err)
	}

	profiles, err := w.ListProfiles()
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Printf("no profiles in workspace %q\n", wsName)
		return nil
	}

	var anyErr bool
	for _, name := range profiles {
		if err := analyzeProfile(w, name, prog, progData); err != nil {
			fmt.Fprintf(os.Stderr, "error: %s: %v\n", name, err)
			anyErr = true
		}
	}
	if anyErr {
		return fmt.Errorf("one or more errors during analysis")
	}
	return nil
}

func analyzeProfile(w *workspace.Workspace, name string, prog *program.Program, progData []byte) error {
	cfgData, err := w.ReadProfile(name)
	if err != nil {
		return err
	}
	cfg, err := w.LoadProfile(name)
	if err != nil {
		return err
	}
	fmt.Printf("analyzing %s under %s...\n", prog.Name, name)
	rep, err := analysis.Run(prog, cfg, newLogger(cfg.Options.VerboseConds))
	if err != nil {
		return err
	}
	path := w.ReportPath(name, prog.Name)
	changed, err := report.Write(path, report.New(rep, name, report.InputHash(progData, cfgData)))
	if err != nil {
		return err
	}
	if changed {
		fmt.Printf("  done → %s\n", path)
	} else {
		fmt.Printf("  unchanged → %s\n", path)
	}
	return nil
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func runRun(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: loopmodel run <program.yaml> <profile.yaml>")
	}
	rep, err := analyzeFiles(args[0], args[1])
	if err != nil {
		return err
	}
	return writeYAML(os.Stdout, rep)
}

func analyzeFiles(progPath, cfgPath string) (*analysis.Report, error) {
	prog, err := program.Load(progPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return analysis.Run(prog, cfg, newLogger(cfg.Options.VerboseConds))
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// ---------------------------------------------------------------------------
// list / remove
// ---------------------------------------------------------------------------

func runList(args []string) error {
	return list(os.Stdout, args)
}

func list(out io.Writer, args []string) error {
	if len(args) == 0 {
		names, err := workspace.List()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(out, n)
		}
		return nil
	}
	w, err := workspace.Open(args[0])
	if err != nil {
		return err
	}
	profiles, err := w.ListProfiles()
	if err != nil {
		return err
	}
	for _, p := range profiles {
		fmt.Fprintln(out, p)
	}
	return nil
}

func runRemove(args []string) error {
	switch len(args) {
	case 1:
		if err := workspace.Remove(args[0]); err != nil {
			return err
		}
		fmt.Printf("removed workspace %q\n", args[0])
		return nil
	case 2:
		w, err := workspace.Open(args[0])
		if err != nil {
			return err
		}
		if err := w.RemoveProfile(args[1]); err != nil {
			return err
		}
		fmt.Printf("removed profile %q from workspace %q\n", args[1], args[0])
		return nil
	}
	return fmt.Errorf("usage: loopmodel remove <workspace> [profile]")
}

func main() {
	if err := dispatch(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
