// Package cli implements the veq command line. Each subcommand is a
// handle function that inspects os.Args itself and reports whether it
// ran, so main stays a plain dispatch chain.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/funvibe/veq/internal/analyzer"
	"github.com/funvibe/veq/internal/baseline"
	"github.com/funvibe/veq/internal/config"
	"github.com/funvibe/veq/internal/gosrc"
	"github.com/funvibe/veq/internal/protosrc"
	"github.com/funvibe/veq/internal/report"
	"github.com/funvibe/veq/internal/service"
	"github.com/funvibe/veq/internal/snapshot"
	"github.com/funvibe/veq/internal/typeref"
)

// Version is overridden by the release build.
var Version = "dev"

// Run dispatches the command line to a subcommand handler. Handlers that
// fail exit the process; a clean run returns normally.
func Run() {
	if handleHelp() {
		return
	}
	if handleVersion() {
		return
	}
	if handleCheck() {
		return
	}
	if handleBaseline() {
		return
	}
	if handleServe() {
		return
	}

	fmt.Fprintf(os.Stderr, "veq: unknown command %q\n\n", os.Args[1])
	printUsage(os.Stderr)
	os.Exit(2)
}

// =============================================================================
// veq check
// =============================================================================

type checkOptions struct {
	json       bool
	noBaseline bool
	baseline   string
	configPath string
}

func handleCheck() bool {
	if len(os.Args) < 2 || os.Args[1] != "check" {
		return false
	}

	opts, targets, err := parseCheckArgs(os.Args[2:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "veq check: %v\n", err)
		os.Exit(2)
	}
	if code := runCheck(os.Stdout, os.Stderr, opts, targets); code != 0 {
		os.Exit(code)
	}
	return true
}

func parseCheckArgs(args []string) (checkOptions, []string, error) {
	var opts checkOptions
	var targets []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--json":
			opts.json = true
		case arg == "--no-baseline":
			opts.noBaseline = true
		case arg == "--baseline":
			i++
			if i == len(args) {
				return opts, nil, fmt.Errorf("--baseline needs a database path")
			}
			opts.baseline = args[i]
		case arg == "--config":
			i++
			if i == len(args) {
				return opts, nil, fmt.Errorf("--config needs a file path")
			}
			opts.configPath = args[i]
		case strings.HasPrefix(arg, "-"):
			return opts, nil, fmt.Errorf("unknown flag %s", arg)
		default:
			targets = append(targets, arg)
		}
	}
	return opts, targets, nil
}

func runCheck(stdout, stderr io.Writer, opts checkOptions, targets []string) int {
	cfg, err := config.Resolve(opts.configPath, ".")
	if err != nil {
		fmt.Fprintf(stderr, "veq check: %v\n", err)
		return 2
	}
	if len(targets) == 0 {
		targets = cfg.GoPackages
	}

	mode, err := detectMode(targets)
	if err != nil {
		fmt.Fprintf(stderr, "veq check: %v\n", err)
		return 2
	}

	universes, ok := collectUniverses(stderr, cfg, mode, targets)
	if !ok {
		return 2
	}

	a := analyzer.New()
	a.SetExclude(cfg.Exclude)
	var findings []*analyzer.Finding
	for _, u := range universes {
		findings = append(findings, a.Check(u)...)
	}

	suppressed := 0
	store, err := openStore(opts, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "veq check: %v\n", err)
		return 2
	}
	if store != nil {
		defer store.Close()
		findings, suppressed, err = store.Filter(findings)
		if err != nil {
			fmt.Fprintf(stderr, "veq check: %v\n", err)
			return 2
		}
	}

	rep := report.New(strings.Join(targets, " "), mode, findings, suppressed)
	if store != nil {
		rec := baseline.RunRecord{
			ID:         rep.RunID,
			Source:     rep.Source,
			Provider:   rep.Provider,
			Findings:   len(rep.Findings),
			Suppressed: rep.Suppressed,
		}
		if err := store.RecordRun(rec); err != nil {
			fmt.Fprintf(stderr, "veq check: %v\n", err)
			return 2
		}
	}

	if opts.json {
		if err := report.RenderJSON(stdout, rep); err != nil {
			fmt.Fprintf(stderr, "veq check: %v\n", err)
			return 2
		}
	} else {
		report.RenderText(stdout, rep, report.ColorEnabled())
	}

	if !rep.Clean() {
		return 1
	}
	return 0
}

// detectMode derives the input kind from the target list. Targets may not
// mix kinds within one run.
func detectMode(targets []string) (string, error) {
	mode := ""
	for _, t := range targets {
		m := targetMode(t)
		if mode == "" {
			mode = m
		} else if m != mode {
			return "", fmt.Errorf("target %s mixes %s input into a %s run", t, m, mode)
		}
	}
	if mode == "" {
		mode = config.ProviderGo
	}
	return mode, nil
}

func targetMode(target string) string {
	ext := strings.ToLower(filepath.Ext(target))
	for _, snap := range config.SnapshotFileExtensions {
		if ext == snap {
			return config.ProviderSnapshot
		}
	}
	if ext == config.ProtoFileExt {
		return config.ProviderProto
	}
	return config.ProviderGo
}

func collectUniverses(stderr io.Writer, cfg *config.Config, mode string, targets []string) ([]*typeref.Universe, bool) {
	switch mode {
	case config.ProviderSnapshot:
		var out []*typeref.Universe
		ok := true
		for _, path := range targets {
			u, diags, err := snapshot.Load(path)
			if err != nil {
				fmt.Fprintf(stderr, "- %s\n", err)
				ok = false
				continue
			}
			if len(diags) > 0 {
				for _, d := range diags {
					fmt.Fprintf(stderr, "- %s\n", d.Error())
				}
				ok = false
				continue
			}
			out = append(out, u)
		}
		return out, ok

	case config.ProviderProto:
		u, err := protosrc.Load(cfg.ProtoImportPaths, targets...)
		if err != nil {
			fmt.Fprintf(stderr, "- %s\n", err)
			return nil, false
		}
		return []*typeref.Universe{u}, true

	default:
		ins := gosrc.NewInspector()
		if err := ins.Load(targets...); err != nil {
			fmt.Fprintf(stderr, "- %s\n", err)
			return nil, false
		}
		return []*typeref.Universe{ins.Universe()}, true
	}
}

// openStore decides whether baseline filtering applies. An explicit
// --baseline always opens the store, creating it if needed. The config
// path is used only when its database already exists, so a plain check
// never plants a database in a repository that has no baseline.
func openStore(opts checkOptions, cfg *config.Config) (*baseline.Store, error) {
	if opts.noBaseline {
		return nil, nil
	}
	path := opts.baseline
	if path == "" {
		path = cfg.Baseline
		if _, err := os.Stat(path); err != nil {
			return nil, nil
		}
	}
	return baseline.Open(path)
}

func storePath(opts checkOptions, cfg *config.Config) string {
	if opts.baseline != "" {
		return opts.baseline
	}
	return cfg.Baseline
}

// =============================================================================
// veq baseline
// =============================================================================

func handleBaseline() bool {
	if len(os.Args) < 2 || os.Args[1] != "baseline" {
		return false
	}
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s baseline <accept|list|clear> [target ...]\n", os.Args[0])
		os.Exit(2)
	}

	var code int
	switch os.Args[2] {
	case "accept":
		code = runBaselineAccept(os.Stdout, os.Stderr, os.Args[3:])
	case "list":
		code = runBaselineList(os.Stdout, os.Stderr, os.Args[3:])
	case "clear":
		code = runBaselineClear(os.Stdout, os.Stderr, os.Args[3:])
	default:
		fmt.Fprintf(os.Stderr, "veq baseline: unknown action %q\n", os.Args[2])
		os.Exit(2)
	}
	if code != 0 {
		os.Exit(code)
	}
	return true
}

func runBaselineAccept(stdout, stderr io.Writer, args []string) int {
	opts, targets, err := parseCheckArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline accept: %v\n", err)
		return 2
	}
	cfg, err := config.Resolve(opts.configPath, ".")
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline accept: %v\n", err)
		return 2
	}
	if len(targets) == 0 {
		targets = cfg.GoPackages
	}

	mode, err := detectMode(targets)
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline accept: %v\n", err)
		return 2
	}
	universes, ok := collectUniverses(stderr, cfg, mode, targets)
	if !ok {
		return 2
	}

	a := analyzer.New()
	a.SetExclude(cfg.Exclude)
	var findings []*analyzer.Finding
	for _, u := range universes {
		findings = append(findings, a.Check(u)...)
	}

	store, err := baseline.Open(storePath(opts, cfg))
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline accept: %v\n", err)
		return 2
	}
	defer store.Close()

	runID := uuid.NewString()
	accepted, err := store.Accept(findings, runID)
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline accept: %v\n", err)
		return 2
	}
	rec := baseline.RunRecord{
		ID:       runID,
		Source:   strings.Join(targets, " "),
		Provider: mode,
		Findings: len(findings),
	}
	if err := store.RecordRun(rec); err != nil {
		fmt.Fprintf(stderr, "veq baseline accept: %v\n", err)
		return 2
	}

	fmt.Fprintf(stdout, "accepted %d of %d finding(s) into %s\n", accepted, len(findings), store.Path())
	return 0
}

func runBaselineList(stdout, stderr io.Writer, args []string) int {
	opts, _, err := parseCheckArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline list: %v\n", err)
		return 2
	}
	cfg, err := config.Resolve(opts.configPath, ".")
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline list: %v\n", err)
		return 2
	}

	path := storePath(opts, cfg)
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintln(stdout, "baseline is empty")
			return 0
		}
	}
	store, err := baseline.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline list: %v\n", err)
		return 2
	}
	defer store.Close()

	entries, err := store.Accepted()
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline list: %v\n", err)
		return 2
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "baseline is empty")
		return 0
	}
	for _, e := range entries {
		fmt.Fprintf(stdout, "%s  %s.%s  %s\n", e.Fingerprint[:12], e.Unit, e.Member, e.Type)
	}
	fmt.Fprintf(stdout, "%d accepted finding(s)\n", len(entries))
	return 0
}

func runBaselineClear(stdout, stderr io.Writer, args []string) int {
	opts, _, err := parseCheckArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline clear: %v\n", err)
		return 2
	}
	cfg, err := config.Resolve(opts.configPath, ".")
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline clear: %v\n", err)
		return 2
	}

	path := storePath(opts, cfg)
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintln(stdout, "baseline is empty")
			return 0
		}
	}
	store, err := baseline.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline clear: %v\n", err)
		return 2
	}
	defer store.Close()

	cleared, err := store.Clear()
	if err != nil {
		fmt.Fprintf(stderr, "veq baseline clear: %v\n", err)
		return 2
	}
	fmt.Fprintf(stdout, "cleared %d accepted finding(s)\n", cleared)
	return 0
}

// =============================================================================
// veq serve
// =============================================================================

func handleServe() bool {
	if len(os.Args) < 2 || os.Args[1] != "serve" {
		return false
	}

	addr := config.DefaultServeAddr
	var opts checkOptions
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--addr":
			i++
			if i == len(args) {
				fmt.Fprintf(os.Stderr, "veq serve: --addr needs a listen address\n")
				os.Exit(2)
			}
			addr = args[i]
		case arg == "--no-baseline":
			opts.noBaseline = true
		case arg == "--baseline":
			i++
			if i == len(args) {
				fmt.Fprintf(os.Stderr, "veq serve: --baseline needs a database path\n")
				os.Exit(2)
			}
			opts.baseline = args[i]
		case arg == "--config":
			i++
			if i == len(args) {
				fmt.Fprintf(os.Stderr, "veq serve: --config needs a file path\n")
				os.Exit(2)
			}
			opts.configPath = args[i]
		default:
			fmt.Fprintf(os.Stderr, "veq serve: unknown argument %s\n", arg)
			os.Exit(2)
		}
	}

	cfg, err := config.Resolve(opts.configPath, ".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "veq serve: %v\n", err)
		os.Exit(2)
	}
	store, err := openStore(opts, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "veq serve: %v\n", err)
		os.Exit(2)
	}
	if store != nil {
		defer store.Close()
	}

	srv, err := service.NewServer(store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "veq serve: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "veq: listening on %s\n", addr)
	if err := srv.Serve(addr); err != nil {
		fmt.Fprintf(os.Stderr, "veq serve: %v\n", err)
		os.Exit(1)
	}
	return true
}

// =============================================================================
// veq version, veq help
// =============================================================================

func handleVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	if os.Args[1] != "version" && os.Args[1] != "--version" {
		return false
	}
	fmt.Printf("veq %s\n", Version)
	return true
}

func handleHelp() bool {
	if len(os.Args) >= 2 && os.Args[1] != "help" && os.Args[1] != "--help" && os.Args[1] != "-h" {
		return false
	}
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}
	printUsage(os.Stdout)
	return true
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `veq checks that types compared member by member stay value-like all
the way down.

Usage:

  veq check [flags] [target ...]

    Analyze targets and report members that break member-wise equality.
    Targets are snapshot documents (.yaml, .yml), protobuf definitions
    (.proto) or Go package patterns. With no target the configured Go
    packages are checked.

    --json             emit the report as JSON
    --baseline <db>    baseline database to filter findings through
    --no-baseline      report everything, even accepted findings
    --config <file>    use this config instead of discovering veq.yaml

  veq baseline accept [flags] [target ...]
                         record the current findings as accepted
  veq baseline list      show accepted findings
  veq baseline clear     drop every accepted finding

  veq serve [--addr %s] [flags]
                         expose checks over gRPC

  veq version            print the version
  veq help               print this help

Exit codes: 0 clean, 1 findings reported, 2 bad invocation or input.
`, config.DefaultServeAddr)
}
