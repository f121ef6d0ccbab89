package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/hurttlocker/timeline/internal/config"
	"github.com/hurttlocker/timeline/internal/connect"
	"github.com/hurttlocker/timeline/internal/extract"
	"github.com/hurttlocker/timeline/internal/logger"
	timelinemcp "github.com/hurttlocker/timeline/internal/mcp"
	"github.com/hurttlocker/timeline/internal/schedule"
	"github.com/hurttlocker/timeline/internal/store"
	"github.com/hurttlocker/timeline/internal/timeline"
)

const version = "0.1.0-dev"

// Global flags, stripped from the command line before dispatch.
var (
	globalDBPath     string
	globalConfigPath string
	globalLogLevel   string
	globalVerbose    bool
)

func main() {
	args := parseGlobalFlags(os.Args[1:])
	if len(args) == 0 {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	if err := run(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches one command, writing its output to out.
func run(args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "classify":
		return runClassify(rest, os.Stdin, out)
	case "import":
		return runImport(rest, out)
	case "show":
		return runShow(rest, out)
	case "list":
		return runList(rest, out)
	case "search":
		return runSearch(rest, out)
	case "stats":
		return runStats(rest, out)
	case "connect":
		return runConnect(rest, out)
	case "config":
		return runConfig(rest, out)
	case "mcp":
		return runMCP(rest)
	case "version", "--version", "-v":
		fmt.Fprintf(out, "timeline %s\n", version)
		return nil
	case "help", "--help", "-h":
		printUsage(out)
		return nil
	}
	printUsage(os.Stderr)
	return fmt.Errorf("unknown command: %s", cmd)
}

// parseGlobalFlags consumes --db, --config, --log-level and --verbose from
// the front of args and returns the command and its arguments. Flags after
// the command belong to the command.
func parseGlobalFlags(args []string) []string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--verbose":
			globalVerbose = true
		case arg == "--db" && i+1 < len(args):
			i++
			globalDBPath = args[i]
		case strings.HasPrefix(arg, "--db="):
			globalDBPath = strings.TrimPrefix(arg, "--db=")
		case arg == "--config" && i+1 < len(args):
			i++
			globalConfigPath = args[i]
		case strings.HasPrefix(arg, "--config="):
			globalConfigPath = strings.TrimPrefix(arg, "--config=")
		case arg == "--log-level" && i+1 < len(args):
			i++
			globalLogLevel = args[i]
		case strings.HasPrefix(arg, "--log-level="):
			globalLogLevel = strings.TrimPrefix(arg, "--log-level=")
		default:
			return args[i:]
		}
	}
	return nil
}

func resolveConfig() (config.ResolvedConfig, error) {
	level := globalLogLevel
	if globalVerbose && level == "" {
		level = "debug"
	}
	return config.ResolveConfig(config.ResolveOptions{
		ConfigPath: globalConfigPath,
		CLIDBPath:  globalDBPath,
		CLILevel:   level,
	})
}

// env bundles what the store-backed commands need.
type env struct {
	cfg     config.ResolvedConfig
	log     zerolog.Logger
	logFile io.Closer
	store   store.Store
}

func openEnv() (*env, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	log, logFile, err := logger.NewWithFile("timeline", cfg.LogLevel.Value, cfg.LogFile.Value)
	if err != nil {
		return nil, err
	}
	s, err := store.NewStore(store.StoreConfig{DBPath: cfg.DBPath.Value})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return &env{
		cfg:     cfg,
		log:     log,
		logFile: logFile,
		store:   s,
	}, nil
}

func (e *env) Close() error {
	err := e.store.Close()
	e.logFile.Close()
	return err
}

func (e *env) connectorStore() (*connect.ConnectorStore, error) {
	sqlStore, ok := e.store.(*store.SQLiteStore)
	if !ok {
		return nil, errors.New("connectors require the SQLite store")
	}
	return connect.NewConnectorStore(sqlStore.GetDB()), nil
}

// defaultSource is the configured tag for posts that carry none.
func (e *env) defaultSource() (extract.SourceTag, error) {
	return extract.ParseSourceTag(e.cfg.DefaultSource.Value)
}

// cmdFlags holds the per-command flags shared across commands.
type cmdFlags struct {
	source   string
	limit    int
	json     bool
	config   string
	schedule string
	args     []string
}

func parseCmdFlags(args []string) (cmdFlags, error) {
	var f cmdFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--json":
			f.json = true
		case arg == "--source" || arg == "--limit" || arg == "--config" || arg == "--schedule":
			if i+1 >= len(args) {
				return f, fmt.Errorf("%s requires a value", arg)
			}
			i++
			if err := f.set(arg[2:], args[i]); err != nil {
				return f, err
			}
		case strings.HasPrefix(arg, "--") && strings.Contains(arg, "="):
			kv := strings.SplitN(arg[2:], "=", 2)
			if err := f.set(kv[0], kv[1]); err != nil {
				return f, err
			}
		case arg == "-":
			f.args = append(f.args, arg)
		case strings.HasPrefix(arg, "-"):
			return f, fmt.Errorf("unknown flag: %s", arg)
		default:
			f.args = append(f.args, arg)
		}
	}
	return f, nil
}

func (f *cmdFlags) set(name, value string) error {
	switch name {
	case "source":
		f.source = value
	case "config":
		f.config = value
	case "schedule":
		f.schedule = value
	case "limit":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid --limit %q", value)
		}
		f.limit = n
	default:
		return fmt.Errorf("unknown flag: --%s", name)
	}
	return nil
}

func runClassify(args []string, stdin io.Reader, out io.Writer) error {
	f, err := parseCmdFlags(args)
	if err != nil {
		return err
	}
	if len(f.args) == 0 {
		return fmt.Errorf("usage: timeline classify <text|-> [--source s] [--json]")
	}

	text := strings.Join(f.args, " ")
	if text == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		text = string(b)
	}

	hint, err := extract.ParseSourceTag(f.source)
	if err != nil {
		return err
	}

	result := extract.Classify(text, hint)
	if f.json {
		return writeJSON(out, result)
	}
	fmt.Fprint(out, formatResult(result))
	return nil
}

func runImport(args []string, out io.Writer) error {
	f, err := parseCmdFlags(args)
	if err != nil {
		return err
	}
	if len(f.args) == 0 {
		return fmt.Errorf("usage: timeline import <file> [--source s] [--json]")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	source, err := e.defaultSource()
	if err != nil {
		return err
	}
	if f.source != "" {
		if source, err = extract.ParseSourceTag(f.source); err != nil {
			return err
		}
	}

	engine := connect.NewSyncEngine(connect.DefaultRegistry, nil, e.store, e.log)
	ctx := context.Background()

	var results []connect.SyncResult
	for _, path := range f.args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		records, err := connect.ParseExport(data, path, source)
		if err != nil {
			return err
		}
		results = append(results, engine.Import(ctx, "export", records))
	}

	if f.json {
		return writeJSON(out, results)
	}
	for i, r := range results {
		fmt.Fprintf(out, "Imported %s\n", f.args[i])
		fmt.Fprint(out, formatSyncResult(r))
	}
	return nil
}

func runShow(args []string, out io.Writer) error {
	f, err := parseCmdFlags(args)
	if err != nil {
		return err
	}
	if len(f.args) != 1 {
		return fmt.Errorf("usage: timeline show <id> [--json]")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	entry, err := timeline.New(e.store).Get(context.Background(), f.args[0])
	if err != nil {
		return err
	}
	if f.json {
		return writeJSON(out, entry)
	}
	fmt.Fprint(out, formatEntry(entry))
	fmt.Fprintf(out, "\n%s\n", entry.Post.Text)
	return nil
}

func runList(args []string, out io.Writer) error {
	f, err := parseCmdFlags(args)
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	entries, err := timeline.New(e.store).Recent(context.Background(), f.limit, f.source)
	if err != nil {
		return err
	}
	return writeEntries(out, entries, f.json)
}

func runSearch(args []string, out io.Writer) error {
	f, err := parseCmdFlags(args)
	if err != nil {
		return err
	}
	if len(f.args) == 0 {
		return fmt.Errorf("usage: timeline search <query> [--limit n] [--json]")
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	entries, err := timeline.New(e.store).Search(context.Background(), strings.Join(f.args, " "), f.limit)
	if err != nil {
		return err
	}
	return writeEntries(out, entries, f.json)
}

func runStats(args []string, out io.Writer) error {
	f, err := parseCmdFlags(args)
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return err
	}
	breakdown, err := timeline.New(e.store).Breakdown(ctx)
	if err != nil {
		return err
	}

	if f.json {
		return writeJSON(out, map[string]interface{}{
			"posts":           stats.PostCount,
			"posts_by_source": stats.PostsBySource,
			"connectors":      stats.ConnectorCount,
			"db_size_bytes":   stats.DBSizeBytes,
			"classification":  breakdown,
		})
	}
	fmt.Fprint(out, formatStats(stats, breakdown))
	return nil
}

func runConnect(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: timeline connect <list|add|sync|watch|remove|providers>")
	}
	sub := args[0]
	f, err := parseCmdFlags(args[1:])
	if err != nil {
		return err
	}

	if sub == "providers" {
		for _, name := range connect.DefaultRegistry.List() {
			p := connect.DefaultRegistry.Get(name)
			fmt.Fprintf(out, "%-10s %s\n", name, p.DisplayName())
		}
		return nil
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	cs, err := e.connectorStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch sub {
	case "list":
		connectors, err := cs.List(ctx, false)
		if err != nil {
			return err
		}
		if f.json {
			return writeJSON(out, connectors)
		}
		if len(connectors) == 0 {
			fmt.Fprintln(out, "No connectors configured. Use 'timeline connect add <provider>' to set one up.")
			return nil
		}
		for _, c := range connectors {
			fmt.Fprint(out, formatConnector(c))
		}
		return nil

	case "add":
		if len(f.args) != 1 {
			return fmt.Errorf("usage: timeline connect add <provider> [--config json]")
		}
		name := f.args[0]
		provider := connect.DefaultRegistry.Get(name)
		if provider == nil {
			return fmt.Errorf("unknown provider %q (available: %s)", name, strings.Join(connect.DefaultRegistry.List(), ", "))
		}

		cfgJSON := json.RawMessage(f.config)
		if f.config == "" {
			if fromFile, ok := e.cfg.Connectors[name]; ok {
				cfgJSON = json.RawMessage(fromFile)
			} else {
				cfgJSON = provider.DefaultConfig()
			}
		}
		if err := provider.ValidateConfig(cfgJSON); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		id, err := cs.Add(ctx, name, cfgJSON)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Connector %q added (id: %d). Run 'timeline connect sync %s' to import.\n", name, id, name)
		return nil

	case "sync":
		engine := connect.NewSyncEngine(connect.DefaultRegistry, cs, e.store, e.log)
		var results []connect.SyncResult
		if len(f.args) > 0 {
			r, err := engine.SyncProvider(ctx, f.args[0])
			if err != nil {
				return err
			}
			results = append(results, r)
		} else {
			if results, err = engine.SyncAll(ctx); err != nil {
				return err
			}
		}
		if f.json {
			return writeJSON(out, results)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No enabled connectors to sync.")
		}
		for _, r := range results {
			fmt.Fprint(out, formatSyncResult(r))
		}
		return nil

	case "watch":
		spec := f.schedule
		if spec == "" {
			spec = e.cfg.SyncSchedule.Value
		}
		if spec == "" {
			return fmt.Errorf("usage: timeline connect watch --schedule <cron spec> (or set sync_schedule in the config file)")
		}
		engine := connect.NewSyncEngine(connect.DefaultRegistry, cs, e.store, e.log)
		sched := schedule.New(e.log)
		if err := sched.Add(syncJobName, spec, syncJob(engine, out)); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(out, "Syncing enabled connectors on schedule %q. Press Ctrl-C to stop.\n", spec)
		if err := sched.RunNow(ctx, syncJobName); err != nil {
			return err
		}
		sched.Start()
		<-ctx.Done()
		<-sched.Stop().Done()
		return nil

	case "remove":
		if len(f.args) != 1 {
			return fmt.Errorf("usage: timeline connect remove <provider>")
		}
		if err := cs.Remove(ctx, f.args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Connector %q removed. Imported posts were kept.\n", f.args[0])
		return nil
	}
	return fmt.Errorf("unknown connect subcommand: %s", sub)
}

const syncJobName = "connector-sync"

// syncJob syncs every enabled connector and reports each result to out.
func syncJob(engine *connect.SyncEngine, out io.Writer) schedule.Job {
	return func(ctx context.Context) error {
		results, err := engine.SyncAll(ctx)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Fprint(out, formatSyncResult(r))
		}
		return nil
	}
}

func runConfig(args []string, out io.Writer) error {
	f, err := parseCmdFlags(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	if f.json {
		return writeJSON(out, cfg)
	}
	fmt.Fprintf(out, "config file:    %s\n", cfg.ConfigPath)
	for _, row := range []struct {
		name string
		v    config.ResolvedValue
	}{
		{"db_path", cfg.DBPath},
		{"log_level", cfg.LogLevel},
		{"log_file", cfg.LogFile},
		{"default_source", cfg.DefaultSource},
		{"sync_schedule", cfg.SyncSchedule},
	} {
		fmt.Fprintf(out, "%-15s %s (%s)\n", row.name+":", row.v.Value, row.v.Source)
	}
	return nil
}

func runMCP(args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	source, err := e.defaultSource()
	if err != nil {
		return err
	}
	return timelinemcp.ServeStdio(timelinemcp.ServerConfig{
		Store:         e.store,
		Version:       version,
		Logger:        e.log,
		DefaultSource: source,
		SyncSchedule:  e.cfg.SyncSchedule.Value,
	})
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func writeEntries(out io.Writer, entries []timeline.Entry, asJSON bool) error {
	if asJSON {
		if entries == nil {
			entries = []timeline.Entry{}
		}
		return writeJSON(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No posts.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprint(out, formatEntry(e))
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `timeline %s: health timeline from social posts

Usage:
  timeline [global flags] <command> [arguments]

Global flags must come before the command.

Commands:
  classify <text|->       Classify post text (use - to read stdin)
  import <file>...        Import posts from JSON or YAML export files
  show <id>               Show one stored post and its classification
  list                    List the newest posts
  search <query>          Find posts containing query
  stats                   Post counts and classification breakdown
  connect <sub>           Manage connectors: providers, list, add, sync, watch, remove
  config                  Show resolved configuration and where each value came from
  mcp                     Serve the MCP tools over stdio
  version                 Print version

Command Flags:
  --source <tag>          Source tag: generic-social, fitbit, googlefit, unspecified-health
  --limit <n>             Maximum results for list and search
  --config <json>         Connector config for 'connect add'
  --schedule <spec>       Cron schedule for 'connect watch' (e.g. "*/30 * * * *", "@every 1h")
  --json                  Machine-readable output

Global Flags:
  --db <path>             Database path (default: %s)
  --config <path>         Config file (default: ~/.timeline/config.yaml)
  --log-level <level>     debug, info, warn, error
  --verbose               Same as --log-level debug
  -h, --help              Show this help message
`, version, store.DefaultDBPath)
}
