// Command scorecli is the command-line front end for the DSL evaluator and
// scoring engine. Subcommand dispatch is grounded on cmd/tinysql/main.go's
// flag-based subcommands; the eval REPL loop is grounded on cmd/repl/main.go's
// interactive-vs-redirected-stdin detection.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantkit/scoreengine/internal/config"
	"github.com/quantkit/scoreengine/internal/lang"
	"github.com/quantkit/scoreengine/internal/rpcserver"
	"github.com/quantkit/scoreengine/internal/schedule"
	"github.com/quantkit/scoreengine/internal/scoring"
	"github.com/quantkit/scoreengine/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "eval":
		err = runEval(os.Args[2:])
	case "score":
		err = runScore(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "scorecli: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: scorecli <eval|score|serve> [flags]")
}

// ---- eval --------------------------------------------------------------

func runEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ContinueOnError)
	envFile := fs.String("env", "", "path to a JSON file of {name: value} env bindings")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env := lang.NewEnvironment()
	if *envFile != "" {
		if err := loadJSONEnv(*envFile, env); err != nil {
			return err
		}
	}

	program := fs.Arg(0)
	if program != "" {
		return evalAndPrint(program, env)
	}
	return evalREPL(env)
}

func loadJSONEnv(path string, env *lang.Environment) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read env file: %w", err)
	}
	var bindings map[string]any
	if err := json.Unmarshal(raw, &bindings); err != nil {
		return fmt.Errorf("parse env file: %w", err)
	}
	for name, v := range bindings {
		lv, err := valueFromAny(v)
		if err != nil {
			return fmt.Errorf("env[%s]: %w", name, err)
		}
		env.Set(name, lv)
	}
	return nil
}

func valueFromAny(raw any) (lang.Value, error) {
	switch x := raw.(type) {
	case float64:
		return lang.Num(x), nil
	case bool:
		return lang.Bool(x), nil
	case []any:
		out := make(lang.NumSeries, len(x))
		for i, elem := range x {
			switch e := elem.(type) {
			case nil:
				out[i] = nil
			case float64:
				v := e
				out[i] = &v
			default:
				return nil, fmt.Errorf("unsupported series element type %T", elem)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", raw)
	}
}

func evalAndPrint(program string, env *lang.Environment) error {
	v, err := lang.EvalSource(program, env)
	if err != nil {
		return err
	}
	fmt.Println(formatValue(v))
	return nil
}

// evalREPL reads one program per line from stdin, evaluating each against a
// shared environment so assignments persist across lines. The prompt only
// appears when stdin is a terminal, to keep redirected-input output clean
// for scripting.
func evalREPL(env *lang.Environment) error {
	interactive := false
	if fi, err := os.Stdin.Stat(); err == nil {
		interactive = (fi.Mode() & os.ModeCharDevice) != 0
	}

	sc := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("dsl> ")
		}
		if !sc.Scan() {
			break
		}
		line := sc.Text()
		if line == "" {
			continue
		}
		if err := evalAndPrint(line, env); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return sc.Err()
}

func formatValue(v lang.Value) string {
	switch x := v.(type) {
	case lang.Num:
		return fmt.Sprintf("%v", float64(x))
	case lang.Bool:
		return fmt.Sprintf("%v", bool(x))
	case lang.NumSeries:
		out, _ := json.Marshal([]*float64(x))
		return string(out)
	case lang.BoolSeries:
		out, _ := json.Marshal([]bool(x))
		return string(out)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ---- score ---------------------------------------------------------------

func runScore(args []string) error {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	dbPath := fs.String("db", "scoreengine.db", "sqlite database path")
	rulesPath := fs.String("rules", "", "path to a rules YAML file (required)")
	indPath := fs.String("indicators", "", "path to an indicators YAML file (optional)")
	tsCode := fs.String("ts-code", "", "instrument code (required)")
	adjType := fs.String("adj-type", "qfq", "price adjustment type")
	startDate := fs.String("start", "00000000", "window start date (YYYYMMDD)")
	endDate := fs.String("end", "99999999", "window end date (YYYYMMDD)")
	persist := fs.Bool("persist", false, "write summary/detail rows back to the database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rulesPath == "" || *tsCode == "" {
		return fmt.Errorf("-rules and -ts-code are required")
	}

	store, engine, err := openEngine(*dbPath, *rulesPath)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := scoreOnce(store, engine, *indPath, *tsCode, *adjType, *startDate, *endDate)
	if err != nil {
		return err
	}

	if *persist {
		if err := store.WriteSummary(run); err != nil {
			return fmt.Errorf("persist summary: %w", err)
		}
		if err := store.WriteDetails(run); err != nil {
			return fmt.Errorf("persist details: %w", err)
		}
	}

	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func openEngine(dbPath, rulesPath string) (*storage.Store, *scoring.Engine, error) {
	store, err := storage.Open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, nil, err
	}

	rf, err := config.LoadRuleFile(rulesPath)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	rules, err := config.ToRules(rf.Rules)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	engine, err := scoring.NewEngine(rules)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, engine, nil
}

func scoreOnce(store *storage.Store, engine *scoring.Engine, indPath, tsCode, adjType, start, end string) (*scoring.Run, error) {
	dates, bound, err := store.LoadSeries(tsCode, adjType, start, end)
	if err != nil {
		return nil, err
	}
	env := lang.NewEnvironment()
	for name, v := range bound {
		env.Set(name, v)
	}

	if indPath != "" {
		inf, err := config.LoadIndicatorFile(indPath)
		if err != nil {
			return nil, err
		}
		if err := config.ApplyIndicators(inf.Indicators, env); err != nil {
			return nil, err
		}
	}

	return engine.Score(tsCode, dates, env)
}

// ---- serve -----------------------------------------------------------

// watchlistRescorer implements schedule.Rescorer, re-running every
// configured rule over a fixed set of instruments on each cron tick.
type watchlistRescorer struct {
	store     *storage.Store
	engine    *scoring.Engine
	indPath   string
	watchlist []string
	adjType   string
}

func (r *watchlistRescorer) Rescore(ctx context.Context) error {
	for _, tsCode := range r.watchlist {
		run, err := scoreOnce(r.store, r.engine, r.indPath, tsCode, r.adjType, "00000000", "99999999")
		if err != nil {
			return fmt.Errorf("rescore %s: %w", tsCode, err)
		}
		if err := r.store.WriteSummary(run); err != nil {
			return fmt.Errorf("persist summary for %s: %w", tsCode, err)
		}
		if err := r.store.WriteDetails(run); err != nil {
			return fmt.Errorf("persist details for %s: %w", tsCode, err)
		}
	}
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	dbPath := fs.String("db", "scoreengine.db", "sqlite database path")
	rulesPath := fs.String("rules", "", "path to a rules YAML file (required)")
	indPath := fs.String("indicators", "", "path to an indicators YAML file (optional)")
	adjType := fs.String("adj-type", "qfq", "price adjustment type")
	watchlist := fs.String("watchlist", "", "comma-separated ts_codes to rescore on each cron tick")
	cronSpec := fs.String("cron", "", "cron expression for periodic rescoring (empty to disable)")
	grpcAddr := fs.String("grpc", ":9090", "gRPC listen address (empty to disable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rulesPath == "" {
		return fmt.Errorf("-rules is required")
	}

	store, engine, err := openEngine(*dbPath, *rulesPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if *cronSpec != "" {
		rescorer := &watchlistRescorer{
			store:     store,
			engine:    engine,
			indPath:   *indPath,
			adjType:   *adjType,
			watchlist: splitNonEmpty(*watchlist),
		}
		sched := schedule.New(rescorer)
		if err := sched.AddCronJob(*cronSpec); err != nil {
			return fmt.Errorf("invalid -cron expression: %w", err)
		}
		sched.Start()
		defer sched.Stop()
		log.Printf("scheduler running with cron spec %q", *cronSpec)
	}

	if *grpcAddr == "" {
		waitForSignal()
		return nil
	}

	srv := rpcserver.NewServer(store, engine)
	log.Printf("gRPC listening on %s", *grpcAddr)
	return rpcserver.ListenAndServe(*grpcAddr, srv)
}

func splitNonEmpty(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, csv[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func waitForSignal() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}
