package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/seetharamtessell/opsexec/config"
	"github.com/seetharamtessell/opsexec/engine"
	"github.com/seetharamtessell/opsexec/logstore"
)

// Shared flags for the execution commands.
var (
	flagTimeout string
	flagEnv     []string
	flagWorkDir string
	flagJSON    bool
)

func addExecutionFlags(fs *pflag.FlagSet) {
	fs.StringVar(&flagTimeout, "timeout", "", "execution timeout (e.g. 30s, 5m); default from config")
	fs.StringArrayVar(&flagEnv, "env", nil, "environment variable KEY=VALUE (repeatable)")
	fs.StringVar(&flagWorkDir, "workdir", "", "working directory for the process")
	fs.BoolVar(&flagJSON, "json", false, "print the result as JSON")
}

// newEngine builds an orchestrator from the loaded configuration.
func newEngine() (*engine.Orchestrator, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logs, err := logstore.New(cfg.Logs.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log store: %w", err)
	}
	orch := engine.New(logs, engine.Options{
		DefaultTimeout: time.Duration(cfg.Engine.DefaultTimeoutSeconds) * time.Second,
		MaxTimeout:     time.Duration(cfg.Engine.MaxTimeoutSeconds) * time.Second,
		MaxConcurrent:  cfg.Engine.MaxConcurrent,
		MaxOutputBytes: cfg.Engine.MaxOutputBytes,
		RatePerMinute:  cfg.Engine.RatePerMinute,
	})
	return orch, cfg, nil
}

// parseEnvFlags turns repeated KEY=VALUE flags into an overlay map.
func parseEnvFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --env %q, expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}

// buildRequest overlays the shared flags onto a base request.
func buildRequest(req engine.Request) (engine.Request, error) {
	env, err := parseEnvFlags(flagEnv)
	if err != nil {
		return engine.Request{}, err
	}
	req.Env = env
	req.WorkDir = flagWorkDir
	req.Source = "cli"
	if flagTimeout != "" {
		d, err := time.ParseDuration(flagTimeout)
		if err != nil {
			return engine.Request{}, fmt.Errorf("invalid --timeout %q: %w", flagTimeout, err)
		}
		req.TimeoutMS = d.Milliseconds()
	}
	return req, nil
}

// runForeground executes one request, streaming its output live, and
// returns the process exit code. An interrupt cancels the execution
// instead of orphaning the process.
func runForeground(orch *engine.Orchestrator, req engine.Request) (int, error) {
	if !flagJSON {
		orch.Notifier().Register(engine.ObserverFunc(func(e engine.Event) {
			switch e.Type {
			case engine.EventStdout:
				fmt.Println(e.Line)
			case engine.EventStderr:
				fmt.Fprintln(os.Stderr, e.Line)
			}
		}))
	}

	id, err := orch.Execute(req)
	if err != nil {
		return 1, err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		orch.Cancel(id)
	}()

	res, err := orch.Wait(context.Background(), id)
	if err != nil {
		return 1, err
	}

	if flagJSON {
		printJSON(res)
	} else {
		printResultSummary(res)
	}

	if res.Status == engine.StatusCompleted {
		return 0, nil
	}
	if res.ExitCode > 0 {
		return res.ExitCode, nil
	}
	return 1, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func printResultSummary(res *engine.Result) {
	switch res.Status {
	case engine.StatusCompleted:
		pterm.Success.Printfln("completed in %s", time.Duration(res.DurationMS)*time.Millisecond)
	case engine.StatusTimeout:
		pterm.Error.Printfln("timed out after %s", time.Duration(res.DurationMS)*time.Millisecond)
	case engine.StatusCancelled:
		pterm.Warning.Printfln("cancelled (%s)", res.CancelReason)
	default:
		pterm.Error.Printfln("failed with exit code %d: %s", res.ExitCode, res.Error)
	}
	if res.LogPath != "" {
		pterm.Debug.Printfln("log: %s", res.LogPath)
	}
}

func statusStyled(s engine.Status) string {
	switch s {
	case engine.StatusCompleted:
		return pterm.Green(string(s))
	case engine.StatusRunning:
		return pterm.Cyan(string(s))
	case engine.StatusPending:
		return pterm.Gray(string(s))
	case engine.StatusCancelled:
		return pterm.Yellow(string(s))
	default:
		return pterm.Red(string(s))
	}
}
