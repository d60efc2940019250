// Package command models what to execute without executing anything.
//
// A Command is a discriminated union over four shapes: a direct
// executable invocation, a raw shell string, a script file, and a
// cloud-provider CLI convenience form that lowers to a direct
// invocation. Commands are immutable once constructed and validate
// as pure functions over their own fields.
package command

import (
	"os"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/seetharamtessell/opsexec/errors"
)

// Kind discriminates the Command union.
type Kind string

const (
	KindExec     Kind = "exec"     // program + argument list
	KindShell    Kind = "shell"    // raw string run through an interpreter
	KindScript   Kind = "script"   // script file, optionally via an interpreter
	KindProvider Kind = "provider" // cloud-CLI convenience form
)

// ExecSpec is a direct executable invocation.
type ExecSpec struct {
	Program string   `json:"program" yaml:"program"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
}

// ShellSpec is a raw command string run through a shell interpreter.
type ShellSpec struct {
	Command     string `json:"command" yaml:"command"`
	Interpreter string `json:"interpreter,omitempty" yaml:"interpreter,omitempty"` // default: sh
}

// ScriptSpec is a script file, optionally run through an interpreter.
// With no interpreter the file is executed directly and must be runnable
// by the OS.
type ScriptSpec struct {
	Path        string `json:"path" yaml:"path"`
	Interpreter string `json:"interpreter,omitempty" yaml:"interpreter,omitempty"`
}

// ProviderSpec is a cloud-CLI convenience form. Service names the CLI
// binary ("aws", "az", "gcloud"), Operation the subcommand, and the
// optional profile/region lower to the provider's standard flags.
type ProviderSpec struct {
	Service   string   `json:"service" yaml:"service"`
	Operation string   `json:"operation" yaml:"operation"`
	Args      []string `json:"args,omitempty" yaml:"args,omitempty"`
	Profile   string   `json:"profile,omitempty" yaml:"profile,omitempty"`
	Region    string   `json:"region,omitempty" yaml:"region,omitempty"`
}

// Command is the discriminated union. Exactly one variant field matching
// Kind is populated; Validate enforces this.
type Command struct {
	Kind     Kind          `json:"kind" yaml:"kind"`
	Exec     *ExecSpec     `json:"exec,omitempty" yaml:"exec,omitempty"`
	Shell    *ShellSpec    `json:"shell,omitempty" yaml:"shell,omitempty"`
	Script   *ScriptSpec   `json:"script,omitempty" yaml:"script,omitempty"`
	Provider *ProviderSpec `json:"provider,omitempty" yaml:"provider,omitempty"`
}

// NewExec builds a direct-exec command.
func NewExec(program string, args ...string) Command {
	return Command{Kind: KindExec, Exec: &ExecSpec{Program: program, Args: args}}
}

// NewShell builds a shell-string command. Empty interpreter defaults to sh.
func NewShell(cmd, interpreter string) Command {
	return Command{Kind: KindShell, Shell: &ShellSpec{Command: cmd, Interpreter: interpreter}}
}

// NewScript builds a script-file command.
func NewScript(path, interpreter string) Command {
	return Command{Kind: KindScript, Script: &ScriptSpec{Path: path, Interpreter: interpreter}}
}

// NewProvider builds a provider-CLI command.
func NewProvider(service, operation string, args []string, profile, region string) Command {
	return Command{Kind: KindProvider, Provider: &ProviderSpec{
		Service:   service,
		Operation: operation,
		Args:      args,
		Profile:   profile,
		Region:    region,
	}}
}

// supportedShells maps interpreter names to the flag that introduces an
// inline command string.
var supportedShells = map[string]string{
	"sh":         "-c",
	"bash":       "-c",
	"zsh":        "-c",
	"dash":       "-c",
	"pwsh":       "-Command",
	"powershell": "-Command",
}

// SupportedInterpreters returns the shell interpreter names accepted by
// shell-string commands, sorted for stable error messages.
func SupportedInterpreters() []string {
	names := make([]string, 0, len(supportedShells))
	for name := range supportedShells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the command without side effects. It enforces that
// exactly one variant matching Kind is populated and that the variant's
// required fields are usable.
func (c *Command) Validate() error {
	if err := c.checkUnion(); err != nil {
		return err
	}

	switch c.Kind {
	case KindExec:
		if c.Exec.Program == "" {
			return errors.NewValidationError("exec command requires a non-empty program")
		}

	case KindShell:
		if strings.TrimSpace(c.Shell.Command) == "" {
			return errors.NewValidationError("shell command requires non-empty command text")
		}
		if interp := c.Shell.Interpreter; interp != "" {
			if _, ok := supportedShells[interp]; !ok {
				return errors.NewValidationError("unsupported shell interpreter %q (supported: %s)",
					interp, strings.Join(SupportedInterpreters(), ", "))
			}
		}

	case KindScript:
		if c.Script.Path == "" {
			return errors.NewValidationError("script command requires a non-empty path")
		}
		info, err := os.Stat(c.Script.Path)
		if err != nil {
			return errors.NewValidationError("script path %s is not accessible: %v", c.Script.Path, err)
		}
		if info.IsDir() {
			return errors.NewValidationError("script path %s is a directory", c.Script.Path)
		}
		f, err := os.Open(c.Script.Path)
		if err != nil {
			return errors.NewValidationError("script path %s is not readable: %v", c.Script.Path, err)
		}
		f.Close()

	case KindProvider:
		if c.Provider.Service == "" {
			return errors.NewValidationError("provider command requires a non-empty service")
		}
		if c.Provider.Operation == "" {
			return errors.NewValidationError("provider command requires a non-empty operation")
		}

	default:
		return errors.NewValidationError("unknown command kind %q", c.Kind)
	}

	return nil
}

// checkUnion verifies exactly one variant is populated and that it
// matches Kind.
func (c *Command) checkUnion() error {
	populated := 0
	if c.Exec != nil {
		populated++
	}
	if c.Shell != nil {
		populated++
	}
	if c.Script != nil {
		populated++
	}
	if c.Provider != nil {
		populated++
	}
	if populated != 1 {
		return errors.NewValidationError("command must populate exactly one variant, got %d", populated)
	}

	match := map[Kind]bool{
		KindExec:     c.Exec != nil,
		KindShell:    c.Shell != nil,
		KindScript:   c.Script != nil,
		KindProvider: c.Provider != nil,
	}[c.Kind]
	if !match {
		return errors.NewValidationError("command kind %q does not match populated variant", c.Kind)
	}
	return nil
}

// Lower resolves the command to a concrete program and argument list.
// It assumes Validate has passed.
func (c *Command) Lower() (program string, args []string, err error) {
	switch c.Kind {
	case KindExec:
		return c.Exec.Program, c.Exec.Args, nil

	case KindShell:
		interp := c.Shell.Interpreter
		if interp == "" {
			interp = "sh"
		}
		flag, ok := supportedShells[interp]
		if !ok {
			return "", nil, errors.NewValidationError("unsupported shell interpreter %q", interp)
		}
		return interp, []string{flag, c.Shell.Command}, nil

	case KindScript:
		if c.Script.Interpreter != "" {
			return c.Script.Interpreter, []string{c.Script.Path}, nil
		}
		return c.Script.Path, nil, nil

	case KindProvider:
		ops, err := shellquote.Split(c.Provider.Operation)
		if err != nil {
			return "", nil, errors.NewValidationError("provider operation %q is not parseable: %v", c.Provider.Operation, err)
		}
		args := append(ops, c.Provider.Args...)
		if c.Provider.Profile != "" {
			args = append(args, "--profile", c.Provider.Profile)
		}
		if c.Provider.Region != "" {
			args = append(args, "--region", c.Provider.Region)
		}
		return c.Provider.Service, args, nil
	}

	return "", nil, errors.NewValidationError("unknown command kind %q", c.Kind)
}

// String renders the lowered invocation for display and logging,
// shell-quoted so it can be copy-pasted.
func (c *Command) String() string {
	program, args, err := c.Lower()
	if err != nil {
		return string(c.Kind) + " (invalid)"
	}
	return shellquote.Join(append([]string{program}, args...)...)
}

// MergedEnv overlays request environment variables onto a base
// environment (typically os.Environ()). Overlay keys win on collision.
func MergedEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}

	merged := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, shadowed := overlay[key]; !shadowed {
			merged = append(merged, kv)
		}
	}

	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+overlay[k])
	}
	return merged
}
