package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/observability"
)

// CommandFilePattern matches command modules inside a commands directory
const CommandFilePattern = "*.command.*"

// Exports is the set of values a module exports, keyed by export name
type Exports map[string]interface{}

// Importer resolves a module file into its exports
type Importer interface {
	Import(ctx context.Context, path string) (Exports, error)
}

// Registry owns the registered commands and binds them into a cobra tree
type Registry struct {
	root     *cobra.Command
	importer Importer
	exitFunc func(int)
	log      *logrus.Logger
	metrics  *observability.Metrics

	mu       sync.RWMutex
	commands map[string]*Command
	bound    map[string]*cobra.Command
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithLogger sets the registry logger
func WithLogger(log *logrus.Logger) RegistryOption {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithImporter sets the module importer used by Discover
func WithImporter(importer Importer) RegistryOption {
	return func(r *Registry) {
		r.importer = importer
	}
}

// WithExitFunc replaces os.Exit for failed command actions
func WithExitFunc(exit func(int)) RegistryOption {
	return func(r *Registry) {
		if exit != nil {
			r.exitFunc = exit
		}
	}
}

// WithMetrics records command metrics
func WithMetrics(m *observability.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates a command registry bound to root. A nil root keeps
// commands available for programmatic Execute only.
func NewRegistry(root *cobra.Command, opts ...RegistryOption) *Registry {
	r := &Registry{
		root:     root,
		exitFunc: os.Exit,
		log:      logrus.New(),
		commands: make(map[string]*Command),
		bound:    make(map[string]*cobra.Command),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the cobra command the registry binds into
func (r *Registry) Root() *cobra.Command {
	return r.root
}

// Register adds cmd, replacing a same-named command with a warning
func (r *Registry) Register(cmd *Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shadowsBuiltin(cmd.Name) {
		r.log.WithField("command", cmd.Name).Warn("Command name clashes with a built-in command, skipping")
		return fmt.Errorf("%w: %s", ErrBuiltinCommand, cmd.Name)
	}

	if _, exists := r.commands[cmd.Name]; exists {
		r.log.WithField("command", cmd.Name).Warn("Command already registered, overwriting")
	}
	r.commands[cmd.Name] = cmd

	if r.root != nil {
		if old, ok := r.bound[cmd.Name]; ok {
			r.root.RemoveCommand(old)
		}
		bound, err := r.bind(cmd)
		if err != nil {
			delete(r.commands, cmd.Name)
			return err
		}
		r.root.AddCommand(bound)
		r.bound[cmd.Name] = bound
	}

	if r.metrics != nil {
		r.metrics.CommandsRegistered.Set(float64(len(r.commands)))
	}
	r.log.WithField("command", cmd.Name).Debug("Registered command")
	return nil
}

// Unregister removes the named command and its cobra binding
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[name]; !exists {
		return false
	}
	delete(r.commands, name)
	if bound, ok := r.bound[name]; ok {
		r.root.RemoveCommand(bound)
		delete(r.bound, name)
	}
	if r.metrics != nil {
		r.metrics.CommandsRegistered.Set(float64(len(r.commands)))
	}
	return true
}

// shadowsBuiltin reports whether a root child not bound by this registry
// already answers to name. Callers hold r.mu.
func (r *Registry) shadowsBuiltin(name string) bool {
	if r.root == nil {
		return false
	}
	for _, child := range r.root.Commands() {
		if child == r.bound[child.Name()] {
			continue
		}
		if child.Name() == name || child.HasAlias(name) {
			return true
		}
	}
	return false
}

// Get retrieves a command by name
func (r *Registry) Get(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, ok := r.commands[name]
	return cmd, ok
}

// Commands returns a copy of the name to command map
func (r *Registry) Commands() map[string]*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Command, len(r.commands))
	for name, cmd := range r.commands {
		out[name] = cmd
	}
	return out
}

// List returns the non-hidden commands sorted by name
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.commands))
	for _, cmd := range r.commands {
		if cmd.Hidden {
			continue
		}
		out = append(out, Summary{
			Name:        cmd.Name,
			Description: cmd.Description,
			Aliases:     append([]string(nil), cmd.Aliases...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs a registered command programmatically. Action errors are
// returned to the caller.
func (r *Registry) Execute(ctx context.Context, name string, args []string, opts map[string]interface{}) error {
	cmd, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	if opts == nil {
		opts = make(map[string]interface{})
	}
	err := cmd.Action(ctx, args, opts)
	r.metrics.RecordCommandRun(name, err)
	return err
}

// Discover imports every command module in dirs and registers the valid ones.
// Missing directories and invalid modules are logged and skipped. It returns
// the names registered.
func (r *Registry) Discover(ctx context.Context, dirs []string) []string {
	var registered []string

	if r.importer == nil {
		r.log.Warn("No module importer configured, skipping command discovery")
		return registered
	}

	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(dir), CommandFilePattern)
		if err != nil {
			r.log.WithError(err).WithField("dir", dir).Warn("Failed to list command modules")
			continue
		}
		sort.Strings(matches)

		for _, match := range matches {
			path := filepath.Join(dir, match)
			name, err := r.registerModule(ctx, path)
			if err != nil {
				r.log.WithError(err).WithField("file", path).Warn("Skipping command module")
				continue
			}
			registered = append(registered, name)
		}
	}

	return registered
}

func (r *Registry) registerModule(ctx context.Context, path string) (string, error) {
	exports, err := r.importer.Import(ctx, path)
	if err != nil {
		return "", fmt.Errorf("import: %w", err)
	}

	candidate, ok := exports["default"]
	if !ok || candidate == nil {
		candidate = exports["command"]
	}
	cmd, ok := AsCommand(candidate)
	if !ok {
		return "", fmt.Errorf("%w: module exports no valid command", ErrInvalidCommand)
	}
	if err := r.Register(cmd); err != nil {
		return "", err
	}
	return cmd.Name, nil
}

// bind converts cmd into a cobra command whose RunE exits the process on error
func (r *Registry) bind(cmd *Command) (*cobra.Command, error) {
	specs := make([]flagSpec, len(cmd.Options))
	for i, opt := range cmd.Options {
		spec, err := parseFlags(opt.Flags)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCommand, cmd.Name, err)
		}
		specs[i] = spec
	}

	bound := &cobra.Command{
		Use:     cmd.Name,
		Short:   cmd.Description,
		Aliases: append([]string(nil), cmd.Aliases...),
		Hidden:  cmd.Hidden,
	}

	for i, opt := range cmd.Options {
		spec := specs[i]
		if spec.TakesArg {
			def := ""
			if opt.Default != nil {
				def = fmt.Sprint(opt.Default)
			}
			bound.Flags().StringP(spec.flagName(), spec.Short, def, opt.Description)
		} else {
			def, _ := opt.Default.(bool)
			bound.Flags().BoolP(spec.flagName(), spec.Short, def, opt.Description)
		}
	}

	action := cmd.Action
	name := cmd.Name
	bound.RunE = func(c *cobra.Command, args []string) error {
		opts := make(map[string]interface{}, len(specs))
		for _, spec := range specs {
			if spec.TakesArg {
				v, _ := c.Flags().GetString(spec.flagName())
				opts[spec.Key()] = v
			} else {
				v, _ := c.Flags().GetBool(spec.flagName())
				opts[spec.Key()] = v
			}
		}

		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		err := action(ctx, args, opts)
		r.metrics.RecordCommandRun(name, err)
		if err != nil {
			r.log.WithError(err).WithField("command", name).Error("Command failed")
			r.exitFunc(1)
			return err
		}
		return nil
	}

	return bound, nil
}
