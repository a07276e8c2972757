package commands

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Action is the body of a command. opts holds one entry per declared Option,
// keyed by the camel-cased long flag name.
type Action func(ctx context.Context, args []string, opts map[string]interface{}) error

// Option declares a flag in commander syntax, e.g. "-f, --force" or
// "-o, --output <path>"
type Option struct {
	Flags       string      `json:"flags" yaml:"flags"`
	Description string      `json:"description" yaml:"description"`
	Default     interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// Command describes one CLI command contributed by the host or a plugin
type Command struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Options     []Option `json:"options,omitempty" yaml:"options,omitempty"`
	Hidden      bool     `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Action      Action   `json:"-" yaml:"-"`
}

// Summary is the help-text view of a command
type Summary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases,omitempty"`
}

// Validate checks the command has the shape the registry requires
func (c *Command) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCommand)
	}
	if strings.ContainsAny(c.Name, " \t\n") {
		return fmt.Errorf("%w: name %q contains whitespace", ErrInvalidCommand, c.Name)
	}
	if c.Description == "" {
		return fmt.Errorf("%w: %s: description is required", ErrInvalidCommand, c.Name)
	}
	if c.Action == nil {
		return fmt.Errorf("%w: %s: action is required", ErrInvalidCommand, c.Name)
	}
	for _, opt := range c.Options {
		if _, err := parseFlags(opt.Flags); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidCommand, c.Name, err)
		}
	}
	return nil
}

// AsCommand reports whether v structurally satisfies the command contract
func AsCommand(v interface{}) (*Command, bool) {
	var cmd *Command
	switch c := v.(type) {
	case *Command:
		cmd = c
	case Command:
		cmd = &c
	default:
		return nil, false
	}
	if cmd.Validate() != nil {
		return nil, false
	}
	return cmd, true
}

type flagSpec struct {
	Short    string
	Long     string
	TakesArg bool
}

// flagName is the long name the flag is bound under. A short-only
// declaration keeps its letter as the shorthand and reuses it as the long name.
func (f flagSpec) flagName() string {
	if f.Long == "" {
		return f.Short
	}
	return f.Long
}

// Key is the name under which the option value is passed to the action
func (f flagSpec) Key() string {
	name := f.Long
	if name == "" {
		name = f.Short
	}
	parts := strings.Split(name, "-")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

var (
	shortFlagPattern = regexp.MustCompile(`^-([a-zA-Z0-9])$`)
	longFlagPattern  = regexp.MustCompile(`^--([a-zA-Z0-9][a-zA-Z0-9-]*)$`)
	argPattern       = regexp.MustCompile(`^(<[^>]+>|\[[^\]]+\])$`)
)

// parseFlags parses "-f, --force <value>" style flag declarations
func parseFlags(flags string) (flagSpec, error) {
	var spec flagSpec
	fields := strings.FieldsFunc(flags, func(r rune) bool {
		return r == ',' || r == ' ' || r == '|'
	})
	for _, field := range fields {
		switch {
		case shortFlagPattern.MatchString(field):
			spec.Short = shortFlagPattern.FindStringSubmatch(field)[1]
		case longFlagPattern.MatchString(field):
			spec.Long = longFlagPattern.FindStringSubmatch(field)[1]
		case argPattern.MatchString(field):
			spec.TakesArg = true
		default:
			return flagSpec{}, fmt.Errorf("invalid flag declaration %q", flags)
		}
	}
	if spec.Short == "" && spec.Long == "" {
		return flagSpec{}, fmt.Errorf("flag declaration %q names no flag", flags)
	}
	return spec, nil
}
