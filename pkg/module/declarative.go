package module

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/commands"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/extension"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/module/lua"
)

// maxDeclarativeSize caps declarative module files
const maxDeclarativeSize = 256 * 1024

// declarativeModule is the document form of a module (.yaml, .yml, .json)
type declarativeModule struct {
	Default          *declarativeCommand    `yaml:"default"`
	Command          *declarativeCommand    `yaml:"command"`
	Commands         []declarativeCommand   `yaml:"commands"`
	Processors       []declarativeProcessor `yaml:"processors"`
	Validators       []declarativeValidator `yaml:"validators"`
	ContextProviders []declarativeProvider  `yaml:"contextProviders"`
	FileGenerators   []declarativeGenerator `yaml:"fileGenerators"`
}

type declarativeCommand struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Aliases     []string          `yaml:"aliases"`
	Options     []commands.Option `yaml:"options"`
	Hidden      bool              `yaml:"hidden"`
	Exec        []string          `yaml:"exec"`
	Message     string            `yaml:"message"`
}

type declarativeProcessor struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Priority    int    `yaml:"priority"`
	Kind        string `yaml:"kind"`
	Find        string `yaml:"find"`
	Regex       bool   `yaml:"regex"`
	With        string `yaml:"with"`
	Text        string `yaml:"text"`
}

type declarativeValidator struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Required    []string `yaml:"required"`
	Forbidden   []string `yaml:"forbidden"`
	MaxLength   int      `yaml:"maxLength"`
}

type declarativeProvider struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Priority    int                    `yaml:"priority"`
	Values      map[string]interface{} `yaml:"values"`
}

type declarativeGenerator struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Files       []struct {
		Path    string `yaml:"path"`
		Content string `yaml:"content"`
	} `yaml:"files"`
}

func loadDeclarative(path string) (commands.Exports, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxDeclarativeSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidModule, path, maxDeclarativeSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc declarativeModule
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModule, err)
	}

	dir := filepath.Dir(path)
	exports := make(commands.Exports)

	if doc.Default != nil {
		exports[lua.ExportDefault] = doc.Default.build(dir)
	}
	if doc.Command != nil {
		exports[lua.ExportCommand] = doc.Command.build(dir)
	}
	if len(doc.Commands) > 0 {
		cmds := make([]*commands.Command, 0, len(doc.Commands))
		for i := range doc.Commands {
			cmds = append(cmds, doc.Commands[i].build(dir))
		}
		exports[lua.ExportCommands] = cmds
	}

	if len(doc.Processors) > 0 {
		procs := make([]extension.TemplateProcessor, 0, len(doc.Processors))
		for _, p := range doc.Processors {
			proc, err := p.build()
			if err != nil {
				return nil, err
			}
			procs = append(procs, proc)
		}
		exports[lua.ExportProcessors] = procs
	}

	if len(doc.Validators) > 0 {
		vals := make([]extension.TemplateValidator, 0, len(doc.Validators))
		for _, v := range doc.Validators {
			val, err := v.build()
			if err != nil {
				return nil, err
			}
			vals = append(vals, val)
		}
		exports[lua.ExportValidators] = vals
	}

	if len(doc.ContextProviders) > 0 {
		provs := make([]extension.ContextProvider, 0, len(doc.ContextProviders))
		for _, p := range doc.ContextProviders {
			values := p.Values
			provs = append(provs, extension.NewContextProvider(
				extension.Info{ExtName: p.Name, ExtDescription: p.Description, ExtPriority: p.Priority},
				func(context.Context) (map[string]interface{}, error) {
					out := make(map[string]interface{}, len(values))
					for k, v := range values {
						out[k] = v
					}
					return out, nil
				},
			))
		}
		exports[lua.ExportContextProviders] = provs
	}

	if len(doc.FileGenerators) > 0 {
		gens := make([]extension.FileGenerator, 0, len(doc.FileGenerators))
		for _, g := range doc.FileGenerators {
			files := g.Files
			gens = append(gens, extension.NewFileGenerator(
				extension.Info{ExtName: g.Name, ExtDescription: g.Description},
				func(_ context.Context, tpl *extension.Template, _ extension.GenerateContext) ([]extension.GeneratedFile, error) {
					r := placeholders(tpl)
					out := make([]extension.GeneratedFile, 0, len(files))
					for _, f := range files {
						out = append(out, extension.GeneratedFile{
							Path:    r.Replace(f.Path),
							Content: r.Replace(f.Content),
						})
					}
					return out, nil
				},
			))
		}
		exports[lua.ExportFileGenerators] = gens
	}

	return exports, nil
}

// build converts the document into a Command. The action runs exec argv with
// the command arguments appended, or prints message.
func (c *declarativeCommand) build(dir string) *commands.Command {
	cmd := &commands.Command{
		Name:        c.Name,
		Description: c.Description,
		Aliases:     c.Aliases,
		Options:     c.Options,
		Hidden:      c.Hidden,
	}

	switch {
	case len(c.Exec) > 0:
		argv := append([]string(nil), c.Exec...)
		cmd.Action = func(ctx context.Context, args []string, opts map[string]interface{}) error {
			run := exec.CommandContext(ctx, argv[0], append(argv[1:], args...)...)
			run.Dir = dir
			run.Stdin = os.Stdin
			run.Stdout = os.Stdout
			run.Stderr = os.Stderr
			run.Env = os.Environ()
			for k, v := range opts {
				run.Env = append(run.Env, fmt.Sprintf("PTE_OPT_%s=%v", strings.ToUpper(k), v))
			}
			if err := run.Run(); err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			return nil
		}
	case c.Message != "":
		message := c.Message
		cmd.Action = func(context.Context, []string, map[string]interface{}) error {
			_, err := fmt.Fprintln(os.Stdout, message)
			return err
		}
	}
	return cmd
}

func (p declarativeProcessor) build() (extension.TemplateProcessor, error) {
	info := extension.Info{ExtName: p.Name, ExtDescription: p.Description, ExtPriority: p.Priority}
	if p.Name == "" {
		return nil, fmt.Errorf("%w: processor without name", ErrInvalidModule)
	}

	var fn extension.ProcessFunc
	switch p.Kind {
	case "replace":
		if p.Find == "" {
			return nil, fmt.Errorf("%w: processor %s: replace needs find", ErrInvalidModule, p.Name)
		}
		if p.Regex {
			re, err := regexp.Compile(p.Find)
			if err != nil {
				return nil, fmt.Errorf("%w: processor %s: %v", ErrInvalidModule, p.Name, err)
			}
			with := p.With
			fn = func(_ context.Context, content string, _ extension.TemplateContext) (string, error) {
				return re.ReplaceAllString(content, with), nil
			}
		} else {
			find, with := p.Find, p.With
			fn = func(_ context.Context, content string, _ extension.TemplateContext) (string, error) {
				return strings.ReplaceAll(content, find, with), nil
			}
		}
	case "prepend":
		text := p.Text
		fn = func(_ context.Context, content string, _ extension.TemplateContext) (string, error) {
			return text + content, nil
		}
	case "append":
		text := p.Text
		fn = func(_ context.Context, content string, _ extension.TemplateContext) (string, error) {
			return content + text, nil
		}
	default:
		return nil, fmt.Errorf("%w: processor %s: unknown kind %q", ErrInvalidModule, p.Name, p.Kind)
	}

	return extension.NewProcessor(info, fn), nil
}

func (v declarativeValidator) build() (extension.TemplateValidator, error) {
	if v.Name == "" {
		return nil, fmt.Errorf("%w: validator without name", ErrInvalidModule)
	}

	forbidden := make([]*regexp.Regexp, 0, len(v.Forbidden))
	for _, pattern := range v.Forbidden {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: validator %s: %v", ErrInvalidModule, v.Name, err)
		}
		forbidden = append(forbidden, re)
	}
	required := v.Required
	maxLength := v.MaxLength

	return extension.NewValidator(
		extension.Info{ExtName: v.Name, ExtDescription: v.Description},
		func(_ context.Context, tpl *extension.Template) (*extension.ValidationResult, error) {
			res := &extension.ValidationResult{}
			for _, text := range required {
				if !strings.Contains(tpl.Content, text) {
					res.Errors = append(res.Errors, fmt.Sprintf("missing required text %q", text))
				}
			}
			for _, re := range forbidden {
				if re.MatchString(tpl.Content) {
					res.Errors = append(res.Errors, fmt.Sprintf("content matches forbidden pattern %q", re.String()))
				}
			}
			if maxLength > 0 && utf8.RuneCountInString(tpl.Content) > maxLength {
				res.Warnings = append(res.Warnings, fmt.Sprintf("content longer than %d characters", maxLength))
			}
			res.Valid = len(res.Errors) == 0
			return res, nil
		},
	), nil
}

func placeholders(tpl *extension.Template) *strings.Replacer {
	if tpl == nil {
		tpl = &extension.Template{}
	}
	return strings.NewReplacer("{{name}}", tpl.Name, "{{content}}", tpl.Content)
}
