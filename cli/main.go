package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/opal-lang/weave/core/errors"
	"github.com/opal-lang/weave/pkg/template"
	"github.com/opal-lang/weave/runtime/lexer"
)

// options carries the persistent flags shared by every subcommand.
type options struct {
	fs    afero.Fs
	cache *template.Cache

	data    string
	schema  string
	name    string
	delims  string
	output  string
	watch   bool
	debug   bool
	noColor bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := &options{fs: afero.NewOsFs()}
	rootCmd := newRootCmd(opts)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		FormatError(os.Stderr, err, ShouldUseColor(opts.noColor))
		os.Exit(1)
	}
}

func newRootCmd(opts *options) *cobra.Command {
	opts.cache = template.NewCache(0)

	rootCmd := &cobra.Command{
		Use:           "weave [template files...]",
		Short:         "Render text templates against JSON, YAML or CBOR data",
		Args:          cobra.MinimumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts, args)
		},
	}

	// Add flags
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.data, "data", "d", "", "Data file (.json, .yaml, .yml, .cbor; - for stdin)")
	flags.StringVar(&opts.schema, "schema", "", "JSON Schema the data must satisfy")
	flags.StringVarP(&opts.name, "name", "n", "", "Template to execute (default: first file)")
	flags.StringVar(&opts.delims, "delims", "", `Action delimiters as "left,right"`)
	flags.StringVarP(&opts.output, "output", "o", "", "Write output to file instead of stdout")
	flags.BoolVar(&opts.watch, "watch", false, "Re-render when an input file changes")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug output")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "render [template files...]",
			Short: "Render templates (the default)",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runRender(cmd, opts, args)
			},
		},
		&cobra.Command{
			Use:   "tokens [template file]",
			Short: "Print the token stream of a template",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTokens(cmd, opts, args[0])
			},
		},
		&cobra.Command{
			Use:   "check [template files...]",
			Short: "Parse templates and report errors without rendering",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCheck(cmd, opts, args)
			},
		},
	)
	return rootCmd
}

// config resolves the family settings: environment first, then flags.
func (o *options) config() (template.Config, error) {
	cfg, err := template.ConfigFromEnvironment()
	if err != nil {
		return template.Config{}, err
	}
	if o.delims != "" {
		left, right, ok := strings.Cut(o.delims, ",")
		if !ok || left == "" || right == "" {
			return template.Config{}, &CLIError{
				Type:    "usage",
				Message: fmt.Sprintf("invalid --delims %q", o.delims),
				Hint:    `use two comma-separated delimiters, e.g. --delims "[[,]]"`,
			}
		}
		cfg.LeftDelim, cfg.RightDelim = left, right
	}
	if o.debug {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

// load parses files into one family named after the first file.
func (o *options) load(files []string) (*template.Template, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	root := template.NewWithConfig(filepath.Base(files[0]), cfg)
	for _, file := range files {
		src, err := afero.ReadFile(o.fs, file)
		if err != nil {
			return nil, errors.Wrapf(err, "read template %s", file)
		}
		tmpl := root
		if name := filepath.Base(file); name != root.Name() {
			tmpl = root.New(name)
		}
		if _, err := o.cache.Parse(tmpl, string(src)); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func runRender(cmd *cobra.Command, opts *options, files []string) error {
	if opts.watch {
		return watch(cmd.Context(), cmd, opts, files)
	}
	return renderOnce(cmd, opts, files)
}

// renderOnce renders to a buffer first so a failed execution never
// truncates the output file.
func renderOnce(cmd *cobra.Command, opts *options, files []string) error {
	root, err := opts.load(files)
	if err != nil {
		return err
	}
	data, err := loadData(opts.fs, cmd.InOrStdin(), opts.data)
	if err != nil {
		return err
	}
	if opts.schema != "" {
		if err := validateData(opts.fs, opts.schema, data); err != nil {
			return err
		}
	}

	name := opts.name
	if name == "" {
		name = root.Name()
	}
	var buf bytes.Buffer
	if err := root.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	return opts.write(cmd.OutOrStdout(), buf.Bytes())
}

func (o *options) write(stdout io.Writer, out []byte) error {
	if o.output == "" {
		_, err := stdout.Write(out)
		return err
	}
	if err := afero.WriteFile(o.fs, o.output, out, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", o.output)
	}
	return nil
}

func runTokens(cmd *cobra.Command, opts *options, file string) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	src, err := afero.ReadFile(opts.fs, file)
	if err != nil {
		return errors.Wrapf(err, "read template %s", file)
	}

	lex := lexer.NewLexer(string(src),
		lexer.WithName(filepath.Base(file)),
		lexer.WithDelims(cfg.LeftDelim, cfg.RightDelim))
	w := cmd.OutOrStdout()
	for _, tok := range lex.GetTokens() {
		_, _ = fmt.Fprintf(w, "%d:%d\t%s\t%q\n", tok.Line, tok.Pos, tok.Type, tok.Text)
		if tok.Type == lexer.ERROR {
			return errors.Errorf("%s:%d: %s", file, tok.Line, tok.Text)
		}
	}
	return nil
}

// runCheck parses every file on its own and reports each result.
func runCheck(cmd *cobra.Command, opts *options, files []string) error {
	p := newPalette(ShouldUseColor(opts.noColor))
	w := cmd.OutOrStdout()

	failed := 0
	for _, file := range files {
		if _, err := opts.load([]string{file}); err != nil {
			_, _ = fmt.Fprintf(w, "%s %s\n", p.err.Sprint("FAIL"), file)
			FormatError(w, err, ShouldUseColor(opts.noColor))
			failed++
			continue
		}
		_, _ = fmt.Fprintf(w, "%s %s\n", p.ok.Sprint("ok"), file)
	}
	if failed > 0 {
		return &CLIError{Type: "check", Message: fmt.Sprintf("%d of %d templates failed to parse", failed, len(files))}
	}
	return nil
}
