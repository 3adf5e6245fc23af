package genuicli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/oremus-labs/genui-bridge/internal/jsonval"
	"github.com/oremus-labs/genui-bridge/internal/patch"
	"github.com/oremus-labs/genui-bridge/internal/registry"
	"github.com/oremus-labs/genui-bridge/internal/render"
	"github.com/oremus-labs/genui-bridge/internal/stream"
	"github.com/oremus-labs/genui-bridge/internal/transcript"
	"github.com/oremus-labs/genui-bridge/internal/validator"
)

type captureOptions struct {
	ChunkSize    int
	TokenPatches bool
	InitialTree  jsonval.Value
	Record       bool
}

type captureResult struct {
	Summary      stream.Summary
	Text         string
	PatchFailure []string
	Raw          []byte
}

// consumeCapture runs one capture through the orchestrator. Token text is
// copied to tokens when it is non-nil.
func consumeCapture(ctx context.Context, r io.Reader, opts captureOptions, tokens io.Writer) (captureResult, error) {
	var (
		res  captureResult
		raw  bytes.Buffer
		text strings.Builder
	)
	if opts.Record {
		r = io.TeeReader(r, &raw)
	}
	orch := stream.New(stream.Options{
		ChunkSize:    opts.ChunkSize,
		InitialTree:  opts.InitialTree,
		TokenPatches: opts.TokenPatches,
	})
	summary, err := orch.Consume(ctx, io.NopCloser(r), stream.Handlers{
		OnToken: func(t string) {
			text.WriteString(t)
			if tokens != nil {
				_, _ = io.WriteString(tokens, t)
			}
		},
		OnPatchError: func(op patch.Op, err error) {
			res.PatchFailure = append(res.PatchFailure, fmt.Sprintf("%s %s: %v", op.Op, op.Path, err))
		},
	})
	res.Summary = summary
	res.Text = text.String()
	if opts.Record {
		res.Raw = raw.Bytes()
	}
	return res, err
}

var renderCmd = &cobra.Command{
	Use:   "render [file|-]",
	Short: "Render a captured event stream into a UI tree",
	Long: `Consume a captured server-sent event stream (a file, or stdin when no file or
'-' is given) and print the resulting UI tree. Use --outline for a text view
and --record to archive the capture for 'genui replay'.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := "-"
		if len(args) == 1 {
			name = args[0]
		}
		in, source, err := openCapture(name)
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		defer in.Close()

		opts, err := captureFlags(cmd)
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		record, _ := cmd.Flags().GetBool("record")
		opts.Record = record

		tokens, err := tokenWriter(cmd)
		if err != nil {
			exitWithError(cmd, err)
			return
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := consumeCapture(ctx, in, opts, tokens)
		if tokens != nil && res.Text != "" && !strings.HasSuffix(res.Text, "\n") {
			fmt.Fprintln(tokens)
		}
		if err != nil {
			exitWithError(cmd, fmt.Errorf("read %s: %w", source, err))
			return
		}

		if record {
			id, err := recordTranscript(source, opts, res)
			if err != nil {
				exitWithError(cmd, err)
				return
			}
			printErrorLine("Recorded transcript %s", shortID(id))
		}

		if err := emitResult(cmd, res); err != nil {
			exitWithError(cmd, err)
		}
	},
}

func init() {
	addCaptureFlags(renderCmd, "auto")
	renderCmd.Flags().Bool("record", false, "Archive the capture in the transcript store")
	renderCmd.Flags().String("initial", "", "Path to a JSON tree to seed the applier")
}

func addCaptureFlags(cmd *cobra.Command, tokensDefault string) {
	cmd.Flags().Bool("outline", false, "Print a text outline instead of the tree JSON")
	cmd.Flags().Int("chunk-size", 0, "Read size in bytes (default 4096)")
	cmd.Flags().Bool("token-patches", false, "Also parse token text as JSONL patch operations")
	cmd.Flags().String("tokens", tokensDefault, "Echo tokens to stderr: auto|always|never")
	cmd.Flags().Bool("validate", false, "Validate the final tree against the component registry")
	cmd.Flags().Bool("strict", false, "Treat validation warnings as failures")
	cmd.Flags().String("catalog", "", "Path to a component catalog (JSON or YAML)")
}

func captureFlags(cmd *cobra.Command) (captureOptions, error) {
	var opts captureOptions
	opts.ChunkSize, _ = cmd.Flags().GetInt("chunk-size")
	if opts.ChunkSize < 0 {
		return opts, fmt.Errorf("--chunk-size must be positive")
	}
	opts.TokenPatches, _ = cmd.Flags().GetBool("token-patches")
	if f := cmd.Flags().Lookup("initial"); f != nil && f.Value.String() != "" {
		data, err := os.ReadFile(f.Value.String())
		if err != nil {
			return opts, err
		}
		tree, err := jsonval.Parse(data)
		if err != nil {
			return opts, fmt.Errorf("initial tree: %w", err)
		}
		opts.InitialTree = tree
	}
	return opts, nil
}

func openCapture(name string) (io.ReadCloser, string, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), "stdin", nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, "", err
	}
	return f, filepath.Base(name), nil
}

// tokenWriter resolves --tokens. In auto mode tokens are echoed only when
// stderr is a terminal.
func tokenWriter(cmd *cobra.Command) (io.Writer, error) {
	mode, _ := cmd.Flags().GetString("tokens")
	switch strings.ToLower(mode) {
	case "always":
		return os.Stderr, nil
	case "never":
		return nil, nil
	case "auto", "":
		fd := os.Stderr.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			return os.Stderr, nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported --tokens value %q", mode)
	}
}

func commandRegistry(cmd *cobra.Command) (*registry.Registry, error) {
	reg := registry.Default()
	path, _ := cmd.Flags().GetString("catalog")
	if path == "" {
		return reg, nil
	}
	if _, err := reg.LoadCatalog(path); err != nil {
		return nil, err
	}
	return reg, nil
}

type resultView struct {
	Outcome     string            `json:"outcome"`
	Terminated  bool              `json:"terminated"`
	Tokens      int               `json:"tokens"`
	Patches     int               `json:"patches"`
	PatchErrors int               `json:"patchErrors"`
	Malformed   int               `json:"malformed"`
	Bytes       int64             `json:"bytes"`
	Text        string            `json:"text,omitempty"`
	Failures    []string          `json:"failures,omitempty"`
	Tree        jsonval.Value     `json:"tree"`
	Validation  *validator.Result `json:"validation,omitempty"`
}

// emitResult writes the tree (or outline) to stdout and a summary line to
// stderr. Validation failures mark the command as failed.
func emitResult(cmd *cobra.Command, res captureResult) error {
	reg, err := commandRegistry(cmd)
	if err != nil {
		return err
	}
	outline, _ := cmd.Flags().GetBool("outline")
	doValidate, _ := cmd.Flags().GetBool("validate")
	strict, _ := cmd.Flags().GetBool("strict")

	s := res.Summary
	view := resultView{
		Outcome:     s.Outcome.String(),
		Terminated:  s.Terminated,
		Tokens:      s.Tokens,
		Patches:     s.Patches,
		PatchErrors: s.PatchErrors,
		Malformed:   s.Malformed,
		Bytes:       s.Bytes,
		Text:        res.Text,
		Failures:    res.PatchFailure,
		Tree:        s.Tree,
	}
	if doValidate {
		v, err := validator.New(validator.Options{Registry: reg, Strict: strict})
		if err != nil {
			return err
		}
		result := v.Validate(s.Tree)
		view.Validation = &result
	}

	switch {
	case outputFormat == "json":
		if err := printJSON(view); err != nil {
			return err
		}
	case outline:
		fmt.Fprint(cmd.OutOrStdout(), render.Outline(s.Tree, reg))
	default:
		if err := printTree(cmd.OutOrStdout(), s.Tree); err != nil {
			return err
		}
	}

	for _, f := range res.PatchFailure {
		printErrorLine("patch failed: %s", f)
	}
	printErrorLine("%s: %d tokens, %d patches (%d failed), %d malformed, %s, terminated=%t",
		view.Outcome, s.Tokens, s.Patches, s.PatchErrors, s.Malformed, byteSize(s.Bytes), s.Terminated)

	if view.Validation != nil && !view.Validation.Valid {
		for _, msg := range view.Validation.Errors {
			printErrorLine("invalid: %s", msg)
		}
		return fmt.Errorf("tree failed validation")
	}
	return nil
}

func printTree(w io.Writer, tree jsonval.Value) error {
	data, err := tree.MarshalJSON()
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err = w.Write(out.Bytes())
	return err
}

func recordTranscript(source string, opts captureOptions, res captureResult) (string, error) {
	st, err := transcript.Open(transcriptsPath)
	if err != nil {
		return "", err
	}
	defer st.Close()

	tree, err := res.Summary.Tree.MarshalJSON()
	if err != nil {
		return "", err
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = stream.DefaultChunkSize
	}
	s := res.Summary
	t := &transcript.Transcript{
		Source:       source,
		ChunkSize:    chunk,
		TokenPatches: opts.TokenPatches,
		Outcome:      s.Outcome.String(),
		Terminated:   s.Terminated,
		Tokens:       s.Tokens,
		Patches:      s.Patches,
		PatchErrors:  s.PatchErrors,
		Malformed:    s.Malformed,
		Bytes:        s.Bytes,
		Text:         res.Text,
		Tree:         tree,
		Raw:          res.Raw,
	}
	if err := st.Put(t); err != nil {
		return "", err
	}
	return t.ID, nil
}
