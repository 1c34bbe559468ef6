package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fyrsmithlabs/embedpipe/internal/embeddings"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// maxLineBytes bounds a single input line for the batch command.
const maxLineBytes = 1024 * 1024

func newDetectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Report which embedding backend is reachable",
		Long: `Probe the configured Ollama host, then the OpenAI-compatible host, and
print the first one that answers as JSON.

Exits non-zero when neither backend answers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			p, err := a.newPipeline(a.settings)
			if err != nil {
				return err
			}
			info, ok := p.DetectEmbeddingProvider(ctx)
			if !ok {
				return embeddings.ErrUnavailable
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
		},
	}
}

func newEmbedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "embed [text...]",
		Short: "Embed one text and print the vector",
		Long: `Embed a single text and print its vector as a JSON array.

The text is taken from the arguments joined by spaces, or from stdin
when no arguments are given.

Examples:
  embedpipe embed "func main() {}"
  cat README.md | embedpipe embed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
				text = strings.TrimRight(string(b), "\r\n")
			}
			if text == "" {
				return embeddings.ErrEmptyInput
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			p, err := a.newPipeline(a.settings)
			if err != nil {
				return err
			}
			session, err := p.Open(ctx)
			if err != nil {
				return err
			}

			vec, err := session.Embed(ctx, text)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(vec)
		},
	}
}

func newBatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "batch [file]",
		Short: "Embed one text per input line",
		Long: `Embed every non-blank line of a file (or stdin) and print one JSON
vector per line, in input order.

Examples:
  embedpipe batch chunks.txt > vectors.ndjson
  git ls-files | xargs cat | embedpipe batch -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				in = f
			}
			texts, err := readTexts(in)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			p, err := a.newPipeline(a.settings)
			if err != nil {
				return err
			}
			session, err := p.Open(ctx)
			if err != nil {
				return err
			}

			vecs, err := session.EmbedBatch(ctx, texts)
			if err != nil {
				return err
			}
			a.logger.Info(session.Context(ctx), "batch embedded", zap.Int("texts", len(texts)))
			return writeVectors(cmd.OutOrStdout(), vecs)
		},
	}
}

func newEnsureModelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-model",
		Short: "Make sure the configured model is available, pulling it if needed",
		Long: `Check that the configured embedding model is present on the detected
backend. Ollama pulls a missing model; OpenAI-compatible servers are
assumed to have it loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts, true)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			p, err := a.newPipeline(a.settings)
			if err != nil {
				return err
			}
			session, err := p.Open(ctx)
			if err != nil {
				return err
			}
			if !session.ModelReady {
				return errors.New("embedding model not available: " + p.Config().Model)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ready on %s (%s)\n", p.Config().Model, session.Provider.Kind, session.Provider.BaseURL)
			return nil
		},
	}
}

// readTexts returns the non-blank lines of r.
func readTexts(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var texts []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		texts = append(texts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return texts, nil
}

// writeVectors writes one JSON array per line.
func writeVectors(w io.Writer, vecs []embeddings.Vector) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, v := range vecs {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return bw.Flush()
}
