package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// withApp loads config, wires the services and runs fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// expandGlobs resolves doublestar patterns into a sorted, de-duplicated list
// of regular files.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <glob>...",
		Short: "analyze and store files matching the globs, e.g. 'docs/**/*.pdf'",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandGlobs(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no file matched %v", args)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				bar := progressbar.NewOptions(len(files),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetDescription("ingesting"),
					progressbar.OptionShowCount(),
				)
				stored, failed := 0, 0
				for _, file := range files {
					data, err := os.ReadFile(file)
					if err == nil {
						_, err = a.assistant.Analyze(ctx, opts.scope, filepath.Base(file), data)
					}
					if err != nil {
						failed++
						logutil.GetLogger(ctx).Warn("ingest file failed", zap.String("file", file), zap.Error(err))
					} else {
						stored++
					}
					_ = bar.Add(1)
				}
				_ = bar.Finish()
				fmt.Fprintf(cmd.OutOrStdout(), "\nstored %d file(s), %d failed\n", stored, failed)
				if stored == 0 {
					return fmt.Errorf("nothing was stored")
				}
				return nil
			})
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "answer a question from stored documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				answer, err := a.assistant.Ask(ctx, opts.scope, args[0], topK)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, answer.Answer)
				fmt.Fprintln(out, "\nsources:")
				for _, src := range answer.Sources {
					fmt.Fprintf(out, "  %s #%d (similarity %.3f)\n", src.Metadata.Filename, src.Metadata.ChunkIndex, src.Similarity)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of chunks to retrieve")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "show the chunks nearest to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return printJSON(cmd.OutOrStdout(), a.memories.SearchDocuments(ctx, opts.scope, args[0], topK))
			})
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of results")
	return cmd
}

func newDocsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "list stored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return printJSON(cmd.OutOrStdout(), a.memories.GetAllDocuments(ctx, opts.scope))
			})
		},
	}
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <filename>",
		Short: "remove a document from memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res := a.memories.RemoveDocument(ctx, opts.scope, args[0])
				if !res.Success {
					return res.Err
				}
				if res.Warning != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", res.Warning)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "show memory statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return printJSON(cmd.OutOrStdout(), a.memories.GetStats(ctx, opts.scope))
			})
		},
	}
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "delete every document of the scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res := a.memories.ClearAll(ctx, opts.scope)
				if !res.Success {
					return res.Err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "memory cleared")
				return nil
			})
		},
	}
}
