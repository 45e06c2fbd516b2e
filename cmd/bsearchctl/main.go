package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/screenager/bsearch/internal/engine"
	"github.com/screenager/bsearch/internal/neural"
	"github.com/screenager/bsearch/internal/tui"
)

var (
	defaultModelDir = "./models"
	defaultDataDir  = ".bsearch"
	defaultOrtLib   = "./lib/onnxruntime.so"
	defaultThreads  = 0
)

func main() {
	root := &cobra.Command{
		Use:   "bsearchctl",
		Short: "Hybrid keyword/semantic document search",
		Long:  "bsearchctl — zone-weighted keyword search fused with word2vec semantic similarity, with an optional BGE-small-en-v1.5 reranking pass.",
	}

	var cfg struct {
		ModelDir string `toml:"model-dir"`
		OrtLib   string `toml:"ort-lib"`
		Threads  int    `toml:"threads"`
	}

	if b, err := os.ReadFile(".bsearch.toml"); err == nil {
		if err := toml.Unmarshal(b, &cfg); err == nil {
			if cfg.ModelDir != "" {
				defaultModelDir = cfg.ModelDir
			}
			if cfg.OrtLib != "" {
				defaultOrtLib = cfg.OrtLib
			}
			if cfg.Threads > 0 {
				defaultThreads = cfg.Threads
			}
		}
	}

	var modelDir string
	var ortLib string
	var numThreads int
	var noRerank bool
	root.PersistentFlags().StringVar(&modelDir, "model-dir", defaultModelDir, "directory containing the reranker's ONNX model files")
	root.PersistentFlags().StringVar(&ortLib, "ort-lib", defaultOrtLib, "path to onnxruntime.so (auto-detected if empty)")
	root.PersistentFlags().IntVar(&numThreads, "threads", defaultThreads, "ONNX intra-op thread count (0 = auto, usually NumCPU capped at 4)")
	root.PersistentFlags().BoolVar(&noRerank, "no-rerank", false, "skip loading the neural reranker even if model files are present")

	resolveOrtLib := func(flag string) string {
		if flag != "" {
			return flag
		}
		if exe, err := os.Executable(); err == nil {
			candidate := filepath.Join(filepath.Dir(exe), "lib", "onnxruntime.so")
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
		if _, err := os.Stat(defaultOrtLib); err == nil {
			absPath, _ := filepath.Abs(defaultOrtLib)
			return absPath
		}
		return ""
	}

	// openEngine loads every on-disk artifact per the startup load order
	// (spec §5); a missing semantic layer degrades gracefully rather than
	// failing Open.
	openEngine := func() (*engine.Engine, error) {
		return engine.Open(engine.DefaultConfig(defaultDataDir))
	}

	// openReranker loads the optional neural reranker; a missing model
	// directory is reported as "unavailable", not a hard error, so callers
	// can fall back to keyword+semantic fusion alone.
	openReranker := func() *neural.Reranker {
		if noRerank {
			return nil
		}
		r, err := neural.Open(modelDir, resolveOrtLib(ortLib), numThreads)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[bsearchctl] neural reranker unavailable: %v\n", err)
			return nil
		}
		return r
	}

	// ---- bsearchctl ingest <url> <file> -------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "ingest <url> <file>",
		Short: "Ingest a single document (paper/JSON metadata blob) by URL and file path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, path := args[0], args[1]

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer shutdownEngine(eng)

			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			id, err := eng.IndexPaper(ctx, raw, url)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Indexed %s as %s\n", path, id)
			return nil
		},
	})

	// ---- bsearchctl search <query> ------------------------------------------
	var jsonOutput bool
	var limit int
	var semanticWeight float64
	var rerank bool
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a single hybrid keyword+semantic query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer shutdownEngine(eng)

			opts := engine.SearchOptions{Limit: limit}
			if semanticWeight != 0 {
				opts.SemanticWeight = semanticWeight
			}

			results, err := eng.Search(context.Background(), query, opts)
			if err != nil {
				return err
			}

			if rerank && len(results) > 0 {
				if reranker := openReranker(); reranker != nil {
					defer reranker.Close()
					texts := make([]string, len(results))
					for i, r := range results {
						if r.Title != "" {
							texts[i] = r.Title
						} else {
							texts[i] = r.URL
						}
					}
					if scores, err := reranker.Score(query, texts); err == nil {
						for i := range results {
							results[i].FinalScore = float64(scores[i])
						}
					}
				}
			}

			if len(results) == 0 {
				if jsonOutput {
					fmt.Println("[]")
				} else {
					fmt.Println("no results")
				}
				return nil
			}
			if jsonOutput {
				j, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal json: %w", err)
				}
				fmt.Println(string(j))
				return nil
			}
			for i, r := range results {
				title := r.Title
				if title == "" {
					title = string(r.DocID)
				}
				fmt.Printf("%2d  %.3f  %s  %s\n    %s\n\n", i+1, r.FinalScore, r.DocID, title, r.URL)
			}
			return nil
		},
	}
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "output search results as JSON")
	searchCmd.Flags().IntVar(&limit, "limit", 10, "maximum number of results")
	searchCmd.Flags().Float64Var(&semanticWeight, "semantic-weight", 0, "override the semantic fusion weight (0 = engine default)")
	searchCmd.Flags().BoolVar(&rerank, "rerank", false, "apply the neural reranker to the fused result set")
	root.AddCommand(searchCmd)

	// ---- bsearchctl stats ----------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show engine statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer shutdownEngine(eng)

			s := eng.State()
			fmt.Printf("total documents:   %d\n", s.TotalDocuments)
			fmt.Printf("last html id:      %d\n", s.LastHTMLID)
			fmt.Printf("last paper id:     %d\n", s.LastJSONID)
			fmt.Printf("cached words:      %d\n", s.CachedWords)
			fmt.Printf("semantic layer:    %v\n", s.SemanticAvailable)
			return nil
		},
	})

	// ---- bsearchctl compact <barrel-id> --------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "compact <barrel-id>",
		Short: "Fold a barrel's pending delta postings into a fresh base segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var barrelID int
			if _, err := fmt.Sscanf(args[0], "%d", &barrelID); err != nil {
				return fmt.Errorf("invalid barrel id %q: %w", args[0], err)
			}

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer shutdownEngine(eng)

			if err := eng.MergeBarrel(barrelID); err != nil {
				fmt.Fprintf(os.Stderr, "[bsearchctl] merge before compact: %v\n", err)
			}
			if err := eng.CompactBarrel(barrelID); err != nil {
				return err
			}
			fmt.Printf("Barrel %d compacted.\n", barrelID)
			return nil
		},
	})

	// ---- bsearchctl explore ---------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "explore",
		Short: "Launch the interactive BubbleTea search console",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer shutdownEngine(eng)

			reranker := openReranker()
			if reranker != nil {
				defer reranker.Close()
			}

			m := tui.New(eng, reranker, reranker != nil)
			p := tea.NewProgram(m, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	})

	// ---- bsearchctl bench ------------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "bench",
		Short: "Benchmark tokenizer and reranker inference speed on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "Loading reranker model… ")
			r, err := neural.Open(modelDir, resolveOrtLib(ortLib), numThreads)
			if err != nil {
				return err
			}
			defer r.Close()
			fmt.Fprintln(os.Stderr, "ready.")

			texts := []struct {
				label string
				text  string
			}{
				{"short (9 words)   ", "the quick brown fox jumps over the lazy dog"},
				{"medium (200 words)", strings.Repeat("the quick brown fox ", 50)},
				{"long (180 words)  ", strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20)},
			}

			fmt.Printf("\n%-20s  %10s  %10s  %10s\n", "text size", "tokenize", "inference", "total")
			fmt.Println(strings.Repeat("─", 55))
			for _, tc := range texts {
				tok, inf, tot, err := r.BenchmarkSingle(tc.text)
				if err != nil {
					return fmt.Errorf("bench %s: %w", tc.label, err)
				}
				fmt.Printf("%-20s  %10s  %10s  %10s\n", tc.label,
					tok.Round(time.Millisecond),
					inf.Round(time.Millisecond),
					tot.Round(time.Millisecond))
			}
			fmt.Printf("\nIf inference >500ms, try: bsearchctl --threads 1 search <query>\n")
			fmt.Printf("Set BSEARCH_DEBUG=1 to log cache-snapshot and posting-fetch errors.\n")
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// shutdownEngine runs the service contract's shutdown flush with a bounded
// timeout, logging rather than failing the command on a slow or partial
// flush — matching the teacher's prefer-to-save-partial-state idiom.
func shutdownEngine(eng *engine.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eng.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		fmt.Fprintf(os.Stderr, "[bsearchctl] shutdown: %v\n", err)
	}
}
