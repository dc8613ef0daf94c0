package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"xagent/internal/agent"
	"xagent/internal/config"
	"xagent/internal/ledger"
	"xagent/internal/logging"
	"xagent/internal/queue"
	"xagent/internal/store"
)

const version = "1.0.0"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "xagent",
	Short: "xagent - autonomous X engagement agent",
	Long: `xagent watches a live X feed in a real browser, generates replies with
Gemini, and posts them through the page UI the way a person would.

It keeps a per-author reply ledger, paces all generation calls, and runs
two background queues: inbound mentions and bulk target lists.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return logging.Initialize(logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			File:    cfg.Logging.File,
			Verbose: verbose,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the browser and run the agent until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		withBulk, _ := cmd.Flags().GetBool("bulk")

		a, err := agent.New(configPath)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if withBulk {
			a.EnableBulk()
		}
		return a.Run(ctx)
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Manage the bulk target queue",
}

var bulkLoadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Load bulk targets from a file (one handle or profile URL per line) or from --targets",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("targets")

		var items []string
		if raw != "" {
			items = config.SplitHandleList(raw)
		}
		if len(args) == 1 {
			fromFile, err := readTargetFile(args[0])
			if err != nil {
				return err
			}
			items = append(items, fromFile...)
		}
		if len(items) == 0 {
			return fmt.Errorf("no targets given: pass a file or --targets")
		}
		for i, it := range items {
			if agent.BulkTargetHandle(it) == "" {
				return fmt.Errorf("target %d is not a handle or profile URL: %q", i+1, it)
			}
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SaveQueue(queue.BulkQueue, store.QueueState{Items: items}); err != nil {
			return err
		}
		fmt.Printf("Loaded %d bulk targets. Start with: xagent run --bulk\n", len(items))
		return nil
	},
}

var bulkStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the agent and consume the bulk queue until it completes or is interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := agent.New(configPath)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a.EnableBulk()
		go func() {
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				if st, err := a.BulkStatus(); err == nil && st.Complete {
					cancel()
					return
				}
			}
		}()
		return a.Run(ctx)
	},
}

var bulkStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bulk queue progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		state, err := st.LoadQueue(queue.BulkQueue)
		if err != nil {
			return err
		}
		if len(state.Items) == 0 {
			fmt.Println("Bulk queue is empty.")
			return nil
		}
		fmt.Printf("Bulk queue: %d/%d processed", state.Cursor, len(state.Items))
		if state.Cursor >= len(state.Items) {
			fmt.Print(" (complete)")
		}
		fmt.Println()
		return nil
	},
}

var bulkClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the bulk queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SaveQueue(queue.BulkQueue, store.QueueState{}); err != nil {
			return err
		}
		fmt.Println("Bulk queue cleared.")
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the reply history",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print recent replies, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		lg := ledger.New(st)
		entries, err := lg.History(limit)
		if err != nil {
			return err
		}
		total, err := lg.ReplyCount()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No replies recorded.")
			return nil
		}
		fmt.Printf("%d authors replied to; last %d replies:\n", total, len(entries))
		for _, e := range entries {
			ts := time.UnixMilli(e.Timestamp).Format("2006-01-02 15:04")
			if e.Tone != "" {
				fmt.Printf("  %s  @%-20s %s\n", ts, e.Author, e.Tone)
			} else {
				fmt.Printf("  %s  @%s\n", ts, e.Author)
			}
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all reply history and author records",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		if err := ledger.New(st).Clear(); err != nil {
			return err
		}
		fmt.Println("Reply history cleared.")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("xagent %s\n", version)
	},
}

func openStore() (*store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Store.DatabasePath)
}

func readTargetFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, line)
	}
	return items, sc.Err()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "xagent.yaml", "Path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	runCmd.Flags().Bool("bulk", false, "Also consume the bulk target queue")
	bulkLoadCmd.Flags().String("targets", "", "Comma-separated handles or profile URLs")
	historyShowCmd.Flags().Int("limit", 20, "Maximum entries to print")

	bulkCmd.AddCommand(bulkLoadCmd, bulkStartCmd, bulkStatusCmd, bulkClearCmd)
	historyCmd.AddCommand(historyShowCmd, historyClearCmd)
	rootCmd.AddCommand(runCmd, bulkCmd, historyCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
