package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"rentbot/internal/tui"
)

func uploadCMD() *cobra.Command {
	var sentences int
	upload := &cobra.Command{
		Use:   "upload FILE",
		Short: "Index a document as your personal knowledge base",
		Long: `Replaces the personal knowledge base with the given document and saves it,
so later ask and chat commands can query it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			n, err := a.resolver.UploadPersonal(cmd.Context(), filepath.Base(args[0]), raw)
			if err != nil {
				return explain(err)
			}
			if err := a.resolver.Personal().Save(cfg.Storage.SnapshotPath); err != nil {
				return err
			}
			cmd.Printf("Indexed %d chunks from %s\n", n, args[0])

			if sentences <= 0 {
				return nil
			}
			summary, err := a.svc.Summarize(cmd.Context(), personalDoc(args[0], raw), sentences)
			if err == nil && summary != "" {
				cmd.Println()
				cmd.Println(summary)
			}
			return nil
		},
	}
	upload.Flags().IntVar(&sentences, "summary", 3, "sentences in the printed summary (0 to skip)")
	return upload
}

func askCMD() *cobra.Command {
	var (
		as      string
		topK    int
		sources bool
	)
	ask := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Answer a question from the knowledge bases you can access",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.identity(cmd.Context(), as)
			if err != nil {
				return err
			}
			if topK <= 0 {
				topK = cfg.Retrieval.TopK
			}
			s := &session{app: a, id: id, topK: topK}
			answer, results, err := s.Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return explain(err)
			}
			cmd.Println(answer)
			if sources {
				cmd.Println()
				cmd.Println("Sources:")
				for i, r := range results {
					cmd.Printf("  [%d] %s (%.3f)\n", i+1, r.Metadata.SourceID, r.Score)
					cmd.Printf("      %s\n", snippet(r.Metadata.ChunkText, 160))
				}
			}
			return nil
		},
	}
	ask.Flags().StringVar(&as, "as", "", "username to ask as (tenant or landlord)")
	ask.Flags().IntVarP(&topK, "top-k", "k", 0, "passages forwarded to the model (default from config)")
	ask.Flags().BoolVar(&sources, "sources", false, "print the passages the answer was built from")
	return ask
}

func chatCMD() *cobra.Command {
	var as string
	chat := &cobra.Command{
		Use:   "chat [FILE]",
		Short: "Open the interactive chat",
		Long: `Opens the chat view. When FILE is given it replaces the personal knowledge
base first and its summary is shown in the header.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			id, err := a.identity(ctx, as)
			if err != nil {
				return err
			}

			var summary string
			if len(args) == 1 {
				raw, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}
				if _, err := a.resolver.UploadPersonal(ctx, filepath.Base(args[0]), raw); err != nil {
					return explain(err)
				}
				if err := a.resolver.Personal().Save(cfg.Storage.SnapshotPath); err != nil {
					return err
				}
				summary, _ = a.svc.Summarize(ctx, personalDoc(args[0], raw), cfg.Summarizer.MaxSentences)
			}

			ok, err := a.resolver.HasAnyKB(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				summary = "No documents yet. Upload one with `rentbot upload FILE`."
			}

			s := &session{app: a, id: id, topK: cfg.Retrieval.TopK}
			timeout := time.Duration(cfg.LLM.TimeoutSecs) * time.Second
			m := tui.New(ctx, s, "Rentbot", summary, timeout)
			if _, err := tea.NewProgram(m, tea.WithContext(ctx)).Run(); err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			return nil
		},
	}
	chat.Flags().StringVar(&as, "as", "", "username to chat as (tenant or landlord)")
	return chat
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
