package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"rentbot/internal/eval"
	"rentbot/internal/logger"
)

func evalCMD() *cobra.Command {
	var (
		as          string
		document    string
		out         string
		concurrency int
		rps         float64
	)
	ev := &cobra.Command{
		Use:   "eval QUESTIONS.yaml",
		Short: "Score answers against reference answers",
		Long: `Runs every question of a YAML file through the pipeline and scores the answers
with ROUGE-L, exact match and retrieval hit. With --document the file is indexed
as the personal knowledge base first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cases, err := eval.LoadCases(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if document != "" {
				raw, err := os.ReadFile(document)
				if err != nil {
					return err
				}
				n, err := a.resolver.UploadPersonal(ctx, filepath.Base(document), raw)
				if err != nil {
					return explain(err)
				}
				logger.Info("indexed %d chunks from %s", n, document)
			}
			id, err := a.identity(ctx, as)
			if err != nil {
				return err
			}

			logger.Section("Evaluation")
			s := &session{app: a, id: id, topK: cfg.Retrieval.TopK}
			// Load house scopes once up front so workers only read them.
			if _, err := a.resolver.Resolve(ctx, id); err != nil {
				return err
			}
			runner := &eval.Runner{Ask: s.Ask, Concurrency: concurrency}
			if rps > 0 {
				runner.Limiter = rate.NewLimiter(rate.Limit(rps), 1)
			}
			rep, err := runner.Run(ctx, cases)
			if err != nil {
				return err
			}

			printReport(cmd, rep)
			if out != "" {
				if err := rep.WriteYAML(out); err != nil {
					return err
				}
				cmd.Printf("\nReport saved to %s\n", out)
			}
			return nil
		},
	}
	ev.Flags().StringVar(&as, "as", "", "username to ask as")
	ev.Flags().StringVar(&document, "document", "", "document to index as the personal knowledge base")
	ev.Flags().StringVarP(&out, "out", "o", "", "write the report as YAML to this path")
	ev.Flags().IntVar(&concurrency, "concurrency", 4, "questions answered in parallel")
	ev.Flags().Float64Var(&rps, "rps", 0, "maximum questions per second (0 for no limit)")
	return ev
}

// printReport writes the score table. In verbose mode every row also shows
// the predicted answer.
func printReport(cmd *cobra.Command, rep *eval.Report) {
	verbose := logger.IsVerbose()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	header := "QUESTION\tROUGE-L\tEM\tHIT\tTIME(S)\tSCORE"
	if verbose {
		header += "\tPREDICTION"
	}
	fmt.Fprintln(tw, header)
	for _, r := range append(rep.Results, rep.Average) {
		fmt.Fprintf(tw, "%s\t%.3f\t%.2f\t%.3f\t%.2f\t%.3f",
			snippet(r.Question, 60), r.RougeL, r.ExactMatch, r.Hit, r.Seconds, r.Final)
		if verbose {
			fmt.Fprintf(tw, "\t%s", snippet(r.Prediction, 80))
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}
