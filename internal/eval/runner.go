package eval

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"rentbot/internal/domain"
	"rentbot/internal/logger"
)

// Case is one question with its reference answer.
type Case struct {
	Question  string `yaml:"question"`
	Reference string `yaml:"reference"`
}

// Result is the scored outcome of one case.
type Result struct {
	Question   string  `yaml:"question"`
	Reference  string  `yaml:"reference"`
	Prediction string  `yaml:"prediction"`
	RougeL     float64 `yaml:"rouge_l"`
	ExactMatch float64 `yaml:"exact_match"`
	Hit        float64 `yaml:"retrieval_hit"`
	Seconds    float64 `yaml:"seconds"`
	Final      float64 `yaml:"final_score"`
}

// Report holds every result and their averages.
type Report struct {
	Results []Result `yaml:"results"`
	Average Result   `yaml:"average"`
}

// AskFunc answers a question and returns the passages the answer was built from.
type AskFunc func(ctx context.Context, question string) (string, []domain.SearchResult, error)

// Runner evaluates cases with bounded concurrency and an optional request rate.
type Runner struct {
	Ask         AskFunc
	Concurrency int
	Limiter     *rate.Limiter
}

// LoadCases reads a YAML file with a top-level "questions" list.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Questions []Case `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("%s: no questions: %w", path, domain.ErrInvalidInput)
	}
	return doc.Questions, nil
}

// Run scores every case. A failed question is kept in the report with the
// error text as its prediction; only cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	results := make([]Result, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.Concurrency))

	for i, c := range cases {
		g.Go(func() error {
			if r.Limiter != nil {
				if err := r.Limiter.Wait(gctx); err != nil {
					return err
				}
			}
			logger.Debug("eval: %s", c.Question)
			start := time.Now()
			pred, passages, err := r.Ask(gctx, c.Question)
			elapsed := time.Since(start)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("eval: %q: %v", c.Question, err)
				pred = fmt.Sprintf("[Error: %v]", err)
			}
			results[i] = score(c, pred, passages, elapsed)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Report{Results: results, Average: average(results)}, nil
}

func score(c Case, pred string, passages []domain.SearchResult, elapsed time.Duration) Result {
	res := Result{
		Question:   c.Question,
		Reference:  c.Reference,
		Prediction: pred,
		RougeL:     RougeL(c.Reference, pred),
		ExactMatch: ExactMatch(c.Reference, pred),
		Hit:        RetrievalHit(c.Reference, passages),
		Seconds:    elapsed.Seconds(),
	}
	res.Final = FinalScore(res.RougeL, res.ExactMatch, res.Hit)
	return res
}

func average(results []Result) Result {
	avg := Result{Question: "Average"}
	if len(results) == 0 {
		return avg
	}
	for _, r := range results {
		avg.RougeL += r.RougeL
		avg.ExactMatch += r.ExactMatch
		avg.Hit += r.Hit
		avg.Seconds += r.Seconds
		avg.Final += r.Final
	}
	n := float64(len(results))
	avg.RougeL = round3(avg.RougeL / n)
	avg.ExactMatch = round3(avg.ExactMatch / n)
	avg.Hit = round3(avg.Hit / n)
	avg.Seconds = round3(avg.Seconds / n)
	avg.Final = round3(avg.Final / n)
	return avg
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }

// WriteYAML writes the report to path.
func (rep *Report) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(rep)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
