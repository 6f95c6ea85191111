package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
)

// Formatter renders a run
type Formatter interface {
	Format(run Run) (string, error)
}

// Config controls what a Reporter prints and where it stores results
type Config struct {
	Out        io.Writer
	Title      string
	ResultsDir string
	ShowTrace  bool
	ShowTests  bool
}

// Reporter prints a completed run to the console and stores it as JSON
type Reporter struct {
	log        log.Logger
	out        io.Writer
	resultsDir string
	formatters []Formatter
}

func NewReporter(lgr log.Logger, cfg Config) *Reporter {
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	title := cfg.Title
	if title == "" {
		title = "Test Results"
	}
	return &Reporter{
		log:        lgr,
		out:        out,
		resultsDir: cfg.ResultsDir,
		formatters: []Formatter{
			NewTreeTextFormatter(false),
			NewTableFormatter(title, cfg.ShowTests),
			NewNotRunFormatter(),
			NewFailureFormatter(cfg.ShowTrace),
		},
	}
}

// Report prints every section and writes the results file when a results directory is
// configured. It returns the path of the results file, if any.
func (r *Reporter) Report(run Run) (string, error) {
	for _, f := range r.formatters {
		s, err := f.Format(run)
		if err != nil {
			return "", fmt.Errorf("failed to format results: %w", err)
		}
		if s == "" {
			continue
		}
		if _, err := fmt.Fprintln(r.out, s); err != nil {
			return "", fmt.Errorf("failed to print results: %w", err)
		}
	}

	if r.resultsDir == "" {
		return "", nil
	}
	path, err := WriteJSON(r.resultsDir, run)
	if err != nil {
		return "", err
	}
	r.log.Info("Wrote results", "path", path)
	return path, nil
}
