package textextract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docstreamhq/docstream/constants"
)

// Result is extracted plain text plus how many pages produced it.
type Result struct {
	Text     string
	Pages    int
	Warnings []string
}

// TextExtractor turns a stored document into plain text + page count. Image
// documents yield an empty Result; they go to a vision-capable backend instead.
type TextExtractor interface {
	Extract(ctx context.Context, name string, data []byte) (Result, error)
}

// Config holds the external tool bindings.
type Config struct {
	PdftotextBin string // default "pdftotext"
	MaxPages     int    // 0 = unbounded
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

var _ TextExtractor = (*Extractor)(nil)

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if cfg.PdftotextBin == "" {
		cfg.PdftotextBin = "pdftotext"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, runner: execRunner{log: logger}, logger: logger}
}

// Extract dispatches on the file extension of name.
func (e *Extractor) Extract(ctx context.Context, name string, data []byte) (Result, error) {
	switch constants.MapExtToFormat(filepath.Ext(name)) {
	case constants.PDF:
		return e.pdfToText(ctx, name, data)
	case constants.IMAGE:
		// no local OCR; the vision provider reads the image itself
		return Result{Pages: 1}, nil
	default:
		text := string(data)
		return Result{Text: text, Pages: 1 + strings.Count(text, "\f")}, nil
	}
}

func (e *Extractor) pdfToText(ctx context.Context, name string, data []byte) (Result, error) {
	tmp, err := os.CreateTemp("", "ds-pdf-*.pdf")
	if err != nil {
		return Result{}, fmt.Errorf("temp pdf: %w", err)
	}
	defer func(path string) {
		if err := os.Remove(path); err != nil {
			e.logger.Warn("textextract.tmp_cleanup_failed", "path", path, "error", err)
		}
	}(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Result{}, fmt.Errorf("write temp pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Result{}, fmt.Errorf("close temp pdf: %w", err)
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.PdftotextBin, "-layout", "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		return Result{Warnings: []string{string(errb)}}, fmt.Errorf("pdftotext %s: %w", name, err)
	}
	text := string(out)
	// A form-feed \f is used as page separator by default.
	pages := 1 + strings.Count(text, "\f")
	if e.cfg.MaxPages > 0 && pages > e.cfg.MaxPages {
		e.logger.Warn("textextract.page_cap", "name", name, "pages", pages, "max", e.cfg.MaxPages)
		parts := strings.SplitN(text, "\f", e.cfg.MaxPages+1)
		text = strings.Join(parts[:e.cfg.MaxPages], "\f")
		pages = e.cfg.MaxPages
	}
	return Result{Text: text, Pages: pages}, nil
}
