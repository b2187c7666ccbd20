package extractor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leaseledger/lease-ledger-api/internal/utils"
)

// ErrNoText means neither the native text layer nor OCR produced any usable
// text for the document.
var ErrNoText = fmt.Errorf("no text could be extracted from document")

type Config struct {
	Pdftoppm  string
	Tesseract string
	DPI       int
	MaxPages  int
}

// Extractor turns PDF bytes into text. Documents with a selectable text layer
// are read directly; image-only scans are rendered page by page with pdftoppm
// and OCRed with tesseract.
type Extractor struct {
	cfg    Config
	runner Runner
	native func(data []byte) (string, error)
	logger *utils.Logger
}

func New(cfg Config, logger *utils.Logger) *Extractor {
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Extractor{
		cfg:    cfg,
		runner: execRunner{},
		native: NativeText,
		logger: logger,
	}
}

// Text extracts the document's text, native-first with OCR fallback.
func (e *Extractor) Text(ctx context.Context, data []byte) (string, error) {
	text, err := e.native(data)
	if err != nil {
		e.logger.Warn("Native PDF extraction failed, falling back to OCR", "error", err)
	} else if text != "" {
		return text, nil
	}

	text, err = e.ocr(ctx, data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

func (e *Extractor) ocr(ctx context.Context, data []byte) (string, error) {
	tmpDir, err := os.MkdirTemp("", "lease-ocr-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(pdfPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write temp PDF: %w", err)
	}

	prefix := filepath.Join(tmpDir, "page")
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", pdfPath, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w (%s)", err, strings.TrimSpace(string(errb)))
	}

	// pdftoppm emits prefix-1.png, prefix-2.png, ...
	pages, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(pages)
	if e.cfg.MaxPages > 0 && len(pages) > e.cfg.MaxPages {
		pages = pages[:e.cfg.MaxPages]
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("pdftoppm produced no page images")
	}

	var b strings.Builder
	for _, img := range pages {
		out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, img, "stdout", "--psm", "6")
		if err != nil {
			e.logger.Warn("OCR failed for page, skipping",
				"page", filepath.Base(img),
				"error", err,
				"stderr", strings.TrimSpace(string(errb)))
			continue
		}
		b.Write(out)
		b.WriteString("\n")
	}

	return b.String(), nil
}
