// Package ocr extracts plain text from article files with external tools:
// pdftotext for text PDFs, pdftoppm plus tesseract for scanned PDFs and tesseract for images.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/newsdex/internal/domain"
)

// Config holds tool locations and limits.
type Config struct {
	TesseractBin string
	PdftotextBin string
	PdftoppmBin  string
	Language     string
	Timeout      time.Duration
	Logger       *zap.Logger
}

// runFunc executes a command and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Extractor turns files into text.
type Extractor struct {
	cfg    Config
	run    runFunc
	logger *zap.Logger
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".tif": {}, ".tiff": {},
}

// New creates an extractor backed by the configured binaries.
func New(cfg Config) *Extractor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Extractor{cfg: cfg, run: runCommand, logger: cfg.Logger}
}

// ExtractText returns the text of the file at path.
// Plain text files are read as is. Nothing recognized yields domain.ErrNoTextExtracted.
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	ext := strings.ToLower(filepath.Ext(path))
	var (
		text string
		err  error
	)
	switch {
	case ext == ".txt" || ext == ".md":
		var data []byte
		data, err = os.ReadFile(path)
		text = string(data)
	case ext == ".pdf":
		text, err = e.fromPDF(ctx, path)
	case isImage(ext):
		text, err = e.fromImage(ctx, path)
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFile, ext)
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("ocr %s: timeout after %v", filepath.Base(path), e.cfg.Timeout)
		}
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrNoTextExtracted, filepath.Base(path))
	}
	return text, nil
}

// Supports reports whether the extension can be processed.
func (e *Extractor) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".md" || ext == ".pdf" || isImage(ext)
}

// HealthCheck verifies tesseract is installed.
func (e *Extractor) HealthCheck(context.Context) error {
	if _, err := exec.LookPath(e.cfg.TesseractBin); err != nil {
		return fmt.Errorf("ocr: %w", err)
	}
	return nil
}

func (e *Extractor) fromImage(ctx context.Context, path string) (string, error) {
	out, err := e.run(ctx, e.cfg.TesseractBin, path, "stdout", "-l", e.language())
	if err != nil {
		return "", fmt.Errorf("tesseract %s: %w", filepath.Base(path), err)
	}
	return string(out), nil
}

// fromPDF tries the embedded text layer first and rasterizes the pages for
// tesseract when the layer is empty.
func (e *Extractor) fromPDF(ctx context.Context, path string) (string, error) {
	out, err := e.run(ctx, e.cfg.PdftotextBin, "-layout", "-enc", "UTF-8", path, "-")
	if err == nil && len(bytes.TrimSpace(out)) > 0 {
		return string(out), nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		e.logger.Debug("pdftotext failed, falling back to OCR",
			zap.String("path", path), zap.Error(err))
	}
	return e.ocrPDF(ctx, path)
}

func (e *Extractor) ocrPDF(ctx context.Context, path string) (string, error) {
	dir, err := os.MkdirTemp("", "newsdex-ocr-*")
	if err != nil {
		return "", fmt.Errorf("ocr temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if _, err := e.run(ctx, e.cfg.PdftoppmBin, "-r", "300", "-png", path, filepath.Join(dir, "page")); err != nil {
		return "", fmt.Errorf("pdftoppm %s: %w", filepath.Base(path), err)
	}

	pages, err := filepath.Glob(filepath.Join(dir, "page*.png"))
	if err != nil {
		return "", fmt.Errorf("list pages: %w", err)
	}
	sort.Strings(pages)

	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		text, err := e.fromImage(ctx, p)
		if err != nil {
			return "", err
		}
		if t := strings.TrimSpace(text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func (e *Extractor) language() string {
	if e.cfg.Language == "" {
		return "eng"
	}
	return e.cfg.Language
}

func isImage(ext string) bool {
	_, ok := imageExtensions[ext]
	return ok
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%s not installed: %w", name, err)
		}
		return nil, fmt.Errorf("%w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
