// Package extract turns downloaded manual PDFs into plain text by shelling
// out to poppler's pdftotext.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	// ErrPDFToolNotFound is returned when pdftotext is not installed
	ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")
	// ErrNotPDF is returned when the input lacks the %PDF- header
	ErrNotPDF = errors.New("input is not a PDF")
	// ErrNoText is returned when a PDF yields no extractable text (scanned pages)
	ErrNoText = errors.New("no text extracted from PDF")
)

// PDFMagic prefixes every well-formed PDF byte stream
var PDFMagic = []byte("%PDF-")

// CommandRunner runs an external command and returns its stdout
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, ErrPDFToolNotFound
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// PDFToText extracts text with pdftotext -layout, keeping form feeds between
// pages so the chunker can count them.
type PDFToText struct {
	runner CommandRunner
	binary string
}

// New returns an extractor that runs the installed pdftotext
func New() *PDFToText {
	return NewWithRunner(execRunner{})
}

// NewWithRunner returns an extractor using the given runner
func NewWithRunner(runner CommandRunner) *PDFToText {
	return &PDFToText{runner: runner, binary: "pdftotext"}
}

// WithBinary uses path instead of the pdftotext found on PATH
func (p *PDFToText) WithBinary(path string) *PDFToText {
	if path != "" {
		p.binary = path
	}
	return p
}

// CheckAvailable reports whether pdftotext is on PATH
func CheckAvailable() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// InstallInstructions describes how to get pdftotext
func InstallInstructions() string {
	return "pdftotext is part of poppler: brew install poppler (macOS) or apt install poppler-utils (Debian/Ubuntu)"
}

// Extract writes pdf to a temporary file and returns its text
func (p *PDFToText) Extract(ctx context.Context, pdf []byte) (string, error) {
	if !bytes.HasPrefix(pdf, PDFMagic) {
		return "", ErrNotPDF
	}

	dir, err := os.MkdirTemp("", "manualrag-extract-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path := filepath.Join(dir, "manual.pdf")
	if err := os.WriteFile(path, pdf, 0o600); err != nil {
		return "", err
	}

	out, err := p.runner.Run(ctx, p.binary, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w", err)
	}

	text := string(out)
	if strings.TrimSpace(strings.ReplaceAll(text, "\f", "")) == "" {
		return "", ErrNoText
	}
	return text, nil
}

// ExtractFile reads a PDF from disk and extracts it
func (p *PDFToText) ExtractFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return p.Extract(ctx, data)
}
