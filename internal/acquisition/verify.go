package acquisition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/dshills/manualrag/internal/extract"
)

// MaxDownloadBytes caps a manual download
const MaxDownloadBytes = 200 << 20

var (
	ErrNotPDF    = errors.New("url does not serve a PDF")
	ErrTooLarge  = errors.New("manual exceeds download limit")
	ErrBadStatus = errors.New("unexpected HTTP status")
)

// Verifier checks that URLs serve PDFs and downloads them
type Verifier struct {
	client   *http.Client
	maxBytes int64
}

// NewVerifier uses client for every request; nil uses http.DefaultClient
func NewVerifier(client *http.Client) *Verifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Verifier{client: client, maxBytes: MaxDownloadBytes}
}

// Verify accepts url when a HEAD reports a PDF content type, or when the
// first bytes of a ranged GET carry the PDF signature.
func (v *Verifier) Verify(ctx context.Context, url string) error {
	if v.headIsPDF(ctx, url) {
		return nil
	}
	return v.rangeIsPDF(ctx, url)
}

func (v *Verifier) headIsPDF(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, http.NoBody)
	if err != nil {
		return false
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300 && isPDFContentType(resp.Header.Get("Content-Type"))
}

func (v *Verifier) rangeIsPDF(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", len(extract.PDFMagic)-1))

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	head := make([]byte, len(extract.PDFMagic))
	if _, err := io.ReadFull(resp.Body, head); err != nil {
		return ErrNotPDF
	}
	if !bytes.Equal(head, extract.PDFMagic) {
		return ErrNotPDF
	}
	return nil
}

// Download fetches the full body and re-checks the signature, since a
// server may have ignored the Range header during verification.
func (v *Verifier) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, v.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > v.maxBytes {
		return nil, ErrTooLarge
	}
	if !bytes.HasPrefix(data, extract.PDFMagic) {
		return nil, ErrNotPDF
	}
	return data, nil
}

func isPDFContentType(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/pdf" || mediaType == "application/x-pdf"
}
