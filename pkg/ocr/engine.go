package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is the language hint for the receipts' business locale.
const DefaultLanguage = "spa"

// Engine turns a normalized image into raw text. Implementations are slow
// (seconds), fallible, and non-deterministic across versions; callers must
// tolerate noisy output and bound each call with the context deadline.
type Engine interface {
	RecognizeText(ctx context.Context, img []byte, lang string) (string, error)
}

// Tesseract recognizes text with a local Tesseract install via gosseract.
// A fresh client is created per call; gosseract clients are not safe for
// concurrent use.
type Tesseract struct{}

func NewTesseract() *Tesseract { return &Tesseract{} }

// RecognizeText runs a single recognition pass in single-block page
// segmentation mode, which fits the one-column layout of transfer receipts.
// Line breaks in the recognized text are preserved.
func (t *Tesseract) RecognizeText(ctx context.Context, img []byte, lang string) (string, error) {
	if lang == "" {
		lang = DefaultLanguage
	}

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		client := gosseract.NewClient()
		defer client.Close()
		if err := client.SetLanguage(lang); err != nil {
			ch <- result{err: err}
			return
		}
		if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
			ch <- result{err: err}
			return
		}
		if err := client.SetImageFromBytes(img); err != nil {
			ch <- result{err: err}
			return
		}
		text, err := client.Text()
		ch <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", &EngineError{Err: ctx.Err()}
	case r := <-ch:
		if r.err != nil {
			return "", &EngineError{Err: r.err}
		}
		return strings.TrimSpace(r.text), nil
	}
}
