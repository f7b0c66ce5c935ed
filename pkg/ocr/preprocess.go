package ocr

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
)

// maxEdge bounds the longest image edge before OCR. Larger inputs add engine
// cost without improving recognition on phone-camera receipts.
const maxEdge = 1600

// Normalize prepares raw receipt bytes for OCR: EXIF auto-orientation, longest
// edge bounded to maxEdge, grayscale, linear contrast stretch, PNG-encoded.
// The transform is deterministic for identical input. PDF receipts are rendered
// to an image of their first page and then follow the same path.
// Undecodable bytes yield ErrUnsupportedFormat.
func Normalize(raw []byte) ([]byte, error) {
	var img image.Image
	var err error
	if isPDF(raw) {
		img, err = renderPDFPage(raw)
	} else {
		img, err = imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	b := img.Bounds()
	if b.Dx() > maxEdge || b.Dy() > maxEdge {
		if b.Dx() >= b.Dy() {
			img = imaging.Resize(img, maxEdge, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxEdge, imaging.Lanczos)
		}
	}

	gray := imaging.Grayscale(img)
	gray = stretchContrast(gray)

	var out bytes.Buffer
	if err := imaging.Encode(&out, gray, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode normalized image: %w", err)
	}
	return out.Bytes(), nil
}

func isPDF(raw []byte) bool {
	return len(raw) >= 4 && bytes.HasPrefix(raw, []byte("%PDF"))
}

// renderPDFPage rasterizes the first page of a PDF receipt.
func renderPDFPage(raw []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(raw)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	return doc.Image(0)
}

// stretchContrast remaps luminance linearly so the darkest pixel becomes 0 and
// the brightest 255. On a grayscale NRGBA the three channels are equal, so only
// the red channel is sampled.
func stretchContrast(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	lo, hi := uint8(255), uint8(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := img.NRGBAAt(x, y).R
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if hi <= lo {
		return img
	}
	span := int(hi) - int(lo)
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := img.NRGBAAt(x, y)
			v := uint8((int(p.R) - int(lo)) * 255 / span)
			p.R, p.G, p.B = v, v, v
			out.SetNRGBA(x, y, p)
		}
	}
	return out
}
