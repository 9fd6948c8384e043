package content

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// NormalizeSignature decodes a PNG and scales it down so its height does not
// exceed maxHeight. Images already small enough are re-encoded unchanged.
func NormalizeSignature(data []byte, maxHeight int) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}

	b := src.Bounds()
	if maxHeight > 0 && b.Dy() > maxHeight {
		w := b.Dx() * maxHeight / b.Dy()
		if w < 1 {
			w = 1
		}
		dst := image.NewNRGBA(image.Rect(0, 0, w, maxHeight))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, src); err != nil {
		return nil, fmt.Errorf("encode signature: %w", err)
	}
	return buf.Bytes(), nil
}
