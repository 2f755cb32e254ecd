// Package ocr extracts plain text from images.
package ocr

import "context"

type Extractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}
