// Package photo validates uploaded photo payloads by sniffing content, never
// trusting the declared content type. Only raster formats phones actually
// produce are accepted.
package photo

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatWEBP Format = "webp"
	FormatHEIC Format = "heic"
)

var ErrUnsupportedFormat = errors.New("unsupported photo format")

type Result struct {
	Format Format
	MIME   string
}

func Detect(head []byte) (Result, error) {
	if len(head) == 0 {
		return Result{}, ErrUnsupportedFormat
	}

	switch {
	case isJPEG(head):
		return Result{Format: FormatJPEG, MIME: "image/jpeg"}, nil
	case isPNG(head):
		return Result{Format: FormatPNG, MIME: "image/png"}, nil
	case isGIF(head):
		return Result{Format: FormatGIF, MIME: "image/gif"}, nil
	case isWEBP(head):
		return Result{Format: FormatWEBP, MIME: "image/webp"}, nil
	case isHEIC(head):
		return Result{Format: FormatHEIC, MIME: "image/heic"}, nil
	}

	return Result{}, ErrUnsupportedFormat
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isGIF(head []byte) bool {
	return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
}

func isWEBP(head []byte) bool {
	return len(head) >= 12 &&
		bytes.Equal(head[:4], []byte("RIFF")) &&
		bytes.Equal(head[8:12], []byte("WEBP"))
}

// isHEIC matches the ftyp brands iOS cameras write (heic/heix/mif1).
func isHEIC(head []byte) bool {
	if len(head) < 12 || string(head[4:8]) != "ftyp" {
		return false
	}
	brand := string(head[8:12])
	return brand == "heic" || brand == "heix" || brand == "mif1"
}

func MimeTypeFromHTTP(header http.Header) string {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		return strings.TrimSpace(contentType[:idx])
	}
	return strings.TrimSpace(contentType)
}
