package document

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
)

const pdfMimeType = "application/pdf"

var (
	// ErrUnsupportedType rejects anything but a PDF before decoding.
	ErrUnsupportedType = errors.New("unsupported document type: please upload a PDF file")
	// ErrEmptyDocument is returned when the document holds no extractable text.
	ErrEmptyDocument = errors.New("document contains no text")
)

// convert is replaced in tests.
var convert = func(r io.Reader, mimeType string) (string, error) {
	res, err := docconv.Convert(r, mimeType, false)
	if err != nil {
		return "", err
	}
	return res.Body, nil
}

// IsPDF reports whether the upload is a PDF judging by its content type or,
// when the type is missing or generic, by its file extension.
func IsPDF(filename, contentType string) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case pdfMimeType:
			return true
		case "application/octet-stream", "binary/octet-stream":
		default:
			return false
		}
	}
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// Decode extracts plain text from a PDF resume.
func Decode(r io.Reader, filename, contentType string) (string, error) {
	if !IsPDF(filename, contentType) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, describe(filename, contentType))
	}

	text, err := convert(r, pdfMimeType)
	if err != nil {
		return "", fmt.Errorf("decode %q: %w", filename, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyDocument, filename)
	}
	return text, nil
}

func describe(filename, contentType string) string {
	if contentType != "" {
		return fmt.Sprintf("%q (%s)", filename, contentType)
	}
	return fmt.Sprintf("%q", filename)
}
