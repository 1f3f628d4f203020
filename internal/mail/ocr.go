package mail

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// ImageTextRecognizer turns an image into text
type ImageTextRecognizer interface {
	RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// NoopRecognizer is used when OCR is disabled
type NoopRecognizer struct{}

func (NoopRecognizer) RecognizeText(context.Context, []byte, string) (string, error) {
	return "", nil
}

// TesseractRecognizer shells out to the tesseract CLI
type TesseractRecognizer struct {
	Path     string
	Language string
}

// NewTesseractRecognizer checks the binary is on PATH
func NewTesseractRecognizer(path, language string) (*TesseractRecognizer, error) {
	if path == "" {
		path = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	if _, err := exec.LookPath(path); err != nil {
		return nil, fmt.Errorf("tesseract not available: %w", err)
	}
	return &TesseractRecognizer{Path: path, Language: language}, nil
}

func (t *TesseractRecognizer) RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error) {
	tmp, err := os.CreateTemp("", "mail-image-*"+imageExt(mimeType))
	if err != nil {
		return "", fmt.Errorf("failed to create temp image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp image: %w", err)
	}

	// "stdout" as the output base prints the text instead of writing a file
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Path, tmp.Name(), "stdout", "-l", t.Language)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %v (output: %s)", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(out)), nil
}

func imageExt(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ".jpg"
	}
}

// recognizeAll runs OCR over at most limit images. Failures degrade to no text.
func recognizeAll(ctx context.Context, ocr ImageTextRecognizer, images []imagePart, limit int, fields logrus.Fields) []string {
	if ocr == nil {
		return nil
	}
	var texts []string
	for i, img := range images {
		if limit > 0 && i >= limit {
			break
		}
		if len(img.data) == 0 {
			continue
		}
		text, err := ocr.RecognizeText(ctx, img.data, img.mimeType)
		if err != nil {
			logrus.WithFields(fields).Warnf("Image text recognition failed: %v", err)
			continue
		}
		texts = append(texts, text)
	}
	return texts
}
