package parser

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/webp"
)

// DetectImageFormat reads the magic bytes and returns the image format string
func DetectImageFormat(data []byte) (string, error) {
	if len(data) < 12 {
		return "", errors.New("data too short to determine format")
	}

	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "jpeg", nil
	}
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "png", nil
	}
	if string(data[0:6]) == "GIF87a" || string(data[0:6]) == "GIF89a" {
		return "gif", nil
	}
	if string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "webp", nil
	}

	return "", errors.New("unknown image format")
}

// ConvertToJPEG re-encodes the image at path as JPEG when it is a WebP
// (or any non-JPEG format when all is true). The converted file replaces the
// original with a .jpg extension. It returns the resulting path.
func ConvertToJPEG(path string, all bool) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	format, err := DetectImageFormat(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	if format == "jpeg" || (format != "webp" && !all) {
		return path, nil
	}

	var img image.Image
	reader := bytes.NewReader(data)

	switch format {
	case "png":
		img, err = png.Decode(reader)
	case "gif":
		img, err = gif.Decode(reader)
	case "webp":
		img, err = webp.Decode(reader)
	default:
		return "", errors.New("unsupported image format: " + format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to decode %s image: %w", format, err)
	}

	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".jpg"
	if err := imaging.Save(img, outPath, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("failed to save jpeg: %w", err)
	}

	if outPath != path {
		if err := os.Remove(path); err != nil {
			return "", err
		}
	}
	return outPath, nil
}
