package cf

import (
	"bytes"
	"compress/gzip"
	"io"
	"log"

	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly"
)

// DecompressBody returns body decoded according to its gzip magic bytes or
// a "br" Content-Encoding. Anything else is returned as is. The bool
// reports whether decoding happened.
//
// Sites behind Cloudflare sometimes answer with br even when the request
// did not advertise it, which net/http does not decode by itself.
func DecompressBody(body []byte, contentEncoding string) ([]byte, bool, error) {
	if len(body) == 0 {
		return body, false, nil
	}

	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, false, err
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, false, err
		}
		return decompressed, true, nil
	}

	if contentEncoding == "br" {
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, false, err
		}
		return decompressed, true, nil
	}

	return body, false, nil
}

// DecompressResponse decodes a colly response body in place.
func DecompressResponse(r *colly.Response, logPrefix string) (bool, error) {
	if r == nil || len(r.Body) == 0 {
		return false, nil
	}
	if logPrefix == "" {
		logPrefix = "[CF]"
	}

	encoding := ""
	if r.Headers != nil {
		encoding = r.Headers.Get("Content-Encoding")
	}

	originalSize := len(r.Body)
	body, decompressed, err := DecompressBody(r.Body, encoding)
	if err != nil {
		return false, err
	}
	if decompressed {
		r.Body = body
		log.Printf("%s ✓ Decompressed: %d bytes → %d bytes", logPrefix, originalSize, len(body))
	}
	return decompressed, nil
}
