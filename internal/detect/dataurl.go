package detect

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidImage is returned by backends that must decode the data URL
// themselves and cannot.
var ErrInvalidImage = errors.New("invalid image data")

// Image is a decoded data URL. Data stays base64-encoded.
type Image struct {
	MediaType string
	Data      string
}

// sniffLen is enough base64 to cover the longest signature we check (12 bytes).
const sniffLen = 24

// ParseDataURL splits "data:<mime>;base64,<payload>". A bare base64 payload
// without the data: prefix is accepted and its media type sniffed.
func ParseDataURL(s string) (*Image, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrNoImage
	}

	if !strings.HasPrefix(s, "data:") {
		mime, err := sniffBase64(s)
		if err != nil {
			return nil, err
		}
		return &Image{MediaType: mime, Data: s}, nil
	}

	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing data separator", ErrInvalidImage)
	}
	params := strings.Split(meta, ";")
	if params[len(params)-1] != "base64" {
		return nil, fmt.Errorf("%w: data URL is not base64 encoded", ErrInvalidImage)
	}
	if payload == "" {
		return nil, ErrNoImage
	}

	mime := strings.ToLower(params[0])
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		sniffed, err := sniffBase64(payload)
		if err != nil {
			return nil, err
		}
		mime = sniffed
	}
	return &Image{MediaType: mime, Data: payload}, nil
}

func sniffBase64(payload string) (string, error) {
	prefix := payload
	if len(prefix) > sniffLen {
		prefix = prefix[:sniffLen]
	}
	head, err := base64.StdEncoding.DecodeString(prefix)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	mime, ok := AllowedImageMIME(head)
	if !ok {
		return "", fmt.Errorf("%w: unrecognised image format", ErrInvalidImage)
	}
	return mime, nil
}

// allowedImageTypes are the sniffable formats http.DetectContentType reports.
// It has no WebP signature, so isWebP covers that.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// AllowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func AllowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}
