package catalog

import (
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageBytes caps uploaded images.
const MaxImageBytes = 2 << 20

var (
	ErrImageTooLarge = errors.New("image exceeds 2 MiB")
	ErrNotImage      = errors.New("file is not an image")
	ErrEmptyImage    = errors.New("empty file")
)

// ImageDataURL reads an uploaded file and encodes it as a data URL.
// The content type is sniffed from the bytes, not taken from the client.
func ImageDataURL(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if len(data) > MaxImageBytes {
		return "", ErrImageTooLarge
	}
	mime, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	if !strings.HasPrefix(mime, "image/") {
		return "", ErrNotImage
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
