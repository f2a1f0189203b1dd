// Package qrcode turns raw handshake codes into displayable images.
package qrcode

import (
	"encoding/base64"
	"errors"
	"fmt"

	goqrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 256
	MaxSize     = 2048

	dataURIPrefix = "data:image/png;base64,"
)

var ErrEmptyContent = errors.New("qr content is empty")

// PNG encodes content as a square PNG with medium error correction.
func PNG(content string, size int) ([]byte, error) {
	if len(content) == 0 {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}

	png, err := goqrcode.Encode(content, goqrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}

// DataURI encodes content as a base64 PNG data URI suitable for an <img> tag.
func DataURI(content string, size int) (string, error) {
	png, err := PNG(content, size)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// Terminal renders content with unicode half blocks for a text console.
func Terminal(content string) (string, error) {
	if len(content) == 0 {
		return "", ErrEmptyContent
	}

	code, err := goqrcode.New(content, goqrcode.Low)
	if err != nil {
		return "", fmt.Errorf("failed to encode qr code: %w", err)
	}
	return code.ToSmallString(false), nil
}
