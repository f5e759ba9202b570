package envelope

import (
	"bytes"
	"crypto/subtle"
	"errors"
)

var errPadding = errors.New("invalid padding")

// pkcs7Pad appends between 1 and blockSize bytes, each holding the pad length.
func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

// pkcs7Unpad strips and verifies the padding added by pkcs7Pad.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errPadding
	}

	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, errPadding
	}

	want := bytes.Repeat([]byte{byte(n)}, n)
	if subtle.ConstantTimeCompare(data[len(data)-n:], want) != 1 {
		return nil, errPadding
	}
	return data[:len(data)-n], nil
}
