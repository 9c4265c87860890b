package app

import (
	"bytes"
	"crypto/des"
	"encoding/base64"
	"errors"
	"fmt"
)

// The platform's login form expects the password encrypted with DES in ECB
// mode under a fixed shared key, PKCS#5 padded, then base64 encoded. This is
// the scheme its own web client ships in minified form.

func EncryptPassword(password, key string) (string, error) {
	block, err := des.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("password cipher: %w", err)
	}
	data := pkcs5Pad([]byte(password), block.BlockSize())
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], data[i:i+block.BlockSize()])
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

func DecryptPassword(encoded, key string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("password cipher: %w", err)
	}
	block, err := des.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("password cipher: %w", err)
	}
	if len(raw) == 0 || len(raw)%block.BlockSize() != 0 {
		return "", errors.New("password cipher: ciphertext not block aligned")
	}
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i += block.BlockSize() {
		block.Decrypt(out[i:i+block.BlockSize()], raw[i:i+block.BlockSize()])
	}
	plain, err := pkcs5Unpad(out, block.BlockSize())
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func pkcs5Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs5Unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errors.New("password cipher: bad padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("password cipher: bad padding")
		}
	}
	return b[:len(b)-n], nil
}
