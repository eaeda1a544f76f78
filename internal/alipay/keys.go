package alipay

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// PEM block labels for the supported key encodings.
const (
	pemPKCS8Private = "PRIVATE KEY"
	pemPKCS1Private = "RSA PRIVATE KEY"
	pemPKIXPublic   = "PUBLIC KEY"
	pemPKCS1Public  = "RSA PUBLIC KEY"
)

// ErrInvalidKey indicates key material that cannot be decoded into an RSA key.
var ErrInvalidKey = errors.New("alipay: invalid rsa key")

// pkcs8VersionPrefix is the DER encoding of `INTEGER 0` followed by the start of
// the AlgorithmIdentifier SEQUENCE. PKCS#1 keys carry `INTEGER 0` followed by
// the modulus INTEGER instead.
var pkcs8VersionPrefix = []byte{0x02, 0x01, 0x00, 0x30}

// IsPKCS8 reports whether a DER-encoded private key uses the PKCS#8 layout.
func IsPKCS8(der []byte) bool {
	if len(der) < 2 || der[0] != 0x30 {
		return false
	}
	offset := 2
	if der[1]&0x80 != 0 {
		offset += int(der[1] & 0x7f)
	}
	if len(der) < offset+len(pkcs8VersionPrefix) {
		return false
	}
	return bytes.Equal(der[offset:offset+len(pkcs8VersionPrefix)], pkcs8VersionPrefix)
}

// FormatPrivateKey wraps a bare base64 private key in PEM armor.
// Input that already carries a PEM header is returned unchanged.
func FormatPrivateKey(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.Contains(trimmed, "-----BEGIN") {
		return trimmed, nil
	}
	der, err := decodeBareKey(trimmed)
	if err != nil {
		return "", err
	}
	label := pemPKCS1Private
	if IsPKCS8(der) {
		label = pemPKCS8Private
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: label, Bytes: der})), nil
}

// FormatPublicKey wraps a bare base64 public key in PEM armor.
func FormatPublicKey(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.Contains(trimmed, "-----BEGIN") {
		return trimmed, nil
	}
	der, err := decodeBareKey(trimmed)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemPKIXPublic, Bytes: der})), nil
}

// ParsePrivateKey decodes a PEM or bare base64 RSA private key.
func ParsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	formatted, err := FormatPrivateKey(raw)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode([]byte(formatted))
	if block == nil {
		return nil, fmt.Errorf("%w: no pem block", ErrInvalidKey)
	}
	switch block.Type {
	case pemPKCS8Private:
		parsed, errParse := x509.ParsePKCS8PrivateKey(block.Bytes)
		if errParse != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, errParse)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an rsa key", ErrInvalidKey)
		}
		return key, nil
	case pemPKCS1Private:
		key, errParse := x509.ParsePKCS1PrivateKey(block.Bytes)
		if errParse != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, errParse)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unexpected pem type %q", ErrInvalidKey, block.Type)
	}
}

// ParsePublicKey decodes a PEM or bare base64 RSA public key.
func ParsePublicKey(raw string) (*rsa.PublicKey, error) {
	formatted, err := FormatPublicKey(raw)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode([]byte(formatted))
	if block == nil {
		return nil, fmt.Errorf("%w: no pem block", ErrInvalidKey)
	}
	switch block.Type {
	case pemPKIXPublic:
		parsed, errParse := x509.ParsePKIXPublicKey(block.Bytes)
		if errParse != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, errParse)
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an rsa key", ErrInvalidKey)
		}
		return key, nil
	case pemPKCS1Public:
		key, errParse := x509.ParsePKCS1PublicKey(block.Bytes)
		if errParse != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, errParse)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unexpected pem type %q", ErrInvalidKey, block.Type)
	}
}

// decodeBareKey strips whitespace and base64-decodes a key body.
func decodeBareKey(body string) ([]byte, error) {
	compact := strings.Join(strings.Fields(body), "")
	if compact == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	der, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return der, nil
}
