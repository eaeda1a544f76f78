package alipay

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Signature errors.
var (
	// ErrSignatureMissing indicates the parameter set has no sign value.
	ErrSignatureMissing = errors.New("alipay: missing signature")
	// ErrSignatureInvalid indicates the signature does not match the parameters.
	ErrSignatureInvalid = errors.New("alipay: invalid signature")
)

// Parameter names excluded from the signed content.
const (
	ParamSign     = "sign"
	ParamSignType = "sign_type"
)

// SignContent builds the canonical `k1=v1&k2=v2` string that is signed.
// Empty values and the sign field are dropped; sign_type is dropped only when
// verifying gateway callbacks.
func SignContent(params map[string]string, forVerify bool) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if key == ParamSign || value == "" {
			continue
		}
		if forVerify && key == ParamSignType {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(params[key])
	}
	return b.String()
}

// Sign returns the base64 RSA-SHA256 (RSA2) signature of params.
func Sign(params map[string]string, privateKey string) (string, error) {
	key, err := ParsePrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256([]byte(SignContent(params, false)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("alipay: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify checks the sign field of a gateway callback against publicKey.
func Verify(params map[string]string, publicKey string) error {
	sign := params[ParamSign]
	if sign == "" {
		return ErrSignatureMissing
	}
	// Form decoding turns '+' into ' ' when the gateway does not escape it.
	sign = strings.ReplaceAll(sign, " ", "+")

	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(sign)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	digest := sha256.Sum256([]byte(SignContent(params, true)))
	if errVerify := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], raw); errVerify != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, errVerify)
	}
	return nil
}
