// Package signature implements the integrity checks shared by every auth context: the
// MD5 session signature and HMAC-SHA256 signed request payloads.
package signature

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MrEthical07/goGraph/variant"
	"github.com/golang-jwt/jwt/v5"
)

// Algorithm is the only signed request algorithm accepted.
const Algorithm = "HMAC-SHA256"

// SigKey is excluded from the MD5 session signature.
const SigKey = "sig"

var (
	// ErrMalformedSignature is returned when a signed request is not two base64url parts.
	ErrMalformedSignature = errors.New("malformed signature")
	// ErrSignatureMismatch is returned when a signature does not match its content.
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrUnsupportedAlgorithm is returned when a signed request names an algorithm other than HMAC-SHA256.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	// ErrEmptySecret is returned when no application secret is configured.
	ErrEmptySecret = errors.New("application secret is empty")
)

// Base64URLDecode decodes URL-safe base64 with or without padding. Standard alphabet
// characters are tolerated.
func Base64URLDecode(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return b, nil
}

// Base64URLEncode encodes b as unpadded URL-safe base64.
func Base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// HexEncode renders b as lower-case hex.
func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// Generate computes the session signature of fields: every key except "sig", in ordinal
// order, concatenated as key=value, followed by the secret, MD5-hashed and hex encoded.
func Generate(fields map[string]string, secret string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == SigKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(fields[k])
	}
	sb.WriteString(secret)

	sum := md5.Sum([]byte(sb.String()))
	return HexEncode(sum[:])
}

// Matches reports whether fields carry a "sig" equal to their recomputed signature.
func Matches(fields map[string]string, secret string) bool {
	sig, ok := fields[SigKey]
	if !ok || sig == "" {
		return false
	}
	return Generate(fields, secret) == sig
}

// VerifySignedRequest checks a "signature.payload" value and returns the decoded
// payload dictionary.
func VerifySignedRequest(signed, secret string) (*variant.Value, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	encodedSig, encodedPayload, ok := strings.Cut(signed, ".")
	if !ok || encodedSig == "" || encodedPayload == "" {
		return nil, fmt.Errorf("%w: expected two dot-separated parts", ErrMalformedSignature)
	}

	sig, err := Base64URLDecode(encodedSig)
	if err != nil {
		return nil, err
	}
	raw, err := Base64URLDecode(encodedPayload)
	if err != nil {
		return nil, err
	}

	payload, err := variant.ParseBytes(raw)
	if err != nil {
		return nil, err
	}
	if !payload.IsDictionary() {
		return nil, fmt.Errorf("%w: signed request payload is not an object", variant.ErrMalformedPayload)
	}
	if alg := payload.Get("algorithm").String(); !strings.EqualFold(alg, Algorithm) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}

	if err := jwt.SigningMethodHS256.Verify(encodedPayload, sig, []byte(secret)); err != nil {
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrSignatureMismatch
		}
		return nil, fmt.Errorf("%w: %v", ErrSignatureMismatch, err)
	}

	return payload, nil
}

// SignRequest produces a signed request carrying payload. The algorithm member is set
// when absent.
func SignRequest(payload map[string]any, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}

	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	if _, ok := body["algorithm"]; !ok {
		body["algorithm"] = Algorithm
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	encodedPayload := Base64URLEncode(raw)

	sig, err := jwt.SigningMethodHS256.Sign(encodedPayload, []byte(secret))
	if err != nil {
		return "", err
	}

	return Base64URLEncode(sig) + "." + encodedPayload, nil
}
