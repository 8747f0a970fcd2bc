// Package surepass implements the encrypted transport used by the Surepass
// KYC provider: a hybrid envelope scheme (random AES-256-GCM key wrapped
// with RSA-OAEP/SHA-256) plus the plain JSON channel some endpoints use.
package surepass

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	aesKeyLen = 32 // AES-256
	nonceLen  = 12 // GCM standard nonce
)

// ErrInvalidEnvelope is returned when an encrypted payload does not have
// exactly four colon-separated segments.
var ErrInvalidEnvelope = errors.New("surepass: invalid encrypted payload format")

// Envelope is the result of encrypting one plaintext. ContentLength carries
// the plaintext byte length the provider expects in the x-content-length
// side-channel header.
type Envelope struct {
	Encrypted     string
	ContentLength int
}

var (
	pemHeaderRe = regexp.MustCompile(`^(-----BEGIN [^-]+-----)`)
	pemFooterRe = regexp.MustCompile(`(-----END [^-]+-----)$`)
)

// NormalizePEM repairs key material that arrived through environment
// variables: literal \n sequences become real newlines, and a flattened
// single-line PEM block gets its newlines reinserted after the header and
// before the footer. Values without PEM markers pass through unchanged.
// Idempotent.
func NormalizePEM(value string) string {
	normalized := strings.TrimSpace(strings.ReplaceAll(value, `\n`, "\n"))
	if !strings.Contains(normalized, "BEGIN PUBLIC KEY") && !strings.Contains(normalized, "BEGIN PRIVATE KEY") {
		return normalized
	}
	if strings.Contains(normalized, "\n") {
		return normalized
	}
	header := pemHeaderRe.FindString(normalized)
	footer := pemFooterRe.FindString(normalized)
	if header == "" || footer == "" {
		return normalized
	}
	body := strings.TrimSpace(normalized[len(header) : len(normalized)-len(footer)])
	return header + "\n" + body + "\n" + footer + "\n"
}

// EncryptPayload seals plaintext for the provider: a fresh AES-256 key and
// 96-bit nonce per call, GCM with empty AAD, the key wrapped with
// RSA-OAEP/SHA-256 under the provider's public key. The envelope is four
// base64 segments joined by ':' in the order wrapped-key:nonce:ciphertext:tag.
func EncryptPayload(plaintext string, publicKeyPEM string) (Envelope, error) {
	pub, err := parsePublicKey(publicKeyPEM)
	if err != nil {
		return Envelope{}, err
	}

	aesKey := make([]byte, aesKeyLen)
	if _, err := rand.Read(aesKey); err != nil {
		return Envelope{}, fmt.Errorf("surepass: generate key: %w", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("surepass: generate nonce: %w", err)
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return Envelope{}, fmt.Errorf("surepass: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, fmt.Errorf("surepass: new gcm: %w", err)
	}
	// Seal appends the 16-byte auth tag; the wire format wants it as its
	// own segment, so split it back off.
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-gcm.Overhead()]
	tag := sealed[len(sealed)-gcm.Overhead():]

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("surepass: wrap key: %w", err)
	}

	encrypted := strings.Join([]string{
		base64.StdEncoding.EncodeToString(wrappedKey),
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(tag),
	}, ":")
	return Envelope{Encrypted: encrypted, ContentLength: len(plaintext)}, nil
}

// DecryptPayload opens a four-segment envelope with our private key. Returns
// ErrInvalidEnvelope before touching any cryptography when the segment count
// is wrong; unwrap and tag-verification failures surface as errors.
func DecryptPayload(encryptedPayload string, privateKeyPEM string) (string, error) {
	parts := strings.Split(encryptedPayload, ":")
	if len(parts) != 4 {
		return "", ErrInvalidEnvelope
	}

	priv, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}

	segs := make([][]byte, 4)
	for i, p := range parts {
		b, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			return "", fmt.Errorf("surepass: decode segment %d: %w", i, err)
		}
		segs[i] = b
	}
	wrappedKey, nonce, ciphertext, tag := segs[0], segs[1], segs[2], segs[3]

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrappedKey, nil)
	if err != nil {
		return "", fmt.Errorf("surepass: unwrap key: %w", err)
	}
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return "", fmt.Errorf("surepass: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(nonce))
	if err != nil {
		return "", fmt.Errorf("surepass: new gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("surepass: decrypt: %w", err)
	}
	return string(plaintext), nil
}

func parsePublicKey(pemStr string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("surepass: public key is not valid PEM")
	}
	// PKIX first (BEGIN PUBLIC KEY), PKCS#1 as fallback (BEGIN RSA PUBLIC KEY).
	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("surepass: public key is not RSA")
		}
		return rsaKey, nil
	}
	rsaKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("surepass: parse public key: %w", err)
	}
	return rsaKey, nil
}

func parsePrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, errors.New("surepass: private key is not valid PEM")
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("surepass: private key is not RSA")
		}
		return rsaKey, nil
	}
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("surepass: parse private key: %w", err)
	}
	return rsaKey, nil
}
