package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BuildPolyHmacSignature computes the L2 request signature. The signed message
// is timestamp + method + path (+ body when present), keyed by the api secret.
// Secrets arrive base64url encoded; the digest goes back out base64url with
// padding kept.
func BuildPolyHmacSignature(secret string, timestamp int64, method string, requestPath string, body *string) (string, error) {
	message := strconv.FormatInt(timestamp, 10) + method + requestPath
	if body != nil {
		message += *body
	}

	std := strings.ReplaceAll(strings.ReplaceAll(secret, "-", "+"), "_", "/")
	std = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') ||
			(r >= '0' && r <= '9') || r == '+' || r == '/' || r == '=' {
			return r
		}
		return -1
	}, std)

	key, err := base64.StdEncoding.DecodeString(std)
	if err != nil {
		return "", errors.Wrap(err, "decode api secret")
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	digest := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	digest = strings.ReplaceAll(digest, "+", "-")
	digest = strings.ReplaceAll(digest, "/", "_")
	return digest, nil
}
