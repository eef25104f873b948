package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const secretHeader = "X-Webhook-Secret"

// presentedSecret returns the secret a webhook request authenticates with.
// The provider either sends it verbatim in X-Webhook-Secret or signs an HS256
// bearer token with it; a token that verifies counts as presenting the
// secret. Anything else yields "".
func presentedSecret(r *http.Request, secret []byte) string {
	if s := r.Header.Get(secretHeader); s != "" {
		return s
	}
	hdr := r.Header.Get("Authorization")
	if len(hdr) < 7 || !strings.EqualFold(hdr[:7], "bearer ") || len(secret) == 0 {
		return ""
	}
	tkn, err := jwt.Parse(strings.TrimSpace(hdr[7:]), func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return ""
	}
	return string(secret)
}
