package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// maxBodyBytes caps request bodies. Nothing this API accepts comes close;
// ABAC conditions carry their own tighter cap inside the engine.
const maxBodyBytes = 1 << 20

// ErrMissingBearer is returned when the Authorization header is absent or not
// a Bearer credential.
var ErrMissingBearer = errors.New("missing bearer token")

// DecodeJSON decodes a JSON request body with strict validation. Unknown
// fields are rejected, so a misspelled field fails loudly instead of silently
// defaulting.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// ExtractBearerToken pulls the credential out of the Authorization header.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingBearer
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", ErrMissingBearer
	}
	return parts[1], nil
}
