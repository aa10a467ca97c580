// Package confirm carries a draft transaction through the confirm/cancel
// buttons: a signed token for the draft, the callback data on the buttons and
// a ledger that lets exactly one tap settle each draft.
package confirm

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"finbot/internal/domain"
)

var ErrBadToken = errors.New("invalid confirmation token")

var b64 = base64.RawURLEncoding

// Codec signs and verifies confirmation tokens with an HMAC-SHA256 key.
type Codec struct {
	secret []byte
}

func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Encode serialises d into payload.signature.
func (c *Codec) Encode(d domain.Draft) (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode draft: %w", err)
	}
	payload := b64.EncodeToString(raw)
	return payload + "." + b64.EncodeToString(c.sign(payload)), nil
}

// Decode verifies token and returns the draft it carries.
func (c *Codec) Decode(token string) (domain.Draft, error) {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok || payload == "" || sig == "" {
		return domain.Draft{}, ErrBadToken
	}
	want, err := b64.DecodeString(sig)
	if err != nil {
		return domain.Draft{}, ErrBadToken
	}
	if !hmac.Equal(c.sign(payload), want) {
		return domain.Draft{}, ErrBadToken
	}
	raw, err := b64.DecodeString(payload)
	if err != nil {
		return domain.Draft{}, ErrBadToken
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var d domain.Draft
	if err := dec.Decode(&d); err != nil {
		return domain.Draft{}, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	return d, nil
}

func (c *Codec) sign(payload string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

// NewDraftID returns a 22-character url-safe id, short enough for callback data.
func NewDraftID() string {
	id := uuid.New()
	return b64.EncodeToString(id[:])
}
