package accounts

import "encoding/base64"

// TokenCodec turns raw token material into strings that can live in a URL
// path segment and back. Encoding is unpadded base64url so no character ever
// needs percent-escaping.
type TokenCodec struct{}

// Encode returns the URL-safe representation of raw.
func (TokenCodec) Encode(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// EncodeString is a convenience wrapper for string payloads.
func (c TokenCodec) EncodeString(s string) string {
	return c.Encode([]byte(s))
}

// Decode reverses Encode. Malformed input of any kind, including padded or
// out-of-alphabet characters, surfaces as ErrTokenDecode; callers treat that
// as an invalid token, never as a crash.
func (TokenCodec) Decode(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		// Links generated by older backends used padded encoding; accept it.
		if padded, perr := base64.URLEncoding.DecodeString(encoded); perr == nil {
			return padded, nil
		}
		return nil, ErrTokenDecode
	}
	return raw, nil
}

// DecodeString decodes into a string payload.
func (c TokenCodec) DecodeString(encoded string) (string, error) {
	raw, err := c.Decode(encoded)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
