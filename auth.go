package smtp

import "encoding/base64"

// EncodeCredential returns the standard base64 form of a credential as sent
// during AUTH LOGIN. Base64 is an encoding, not protection: the secrecy of
// the credential depends on the transport's encryption.
func EncodeCredential(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// EncodeResponse returns the base64 form of a SASL response. An empty
// response is sent as "=" (RFC 4954 §4).
func EncodeResponse(b []byte) string {
	if len(b) == 0 {
		return "="
	}
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeChallenge decodes the base64 text of a 334 reply.
func DecodeChallenge(text string) ([]byte, error) {
	if text == "=" {
		return []byte{}, nil
	}
	return base64.StdEncoding.DecodeString(text)
}
