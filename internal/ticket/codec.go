package ticket

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"ms-checkin/internal/models"
)

// ParseError reports a scanned string that could not be decoded into
// ticket claims. It is always benign: the scanner keeps running.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse ticket: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse ticket: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EncodeClaims serializes claims to their canonical byte form. The
// claims struct declares its fields in alphabetical order and
// json.Marshal emits them in declaration order with no extra
// whitespace, so the output is byte-for-byte reproducible. Signatures
// are computed over exactly these bytes.
func EncodeClaims(claims models.TicketClaims) ([]byte, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// DecodeClaims parses canonical payload bytes back into claims,
// rejecting anything structurally invalid or missing required fields.
func DecodeClaims(payload []byte) (*models.TicketClaims, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var claims models.TicketClaims
	if err := dec.Decode(&claims); err != nil {
		return nil, &ParseError{Reason: "invalid claims structure", Err: err}
	}
	if dec.More() {
		return nil, &ParseError{Reason: "trailing data after claims"}
	}

	if claims.BookingID == "" {
		return nil, &ParseError{Reason: "missing bookingId"}
	}
	if claims.ConfirmationCode == "" {
		return nil, &ParseError{Reason: "missing confirmationCode"}
	}
	if claims.IssuedAt == 0 {
		return nil, &ParseError{Reason: "missing issuedAt"}
	}
	if claims.ExpiresAt == 0 {
		return nil, &ParseError{Reason: "missing expiresAt"}
	}

	return &claims, nil
}

// Compose builds the scannable token string:
// base64url(payload) + "." + base64url(signature).
func Compose(payload, signature []byte) string {
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(signature)
}

// Split takes a scanned token string apart into payload and signature
// bytes without interpreting either.
func Split(token string) (payload, signature []byte, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, nil, &ParseError{Reason: fmt.Sprintf("expected 2 token segments, got %d", len(parts))}
	}

	payload, err = base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, &ParseError{Reason: "invalid payload encoding", Err: err}
	}

	signature, err = base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, &ParseError{Reason: "invalid signature encoding", Err: err}
	}

	return payload, signature, nil
}
