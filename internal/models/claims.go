package models

// TicketClaims is the signed ticket payload embedded in the QR code.
// Field order is alphabetical so the JSON key order is stable; the
// signature is computed over these exact bytes.
type TicketClaims struct {
	ActivityName      string `json:"activityName,omitempty"`
	BookingID         string `json:"bookingId"`
	ConfirmationCode  string `json:"confirmationCode"`
	CustomerEmailHash string `json:"customerEmailHash,omitempty"`
	Date              string `json:"date,omitempty"`
	ExpiresAt         int64  `json:"expiresAt"`
	GroupSize         int    `json:"groupSize,omitempty"`
	IssuedAt          int64  `json:"issuedAt"`
	Time              string `json:"time,omitempty"`
	VenueName         string `json:"venueName,omitempty"`
}
