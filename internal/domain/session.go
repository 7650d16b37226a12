package domain

import (
	"encoding/json"
	"time"
)

// SessionPurpose distinguishes the homepage SMS gate from admin 2FA.
type SessionPurpose string

const (
	PurposeSMSGate    SessionPurpose = "sms_gate"
	PurposeAdminLogin SessionPurpose = "admin_login"
)

// SessionState is the position of an auth session in the verification flow.
//
//	created -> code_sent -> verified -> consumed
//
// Expiry is derived from ExpiresAt rather than stored as a state.
type SessionState string

const (
	SessionCreated  SessionState = "created"
	SessionCodeSent SessionState = "code_sent"
	SessionVerified SessionState = "verified"
	SessionConsumed SessionState = "consumed"
)

// AuthSession is a short-lived verification record keyed by ID.
type AuthSession struct {
	ID              string          `json:"id"`
	Purpose         SessionPurpose  `json:"purpose"`
	State           SessionState    `json:"state"`
	Phone           string          `json:"phone,omitempty"`
	Email           string          `json:"email,omitempty"`
	AdminID         string          `json:"admin_id,omitempty"`
	VerificationSID string          `json:"verification_sid,omitempty"`
	PhoneVerified   bool            `json:"phone_verified"`
	EmailVerified   bool            `json:"email_verified"`
	Attempts        int             `json:"attempts"`
	SendCount       int             `json:"send_count"`
	PropertyData    json.RawMessage `json:"property_data,omitempty"`
	ClientIP        string          `json:"client_ip,omitempty"`
	LeadID          string          `json:"lead_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	CodeSentAt      *time.Time      `json:"code_sent_at,omitempty"`
	VerifiedAt      *time.Time      `json:"verified_at,omitempty"`
	ConsumedAt      *time.Time      `json:"consumed_at,omitempty"`
}

// Expired reports whether the session is past its expiry at now.
func (s *AuthSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
