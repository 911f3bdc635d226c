package api

import (
	"time"
)

// Session endpoints

type sessionStartRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	DeviceID string `json:"device_id" validate:"required"`
	Module   string `json:"module" validate:"required"`
}

type sessionStartResponse struct {
	SessionID string `json:"session_id"`
}

type appendEventRequest struct {
	Type      string         `json:"type" validate:"required"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// Scorer endpoints

type callGuardAssessRequest struct {
	Signals []string `json:"signals" validate:"required"`
}

type moneyGuardAssessRequest struct {
	Amount                   float64 `json:"amount"`
	PaymentMethod            string  `json:"payment_method" validate:"required"`
	Recipient                string  `json:"recipient" validate:"required"`
	Reason                   string  `json:"reason" validate:"required"`
	DidTheyContactYouFirst   bool    `json:"did_they_contact_you_first"`
	UrgencyPresent           bool    `json:"urgency_present"`
	AskedToKeepSecret        bool    `json:"asked_to_keep_secret"`
	AskedForVerificationCode bool    `json:"asked_for_verification_code"`
	AskedForRemoteAccess     bool    `json:"asked_for_remote_access"`
	ImpersonationType        string  `json:"impersonation_type" validate:"required"`
	SessionID                string  `json:"session_id"`
}

type inboxGuardTextRequest struct {
	Text    string `json:"text" validate:"required"`
	Channel string `json:"channel" validate:"required"`
}

type inboxGuardURLRequest struct {
	URL string `json:"url" validate:"required"`
}

type identityWatchProfileRequest struct {
	Emails   []string `json:"emails" validate:"required,min=1,dive,email"`
	Phones   []string `json:"phones" validate:"required"`
	FullName string   `json:"full_name"`
	State    string   `json:"state"`
}

type identityWatchProfileResponse struct {
	ProfileID string    `json:"profile_id"`
	Created   time.Time `json:"created"`
}

type identityWatchRiskRequest struct {
	ProfileID string          `json:"profile_id" validate:"required"`
	Signals   map[string]bool `json:"signals" validate:"required"`
}

// Auth endpoints

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerResponse struct {
	UserID string `json:"user_id"`
	// VerificationToken stands in for the email delivery step.
	VerificationToken string `json:"verification_token"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type verifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}
