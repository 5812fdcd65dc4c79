package model

type VerificationStatus string

const (
	VerificationIdle      VerificationStatus = "idle"
	VerificationPending   VerificationStatus = "pending"
	VerificationSucceeded VerificationStatus = "succeeded"
	VerificationFailed    VerificationStatus = "failed"
)

// VerificationOutcome is scoped to a single verification page view.
type VerificationOutcome struct {
	Status  VerificationStatus
	Message string
}
