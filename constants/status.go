package constants

// ReviewStatus is the canonical status for a review item.
type ReviewStatus string

// Stable values (store these exact strings).
const (
	ReviewPending  ReviewStatus = "pending"
	ReviewAccepted ReviewStatus = "accepted" // terminal
	ReviewRejected ReviewStatus = "rejected" // terminal
)

// Terminal reports whether the status permits no further transitions.
func (s ReviewStatus) Terminal() bool {
	return s == ReviewAccepted || s == ReviewRejected
}

// Decision is the human verdict applied to a pending review item.
type Decision string

const (
	DecisionAccept Decision = "accepted"
	DecisionReject Decision = "rejected"
)

// TokenProvider identifies which external service an OAuth token belongs to.
type TokenProvider string

const (
	ProviderGmail   TokenProvider = "gmail"
	ProviderDropbox TokenProvider = "dropbox"
)
