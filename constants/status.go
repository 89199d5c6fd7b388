package constants

// DraftStatus is the canonical status for staged review drafts.
type DraftStatus string

// Stable values (store these exact strings in DB).
const (
	DraftStatusPending   DraftStatus = "PENDING_REVIEW" // projected, awaiting human review
	DraftStatusReviewed  DraftStatus = "REVIEWED"       // human confirmed/edited fields
	DraftStatusSubmitted DraftStatus = "SUBMITTED"      // handed off to the document repository
)
