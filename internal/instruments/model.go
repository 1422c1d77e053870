package instruments

import (
	"time"

	"github.com/shopspring/decimal"
)

// GuaranteeStatus is the bank guarantee lifecycle. Released, claimed and
// expired are terminal.
type GuaranteeStatus string

const (
	GuaranteeActive   GuaranteeStatus = "ACTIVE"
	GuaranteeReleased GuaranteeStatus = "RELEASED"
	GuaranteeClaimed  GuaranteeStatus = "CLAIMED"
	GuaranteeExpired  GuaranteeStatus = "EXPIRED"
)

// BankGuarantee is a guarantee issued in favour of a beneficiary.
type BankGuarantee struct {
	ID          int64
	Reference   string
	Beneficiary string
	Amount      decimal.Decimal
	Currency    string
	IssueDate   time.Time
	ExpiryDate  time.Time
	Status      GuaranteeStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LCStatus is the letter-of-credit lifecycle. Closed and expired are
// terminal.
type LCStatus string

const (
	LCIssued  LCStatus = "ISSUED"
	LCClosed  LCStatus = "CLOSED"
	LCExpired LCStatus = "EXPIRED"
)

// LetterOfCredit carries a documentary credit limit with a tolerance
// band. UtilizedAmount is a cached recompute over accepted and paid
// utilizations, never incremented in place.
type LetterOfCredit struct {
	ID               int64
	Reference        string
	Applicant        string
	Beneficiary      string
	Amount           decimal.Decimal
	TolerancePercent decimal.Decimal
	Currency         string
	IssueDate        time.Time
	ExpiryDate       time.Time
	Status           LCStatus
	UtilizedAmount   decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UtilizationStatus is the drawing lifecycle under a letter of credit.
type UtilizationStatus string

const (
	UtilizationRequested UtilizationStatus = "REQUESTED"
	UtilizationAccepted  UtilizationStatus = "ACCEPTED"
	UtilizationRejected  UtilizationStatus = "REJECTED"
	UtilizationPaid      UtilizationStatus = "PAID"
)

// Utilization is one drawing against a letter of credit.
type Utilization struct {
	ID        int64
	LCID      int64
	Amount    decimal.Decimal
	Reference string
	Status    UtilizationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AmendmentStatus is the lifecycle of a proposed LC amendment.
type AmendmentStatus string

const (
	AmendmentPending  AmendmentStatus = "PENDING"
	AmendmentAccepted AmendmentStatus = "ACCEPTED"
	AmendmentRejected AmendmentStatus = "REJECTED"
)

// Amendment proposes a new amount and/or expiry for a letter of credit.
// Acceptance is applied to the LC aggregate through ApplyAmendment.
type Amendment struct {
	ID        int64
	LCID      int64
	NewAmount *decimal.Decimal
	NewExpiry *time.Time
	Status    AmendmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChequeKind distinguishes cheques we issue from cheques we receive.
type ChequeKind string

const (
	ChequeIssued   ChequeKind = "ISSUED"
	ChequeReceived ChequeKind = "RECEIVED"
)

// ChequeStatus is the cheque lifecycle. Cleared, bounced, stopped and
// cancelled are terminal; deposited and printed are not.
type ChequeStatus string

const (
	ChequeOpen      ChequeStatus = "ISSUED"
	ChequeDeposited ChequeStatus = "DEPOSITED"
	ChequePrinted   ChequeStatus = "PRINTED"
	ChequeCleared   ChequeStatus = "CLEARED"
	ChequeBounced   ChequeStatus = "BOUNCED"
	ChequeStopped   ChequeStatus = "STOPPED"
	ChequeCancelled ChequeStatus = "CANCELLED"
)

// Cheque is a single issued or received cheque.
type Cheque struct {
	ID        int64
	Kind      ChequeKind
	Number    string
	Party     string
	Amount    decimal.Decimal
	Currency  string
	DueDate   time.Time
	Status    ChequeStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
