package domain

import "time"

type ValidationMethod string

const (
	ValidationMethodManual ValidationMethod = "MANUAL"
	ValidationMethodQRScan ValidationMethod = "QR_SCAN"
)

func (m ValidationMethod) Valid() bool {
	return m == ValidationMethodManual || m == ValidationMethodQRScan
}

type ValidationResult string

const (
	ValidationResultValid   ValidationResult = "VALID"
	ValidationResultInvalid ValidationResult = "INVALID"
)

// TicketValidation is one append-only admission attempt. PrevHash and Hash
// chain the records of a ticket together; see package audit.
type TicketValidation struct {
	ID          string
	TicketID    string
	Method      ValidationMethod
	Result      ValidationResult
	ValidatedAt time.Time
	PrevHash    string
	Hash        string
}

// ValidationState is what the decision rule needs to know about a ticket's
// history: whether a VALID record exists and the hash of the latest record.
type ValidationState struct {
	Validated bool
	LastHash  string
	Attempts  int
}

// Presentation is how a ticket is presented at the gate. Exactly one of
// TicketID or CodeID is set, matching Method.
type Presentation struct {
	Method   ValidationMethod
	TicketID string
	CodeID   string
}

// ManualPresentation is a ticket identified directly by staff.
func ManualPresentation(ticketID string) Presentation {
	return Presentation{Method: ValidationMethodManual, TicketID: ticketID}
}

// AccessCodePresentation is a scanned access code.
func AccessCodePresentation(codeID string) Presentation {
	return Presentation{Method: ValidationMethodQRScan, CodeID: codeID}
}
