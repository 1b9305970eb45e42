package types

import (
	"github.com/google/uuid"

	"github.com/wardenledger/kernel/crypto"
)

// EventId is the random 128-bit identifier of a single KernelEvent.
type EventId uuid.UUID

// NewEventId generates a fresh random event id.
func NewEventId() EventId {
	return EventId(uuid.New())
}

func (id EventId) String() string {
	return uuid.UUID(id).String()
}

func (id EventId) IsZero() bool {
	return id == EventId{}
}

// DeclarationId identifies a CommitmentDeclaration.
type DeclarationId uuid.UUID

func NewDeclarationId() DeclarationId {
	return DeclarationId(uuid.New())
}

func (id DeclarationId) String() string {
	return uuid.UUID(id).String()
}

// LedgerEntryId identifies a LedgerEntry.
type LedgerEntryId uuid.UUID

func NewLedgerEntryId() LedgerEntryId {
	return LedgerEntryId(uuid.New())
}

func (id LedgerEntryId) String() string {
	return uuid.UUID(id).String()
}

func ParseLedgerEntryId(s string) (LedgerEntryId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return LedgerEntryId{}, err
	}
	return LedgerEntryId(u), nil
}

// ReceiptId identifies a tool execution receipt attached to a LedgerEntry.
type ReceiptId uuid.UUID

func NewReceiptId() ReceiptId {
	return ReceiptId(uuid.New())
}

func (id ReceiptId) String() string {
	return uuid.UUID(id).String()
}

// CapabilityId identifies a granted Capability. Capability ids are
// caller-chosen short strings (e.g. "CAP-COMM"), not generated digests.
type CapabilityId string

// WorldlineId re-exported from crypto for callers that only need the core
// types package; the derivation logic itself lives in crypto, where the
// domain-separated hash and the identity material it consumes belong.
type WorldlineId = crypto.WorldlineId
