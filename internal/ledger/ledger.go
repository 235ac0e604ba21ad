package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no entry matches the lookup.
	ErrNotFound = errors.New("ledger entry not found")

	// ErrDuplicateEntry indicates an entry with the same idempotency key and
	// the same amount and type already exists. The existing entry is returned
	// alongside the error and nothing is written.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")

	// ErrIdempotencyConflict indicates the idempotency key was already used
	// for an entry with a different amount or type.
	ErrIdempotencyConflict = errors.New("idempotency key reused with different parameters")

	// ErrInvalidEntry is returned when the amount sign does not match the entry type.
	ErrInvalidEntry = errors.New("invalid ledger entry")
)

// EntryType is the direction of a money movement.
type EntryType string

const (
	EntryTypeCredit EntryType = "CREDIT"
	EntryTypeDebit  EntryType = "DEBIT"
)

// SourceType names the business operation that produced an entry.
type SourceType string

const (
	SourceWalletCredit SourceType = "WALLET_CREDIT"
	SourceUsageBilling SourceType = "USAGE_BILLING"
)

// UsageKeyPrefix prefixes the idempotency key of every usage debit.
const UsageKeyPrefix = "usage:"

// UsageKey returns the idempotency key of the debit produced for a usage event.
func UsageKey(eventID string) string {
	return UsageKeyPrefix + eventID
}

// Entry is one immutable money movement against a wallet. Credits are
// positive, debits negative. SourceID and IdempotencyKey are empty when absent.
type Entry struct {
	ID             string     `json:"id"`
	WalletID       string     `json:"walletId"`
	AmountCents    int64      `json:"amountCents"`
	EntryType      EntryType  `json:"entryType"`
	SourceType     SourceType `json:"sourceType"`
	SourceID       string     `json:"sourceId,omitempty"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Matches reports whether e carries the same amount and type as other.
func (e Entry) Matches(other Entry) bool {
	return e.AmountCents == other.AmountCents && e.EntryType == other.EntryType
}

// Validate checks the amount sign against the entry type. Debits may be zero
// so that free usage still leaves an audit row.
func (e Entry) Validate() error {
	switch e.EntryType {
	case EntryTypeCredit:
		if e.AmountCents <= 0 {
			return ErrInvalidEntry
		}
	case EntryTypeDebit:
		if e.AmountCents > 0 {
			return ErrInvalidEntry
		}
	default:
		return ErrInvalidEntry
	}
	if e.WalletID == "" {
		return ErrInvalidEntry
	}
	return nil
}

// Repository is the append-only store of ledger entries. Writes must run in
// the same transaction as the matching wallet balance change.
type Repository interface {
	// Append writes a single entry. When the idempotency key is already used
	// in the wallet it returns the existing entry with ErrDuplicateEntry, or
	// ErrIdempotencyConflict if amount or type differ.
	Append(ctx context.Context, e Entry) (Entry, error)
	// AppendMany writes entries without deduplication; a key collision fails
	// the whole call.
	AppendMany(ctx context.Context, entries []Entry) error
	FindByIdempotencyKey(ctx context.Context, walletID, key string) (Entry, error)
	// ExistingKeys returns the subset of keys already present in the wallet for the source type.
	ExistingKeys(ctx context.Context, walletID string, source SourceType, keys []string) (map[string]struct{}, error)
	Sum(ctx context.Context, walletID string) (int64, error)
	// ListByWallet returns up to limit entries, newest first.
	ListByWallet(ctx context.Context, walletID string, limit int) ([]Entry, error)
}
