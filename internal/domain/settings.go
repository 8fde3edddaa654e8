package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Platform setting keys
const (
	SettingDepositAddress = "deposit_address"
	SettingVaultAddress   = "vault_address"
	SettingFreePlanRate   = "free_plan_rate"
)

// PlatformSetting is an admin-editable configuration entry
type PlatformSetting struct {
	Key       string     `json:"key"`
	Value     string     `json:"value"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AuditEntry records who changed what through the admin surface
type AuditEntry struct {
	ID        uuid.UUID `json:"id"`
	ActorID   uuid.UUID `json:"actor_id"`
	Action    string    `json:"action"`
	SubjectID string    `json:"subject_id"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAuditEntry stamps an audit record
func NewAuditEntry(actorID uuid.UUID, action, subjectID, detail string, now time.Time) *AuditEntry {
	return &AuditEntry{
		ID:        uuid.New(),
		ActorID:   actorID,
		Action:    action,
		SubjectID: subjectID,
		Detail:    detail,
		CreatedAt: now.UTC().Truncate(time.Microsecond),
	}
}

var (
	evmAddress  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	tronAddress = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
	txHash      = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)
)

// ValidateAddress accepts EVM (0x + 40 hex) and TRON (T + 33 base58) addresses
func ValidateAddress(addr string) error {
	if evmAddress.MatchString(addr) || tronAddress.MatchString(addr) {
		return nil
	}
	return NewValidationError("invalid wallet address format")
}

// ValidateTxHash accepts an optional 32-byte hex hash
func ValidateTxHash(hash string) error {
	if hash == "" || txHash.MatchString(hash) {
		return nil
	}
	return NewValidationError("invalid transaction hash format")
}

// ValidateSetting checks a setting key and its value
func ValidateSetting(key, value string) error {
	switch key {
	case SettingDepositAddress, SettingVaultAddress:
		return ValidateAddress(value)
	case SettingFreePlanRate:
		rate, err := decimal.NewFromString(value)
		if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
			return NewValidationError("free plan rate must be a fraction between 0 and 1")
		}
		return nil
	default:
		return NewValidationError("unknown setting %q", key)
	}
}
