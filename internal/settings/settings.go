// Package settings persists the school identity and signatory the user last
// entered, so later sessions start from them.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"receiptgen/internal/logging"
	"receiptgen/internal/receipt"
	"receiptgen/internal/store"
)

// StorageKey is the key settings are stored under.
const StorageKey = "kiitReceiptGeneratorSettings"

// Settings is the persisted subset of a receipt.
type Settings struct {
	SchoolName     string `json:"schoolName"`
	SchoolAddress  string `json:"schoolAddress"`
	SchoolContact  string `json:"schoolContact"`
	LogoURL        string `json:"logoUrl"`
	AccountantName string `json:"accountantName"`
}

// KV is the storage the settings live in.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Defaults returns the settings of the default receipt.
func Defaults() Settings {
	return FromRecord(receipt.Default())
}

// FromRecord extracts the persisted fields from rec.
func FromRecord(rec receipt.Record) Settings {
	return Settings{
		SchoolName:     rec.SchoolName,
		SchoolAddress:  rec.SchoolAddress,
		SchoolContact:  rec.SchoolContact,
		LogoURL:        rec.LogoURL,
		AccountantName: rec.AccountantName,
	}
}

// Apply overlays the settings on rec.
func (s Settings) Apply(rec *receipt.Record) {
	rec.SchoolName = s.SchoolName
	rec.SchoolAddress = s.SchoolAddress
	rec.SchoolContact = s.SchoolContact
	rec.LogoURL = s.LogoURL
	rec.AccountantName = s.AccountantName
}

// School returns the school identity part of the settings.
func (s Settings) School() receipt.SchoolIdentity {
	return receipt.SchoolIdentity{
		Name:    s.SchoolName,
		Address: s.SchoolAddress,
		Contact: s.SchoolContact,
		LogoURL: s.LogoURL,
	}
}

// Record returns the default receipt with the settings applied.
func (s Settings) Record() receipt.Record {
	rec := receipt.Default()
	s.Apply(&rec)
	return rec
}

// Load reads the stored settings. Missing settings yield the defaults;
// fields absent from the stored JSON keep their default values. A corrupt
// entry is logged and ignored.
func Load(ctx context.Context, kv KV) (Settings, error) {
	s := Defaults()
	raw, err := kv.Get(ctx, StorageKey)
	if errors.Is(err, store.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("load settings: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		logging.Get(logging.CategorySettings).Error("could not load settings, using defaults: %v", err)
		return Defaults(), nil
	}
	return s, nil
}

// Save writes s immediately.
func Save(ctx context.Context, kv KV, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := kv.Put(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Reset removes the stored settings and returns the defaults.
func Reset(ctx context.Context, kv KV) (Settings, error) {
	if err := kv.Delete(ctx, StorageKey); err != nil {
		return Defaults(), fmt.Errorf("reset settings: %w", err)
	}
	return Defaults(), nil
}
