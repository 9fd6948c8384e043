package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrMissingFields is returned when required widget fields are absent.
	ErrMissingFields = errors.New("invalid authentication data")
	// ErrBadHash is returned when the widget hash does not verify.
	ErrBadHash = errors.New("telegram login hash mismatch")
)

// CheckRequired verifies the widget fields every login must carry.
func (d LoginData) CheckRequired() error {
	if d.ID == 0 || d.FirstName == "" || d.AuthDate == 0 || d.Hash == "" {
		return ErrMissingFields
	}
	return nil
}

// Fields returns the signed widget fields, omitting empty optional ones.
func (d LoginData) Fields() map[string]string {
	f := map[string]string{
		"id":         strconv.FormatInt(d.ID, 10),
		"first_name": d.FirstName,
		"auth_date":  strconv.FormatInt(d.AuthDate, 10),
	}
	if d.LastName != "" {
		f["last_name"] = d.LastName
	}
	if d.Username != "" {
		f["username"] = d.Username
	}
	if d.PhotoURL != "" {
		f["photo_url"] = d.PhotoURL
	}
	return f
}

// DataCheckString joins key=value pairs sorted by key with newlines.
func DataCheckString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + fields[k]
	}
	return strings.Join(lines, "\n")
}

// Sign computes the login hash for fields: HMAC-SHA256 keyed with
// SHA256(botToken), hex encoded.
func Sign(botToken string, fields map[string]string) string {
	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(DataCheckString(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyLogin checks required fields and the widget hash.
func VerifyLogin(botToken string, d LoginData) error {
	if err := d.CheckRequired(); err != nil {
		return err
	}
	want := Sign(botToken, d.Fields())
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(d.Hash))) {
		return ErrBadHash
	}
	return nil
}
