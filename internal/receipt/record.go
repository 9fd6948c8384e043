// Package receipt defines the tuition receipt record and the formatting
// helpers the rendered receipt needs (amount in words, dates, filenames).
package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// PaymentMode is one of a fixed set of payment channels.
type PaymentMode string

const (
	ModeCash   PaymentMode = "Cash"
	ModeCheque PaymentMode = "Cheque"
	ModeOnline PaymentMode = "Online Transfer"
	ModeDD     PaymentMode = "DD (Demand Draft)"
	ModeUPI    PaymentMode = "UPI"
)

// Modes lists every valid payment mode in display order.
var Modes = []PaymentMode{ModeCash, ModeCheque, ModeOnline, ModeDD, ModeUPI}

// ErrInvalidMode is returned for payment modes outside Modes.
var ErrInvalidMode = errors.New("invalid payment mode")

// Valid reports whether m is one of Modes.
func (m PaymentMode) Valid() bool {
	for _, v := range Modes {
		if m == v {
			return true
		}
	}
	return false
}

// UnmarshalJSON rejects unknown modes so a decoded Record always carries a
// valid one.
func (m *PaymentMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mode := PaymentMode(s)
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	*m = mode
	return nil
}

// Record is the full content of one receipt.
type Record struct {
	SchoolName    string `json:"schoolName"`
	SchoolAddress string `json:"schoolAddress"`
	SchoolContact string `json:"schoolContact"`
	LogoURL       string `json:"logoUrl"`

	StudentName    string `json:"studentName"`
	StudentClass   string `json:"studentClass"`
	StudentSection string `json:"studentSection"`
	StudentRoll    string `json:"studentRoll"`
	ParentName     string `json:"parentName"`

	ReceiptNumber  string      `json:"receiptNumber"`
	PaymentDate    string      `json:"paymentDate"` // YYYY-MM-DD
	AcademicYear   string      `json:"academicYear"`
	PaymentAmount  float64     `json:"paymentAmount"`
	PaymentMode    PaymentMode `json:"paymentMode"`
	PaymentDetails string      `json:"paymentDetails"`

	AccountantName string `json:"accountantName"`
	SignatureURL   string `json:"signatureUrl"`
}

// DefaultAccountantName is the placeholder signatory.
const DefaultAccountantName = "Principal Accountant"

// DefaultLogoURL is the KIIT logo used when no logo is configured.
const DefaultLogoURL = "https://raw.githubusercontent.com/rathcponleu2-png/LogoKITT/refs/heads/main/imgi_1_small_Kalinga_Institute_of_Industrial_Technology_KIIT_University_17335b6db0_ce378cd5fb_c4bfd9e839_5ec82024ff.png"

// Default returns the sample KIIT receipt.
func Default() Record {
	return Record{
		SchoolName:     "Kalinga Institute of Industrial Technology",
		SchoolAddress:  "KIIT Rd, Patia, Bhubaneswar, Odisha 751024, India",
		SchoolContact:  "Phone: +91 80807 35735 | Email: info@kiit.ac.in",
		LogoURL:        DefaultLogoURL,
		StudentName:    "Aarav Sharma",
		StudentClass:   "10th",
		StudentSection: "A",
		StudentRoll:    "10245",
		ParentName:     "Rajesh Sharma",
		ReceiptNumber:  "REC-2024-10245",
		PaymentDate:    "2024-07-15",
		AcademicYear:   "2024-2025",
		PaymentAmount:  12500,
		PaymentMode:    ModeCheque,
		PaymentDetails: "Cheque No: 654321, SBI Bank",
		AccountantName: DefaultAccountantName,
	}
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if math.IsNaN(r.PaymentAmount) || math.IsInf(r.PaymentAmount, 0) {
		return fmt.Errorf("payment amount must be a finite number")
	}
	if r.PaymentAmount < 0 {
		return fmt.Errorf("payment amount must not be negative, got %v", r.PaymentAmount)
	}
	if !r.PaymentMode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, r.PaymentMode)
	}
	return nil
}

// SchoolIdentity is the school block carried over between receipts.
type SchoolIdentity struct {
	Name    string `json:"schoolName"`
	Address string `json:"schoolAddress"`
	Contact string `json:"schoolContact"`
	LogoURL string `json:"logoUrl"`
}

// School extracts the school identity of r.
func (r Record) School() SchoolIdentity {
	return SchoolIdentity{
		Name:    r.SchoolName,
		Address: r.SchoolAddress,
		Contact: r.SchoolContact,
		LogoURL: r.LogoURL,
	}
}

// Apply copies the identity onto rec.
func (s SchoolIdentity) Apply(rec *Record) {
	rec.SchoolName = s.Name
	rec.SchoolAddress = s.Address
	rec.SchoolContact = s.Contact
	rec.LogoURL = s.LogoURL
}

// NamePair is an AI generated (student, parent) name pair.
type NamePair struct {
	StudentName string `json:"studentName"`
	ParentName  string `json:"parentName"`
}

// NamePairs maps student name to parent name.
type NamePairs map[string]string

// PairsFrom indexes pairs by student name. A later pair with the same
// student name replaces the earlier one.
func PairsFrom(pairs []NamePair) NamePairs {
	m := make(NamePairs, len(pairs))
	for _, p := range pairs {
		m[p.StudentName] = p.ParentName
	}
	return m
}

// StudentNames returns the student names of pairs in order.
func StudentNames(pairs []NamePair) []string {
	names := make([]string, 0, len(pairs))
	for _, p := range pairs {
		names = append(names, p.StudentName)
	}
	return names
}
