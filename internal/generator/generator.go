// Package generator produces random but plausible student and payment
// details for tuition receipts.
package generator

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"receiptgen/internal/receipt"
)

// Payment date window and amount range.
var (
	WindowStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	WindowEnd   = time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)
)

const (
	MinAmount = 5000
	MaxAmount = 35000
)

// Student holds the generated student sub-record.
type Student struct {
	Name    string
	Class   string
	Section string
	Roll    string
	Parent  string
}

// Apply copies the student fields onto rec.
func (s Student) Apply(rec *receipt.Record) {
	rec.StudentName = s.Name
	rec.StudentClass = s.Class
	rec.StudentSection = s.Section
	rec.StudentRoll = s.Roll
	rec.ParentName = s.Parent
}

// Payment holds the generated payment sub-record.
type Payment struct {
	Date          string
	AcademicYear  string
	Amount        float64
	Mode          receipt.PaymentMode
	Details       string
	ReceiptNumber string
}

// Apply copies the payment fields onto rec.
func (p Payment) Apply(rec *receipt.Record) {
	rec.PaymentDate = p.Date
	rec.AcademicYear = p.AcademicYear
	rec.PaymentAmount = p.Amount
	rec.PaymentMode = p.Mode
	rec.PaymentDetails = p.Details
	rec.ReceiptNumber = p.ReceiptNumber
}

// Generator draws from the lookup tables. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a generator seeded from the clock.
func New() *Generator {
	return NewWithSeed(time.Now().UnixNano())
}

// NewWithSeed returns a deterministic generator.
func NewWithSeed(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Student generates a random student with a matching parent name.
func (g *Generator) Student() Student {
	g.mu.Lock()
	defer g.mu.Unlock()

	first := pick(g.rng, FirstNames)
	last := pick(g.rng, LastNames)
	s := g.classLocked()
	s.Name = first + " " + last
	s.Parent = pick(g.rng, ParentTitles) + " " + last
	return s
}

// StudentFor generates class/section/roll for a given student name. The
// parent comes from pairs when the name is known there, otherwise it is a
// title plus the name's last word.
func (g *Generator) StudentFor(fullName string, pairs receipt.NamePairs) Student {
	name := strings.TrimSpace(fullName)

	g.mu.Lock()
	s := g.classLocked()
	title := pick(g.rng, ParentTitles)
	g.mu.Unlock()

	s.Name = name
	if parent, ok := pairs[name]; ok && parent != "" {
		s.Parent = parent
		return s
	}
	lastName := ""
	if parts := strings.Split(name, " "); len(parts) > 1 {
		lastName = parts[len(parts)-1]
	}
	s.Parent = title + " " + lastName
	return s
}

func (g *Generator) classLocked() Student {
	return Student{
		Class:   pick(g.rng, Classes),
		Section: pick(g.rng, Sections),
		Roll:    strconv.Itoa(between(g.rng, 10000, 99999)),
	}
}

// Payment generates a payment dated inside the window.
func (g *Generator) Payment() Payment {
	g.mu.Lock()
	defer g.mu.Unlock()

	span := WindowEnd.Sub(WindowStart)
	date := WindowStart.Add(time.Duration(g.rng.Float64() * float64(span)))
	year := date.Year()

	amount := math.Round((g.rng.Float64()*(MaxAmount-MinAmount)+MinAmount)/100) * 100
	tpl := paymentTemplates[g.rng.Intn(len(paymentTemplates))]

	return Payment{
		Date:          date.Format("2006-01-02"),
		AcademicYear:  fmt.Sprintf("%d-%d", year, year+1),
		Amount:        amount,
		Mode:          tpl.mode,
		Details:       tpl.render(g.rng),
		ReceiptNumber: fmt.Sprintf("REC-%d-%d", year, between(g.rng, 1000, 9999)),
	}
}
