package generator

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"receiptgen/internal/receipt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var receiptNumberRe = regexp.MustCompile(`^REC-(\d{4})-\d{4}$`)

func TestPayment_Invariants(t *testing.T) {
	g := NewWithSeed(42)
	for i := 0; i < 2000; i++ {
		p := g.Payment()

		assert.GreaterOrEqual(t, p.Amount, float64(MinAmount))
		assert.LessOrEqual(t, p.Amount, float64(MaxAmount))
		assert.Zero(t, math.Mod(p.Amount, 100), "amount %v is not a multiple of 100", p.Amount)

		require.True(t, p.Mode.Valid(), "mode %q", p.Mode)
		assert.True(t, MatchesTemplate(p.Mode, p.Details), "%s / %q", p.Mode, p.Details)

		date, err := time.Parse("2006-01-02", p.Date)
		require.NoError(t, err)
		assert.False(t, date.Before(WindowStart))
		assert.False(t, date.After(WindowEnd))

		year := date.Year()
		assert.Equal(t, strconv.Itoa(year)+"-"+strconv.Itoa(year+1), p.AcademicYear)

		m := receiptNumberRe.FindStringSubmatch(p.ReceiptNumber)
		require.Len(t, m, 2, "receipt number %q", p.ReceiptNumber)
		assert.Equal(t, strconv.Itoa(year), m[1])
	}
}

func TestPayment_CoversEveryMode(t *testing.T) {
	g := NewWithSeed(7)
	seen := map[receipt.PaymentMode]bool{}
	for i := 0; i < 500; i++ {
		seen[g.Payment().Mode] = true
	}
	assert.Len(t, seen, len(receipt.Modes))
}

func TestStudent_ParentSharesSurname(t *testing.T) {
	g := NewWithSeed(1)
	for i := 0; i < 200; i++ {
		s := g.Student()
		parts := strings.Fields(s.Name)
		require.Len(t, parts, 2)
		assert.Contains(t, FirstNames, parts[0])
		assert.Contains(t, LastNames, parts[1])
		assert.True(t, strings.HasSuffix(s.Parent, " "+parts[1]))
		assert.Contains(t, Classes, s.Class)
		assert.Contains(t, Sections, s.Section)
		roll, err := strconv.Atoi(s.Roll)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, roll, 10000)
		assert.LessOrEqual(t, roll, 99999)
	}
}

func TestStudentFor(t *testing.T) {
	g := NewWithSeed(3)

	t.Run("uses known parent", func(t *testing.T) {
		pairs := receipt.NamePairs{"Priya Patel": "Mr. Suresh Patel"}
		s := g.StudentFor("  Priya Patel ", pairs)
		assert.Equal(t, "Priya Patel", s.Name)
		assert.Equal(t, "Mr. Suresh Patel", s.Parent)
	})

	t.Run("derives parent from surname", func(t *testing.T) {
		s := g.StudentFor("Rohan Kumar Verma", nil)
		assert.Equal(t, "Rohan Kumar Verma", s.Name)
		assert.Regexp(t, `^(Mr\.|Mrs\.) Verma$`, s.Parent)
	})

	t.Run("single word name has empty surname", func(t *testing.T) {
		s := g.StudentFor("Zara", nil)
		assert.Regexp(t, `^(Mr\.|Mrs\.) $`, s.Parent)
	})
}

func TestApply(t *testing.T) {
	g := NewWithSeed(9)
	rec := receipt.Default()
	s := g.Student()
	p := g.Payment()
	s.Apply(&rec)
	p.Apply(&rec)

	assert.Equal(t, s.Name, rec.StudentName)
	assert.Equal(t, p.ReceiptNumber, rec.ReceiptNumber)
	assert.NoError(t, rec.Validate())
}

func TestMatchesTemplate(t *testing.T) {
	assert.True(t, MatchesTemplate(receipt.ModeCheque, "Cheque No: 654321, SBI Bank"))
	assert.False(t, MatchesTemplate(receipt.ModeCheque, "Cheque No: 65432, SBI Bank"))
	assert.True(t, MatchesTemplate(receipt.ModeUPI, "UPI Ref: UPI123456789"))
	assert.False(t, MatchesTemplate("Barter", "two goats"))
}
