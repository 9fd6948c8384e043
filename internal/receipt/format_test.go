package receipt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAmountInWords(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "Zero Rupees Only"},
		{7, "Seven Rupees Only"},
		{15, "Fifteen Rupees Only"},
		{40, "Forty Rupees Only"},
		{101, "One Hundred One Rupees Only"},
		{12500, "Twelve Thousand Five Hundred Rupees Only"},
		{35000, "Thirty Five Thousand Rupees Only"},
		{100000, "One Lakh Rupees Only"},
		{219019, "Two Lakh Nineteen Thousand Nineteen Rupees Only"},
		{10000000, "One Crore Rupees Only"},
		{123456789, "Twelve Crore Thirty Four Lakh Fifty Six Thousand Seven Hundred Eighty Nine Rupees Only"},
		{10000000000, "One Thousand Crore Rupees Only"},
	}
	for _, tt := range tests {
		got := AmountInWords(tt.in)
		assert.Equal(t, tt.want, got, "AmountInWords(%d)", tt.in)
		assert.True(t, strings.HasSuffix(got, "Rupees Only"))
		assert.NotContains(t, got, "  ")
	}
}

func TestAmountInWords_NoDoubleSpacesAcrossRange(t *testing.T) {
	for n := int64(0); n <= 200000; n += 37 {
		got := AmountInWords(n)
		if strings.Contains(got, "  ") || !strings.HasSuffix(got, " Rupees Only") {
			t.Fatalf("AmountInWords(%d) = %q", n, got)
		}
	}
}

func TestAmountInWordsFloat_Truncates(t *testing.T) {
	assert.Equal(t, "Twelve Thousand Five Hundred Rupees Only", AmountInWordsFloat(12500.75))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "15/07/2024", FormatDate("2024-07-15"))
	assert.Equal(t, "", FormatDate(""))
	assert.Equal(t, "31/12/2025", FormatDate("2025-12-31"))
	assert.Equal(t, "next tuesday", FormatDate("next tuesday"))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0.00", FormatAmount(0))
	assert.Equal(t, "500.00", FormatAmount(500))
	assert.Equal(t, "12,500.00", FormatAmount(12500))
	assert.Equal(t, "1,00,000.00", FormatAmount(100000))
	assert.Equal(t, "1,23,45,678.50", FormatAmount(12345678.5))
	assert.Equal(t, "-1,200.00", FormatAmount(-1200))
}

func TestFilenames(t *testing.T) {
	rec := Default()
	rec.StudentName = "Aarav  Kumar Sharma"
	rec.ReceiptNumber = "REC-2025-4821"

	assert.Equal(t, "kiit-tuition-receipt-REC-2025-4821.png", SingleFilename(rec))
	assert.Equal(t, "tuition_receipt_Aarav_Kumar_Sharma_REC-2025-4821.png", ItemFilename(rec))

	rec.ReceiptNumber = ""
	assert.Equal(t, "kiit-tuition-receipt-receipt.png", SingleFilename(rec))

	rec.StudentName = "a/b"
	rec.ReceiptNumber = "1"
	assert.Equal(t, "tuition_receipt_a_b_1.png", ItemFilename(rec))
}

func TestBulkArchiveName(t *testing.T) {
	ts := time.UnixMilli(1721030400123)
	assert.Equal(t, "kiit-receipts-bulk-1721030400123.zip", BulkArchiveName(ts))
}

func TestManifest(t *testing.T) {
	recs := []Record{{StudentName: "Aarav Sharma"}, {StudentName: "Priya Patel"}}
	assert.Equal(t, "1. Aarav Sharma\n2. Priya Patel", Manifest(recs))
	assert.Equal(t, "", Manifest(nil))
}
