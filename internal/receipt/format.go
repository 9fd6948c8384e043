package receipt

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ones  = []string{"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine"}
	teens = []string{"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen", "Seventeen", "Eighteen", "Nineteen"}
	tens  = []string{"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety"}
)

// AmountInWords spells a rupee amount using the Indian numbering system,
// e.g. 12500 -> "Twelve Thousand Five Hundred Rupees Only".
func AmountInWords(n int64) string {
	if n == 0 {
		return "Zero Rupees Only"
	}
	prefix := ""
	if n < 0 {
		prefix = "Minus "
		n = -n
	}
	return prefix + strings.Join(indianWords(n), " ") + " Rupees Only"
}

// AmountInWordsFloat truncates f to whole rupees before spelling it.
func AmountInWordsFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return AmountInWords(0)
	}
	return AmountInWords(int64(f))
}

func indianWords(n int64) []string {
	var words []string
	if crore := n / 10000000; crore > 0 {
		// Amounts past 999 crore keep counting in crores.
		words = append(words, indianWords(crore)...)
		words = append(words, "Crore")
	}
	n %= 10000000
	if lakh := n / 100000; lakh > 0 {
		words = append(words, chunkWords(lakh)...)
		words = append(words, "Lakh")
	}
	n %= 100000
	if thousand := n / 1000; thousand > 0 {
		words = append(words, chunkWords(thousand)...)
		words = append(words, "Thousand")
	}
	n %= 1000
	if n > 0 {
		words = append(words, chunkWords(n)...)
	}
	return words
}

// chunkWords spells 1..999.
func chunkWords(n int64) []string {
	var words []string
	if n >= 100 {
		words = append(words, ones[n/100], "Hundred")
		n %= 100
	}
	switch {
	case n >= 20:
		words = append(words, tens[n/10])
		n %= 10
	case n >= 10:
		words = append(words, teens[n-10])
		n = 0
	}
	if n > 0 {
		words = append(words, ones[n])
	}
	return words
}

// FormatDate turns "2024-07-15" into "15/07/2024". Empty input gives empty
// output; anything unparseable is returned as is.
func FormatDate(s string) string {
	if s == "" {
		return ""
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return s
	}
	return t.Format("02/01/2006")
}

// FormatAmount renders f with en-IN digit grouping and two decimals,
// e.g. 100000 -> "1,00,000.00".
func FormatAmount(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0.00"
	}
	neg := f < 0
	s := strconv.FormatFloat(math.Abs(f), 'f', 2, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var grouped string
	if len(intPart) <= 3 {
		grouped = intPart
	} else {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		grouped = strings.Join(groups, ",") + "," + tail
	}
	if neg {
		grouped = "-" + grouped
	}
	return grouped + "." + frac
}

// ManifestName is the archive entry listing the students of a bulk export.
const ManifestName = "student_list.txt"

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	pathChars     = strings.NewReplacer("/", "_", "\\", "_")
)

// SingleFilename names a single receipt download.
func SingleFilename(r Record) string {
	number := r.ReceiptNumber
	if number == "" {
		number = "receipt"
	}
	return fmt.Sprintf("kiit-tuition-receipt-%s.png", pathChars.Replace(number))
}

// ItemFilename names one receipt image inside a bulk archive.
func ItemFilename(r Record) string {
	name := whitespaceRun.ReplaceAllString(r.StudentName, "_")
	return pathChars.Replace(fmt.Sprintf("tuition_receipt_%s_%s.png", name, r.ReceiptNumber))
}

// BulkArchiveName names a bulk archive created at t.
func BulkArchiveName(t time.Time) string {
	return fmt.Sprintf("kiit-receipts-bulk-%d.zip", t.UnixMilli())
}

// Manifest lists student names as "1. Name" lines in order.
func Manifest(records []Record) string {
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = fmt.Sprintf("%d. %s", i+1, r.StudentName)
	}
	return strings.Join(lines, "\n")
}
