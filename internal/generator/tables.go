package generator

import (
	"fmt"
	"math/rand"
	"regexp"

	"receiptgen/internal/receipt"
)

// Lookup tables the random generators draw from.
var (
	FirstNames = []string{"Aarav", "Vihaan", "Arjun", "Saanvi", "Ananya", "Aditya", "Sanya", "Reyansh", "Aaradhya", "Mohammed", "Sai", "Pari", "Ishaan", "Myra", "Avni", "Rudra", "Aryan", "Anika", "Dhruv", "Ishita", "Krishna", "Neha", "Rohan", "Tanvi", "Ved", "Zara", "Yash", "Sia"}
	LastNames  = []string{"Sharma", "Patel", "Kumar", "Singh", "Gupta", "Mehta", "Verma", "Joshi", "Malik", "Choudhury", "Reddy", "Rao", "Khan", "Ali", "Thakur", "Shah", "Jain", "Garg", "Agrawal", "Das"}

	ParentTitles = []string{"Mr.", "Mrs."}

	Classes = []string{
		"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12",
		"I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X", "XI", "XII",
		"1st", "2nd", "3rd", "4th", "5th", "6th", "7th", "8th", "9th", "10th", "11th", "12th",
	}
	Sections = []string{"A", "B", "C", "D", "E", "F"}
)

// modeTemplate renders the details string for a payment mode and describes
// its shape.
type modeTemplate struct {
	mode    receipt.PaymentMode
	render  func(r *rand.Rand) string
	pattern *regexp.Regexp
}

// Each template draws its reference number fresh on every use.
var paymentTemplates = []modeTemplate{
	{
		mode:    receipt.ModeCash,
		render:  func(*rand.Rand) string { return "Paid in cash at school office" },
		pattern: regexp.MustCompile(`^Paid in cash at school office$`),
	},
	{
		mode:    receipt.ModeCheque,
		render:  func(r *rand.Rand) string { return fmt.Sprintf("Cheque No: %d, SBI Bank", between(r, 100000, 999999)) },
		pattern: regexp.MustCompile(`^Cheque No: \d{6}, SBI Bank$`),
	},
	{
		mode:    receipt.ModeOnline,
		render:  func(r *rand.Rand) string { return fmt.Sprintf("Ref: TXN%d", between(r, 10000000, 99999999)) },
		pattern: regexp.MustCompile(`^Ref: TXN\d{8}$`),
	},
	{
		mode:    receipt.ModeDD,
		render:  func(r *rand.Rand) string { return fmt.Sprintf("DD No: DD%d, HDFC Bank", between(r, 10000, 99999)) },
		pattern: regexp.MustCompile(`^DD No: DD\d{5}, HDFC Bank$`),
	},
	{
		mode:    receipt.ModeUPI,
		render:  func(r *rand.Rand) string { return fmt.Sprintf("UPI Ref: UPI%d", between(r, 100000000, 999999999)) },
		pattern: regexp.MustCompile(`^UPI Ref: UPI\d{9}$`),
	},
}

// MatchesTemplate reports whether details has the shape generated for mode.
func MatchesTemplate(mode receipt.PaymentMode, details string) bool {
	for _, t := range paymentTemplates {
		if t.mode == mode {
			return t.pattern.MatchString(details)
		}
	}
	return false
}

// between returns a uniform integer in [lo, hi].
func between(r *rand.Rand, lo, hi int) int {
	return lo + r.Intn(hi-lo+1)
}

func pick(r *rand.Rand, options []string) string {
	return options[r.Intn(len(options))]
}
