package pricing

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var rubPrinter = message.NewPrinter(language.Russian)

// FormatRubles renders a whole-ruble amount with Russian digit grouping and
// the ruble sign, e.g. "10 180₽".
func FormatRubles(amount int64) string {
	return rubPrinter.Sprintf("%d₽", amount)
}
