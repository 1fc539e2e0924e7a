package view

import (
	"context"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const dbTimeout = 5 * time.Second

var amountPrinter = message.NewPrinter(language.MustParse("es-MX"))

// FormatAmount renders an amount stored as centavos, e.g. 1234550 ->
// "$12,345.50".
func FormatAmount(centavos int64) string {
	return amountPrinter.Sprintf("$%.2f", float64(centavos)/100.0)
}

// FormatDate formats a time.Time into YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// DbCtx returns a context with a standard timeout for database operations.
func DbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}
