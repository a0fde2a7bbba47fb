package keystore

import (
	"fmt"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// LocaleComparator builds a single Comparator backed by one
// golang.org/x/text/collate Collator for the named locale (a BCP 47 tag,
// e.g. "en", "de", "sv"). The comparison still runs over the raw record
// bytes (decoded as UTF-8; bytes that aren't valid UTF-8 collate no worse
// than under byte order, since the collator falls back to byte comparison
// for invalid runes); it just uses a real collation table instead of
// relying on a host-installed locale.
//
// The returned Comparator must not be shared across goroutines:
// *collate.Collator.Compare mutates internal iterator buffers and is not
// safe for concurrent use. Callers that sort with more than one goroutine
// at a time (one Store per parallel worker, say) must use
// LocaleComparatorFactory instead, so each owner gets its own Collator.
func LocaleComparator(locale string) (Comparator, error) {
	factory, err := LocaleComparatorFactory(locale)
	if err != nil {
		return nil, err
	}

	return factory(), nil
}

// LocaleComparatorFactory validates locale once and returns a factory
// that builds a fresh Comparator, backed by its own *collate.Collator, on
// every call. Use this whenever more than one goroutine may be comparing
// records concurrently under the same locale.
func LocaleComparatorFactory(locale string) (func() Comparator, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, ErrInvalidInput)
	}

	return func() Comparator {
		col := collate.New(tag)

		return func(a, b []byte) int {
			return col.Compare(a, b)
		}
	}, nil
}
