package track

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record expiries. Animated artwork is expensive to regenerate, so those
// records live twice as long as static images and links.
const (
	StaticExpiry   = 7 * 24 * time.Hour
	AnimatedExpiry = 14 * 24 * time.Hour
)

var (
	// ErrMalformed is returned when a stored value cannot be parsed.
	// Callers delete the offending key and treat the read as a miss.
	ErrMalformed = errors.New("malformed cache record")
)

// Record is the value stored in the persistent cache:
// "<unix_epoch_seconds>|<url>" for link records,
// "<unix_epoch_seconds>|<url>|<source>" for image records.
type Record struct {
	Timestamp int64
	URL       string
	Source    string
}

// NewRecord builds a record stamped with the given time.
func NewRecord(now time.Time, url, source string) Record {
	return Record{Timestamp: now.Unix(), URL: url, Source: source}
}

// Encode serializes the record in the stable pipe-delimited format.
// The source segment is omitted when empty.
func (r Record) Encode() string {
	if r.Source == "" {
		return strconv.FormatInt(r.Timestamp, 10) + Separator + r.URL
	}
	return strconv.FormatInt(r.Timestamp, 10) + Separator + r.URL + Separator + r.Source
}

// ParseRecord parses a stored value. The timestamp prefix is mandatory;
// the provenance segment is optional.
func ParseRecord(value string) (Record, error) {
	first := strings.Index(value, Separator)
	if first <= 0 {
		return Record{}, fmt.Errorf("%w: missing separator", ErrMalformed)
	}

	ts, err := strconv.ParseInt(value[:first], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformed, value[:first])
	}

	rest := value[first+1:]
	rec := Record{Timestamp: ts}
	if second := strings.Index(rest, Separator); second >= 0 {
		rec.URL = rest[:second]
		rec.Source = rest[second+1:]
	} else {
		rec.URL = rest
	}
	return rec, nil
}

// Expired reports whether the record has outlived the given expiry window.
// A timestamp in the future counts as expired; it can only come from a
// corrupt write or a clock that went backwards.
func (r Record) Expired(now time.Time, expiry time.Duration) bool {
	age := now.Unix() - r.Timestamp
	if age < 0 {
		return true
	}
	return age > int64(expiry/time.Second)
}

// ExpiryForKey returns the expiry window for a full cache key, which is
// longer for the animated namespace.
func ExpiryForKey(key string) time.Duration {
	if strings.HasPrefix(key, PrefixAnimated) {
		return AnimatedExpiry
	}
	return StaticExpiry
}
