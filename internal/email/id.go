package email

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	idPrefix     = "email_"
	idRandomLen  = 9
	base36Digits = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var idPattern = regexp.MustCompile(`^email_\d+_[a-z0-9]{9}$`)

// ID identifies an email. Generated IDs look like email_<unixMillis>_<9 base36 chars>.
type ID string

func (id ID) String() string { return string(id) }

// GenerateID builds an ID from now and rnd. The result depends only on its
// inputs.
func GenerateID(now time.Time, rnd *rand.Rand) ID {
	var b strings.Builder
	b.Grow(len(idPrefix) + 14 + idRandomLen)
	b.WriteString(idPrefix)
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('_')
	for range idRandomLen {
		b.WriteByte(base36Digits[rnd.IntN(len(base36Digits))])
	}
	return ID(b.String())
}

// NewID generates an ID from the wall clock and the process-wide random source.
func NewID() ID {
	return GenerateID(time.Now(), rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}

// IsValidID reports whether s has the generated ID format.
func IsValidID(s string) bool {
	return idPattern.MatchString(s)
}
