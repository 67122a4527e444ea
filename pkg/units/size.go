package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unit is a size magnitude. The zero value Auto means "no explicit unit".
type Unit int

const (
	Auto Unit = iota
	Byte
	Kilo
	Mega
	Giga
	Tera
	Peta
)

var unitLabels = map[Unit]string{
	Byte: "B",
	Kilo: "KB",
	Mega: "MB",
	Giga: "GB",
	Tera: "TB",
	Peta: "PB",
}

// String returns the display label of the unit.
func (u Unit) String() string {
	if label, ok := unitLabels[u]; ok {
		return label
	}
	return "auto"
}

// exponent is the power of the base the unit represents.
func (u Unit) exponent() int {
	if u <= Byte {
		return 0
	}
	return int(u - Byte)
}

// Base selects the multiplier between adjacent units.
type Base int

const (
	IEC Base = 1024
	SI  Base = 1000
)

// RoundMode controls how the fractional part is produced.
type RoundMode int

const (
	Round    RoundMode = iota // Standard rounding to Decimals places
	Truncate                  // Drop extra digits, never round up
)

// Options configures FormatSize.
type Options struct {
	From      Unit
	To        Unit
	Base      Base
	Mode      RoundMode
	Decimals  int
	Separator string
}

// DefaultOptions returns bytes in, best-fit unit out, IEC base, one rounded decimal.
func DefaultOptions() Options {
	return Options{
		From:      Byte,
		To:        Auto,
		Base:      IEC,
		Mode:      Round,
		Decimals:  1,
		Separator: " ",
	}
}

// FormatSize renders value, expressed in opts.From, as a human-readable size.
//
// When opts.To is set and is not larger than opts.From the value is converted by
// direct multiplication and always truncated to opts.Decimals digits. Otherwise the
// value is divided by the base until it drops below it, stopping at Peta or at
// opts.To. A zero value is always labelled "B".
func FormatSize(value float64, opts Options) string {
	from := opts.From
	if from == Auto {
		from = Byte
	}
	base := float64(opts.Base)
	if opts.Base != SI {
		base = float64(IEC)
	}
	decimals := max(opts.Decimals, 0)

	if opts.To != Auto && opts.To <= from {
		scaled := value * math.Pow(base, float64(from.exponent()-opts.To.exponent()))
		return truncateDecimal(scaled, decimals) + opts.Separator + opts.To.String()
	}

	unit := from
	for math.Abs(value) >= base {
		if unit == Peta || unit == opts.To {
			break
		}
		unit++
		value /= base
	}

	label := unit.String()
	if value == 0 {
		label = Byte.String()
	}

	var number string
	if opts.Mode == Truncate {
		number = truncateDecimal(value, decimals)
	} else {
		number = strconv.FormatFloat(value, 'f', decimals, 64)
	}
	return number + opts.Separator + label
}

// Bytes renders a byte count the way every notification and report does:
// best-fit IEC unit, three rounded decimals.
func Bytes(n int64) string {
	opts := DefaultOptions()
	opts.Decimals = 3
	return FormatSize(float64(n), opts)
}

// truncateDecimal cuts or zero-pads the shortest decimal form of v to exactly
// decimals fractional digits.
func truncateDecimal(v float64, decimals int) string {
	head, tail, _ := strings.Cut(strconv.FormatFloat(v, 'f', -1, 64), ".")
	if decimals == 0 {
		return head
	}
	tail = (tail + strings.Repeat("0", decimals))[:decimals]
	return head + "." + tail
}

// ParseUnit parses unit names such as "k", "KB", "kib" or "GiB".
func ParseUnit(s string) (Unit, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return Auto, nil
	}
	name = strings.TrimSuffix(name, "IB")
	name = strings.TrimSuffix(name, "B")
	switch name {
	case "":
		return Byte, nil
	case "K":
		return Kilo, nil
	case "M":
		return Mega, nil
	case "G":
		return Giga, nil
	case "T":
		return Tera, nil
	case "P":
		return Peta, nil
	default:
		return Auto, fmt.Errorf("unknown size unit %q", s)
	}
}
