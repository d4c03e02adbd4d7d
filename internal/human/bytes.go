package human

import (
	"strconv"
)

// Decimal unit labels, each 1000 times the previous.
var labels = [...]string{"B", "kB", "MB", "GB", "TB", "PB", "EB"}

// Returns a human readable version of the bytes using at most three
// significant digits, truncating rather than rounding (eg 123001 into
// 123kB and 1019 into 1.01kB).
func Bytes(size uint64) string {
	unit := uint64(1)
	label := 0
	for label < len(labels)-1 && size/unit >= 1000 {
		unit *= 1000
		label += 1
	}
	whole := size / unit
	if label == 0 || whole >= 100 {
		return strconv.FormatUint(whole, 10) + labels[label]
	}

	// One decimal place for xx.x, two for x.xx.
	places := 2
	div := unit / 100
	if whole >= 10 {
		places = 1
		div = unit / 10
	}
	dec := (size % unit) / div
	if dec == 0 {
		return strconv.FormatUint(whole, 10) + labels[label]
	}
	decStr := strconv.FormatUint(dec, 10)
	if places == 2 && len(decStr) == 1 {
		decStr = "0" + decStr
	} else if len(decStr) == 2 && decStr[1] == '0' {
		decStr = decStr[:1]
	}
	return strconv.FormatUint(whole, 10) + "." + decStr + labels[label]
}
