// Package fixedpoint implements a signed decimal scalar with exactly 8
// fractional digits, backed by a single int64. It is the unit type for
// every price, size, and basis-point spread value that crosses the hot
// path: every operation is total (returns an explicit ok flag instead of
// panicking or wrapping) and none of them allocate.
package fixedpoint

import "math/bits"

// Scale is 10^8: one F8 unit of the underlying int64 is 10^-8 of the
// represented value.
const Scale int64 = 100_000_000

// F8 is a fixed-point decimal scaled by Scale. The zero value is 0.
type F8 int64

// Zero is the additive identity.
const Zero F8 = 0

// Parse reads an optionally-signed decimal from ASCII bytes: an optional
// leading '+'/'-', one or more integer digits, and an optional '.'
// followed by 0-8 fractional digits. Leading zeros are permitted. Any
// other shape (empty input, lone sign, non-digit, more than 8 fractional
// digits, or magnitude overflow) returns ok=false with no side effects.
func Parse(b []byte) (F8, bool) {
	if len(b) == 0 {
		return 0, false
	}

	i := 0
	neg := false
	switch b[0] {
	case '-':
		neg = true
		i++
	case '+':
		i++
	}
	if i >= len(b) {
		return 0, false
	}

	var intPart uint64
	digitsSeen := false
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		d := uint64(b[i] - '0')
		// Overflow-checked accumulate: intPart*10+d must not wrap uint64.
		if intPart > maxUint64/10 {
			return 0, false
		}
		intPart *= 10
		next := intPart + d
		if next < intPart {
			return 0, false
		}
		intPart = next
		i++
		digitsSeen = true
	}
	if !digitsSeen {
		return 0, false
	}

	var fracPart uint64
	fracDigits := 0
	if i < len(b) && b[i] == '.' {
		i++
		for i < len(b) && b[i] >= '0' && b[i] <= '9' {
			if fracDigits == 8 {
				return 0, false
			}
			fracPart = fracPart*10 + uint64(b[i]-'0')
			i++
			fracDigits++
		}
	}
	if i != len(b) {
		return 0, false
	}

	for fracDigits < 8 {
		fracPart *= 10
		fracDigits++
	}

	hi, lo := bits.Mul64(intPart, uint64(Scale))
	if hi != 0 {
		return 0, false
	}
	sum, carry := bits.Add64(lo, fracPart, 0)
	if carry != 0 {
		return 0, false
	}
	if sum > maxInt64AsUint {
		return 0, false
	}

	v := int64(sum)
	if neg {
		v = -v
	}
	return F8(v), true
}

const maxUint64 = ^uint64(0)
const maxInt64AsUint = uint64(1<<63 - 1)

// Format writes the 8-fractional-digit decimal representation of v into
// buf (which must be large enough — 30 bytes is always sufficient) and
// returns the number of bytes written. The integer part is the minimal
// representation (no leading zeros beyond a single "0"); the fractional
// part is always exactly 8 digits.
func Format(buf []byte, v F8) int {
	n := 0
	uv := uint64(v)
	if v < 0 {
		buf[0] = '-'
		n = 1
		uv = uint64(-v)
	}

	intPart := uv / uint64(Scale)
	fracPart := uv % uint64(Scale)

	n += formatUint(buf[n:], intPart)
	buf[n] = '.'
	n++

	// Fractional part, zero-padded to 8 digits.
	var frac [8]byte
	for i := 7; i >= 0; i-- {
		frac[i] = byte('0' + fracPart%10)
		fracPart /= 10
	}
	n += copy(buf[n:], frac[:])
	return n
}

func formatUint(buf []byte, v uint64) int {
	if v == 0 {
		buf[0] = '0'
		return 1
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return copy(buf, tmp[i:])
}

// Add returns a+b and ok=false on signed 64-bit overflow.
func Add(a, b F8) (F8, bool) {
	sum := int64(a) + int64(b)
	if (int64(b) > 0 && sum < int64(a)) || (int64(b) < 0 && sum > int64(a)) {
		return 0, false
	}
	return F8(sum), true
}

// Sub returns a-b and ok=false on signed 64-bit overflow.
func Sub(a, b F8) (F8, bool) {
	if int64(b) == minInt64 {
		return 0, false
	}
	return Add(a, F8(-int64(b)))
}

// Neg returns -a and ok=false only for the unrepresentable minimum value.
func Neg(a F8) (F8, bool) {
	if int64(a) == minInt64 {
		return 0, false
	}
	return F8(-int64(a)), true
}

const minInt64 = -1 << 63

// Mul returns (a*b)/Scale computed via a 128-bit intermediate product,
// with ok=false on overflow of the final downcast to int64.
func Mul(a, b F8) (F8, bool) {
	negA, ua := absU64(int64(a))
	negB, ub := absU64(int64(b))
	hi, lo := bits.Mul64(ua, ub)
	qhi, qlo := div128By64(hi, lo, uint64(Scale))
	if qhi != 0 {
		return 0, false
	}
	if qlo > maxInt64AsUint {
		return 0, false
	}
	v := int64(qlo)
	if negA != negB {
		v = -v
	}
	return F8(v), true
}

// Div returns (a*Scale)/b computed via a 128-bit intermediate, with
// ok=false on a zero divisor or overflow of the final downcast.
func Div(a, b F8) (F8, bool) {
	if b == 0 {
		return 0, false
	}
	negA, ua := absU64(int64(a))
	negB, ub := absU64(int64(b))
	hi, lo := bits.Mul64(ua, uint64(Scale))
	qhi, qlo := div128By64(hi, lo, ub)
	if qhi != 0 {
		return 0, false
	}
	if qlo > maxInt64AsUint {
		return 0, false
	}
	v := int64(qlo)
	if negA != negB {
		v = -v
	}
	return F8(v), true
}

// RatioBps returns ((b-a)/a) * 10^4 expressed as an F8-scaled
// basis-points value. Fails when a is zero or the intermediate
// overflows.
func RatioBps(a, b F8) (F8, bool) {
	if a == 0 {
		return 0, false
	}
	diff, ok := Sub(b, a)
	if !ok {
		return 0, false
	}
	const bpsScale = 1_000_000_000_000 // 10^4 * Scale, folded into one multiplier
	negDiff, udiff := absU64(int64(diff))
	negA, ua := absU64(int64(a))
	hi, lo := bits.Mul64(udiff, bpsScale)
	qhi, qlo := div128By64(hi, lo, ua)
	if qhi != 0 {
		return 0, false
	}
	if qlo > maxInt64AsUint {
		return 0, false
	}
	v := int64(qlo)
	if negDiff != negA {
		v = -v
	}
	return F8(v), true
}

func absU64(v int64) (neg bool, u uint64) {
	if v < 0 {
		return true, uint64(-v)
	}
	return false, uint64(v)
}

// div128By64 divides the 128-bit value (hi:lo) by y, returning the
// 128-bit quotient (qhi:qlo). Unlike bits.Div64, it never panics: when
// the true quotient would not fit in 64 bits, qhi is left non-zero so
// callers can treat that as an overflow.
func div128By64(hi, lo, y uint64) (qhi, qlo uint64) {
	if y == 0 {
		return 1, 0 // signal overflow/invalid to caller
	}
	if hi >= y {
		return 1, 0
	}
	qlo, _ = bits.Div64(hi, lo, y)
	return 0, qlo
}
