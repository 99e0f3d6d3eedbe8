package backtrace

import (
	"regexp"
	"strconv"
)

var (
	raRegexp    = regexp.MustCompile(`ra=(0x[0-9a-fA-F]+)`)
	frameRegexp = regexp.MustCompile(`#(\d+)\s+fp=(0x[0-9a-fA-F]+)`)
)

// LogLine is one line of kernel output.
type LogLine struct {
	Text string
	// Address is the return address token found in Text, as written.
	Address string
	// Frame and FP are set for lines printed by the kernel panic handler
	// ("#03 fp=0x... ra=0x..."), Frame is -1 otherwise.
	Frame int
	FP    string
}

// ParseLine extracts the first return address token of text.
func ParseLine(text string) LogLine {
	l := LogLine{Text: text, Frame: -1}
	m := raRegexp.FindStringSubmatch(text)
	if m == nil {
		return l
	}
	l.Address = m[1]
	if fm := frameRegexp.FindStringSubmatch(text); fm != nil {
		if n, err := strconv.Atoi(fm[1]); err == nil {
			l.Frame = n
			l.FP = fm[2]
		}
	}
	return l
}

// HasAddress reports whether the line carries a return address.
func (l LogLine) HasAddress() bool {
	return l.Address != ""
}
