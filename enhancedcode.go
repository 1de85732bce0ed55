package smtp

import (
	"fmt"
	"strconv"
	"strings"
)

// EnhancedCode represents an enhanced mail system status code as defined in
// RFC 3463. Format is class.subject.detail (e.g., 2.1.0).
type EnhancedCode struct {
	Class   int // 2 = success, 4 = transient failure, 5 = permanent failure
	Subject int // Subject sub-code
	Detail  int // Detail sub-code
}

// Enhanced status codes used by the test servers (RFC 3463, RFC 5248).
var (
	EnhancedCodeOK              = EnhancedCode{2, 0, 0} // Generic success
	EnhancedCodeBadDest         = EnhancedCode{5, 1, 1} // Bad destination mailbox address
	EnhancedCodeInvalidCommand  = EnhancedCode{5, 5, 1} // Invalid command
	EnhancedCodeSyntaxError     = EnhancedCode{5, 5, 2} // Syntax error
	EnhancedCodeAuthCredentials = EnhancedCode{5, 7, 8} // Authentication credentials invalid
)

// String returns the enhanced code formatted as "X.Y.Z" (e.g., "2.1.0").
func (e EnhancedCode) String() string {
	return fmt.Sprintf("%d.%d.%d", e.Class, e.Subject, e.Detail)
}

// IsZero reports whether the enhanced code is the zero value.
func (e EnhancedCode) IsZero() bool {
	return e.Class == 0 && e.Subject == 0 && e.Detail == 0
}

// ParseEnhancedCode splits an enhanced status code off the front of a reply
// text. It returns the zero code and the original text if the text does
// not start with one.
func ParseEnhancedCode(text string) (EnhancedCode, string) {
	code, rest, _ := strings.Cut(text, " ")

	segments := strings.Split(code, ".")
	if len(segments) != 3 {
		return EnhancedCode{}, text
	}

	var nums [3]int
	for i, seg := range segments {
		n, err := strconv.Atoi(seg)
		if err != nil || n < 0 {
			return EnhancedCode{}, text
		}
		nums[i] = n
	}
	if nums[0] < 2 || nums[0] > 5 {
		return EnhancedCode{}, text
	}

	return EnhancedCode{Class: nums[0], Subject: nums[1], Detail: nums[2]}, rest
}
