package roster

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

// BulkRangeMax caps how many accounts a single bulk-range request may create.
const BulkRangeMax = 50000

// passwordCharset avoids ambiguous characters (0/O, 1/l/I) so printed
// credential slips stay readable.
const passwordCharset = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNPQRSTUVWXYZ23456789"

var studentIDPattern = regexp.MustCompile(`^\d{2}-\d{4}$`)

// FormatStudentID renders the YY-NNNN student id used by bulk provisioning.
func FormatStudentID(yearPrefix, seq int) string {
	return fmt.Sprintf("%02d-%04d", yearPrefix, seq)
}

// ValidBulkStudentID reports whether the id matches the YY-NNNN shape.
func ValidBulkStudentID(id string) bool {
	return studentIDPattern.MatchString(id)
}

// RandomPassword returns a random credential of n characters drawn from the
// readable charset.
func RandomPassword(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("password length must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	for i, b := range buf {
		buf[i] = passwordCharset[int(b)%len(passwordCharset)]
	}
	return string(buf), nil
}
