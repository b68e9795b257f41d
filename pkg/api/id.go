package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	reportIDPrefix = "rpt_"
	callIDPrefix   = "call_"
)

var reportIDPattern = regexp.MustCompile(`^rpt_[a-zA-Z0-9]{24}$`)

// NewReportID returns "rpt_" followed by 24 random alphanumeric characters.
func NewReportID() string {
	return reportIDPrefix + randomAlphanumeric(idLength)
}

// NewCallID returns an identifier for a tool call the model left unnamed.
func NewCallID() string {
	return callIDPrefix + randomAlphanumeric(idLength)
}

// ValidateReportID reports whether id is a well-formed report ID.
func ValidateReportID(id string) bool {
	return reportIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
