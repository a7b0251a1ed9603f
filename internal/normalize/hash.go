package normalize

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gyeh/mrfscan/internal/model"
)

// FileHash computes the hex-encoded SHA-256 of the file at path.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hash: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// RecordHash computes a stable SHA-256 over the fields that identify a
// negotiated price. Values are concatenated with null separators; the
// source URL is left out so the same price listed by two files hashes equal.
func RecordHash(r *model.CanonicalRateRecord) []byte {
	h := sha256.New()
	write := func(v string) {
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	write(r.Payer)
	write(r.PlanID)
	write(r.PlanName)
	write(r.BillingCodeType)
	write(r.BillingCode)
	write(strings.Join(r.BillingCodeModifiers, ","))
	write(r.NegotiationArrangement)
	write(r.NegotiatedType)
	write(strconv.FormatFloat(r.NegotiatedRate, 'f', -1, 64))
	write(r.BillingClass)
	write(strings.Join(r.ServiceCodes, ","))
	write(r.ExpirationDate)
	write(derefStr(r.ProviderNPI))
	write(derefStr(r.ProviderTIN))
	return h.Sum(nil)
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
