// Package normalize filters records against the billing code whitelist and
// brings their fields into canonical form.
package normalize

import (
	"fmt"
	"math"
	"strings"

	"github.com/gyeh/mrfscan/internal/model"
)

// Normalizer applies the billing code whitelist and code type filter. A nil
// code set or type set lets everything through, as does a nil Normalizer.
// It is read-only after New.
type Normalizer struct {
	codes     map[string]struct{}
	codeTypes map[string]struct{}
}

// New builds a Normalizer. codes may be nil to disable the whitelist; an
// unknown code type is an error.
func New(codes []string, codeTypes []string) (*Normalizer, error) {
	n := &Normalizer{}
	if codes != nil {
		n.codes = make(map[string]struct{}, len(codes))
		for _, c := range codes {
			if k := CodeKey(c); k != "" {
				n.codes[k] = struct{}{}
			}
		}
	}
	if len(codeTypes) > 0 {
		n.codeTypes = make(map[string]struct{}, len(codeTypes))
		for _, ct := range codeTypes {
			t, ok := model.CodeTypeByName(ct)
			if !ok {
				return nil, fmt.Errorf("unknown billing code type %q (valid: %s)", ct, strings.Join(model.CodeTypeNames(), ", "))
			}
			n.codeTypes[t.Name] = struct{}{}
		}
	}
	return n, nil
}

// Allow reports whether an item with this billing code and type can produce
// records at all.
func (n *Normalizer) Allow(code, codeType string) bool {
	k := CodeKey(code)
	if k == "" {
		return false
	}
	if n == nil {
		return true
	}
	if n.codes != nil {
		if _, ok := n.codes[k]; !ok {
			return false
		}
	}
	if n.codeTypes != nil {
		if _, ok := n.codeTypes[CodeType(codeType)]; !ok {
			return false
		}
	}
	return true
}

// Normalize canonicalizes rec in place and reports whether it may be
// emitted. A record is emitted only with a non-empty, allowed billing code
// and a positive finite rate.
func (n *Normalizer) Normalize(rec *model.CanonicalRateRecord) bool {
	rec.BillingCode = CodeKey(rec.BillingCode)
	if !n.Allow(rec.BillingCode, rec.BillingCodeType) {
		return false
	}
	if r := rec.NegotiatedRate; math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
		return false
	}
	rec.BillingCodeType = CodeType(rec.BillingCodeType)
	rec.Description = strings.TrimSpace(rec.Description)
	rec.NegotiatedType = strings.ToLower(strings.TrimSpace(rec.NegotiatedType))
	rec.BillingClass = strings.ToLower(strings.TrimSpace(rec.BillingClass))
	rec.ServiceCodes = CleanList(rec.ServiceCodes)
	rec.BillingCodeModifiers = CleanList(rec.BillingCodeModifiers)
	rec.ExpirationDate = Date(rec.ExpirationDate)
	rec.ProviderName = CleanName(rec.ProviderName)
	rec.Payer = PayerKey(rec.Payer)
	rec.RecordHash = RecordHash(rec)
	return true
}
