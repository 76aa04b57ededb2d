package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"regexp"
	"strings"
)

func Ptr[T any](v T) *T {
	return &v
}

func DereferencePtr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

func UniqueSlice[T comparable](items []T) []T {
	seen := make(map[T]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// SplitAndTrim splits on sep, trims whitespace and drops empty parts.
func SplitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

var (
	panDigitsRe  = regexp.MustCompile(`^\d{12,19}$`)
	panMaskedRe  = regexp.MustCompile(`^[0-9Xx\*]{12,19}$`)
	panCompactRe = regexp.MustCompile(`[\s\-]`)
)

// SanitizePanMasked never stores a full PAN: a bare 12-19 digit value is
// reduced to first6 + stars + last4 before it touches the database.
func SanitizePanMasked(value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return "****"
	}

	compact := panCompactRe.ReplaceAllString(raw, "")
	if panDigitsRe.MatchString(compact) {
		stars := strings.Repeat("*", max(2, len(compact)-10))
		return compact[:6] + stars + compact[len(compact)-4:]
	}

	if panMaskedRe.MatchString(compact) {
		return strings.NewReplacer("X", "*", "x", "*").Replace(compact)
	}

	return raw
}

func panHashSecret() string {
	secret := os.Getenv("PAN_HASH_SECRET")
	if secret == "" {
		return "change-me-in-production"
	}
	return secret
}

func HashPan(maskedPan string) string {
	mac := hmac.New(sha256.New, []byte(panHashSecret()))
	mac.Write([]byte(maskedPan))
	return hex.EncodeToString(mac.Sum(nil))
}
