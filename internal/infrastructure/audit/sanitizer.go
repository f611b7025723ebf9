package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// PIILevel defines how much personal data reaches the audit tables.
type PIILevel string

const (
	// PIILevelNone redacts free text entirely
	PIILevelNone PIILevel = "none"
	// PIILevelHashed replaces detected PII with a salted hash
	PIILevelHashed PIILevel = "hashed"
	// PIILevelFull stores text unchanged
	PIILevelFull PIILevel = "full"
)

// ParsePIILevel maps a config value onto a level. Unknown values become hashed.
func ParsePIILevel(raw string) PIILevel {
	switch PIILevel(strings.ToLower(strings.TrimSpace(raw))) {
	case PIILevelNone:
		return PIILevelNone
	case PIILevelFull:
		return PIILevelFull
	default:
		return PIILevelHashed
	}
}

// Sanitizer scrubs free text before it is written to audit rows.
type Sanitizer struct {
	level PIILevel
	salt  string

	emailPattern      *regexp.Regexp
	phonePattern      *regexp.Regexp
	creditCardPattern *regexp.Regexp
	ipv4Pattern       *regexp.Regexp
}

// NewSanitizer creates a sanitizer with the given level and hash salt.
func NewSanitizer(level PIILevel, salt string) *Sanitizer {
	return &Sanitizer{
		level:             level,
		salt:              salt,
		emailPattern:      regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		phonePattern:      regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`),
		creditCardPattern: regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`),
		ipv4Pattern:       regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
	}
}

// Text sanitizes a reason or error string.
func (s *Sanitizer) Text(input string) string {
	if input == "" {
		return ""
	}
	switch s.level {
	case PIILevelNone:
		return "[REDACTED]"
	case PIILevelFull:
		return input
	default:
		return s.hashPII(input)
	}
}

// Email sanitizes an actor email.
func (s *Sanitizer) Email(email string) string {
	if email == "" {
		return ""
	}
	switch s.level {
	case PIILevelNone:
		return "[REDACTED]"
	case PIILevelFull:
		return email
	default:
		return "[EMAIL:" + s.hash(email) + "]"
	}
}

// IP sanitizes a client address.
func (s *Sanitizer) IP(ip string) string {
	if ip == "" {
		return ""
	}
	switch s.level {
	case PIILevelNone:
		return "[REDACTED]"
	case PIILevelFull:
		return ip
	default:
		return "[IP:" + s.hash(ip) + "]"
	}
}

func (s *Sanitizer) hashPII(input string) string {
	result := s.emailPattern.ReplaceAllStringFunc(input, func(match string) string {
		return fmt.Sprintf("[EMAIL:%s]", s.hash(match))
	})
	// cards first so their digit groups are not taken for phone numbers
	result = s.creditCardPattern.ReplaceAllString(result, "[CC:REDACTED]")
	result = s.phonePattern.ReplaceAllStringFunc(result, func(match string) string {
		return fmt.Sprintf("[PHONE:%s]", s.hash(match))
	})
	result = s.ipv4Pattern.ReplaceAllStringFunc(result, func(match string) string {
		return fmt.Sprintf("[IP:%s]", s.hash(match))
	})
	return result
}

// hash returns the first 8 hex chars of sha256(data + salt).
func (s *Sanitizer) hash(data string) string {
	h := sha256.New()
	h.Write([]byte(data + s.salt))
	return hex.EncodeToString(h.Sum(nil))[:8]
}
