package token

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	// MaxMetadataKeys bounds the number of annotation entries per transaction.
	MaxMetadataKeys = 16
	// MaxMetadataKeyLen bounds annotation key length.
	MaxMetadataKeyLen = 64
	// MaxMetadataValueLen bounds annotation value length.
	MaxMetadataValueLen = 512

	// MetaError is the reserved key carrying the failure reason on failed transactions.
	MetaError = "error"
)

// ErrMetadataTooLarge is returned when an annotation exceeds the bounded schema.
var ErrMetadataTooLarge = errors.New("token: metadata exceeds bounded schema")

// Metadata is a bounded, typed key-value annotation attached to transactions.
// It replaces arbitrary JSON payloads with a validated string map.
type Metadata map[string]string

// Validate enforces the bounded schema.
func (m Metadata) Validate() error {
	if len(m) > MaxMetadataKeys {
		return fmt.Errorf("%w: %d keys (max %d)", ErrMetadataTooLarge, len(m), MaxMetadataKeys)
	}
	for k, v := range m {
		if len(k) == 0 || len(k) > MaxMetadataKeyLen {
			return fmt.Errorf("%w: key %q", ErrMetadataTooLarge, k)
		}
		if len(v) > MaxMetadataValueLen {
			return fmt.Errorf("%w: value for key %q", ErrMetadataTooLarge, k)
		}
	}
	return nil
}

// Clone returns a copy with room for extra entries. A nil receiver yields an
// empty, writable map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithError returns a copy annotated with the failure reason. Values are
// truncated to the schema bound so a failed write can always be recorded;
// truncation never splits a multi-byte rune.
func (m Metadata) WithError(err error) Metadata {
	out := m.Clone()
	msg := err.Error()
	if len(msg) > MaxMetadataValueLen {
		msg = msg[:MaxMetadataValueLen]
		for len(msg) > 0 {
			if r, size := utf8.DecodeLastRuneInString(msg); r != utf8.RuneError || size != 1 {
				break
			}
			msg = msg[:len(msg)-1]
		}
	}
	out[MetaError] = msg
	return out
}
