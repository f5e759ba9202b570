package envelope

import (
	"encoding/base64"
	"strings"

	"appauth/internal/authstate"
)

// separator joins the two record segments. It is outside both base64
// alphabets accepted by ParseRecord.
const separator = "."

// Record is the storage form of a protected value.
type Record struct {
	IV         []byte
	Ciphertext []byte
}

// String encodes the record as "<iv>.<ciphertext>" using unpadded base64url.
func (r Record) String() string {
	return base64.RawURLEncoding.EncodeToString(r.IV) + separator +
		base64.RawURLEncoding.EncodeToString(r.Ciphertext)
}

// ParseRecord decodes the text form of a record. Segments written with the
// standard base64 alphabet, with or without padding, are accepted too.
func ParseRecord(s string) (Record, error) {
	ivPart, ctPart, ok := strings.Cut(s, separator)
	if !ok || ivPart == "" || ctPart == "" || strings.Contains(ctPart, separator) {
		return Record{}, authstate.Errorf(authstate.KindDecryption, "malformed record")
	}

	iv, err := decodeSegment(ivPart)
	if err != nil {
		return Record{}, authstate.Errorf(authstate.KindDecryption, "malformed record IV: %w", err)
	}
	ct, err := decodeSegment(ctPart)
	if err != nil {
		return Record{}, authstate.Errorf(authstate.KindDecryption, "malformed record ciphertext: %w", err)
	}

	return Record{IV: iv, Ciphertext: ct}, nil
}

func decodeSegment(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if strings.ContainsAny(s, "+/") {
		return base64.RawStdEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}
