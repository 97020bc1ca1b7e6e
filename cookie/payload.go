package cookie

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	payloadVersion    = 1
	payloadFieldCount = 4

	// Browsers drop cookies over ~4KB without telling anyone. With these bounds
	// an encoded cookie stays under 3KB.
	MaxSessionIDLength    = 128
	MaxRefreshTokenLength = 2048

	maxTimestampLength = 32
)

// Payload is the only durable session state. It lives in the browser, encrypted,
// and is enough to rebuild the in-memory session after a restart.
type Payload struct {
	SessionID          string
	RefreshToken       string
	RefreshTokenExpiry time.Time
	CreatedAt          time.Time
}

// NewPayload builds a payload with timestamps normalised to the microsecond
// precision the wire format carries.
func NewPayload(sessionID, refreshToken string, refreshExpiry, createdAt time.Time) Payload {
	return Payload{
		SessionID:          sessionID,
		RefreshToken:       refreshToken,
		RefreshTokenExpiry: normalizeTime(refreshExpiry),
		CreatedAt:          normalizeTime(createdAt),
	}
}

// RefreshExpired reports whether the refresh credential is dead at now.
func (p Payload) RefreshExpired(now time.Time) bool {
	return !now.Before(p.RefreshTokenExpiry)
}

// Rotate returns a copy carrying a new refresh credential. Session id and creation time never change.
func (p Payload) Rotate(refreshToken string, refreshExpiry time.Time) Payload {
	return NewPayload(p.SessionID, refreshToken, refreshExpiry, p.CreatedAt)
}

func (p Payload) validate() error {
	if p.SessionID == "" {
		return errors.New("session id is empty")
	}
	if p.RefreshToken == "" {
		return errors.New("refresh token is empty")
	}
	if len(p.SessionID) > MaxSessionIDLength {
		return fmt.Errorf("session id exceeds %d bytes", MaxSessionIDLength)
	}
	if len(p.RefreshToken) > MaxRefreshTokenLength {
		return fmt.Errorf("refresh token of %d bytes exceeds %d", len(p.RefreshToken), MaxRefreshTokenLength)
	}
	if p.RefreshTokenExpiry.UnixMicro() <= 0 || p.CreatedAt.UnixMicro() <= 0 {
		return errors.New("timestamps must be after the unix epoch")
	}
	return nil
}

// MarshalBinary writes the pre-encryption record: version, field count, then
// each field as a big-endian uint16 length followed by its bytes.
func (p Payload) MarshalBinary() ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid cookie payload: %w", err)
	}

	fields := [payloadFieldCount]string{
		p.SessionID,
		p.RefreshToken,
		formatTimestamp(p.RefreshTokenExpiry),
		formatTimestamp(p.CreatedAt),
	}

	var buf bytes.Buffer
	buf.WriteByte(payloadVersion)
	buf.WriteByte(payloadFieldCount)
	for _, f := range fields {
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(f))); err != nil {
			return nil, err
		}
		buf.WriteString(f)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary parses a record written by MarshalBinary. Anything other than
// exactly four well-formed fields is rejected.
func (p *Payload) UnmarshalBinary(data []byte) error {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return err
	}
	if version != payloadVersion {
		return fmt.Errorf("unsupported payload version %d", version)
	}

	count, err := reader.ReadByte()
	if err != nil {
		return err
	}
	if count != payloadFieldCount {
		return fmt.Errorf("expected %d fields, got %d", payloadFieldCount, count)
	}

	limits := [payloadFieldCount]int{MaxSessionIDLength, MaxRefreshTokenLength, maxTimestampLength, maxTimestampLength}
	var fields [payloadFieldCount]string
	for i := range fields {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return err
		}
		if int(n) > limits[i] {
			return fmt.Errorf("field %d exceeds %d bytes", i, limits[i])
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(reader, b); err != nil {
			return err
		}
		fields[i] = string(b)
	}
	if reader.Len() != 0 {
		return errors.New("trailing bytes after payload")
	}

	refreshExpiry, err := parseTimestamp(fields[2])
	if err != nil {
		return fmt.Errorf("refresh token expiry: %w", err)
	}
	createdAt, err := parseTimestamp(fields[3])
	if err != nil {
		return fmt.Errorf("created at: %w", err)
	}

	decoded := Payload{
		SessionID:          fields[0],
		RefreshToken:       fields[1],
		RefreshTokenExpiry: refreshExpiry,
		CreatedAt:          createdAt,
	}
	if err := decoded.validate(); err != nil {
		return err
	}
	*p = decoded
	return nil
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.UnixMicro(t.UnixMicro()).UTC()
}

// formatTimestamp renders seconds since the epoch with exactly six fractional digits.
func formatTimestamp(t time.Time) string {
	micros := t.UnixMicro()
	return fmt.Sprintf("%d.%06d", micros/1_000_000, micros%1_000_000)
}

func parseTimestamp(s string) (time.Time, error) {
	whole, frac, ok := strings.Cut(s, ".")
	if !ok || len(frac) != 6 {
		return time.Time{}, fmt.Errorf("malformed timestamp %q", s)
	}
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	micros, err := strconv.ParseUint(frac, 10, 32)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return time.UnixMicro(secs*1_000_000 + int64(micros)).UTC(), nil
}
