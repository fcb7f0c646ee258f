package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const sessionFormatVersion = 1

// Fixed 25-byte tail: [active][createdAt 8][expiresAt 8][lastUsedAt 8].
// The Lua scripts in store.go patch the active flag and lastUsedAt in place
// and read expiresAt at a constant offset from the end; changing the tail
// layout requires changing them together.
const tailSize = 25

// Encode serializes s into the compact binary blob stored in Redis.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersion)

	if err := writeString(&buf, s.ID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, s.UserID); err != nil {
		return nil, err
	}

	buf.Write(s.AccessHash[:])
	buf.Write(s.RefreshHash[:])

	if err := writeString(&buf, s.IP); err != nil {
		return nil, err
	}
	if err := writeString(&buf, s.UserAgent); err != nil {
		return nil, err
	}
	if err := writeString(&buf, s.Country); err != nil {
		return nil, err
	}

	if s.Active {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	for _, ts := range []time.Time{s.CreatedAt, s.ExpiresAt, s.LastUsedAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts.Unix()); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. Timestamps come back in UTC.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersion {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	if s.ID, err = readString(reader); err != nil {
		return nil, err
	}
	if s.UserID, err = readString(reader); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(reader, s.AccessHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, err
	}

	if s.IP, err = readString(reader); err != nil {
		return nil, err
	}
	if s.UserAgent, err = readString(reader); err != nil {
		return nil, err
	}
	if s.Country, err = readString(reader); err != nil {
		return nil, err
	}

	activeByte, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.Active = activeByte == 1

	var created, expires, lastUsed int64
	for _, dst := range []*int64{&created, &expires, &lastUsed} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}
	s.CreatedAt = time.Unix(created, 0).UTC()
	s.ExpiresAt = time.Unix(expires, 0).UTC()
	s.LastUsedAt = time.Unix(lastUsed, 0).UTC()

	if reader.Len() != 0 {
		return nil, errors.New("trailing session bytes")
	}

	return s, nil
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return errors.New("session field too long")
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	length, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
