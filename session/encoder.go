package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	sessionFormatVersionCurrent = 2
	sessionFormatVersionV1      = 1
)

// permanentExpiry stands for NeverExpires in the binary form.
const permanentExpiry int64 = 0

// Encode renders s in the compact binary form used by server-side backends.
//
// Layout (v2): version, uid int64, access token (u16 length), expires int64,
// signature (u8 length), secret (u8 length), session key (u8 length). v1 stops after
// the signature.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}

	var buf bytes.Buffer
	buf.WriteByte(sessionFormatVersionCurrent)

	if err := binary.Write(&buf, binary.BigEndian, s.UserID); err != nil {
		return nil, err
	}

	if len(s.AccessToken) > math.MaxUint16 {
		return nil, errors.New("access token too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.AccessToken))); err != nil {
		return nil, err
	}
	buf.WriteString(s.AccessToken)

	expires := permanentExpiry
	if !s.Permanent() {
		expires = s.ExpiresAt.Unix()
	}
	if err := binary.Write(&buf, binary.BigEndian, expires); err != nil {
		return nil, err
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"signature", s.Signature},
		{"secret", s.Secret},
		{"session key", s.SessionKey},
	} {
		if len(field.value) > 255 {
			return nil, errors.New(field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	return buf.Bytes(), nil
}

// Decode parses the binary form produced by Encode, including older versions.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent && version != sessionFormatVersionV1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	if err := binary.Read(reader, binary.BigEndian, &s.UserID); err != nil {
		return nil, err
	}

	var tokenLen uint16
	if err := binary.Read(reader, binary.BigEndian, &tokenLen); err != nil {
		return nil, err
	}
	token := make([]byte, tokenLen)
	if _, err := io.ReadFull(reader, token); err != nil {
		return nil, err
	}
	s.AccessToken = string(token)

	var expires int64
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, err
	}
	s.ExpiresAt = ExpiresFromUnix(expires)

	if s.Signature, err = readShortString(reader); err != nil {
		return nil, err
	}

	if version == sessionFormatVersionCurrent {
		if s.Secret, err = readShortString(reader); err != nil {
			return nil, err
		}
		if s.SessionKey, err = readShortString(reader); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func readShortString(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}
