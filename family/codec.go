package family

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const bindingVersion1 = 1

func encodeBinding(b Binding) ([]byte, error) {
	if len(b.UserID) > 65535 || len(b.SessionID) > 65535 {
		return nil, errors.New("binding field too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(bindingVersion1)

	if err := binary.Write(&buf, binary.BigEndian, uint16(len(b.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(b.UserID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(b.SessionID))); err != nil {
		return nil, err
	}
	buf.WriteString(b.SessionID)

	return buf.Bytes(), nil
}

func decodeBinding(data []byte) (*Binding, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != bindingVersion1 {
		return nil, errors.New("unknown binding version")
	}

	readField := func() (string, error) {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return "", err
		}
		field := make([]byte, n)
		if _, err := io.ReadFull(reader, field); err != nil {
			return "", err
		}
		return string(field), nil
	}

	b := &Binding{}
	if b.UserID, err = readField(); err != nil {
		return nil, err
	}
	if b.SessionID, err = readField(); err != nil {
		return nil, err
	}

	return b, nil
}
