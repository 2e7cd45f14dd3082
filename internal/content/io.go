package content

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// On-disk format versions. Version 1 predates the encoding field and implies
// gzip transport encoding; version 2 stores the encoding chain explicitly.
const (
	formatVersion1 = 1
	formatVersion2 = 2
)

// Write serialises c in the binary record format. All integers are
// big-endian. Short string fields (key, auth key) carry a u16 length prefix;
// long fields (content type, encoding, data) carry a u32 length prefix.
// Expiry and last-modified are millisecond timestamps, -1 meaning never.
func Write(w io.Writer, c *Content) error {
	bw := bufio.NewWriter(w)

	if err := binary.Write(bw, binary.BigEndian, uint32(formatVersion2)); err != nil {
		return fmt.Errorf("writing version: %w", err)
	}
	if err := writeShortString(bw, c.Key); err != nil {
		return fmt.Errorf("writing key: %w", err)
	}
	if err := writeLongString(bw, c.ContentType); err != nil {
		return fmt.Errorf("writing content type: %w", err)
	}
	if err := binary.Write(bw, binary.BigEndian, timeToMillis(c.Expiry)); err != nil {
		return fmt.Errorf("writing expiry: %w", err)
	}
	if err := binary.Write(bw, binary.BigEndian, timeToMillis(c.LastModified)); err != nil {
		return fmt.Errorf("writing last modified: %w", err)
	}
	modifiable := byte(0)
	if c.Modifiable {
		modifiable = 1
	}
	if err := bw.WriteByte(modifiable); err != nil {
		return fmt.Errorf("writing modifiable flag: %w", err)
	}
	if c.Modifiable {
		if err := writeShortString(bw, c.AuthKey); err != nil {
			return fmt.Errorf("writing auth key: %w", err)
		}
	}
	if err := writeLongString(bw, c.Encoding); err != nil {
		return fmt.Errorf("writing encoding: %w", err)
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(len(c.Data))); err != nil {
		return fmt.Errorf("writing content length: %w", err)
	}
	if _, err := bw.Write(c.Data); err != nil {
		return fmt.Errorf("writing content: %w", err)
	}
	return bw.Flush()
}

// Read deserialises a record. With skipContent set, the content bytes are
// not read into memory; ContentLength is populated either way. Truncated
// input surfaces io.EOF or io.ErrUnexpectedEOF so callers can treat the
// record as corrupt.
func Read(r io.Reader, skipContent bool) (*Content, error) {
	br := bufio.NewReader(r)

	var version uint32
	if err := binary.Read(br, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	switch version {
	case formatVersion1, formatVersion2:
	default:
		return nil, fmt.Errorf("unsupported format version %d", version)
	}

	c := &Content{}

	key, err := readShortString(br)
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}
	c.Key = key

	ctype, err := readLongString(br)
	if err != nil {
		return nil, fmt.Errorf("reading content type: %w", err)
	}
	c.ContentType = ctype

	var expiry, lastModified int64
	if err := binary.Read(br, binary.BigEndian, &expiry); err != nil {
		return nil, fmt.Errorf("reading expiry: %w", err)
	}
	if err := binary.Read(br, binary.BigEndian, &lastModified); err != nil {
		return nil, fmt.Errorf("reading last modified: %w", err)
	}
	c.Expiry = millisToTime(expiry)
	c.LastModified = millisToTime(lastModified)

	modifiable, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading modifiable flag: %w", err)
	}
	c.Modifiable = modifiable != 0
	if c.Modifiable {
		authKey, err := readShortString(br)
		if err != nil {
			return nil, fmt.Errorf("reading auth key: %w", err)
		}
		c.AuthKey = authKey
	}

	if version == formatVersion1 {
		c.Encoding = EncodingGzip
	} else {
		encoding, err := readLongString(br)
		if err != nil {
			return nil, fmt.Errorf("reading encoding: %w", err)
		}
		c.Encoding = encoding
	}

	var length uint32
	if err := binary.Read(br, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("reading content length: %w", err)
	}
	c.ContentLength = int(length)

	if !skipContent {
		data := make([]byte, length)
		if _, err := io.ReadFull(br, data); err != nil {
			return nil, fmt.Errorf("reading content: %w", err)
		}
		c.Data = data
	}
	return c, nil
}

func timeToMillis(t time.Time) int64 {
	if t.IsZero() {
		return -1
	}
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms < 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func writeShortString(w io.Writer, s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("string too long for u16 prefix: %d bytes", len(s))
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readShortString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeLongString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readLongString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
