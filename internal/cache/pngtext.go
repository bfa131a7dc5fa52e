package cache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

var errNotPNG = errors.New("not a PNG file")

// withTextChunks inserts tEXt chunks right after the IHDR chunk of an
// encoded PNG. Keys are written in the order given.
func withTextChunks(data []byte, keys []string, values map[string]string) ([]byte, error) {
	// signature (8) + IHDR length (4) + type (4) + data (13) + crc (4)
	const ihdrEnd = 8 + 4 + 4 + 13 + 4
	if len(data) < ihdrEnd || !bytes.Equal(data[:8], pngSignature) || string(data[12:16]) != "IHDR" {
		return nil, errNotPNG
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + 64*len(keys))
	buf.Write(data[:ihdrEnd])
	for _, key := range keys {
		writeChunk(&buf, "tEXt", append(append([]byte(key), 0), values[key]...))
	}
	buf.Write(data[ihdrEnd:])
	return buf.Bytes(), nil
}

func writeChunk(buf *bytes.Buffer, typ string, payload []byte) {
	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(payload)))
	copy(header[4:], typ)
	buf.Write(header[:])
	buf.Write(payload)

	crc := crc32.NewIEEE()
	crc.Write(header[4:])
	crc.Write(payload)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	buf.Write(sum[:])
}

// readTextChunks returns the tEXt key/value pairs found before the first
// IDAT chunk. Corrupt chunk framing is reported as an error.
func readTextChunks(data []byte) (map[string]string, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], pngSignature) {
		return nil, errNotPNG
	}

	text := make(map[string]string)
	pos := 8
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		typ := string(data[pos+4 : pos+8])
		end := pos + 8 + length + 4
		if length < 0 || end > len(data) {
			return nil, errors.New("truncated PNG chunk")
		}

		switch typ {
		case "tEXt":
			payload := data[pos+8 : pos+8+length]
			if i := bytes.IndexByte(payload, 0); i > 0 {
				text[string(payload[:i])] = string(payload[i+1:])
			}
		case "IDAT", "IEND":
			return text, nil
		}
		pos = end
	}
	return text, nil
}
