package docstore

import (
	"bytes"
	"strconv"
)

const (
	setCommand = "set"
	delCommand = "del"
)

// respSerializer writes commands in a RESP-like format and keeps track
// of the absolute file offset so value positions can be computed.
type respSerializer struct {
	buf       bytes.Buffer
	pos       int
	positions []pendingPosition
}

// pendingPosition is applied to the entry only after the buffer was written.
type pendingPosition struct {
	ent *entry
	pos position
}

func newRespSerializer(offset int) *respSerializer {
	return &respSerializer{pos: offset}
}

func (rs *respSerializer) serializeSetCommand(ent *entry, value []byte) {
	rs.pos += writeRespArray(4, &rs.buf)
	rs.pos += writeRespSimpleString([]byte(setCommand), &rs.buf)
	_, n := writeRespBlob([]byte(ent.collection), &rs.buf)
	rs.pos += n
	_, n = writeRespBlob([]byte(ent.key), &rs.buf)
	rs.pos += n

	prefix, total := writeRespBlob(value, &rs.buf)
	rs.positions = append(rs.positions, pendingPosition{
		ent: ent,
		pos: position{
			offset: uint64(rs.pos + prefix),
			size:   uint64(len(value)),
		},
	})

	rs.pos += total
}

func (rs *respSerializer) serializeDelCommand(collection, key string) {
	rs.pos += writeRespArray(3, &rs.buf)
	rs.pos += writeRespSimpleString([]byte(delCommand), &rs.buf)
	_, n := writeRespBlob([]byte(collection), &rs.buf)
	rs.pos += n
	_, n = writeRespBlob([]byte(key), &rs.buf)
	rs.pos += n
}

func writeRespArray(segments int, buf *bytes.Buffer) int {
	buf.WriteByte('*')
	s := strconv.FormatInt(int64(segments), 10)
	buf.WriteString(s)
	buf.WriteString("\r\n")

	return 3 + len(s)
}

func writeRespSimpleString(b []byte, buf *bytes.Buffer) int {
	buf.WriteByte('+')
	buf.Write(b)
	buf.WriteString("\r\n")
	return 3 + len(b)
}

// writeRespBlob returns the size of the length prefix and the total size written
func writeRespBlob(blob []byte, buf *bytes.Buffer) (int, int) {
	buf.WriteByte('$')
	l := strconv.FormatInt(int64(len(blob)), 10)
	buf.WriteString(l)
	buf.WriteString("\r\n")
	buf.Write(blob)
	buf.WriteString("\r\n")

	prefix := 1 + len(l) + 2
	total := prefix + len(blob) + 2
	return prefix, total
}
