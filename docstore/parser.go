package docstore

import (
	"bufio"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

var ErrSourceFileReadFailed = errors.New("source file read failed")
var ErrCommandInvalid = errors.New("command invalid")

type respParser struct {
	r   *bufio.Reader
	vls ValueLoadStrategy
	// offset counts every byte consumed so far
	offset int
	// committed is the offset right after the last complete command
	committed     int
	currentLine   int
	totalCommands int
}

func newRespParser(r io.Reader, vls ValueLoadStrategy) *respParser {
	return &respParser{r: bufio.NewReader(r), vls: vls}
}

// parse replays every complete command through cb and returns
// the offset right after the last complete command.
func (p *respParser) parse(cb func(d deserializable) error) (int, error) {
	for {
		if _, err := p.r.Peek(1); err != nil {
			if err == io.EOF {
				return p.committed, nil
			}

			return p.committed, errors.Wrap(ErrSourceFileReadFailed, err.Error())
		}

		segments, err := p.resolveRespArray()
		if err != nil {
			return p.committed, err
		}

		cmd, err := p.resolveRespSimpleString()
		if err != nil {
			return p.committed, err
		}

		var d deserializable
		switch cmd {
		case setCommand:
			if segments != 4 {
				return p.committed, errors.Wrapf(ErrCommandInvalid, "line #%d - set expects 4 segments, got %d", p.currentLine, segments)
			}
			d, err = p.parseSetCommand()
		case delCommand:
			if segments != 3 {
				return p.committed, errors.Wrapf(ErrCommandInvalid, "line #%d - del expects 3 segments, got %d", p.currentLine, segments)
			}
			d, err = p.parseDelCommand()
		default:
			return p.committed, errors.Wrapf(ErrCommandInvalid, "at line #%d command [%s] is unknown", p.currentLine, cmd)
		}

		if err != nil {
			return p.committed, err
		}

		if err := cb(d); err != nil {
			return p.committed, err
		}

		p.totalCommands++
		p.committed = p.offset
	}
}

// parseSetCommand - parses `set` command from serialization protocol
func (p *respParser) parseSetCommand() (*setCmd, error) {
	collection, _, err := p.resolveRespBlob(false)
	if err != nil {
		return nil, err
	}

	key, _, err := p.resolveRespBlob(false)
	if err != nil {
		return nil, err
	}

	value, pos, err := p.resolveRespBlob(p.vls == LazyLoad)
	if err != nil {
		return nil, err
	}

	ent := newEntry(string(collection), string(key), value)
	ent.pos = pos

	return &setCmd{ent: ent}, nil
}

// parseDelCommand - parses delete entry command from serialization protocol
func (p *respParser) parseDelCommand() (*deleteCmd, error) {
	collection, _, err := p.resolveRespBlob(false)
	if err != nil {
		return nil, err
	}

	key, _, err := p.resolveRespBlob(false)
	if err != nil {
		return nil, err
	}

	return &deleteCmd{collection: string(collection), key: string(key)}, nil
}

func (p *respParser) readLine() ([]byte, error) {
	p.currentLine++
	line, err := p.r.ReadBytes('\n')
	p.offset += len(line)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}

		return nil, errors.Wrapf(ErrSourceFileReadFailed, "line #%d: %s", p.currentLine, err.Error())
	}

	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, errors.Wrapf(ErrCommandInvalid, "line #%d is not terminated with CRLF", p.currentLine)
	}

	return line[:len(line)-2], nil
}

func (p *respParser) resolveRespArray() (int, error) {
	line, err := p.readLine()
	if err != nil {
		return 0, err
	}

	if len(line) < 2 || line[0] != '*' {
		return 0, errors.Wrapf(
			ErrCommandInvalid,
			"line #%d - %s should actually start with *",
			p.currentLine, string(line))
	}

	n, err := strconv.Atoi(string(line[1:]))
	if err != nil {
		return 0, errors.Wrapf(ErrCommandInvalid, "could not parse command size at line #%d %v", p.currentLine, err)
	}

	return n, nil
}

func (p *respParser) resolveRespSimpleString() (string, error) {
	line, err := p.readLine()
	if err != nil {
		return "", err
	}

	if len(line) < 2 || line[0] != '+' {
		return "", errors.Wrapf(ErrCommandInvalid, "line #%d - %s is invalid", p.currentLine, string(line))
	}

	return string(line[1:]), nil
}

// resolveRespBlob reads a length prefixed blob. With skip the blob is
// discarded and only its position is returned.
func (p *respParser) resolveRespBlob(skip bool) ([]byte, position, error) {
	line, err := p.readLine()
	if err != nil {
		return nil, position{}, err
	}

	if len(line) < 2 || line[0] != '$' {
		return nil, position{}, errors.Wrapf(ErrCommandInvalid, "line #%d - %s does not contain valid length", p.currentLine, string(line))
	}

	blobLen, err := strconv.Atoi(string(line[1:]))
	if err != nil || blobLen < 0 {
		return nil, position{}, errors.Wrapf(ErrCommandInvalid, "line #%d - invalid blob length %s", p.currentLine, string(line[1:]))
	}

	pos := position{offset: uint64(p.offset), size: uint64(blobLen)}

	var blob []byte
	if skip {
		n, err := p.r.Discard(blobLen)
		p.offset += n
		if err != nil {
			return nil, position{}, unexpectedEOF(err)
		}
	} else {
		blob = make([]byte, blobLen)
		n, err := io.ReadFull(p.r, blob)
		p.offset += n
		if err != nil {
			return nil, position{}, unexpectedEOF(err)
		}
	}

	var crlf [2]byte
	n, err := io.ReadFull(p.r, crlf[:])
	p.offset += n
	if err != nil {
		return nil, position{}, unexpectedEOF(err)
	}

	if crlf[0] != '\r' || crlf[1] != '\n' {
		return nil, position{}, errors.Wrapf(ErrCommandInvalid, "line #%d - blob is not terminated with CRLF", p.currentLine)
	}

	return blob, pos, nil
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.ErrUnexpectedEOF
	}

	return errors.Wrap(ErrSourceFileReadFailed, err.Error())
}
