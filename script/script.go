// Package script reads the load script describing what goes on a disk side.
//
// Each line names a file and where its contents go:
//
//	filename  [load address]  [offset]  [length]
//
// Lines separated by a blank line belong to different loader calls. A line
// consisting of a hex number followed by a colon, e.g. `2a:`, sets a seek
// point so the host can jump to the next loader call directly. Lines starting
// with `;` or `#` are comments. File names containing whitespace can be
// quoted.
//
// Numbers are hex, optionally prefixed with `$` or `0x`, or decimal when
// prefixed with `+`. A load address of 0 means the first two bytes of the
// file (after the offset) hold the load address, and a length of 0 means the
// rest of the file.
package script

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/crunch"
)

// MaxSeekSlot is the highest seek point label.
const MaxSeekSlot = 0x3f

// Group is one step of the script: either the chunks of a loader call, or a
// seek point when Chunks is empty.
type Group struct {
	Chunks   []crunch.Chunk
	SeekSlot int
}

// IsSeekPoint reports whether the group is a seek label.
func (g *Group) IsSeekPoint() bool {
	return len(g.Chunks) == 0
}

// Script is a parsed load script.
type Script struct {
	Groups []Group
	// Entry is where the host jumps once the first loader call completes.
	Entry uint16
}

// ReadFileFunc fetches the contents of a file named in the script.
type ReadFileFunc func(name string) ([]byte, error)

// ParseParam parses a number at the start of `s`, skipping leading
// whitespace, and returns it with the unparsed remainder. An empty number is
// zero.
func ParseParam(s string) (int64, string) {
	s = strings.TrimLeft(s, " \t")

	base := int64(16)
	if strings.HasPrefix(s, "0x") {
		s = s[2:]
	} else if strings.HasPrefix(s, "+") {
		base = 10
		s = s[1:]
	} else if strings.HasPrefix(s, "$") {
		s = s[1:]
	}

	var value int64
	for len(s) > 0 {
		var digit int64
		ch := s[0]
		switch {
		case ch >= '0' && ch <= '9':
			digit = int64(ch - '0')
		case base == 16 && ch >= 'a' && ch <= 'f':
			digit = int64(ch-'a') + 10
		case base == 16 && ch >= 'A' && ch <= 'F':
			digit = int64(ch-'A') + 10
		default:
			return value, s
		}
		value = value*base + digit
		// Saturate; callers reject anything this large.
		if value > 0xffffffff {
			value = 0x100000000
		}
		s = s[1:]
	}
	return value, s
}

// Load parses the script at `path`. File names in the script are resolved
// relative to the working directory. `entry` overrides the entry point; pass
// a negative value to use the load address of the first chunk.
func Load(path string, entry int) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, spindle.ErrIOFailed.Wrap(err)
	}
	defer f.Close()
	return Parse(f, os.ReadFile, entry)
}

func scriptError(lineNo int, format string, args ...any) error {
	return spindle.ErrInvalidScript.WithMessage(
		fmt.Sprintf("line %d: %s", lineNo, fmt.Sprintf(format, args...)))
}

// Parse reads a script from `r`, fetching the files it names with
// `readFile`. See Load for `entry`.
func Parse(r io.Reader, readFile ReadFileFunc, entry int) (*Script, error) {
	script := &Script{}
	scanner := bufio.NewScanner(r)
	newGroup := true
	firstChunk := true
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		line = strings.TrimLeft(line, " \t")

		if line == "" {
			newGroup = true
			continue
		}
		if line[0] == ';' || line[0] == '#' {
			continue
		}

		name, rest := splitName(line)

		if strings.HasSuffix(name, ":") && rest == "" {
			slot, tail := ParseParam(name)
			if tail != ":" || slot > MaxSeekSlot {
				return nil, scriptError(lineNo, "invalid seek label (range 00-3f)")
			}
			script.Groups = append(script.Groups, Group{SeekSlot: int(slot)})
			newGroup = true
			continue
		}

		chunk, err := parseChunk(lineNo, name, rest, readFile)
		if err != nil {
			return nil, err
		}

		if newGroup {
			script.Groups = append(script.Groups, Group{})
			newGroup = false
		}
		group := &script.Groups[len(script.Groups)-1]
		group.Chunks = append(group.Chunks, chunk)

		if firstChunk {
			if entry < 0 {
				entry = int(chunk.LoadAddress)
			}
			firstChunk = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, spindle.ErrIOFailed.Wrap(err)
	}

	if len(script.Groups) == 0 {
		return nil, spindle.ErrInvalidScript.WithMessage("empty script")
	}
	if entry > 0xffff {
		return nil, spindle.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid entry point ($%x)", entry))
	}
	if entry >= 0 {
		script.Entry = uint16(entry)
	}
	return script, nil
}

// splitName separates the file name, which may be quoted, from the rest of
// the line.
func splitName(line string) (string, string) {
	var name, rest string
	if line[0] == '"' {
		line = line[1:]
		end := strings.IndexByte(line, '"')
		if end < 0 {
			return line, ""
		}
		name, rest = line[:end], line[end+1:]
	} else {
		end := strings.IndexAny(line, " \t")
		if end < 0 {
			return line, ""
		}
		name, rest = line[:end], line[end+1:]
	}
	return name, strings.TrimLeft(rest, " \t")
}

func parseChunk(lineNo int, name, params string, readFile ReadFileFunc) (crunch.Chunk, error) {
	loadAddress, params := ParseParam(params)
	params = strings.TrimLeft(params, " \t")
	if strings.HasPrefix(params, "!") {
		return crunch.Chunk{}, scriptError(
			lineNo, "loading directly into I/O registers (with '!') is no longer supported")
	}
	offset, params := ParseParam(params)
	length, params := ParseParam(params)
	params = strings.TrimLeft(params, " \t")
	if params != "" {
		return crunch.Chunk{}, scriptError(
			lineNo, "unexpected characters at end of script line (%s)", params)
	}

	if loadAddress > 0xffff {
		return crunch.Chunk{}, scriptError(lineNo, "invalid load address ($%x)", loadAddress)
	}
	if length > 0xffff {
		return crunch.Chunk{}, scriptError(lineNo, "invalid load length ($%x)", length)
	}
	if length == 0 {
		length = 0xffff
	}

	contents, err := readFile(name)
	if err != nil {
		return crunch.Chunk{}, spindle.ErrIOFailed.Wrap(err)
	}
	if offset > int64(len(contents)) {
		return crunch.Chunk{}, scriptError(
			lineNo, "offset $%x is past the end of %s", offset, name)
	}
	contents = contents[offset:]

	if loadAddress == 0 {
		if len(contents) < 2 {
			return crunch.Chunk{}, scriptError(
				lineNo, "error obtaining load address from file: %s", name)
		}
		loadAddress = int64(contents[0]) | int64(contents[1])<<8
		contents = contents[2:]
	}
	if int64(len(contents)) > length {
		contents = contents[:length]
	}
	if len(contents) == 0 {
		return crunch.Chunk{}, scriptError(lineNo, "no data to load from %s", name)
	}
	if loadAddress+int64(len(contents)) > 0x10000 {
		return crunch.Chunk{}, scriptError(
			lineNo, "%s doesn't fit in memory when loaded at $%04x", name, loadAddress)
	}

	return crunch.Chunk{
		Name:        name,
		LoadAddress: uint16(loadAddress),
		Data:        contents,
	}, nil
}

// Dump logs a summary of the script at verbosity level 1.
func (s *Script) Dump(log *spindle.Logger) {
	if !log.Enabled(1) {
		return
	}

	calls := 0
	for _, group := range s.Groups {
		if group.IsSeekPoint() {
			log.Logf(1, "Seek point [%02x]:", group.SeekSlot)
			continue
		}
		if calls == 0 {
			log.Logf(1, "At startup (with entry at $%04x):", s.Entry)
		} else {
			log.Logf(1, "Loader call #%d:", calls)
		}
		for _, chunk := range group.Chunks {
			preview := make([]string, 0, 8)
			for i := 0; i < 8 && i < len(chunk.Data); i++ {
				preview = append(preview, fmt.Sprintf("%02x", chunk.Data[i]))
			}
			if len(chunk.Data) > 8 {
				preview = append(preview, "...")
			}
			log.Logf(
				1,
				" * $%04x-$%04x (%s) from \"%s\"",
				chunk.LoadAddress,
				int(chunk.LoadAddress)+len(chunk.Data)-1,
				strings.Join(preview, " "),
				chunk.Name)
		}
		calls++
	}
}
