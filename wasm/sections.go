package wasm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrNotWasm is returned for input without the wasm magic and version.
	ErrNotWasm = errors.New("wasm: not a core module")

	// ErrTruncated is returned when a section runs past the end of input.
	ErrTruncated = errors.New("wasm: truncated section")
)

// Section is one top-level section of a module.
type Section struct {
	// Name is set for custom sections.
	Name string
	// Data is the payload; for custom sections it excludes the name.
	Data []byte
	// Offset is the position of the section id byte in the module.
	Offset int
	// End is the position just past the section.
	End int
	ID  byte
}

// Sections splits a module into its top-level sections.
func Sections(module []byte) ([]Section, error) {
	if len(module) < 8 ||
		binary.LittleEndian.Uint32(module) != Magic ||
		binary.LittleEndian.Uint32(module[4:]) != Version {
		return nil, ErrNotWasm
	}

	var out []Section
	pos := 8
	for pos < len(module) {
		start := pos
		id := module[pos]
		r := bytes.NewReader(module[pos+1:])
		size, err := ReadULEB128(r)
		if err != nil {
			return nil, fmt.Errorf("section at %d: %w", start, err)
		}
		body := pos + 1 + (len(module[pos+1:]) - r.Len())
		if size > uint64(len(module)-body) {
			return nil, fmt.Errorf("section at %d: %w", start, ErrTruncated)
		}
		end := body + int(size)
		sec := Section{ID: id, Data: module[body:end], Offset: start, End: end}
		if id == SectionCustom {
			nr := bytes.NewReader(sec.Data)
			n, err := ReadULEB128(nr)
			if err != nil || n > uint64(nr.Len()) {
				return nil, fmt.Errorf("custom section name at %d: %w", start, ErrTruncated)
			}
			nameStart := len(sec.Data) - nr.Len()
			sec.Name = string(sec.Data[nameStart : nameStart+int(n)])
			sec.Data = sec.Data[nameStart+int(n):]
		}
		out = append(out, sec)
		pos = end
	}
	return out, nil
}

// CustomSection returns the payload of the first custom section called name.
func CustomSection(module []byte, name string) ([]byte, bool, error) {
	secs, err := Sections(module)
	if err != nil {
		return nil, false, err
	}
	for _, s := range secs {
		if s.ID == SectionCustom && s.Name == name {
			return s.Data, true, nil
		}
	}
	return nil, false, nil
}

// SetCustomSection removes every custom section called name and appends one
// with data. The input is not modified.
func SetCustomSection(module []byte, name string, data []byte) ([]byte, error) {
	secs, err := Sections(module)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(module)+len(name)+len(data)+10)
	out = append(out, module[:8]...)
	for _, s := range secs {
		if s.ID == SectionCustom && s.Name == name {
			continue
		}
		out = append(out, module[s.Offset:s.End]...)
	}
	return appendCustom(out, name, data), nil
}
