// Package loader reads workloads: a control/data-flow graph together with the
// arguments and memory contents of a run.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/emu"
	"github.com/sarchlab/hwaccsim/insts"
)

// ErrInvalidWorkload is returned for workloads that do not describe a graph,
// such as unknown opcodes or dangling names. Errors found by graph
// validation wrap cdfg.ErrInvalidGraph instead.
var ErrInvalidWorkload = errors.New("invalid workload")

// Segment is memory content to write before the run starts.
type Segment struct {
	// Addr is the address of the first byte.
	Addr uint64
	// Data is the content.
	Data []byte
}

// Program is a loaded workload ready for simulation.
type Program struct {
	// Graph is the validated graph.
	Graph *cdfg.Graph
	// Args are the arguments of the top function.
	Args []emu.Value
	// Segments are written to memory before the run.
	Segments []Segment
}

// Memory receives the segments of a program.
type Memory interface {
	Write(addr uint64, data []byte) error
}

// Preload writes all segments to memory.
func (p *Program) Preload(m Memory) error {
	for _, seg := range p.Segments {
		if err := m.Write(seg.Addr, seg.Data); err != nil {
			return fmt.Errorf("failed to preload segment at 0x%x: %w", seg.Addr, err)
		}
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a workload file.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workload file: %w", err)
	}

	return Parse(data, isYAML(path))
}

// Parse decodes a workload and builds its graph.
func Parse(data []byte, asYAML bool) (*Program, error) {
	f := &File{}

	var err error
	if asYAML {
		err = yaml.Unmarshal(data, f)
	} else {
		err = json.Unmarshal(data, f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse workload: %w", err)
	}

	return f.Program()
}

// Program builds the graph and decodes the inputs of the file.
func (f *File) Program() (*Program, error) {
	g, err := f.Graph()
	if err != nil {
		return nil, err
	}

	prog := &Program{Graph: g}

	for i, a := range f.Args {
		t, err := insts.ParseValueType(a.Type)
		if err != nil {
			return nil, invalid("argument %d: %v", i, err)
		}
		bits, err := parseValue(a.Value, t)
		if err != nil {
			return nil, invalid("argument %d: %v", i, err)
		}
		prog.Args = append(prog.Args, emu.IntValue(bits, t))
	}

	for _, s := range f.Segments {
		seg, err := s.decode()
		if err != nil {
			return nil, err
		}
		prog.Segments = append(prog.Segments, seg)
	}

	return prog, nil
}

func (s *SegmentSpec) decode() (Segment, error) {
	t, err := insts.ParseValueType(s.Type)
	if err != nil || t.Kind == insts.KindVoid {
		return Segment{}, invalid("segment at 0x%x: bad type %q", s.Addr, s.Type)
	}

	size := t.Bytes()
	seg := Segment{Addr: s.Addr, Data: make([]byte, 0, int(size)*len(s.Values))}
	for _, v := range s.Values {
		bits, err := parseValue(v, t)
		if err != nil {
			return Segment{}, invalid("segment at 0x%x: %v", s.Addr, err)
		}
		seg.Data = append(seg.Data, emu.Encode(emu.Value{Bits: bits}, size)...)
	}

	return seg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidWorkload}, args...)...)
}

// parseValue parses a literal of a known type. Floating point types take
// float literals, or raw bits written in hex.
func parseValue(s string, t insts.ValueType) (uint64, error) {
	if t.IsFP() && !isHex(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("bad %v literal %q", t, s)
		}
		return emu.MakeFloat(f, t).Bits, nil
	}

	bits, err := parseInt(s)
	if err != nil {
		return 0, err
	}
	return bits & t.Mask(), nil
}

// parseConst parses an operand literal. fp is the type float literals are
// encoded in.
func parseConst(s string, fp insts.ValueType) (uint64, error) {
	if isFloatLiteral(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("bad float literal %q", s)
		}
		return emu.MakeFloat(f, fp).Bits, nil
	}
	return parseInt(s)
}

func parseInt(s string) (uint64, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return uint64(v), nil
	}

	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad integer literal %q", s)
	}
	return v, nil
}

func isHex(s string) bool {
	s = strings.TrimPrefix(s, "-")
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

func isFloatLiteral(s string) bool {
	if isHex(s) {
		return false
	}

	switch strings.ToLower(strings.TrimLeft(s, "+-")) {
	case "inf", "infinity", "nan":
		return true
	}

	return strings.ContainsAny(s, ".eE")
}
