package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/hwaccsim/cdfg"
	"github.com/sarchlab/hwaccsim/insts"
)

// Export converts a graph to its file form. Unnamed instructions that are
// referenced get their id as name, and unnamed blocks get "bb" and their id.
func Export(g *cdfg.Graph) *File {
	f := &File{Top: g.Top().Name}

	for fi := 0; fi < g.NumFunctions(); fi++ {
		fn := g.Function(cdfg.FuncID(fi))
		spec := FunctionSpec{Name: fn.Name, Args: fn.NumArgs}

		for _, b := range fn.Blocks {
			blk := g.Block(b)
			bs := BlockSpec{Name: blockName(g, b)}
			for _, id := range blk.Insts {
				bs.Insts = append(bs.Insts, exportInst(g, g.Inst(id)))
			}
			spec.Blocks = append(spec.Blocks, bs)
		}

		f.Functions = append(f.Functions, spec)
	}

	return f
}

func blockName(g *cdfg.Graph, id cdfg.BlockID) string {
	if name := g.Block(id).Name; name != "" {
		return name
	}
	return "bb" + strconv.Itoa(int(id))
}

func valueName(g *cdfg.Graph, id cdfg.InstID) string {
	if name := g.Inst(id).Name; name != "" {
		return name
	}
	return strconv.Itoa(int(id))
}

func exportOperand(g *cdfg.Graph, op cdfg.Operand) string {
	switch op.Kind {
	case cdfg.OperandArg:
		return "$" + strconv.Itoa(op.Arg)
	case cdfg.OperandInst:
		return "%" + valueName(g, op.Inst)
	}
	return "#" + strconv.FormatUint(op.Imm, 10)
}

func exportInst(g *cdfg.Graph, inst *cdfg.Instruction) InstSpec {
	spec := InstSpec{
		Op:      inst.Op.String(),
		Cases:   inst.Cases,
		Strides: inst.Strides,
	}

	if inst.Op.HasResult() && inst.Type.Kind != insts.KindVoid {
		spec.Name = valueName(g, inst.ID)
	} else {
		spec.Name = inst.Name
	}
	if inst.Type.Kind != insts.KindVoid {
		spec.Type = inst.Type.String()
	}
	if inst.OperandType.Kind != insts.KindVoid {
		spec.OperandType = inst.OperandType.String()
	}
	if inst.Pred != insts.PredNone {
		spec.Pred = inst.Pred.String()
	}
	if inst.Op == insts.OpCall {
		spec.Callee = g.Function(inst.Callee).Name
	}
	if inst.Op.IsMemory() && inst.Size != inst.Type.Bytes() {
		spec.Size = inst.Size
	}

	for _, op := range inst.Operands {
		spec.Operands = append(spec.Operands, exportOperand(g, op))
	}
	for _, in := range inst.Incoming {
		spec.Incoming = append(spec.Incoming, PhiSpec{
			Block: blockName(g, in.Block),
			Value: exportOperand(g, in.Value),
		})
	}
	for _, t := range inst.Targets {
		spec.Targets = append(spec.Targets, blockName(g, t))
	}

	return spec
}

// Marshal encodes the file as JSON, or as YAML.
func (f *File) Marshal(asYAML bool) ([]byte, error) {
	if asYAML {
		return yaml.Marshal(f)
	}
	return json.MarshalIndent(f, "", "  ")
}

// Save writes the file as JSON, or YAML when the path ends in .yaml or .yml.
func (f *File) Save(path string) error {
	data, err := f.Marshal(isYAML(path))
	if err != nil {
		return fmt.Errorf("failed to encode workload: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write workload file: %w", err)
	}

	return nil
}
