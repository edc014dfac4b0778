package codegen

import "github.com/pkg/errors"

// Finalize patches every recorded CallFixup now that the code buffer has
// a real base address, every user function has a finalized offset, and
// every extern symbol (the active unwinder strategy's throw_func and
// resume_unwind_func, plus any host symbol like puts) has a resolved
// address. It must run once codeBase (the final page's address) is known
// and before the patched buffer is copied into that page, since BL
// targets are PC-relative to codeBase.
func (g *CodeGen) Finalize(codeBase, dataBase uint64, externs map[string]uint64) error {
	for _, f := range g.callFixups {
		if f.IsLoadImm {
			name := f.Target[len("$data$"):]
			off, ok := g.dataSymbols[name]
			if !ok {
				return errors.Errorf("codegen: undefined data symbol %q", name)
			}
			g.patchLoadImm64(f.CodeOffset, dataBase+uint64(off))
			continue
		}
		var targetAddr uint64
		if off, ok := g.funcOffsets[f.Target]; ok {
			targetAddr = codeBase + uint64(off)
		} else if addr, ok := externs[f.Target]; ok {
			targetAddr = addr
		} else {
			return errors.Errorf("codegen: unresolved call target %q", f.Target)
		}
		delta := int(targetAddr - (codeBase + uint64(f.CodeOffset)))
		g.patchBranch26(f.CodeOffset, delta)
	}
	return nil
}

func (g *CodeGen) patchLoadImm64(offset int, val uint64) {
	patchMovWide := func(at int, opcodeBase uint32, imm16 uint16, shift uint32) {
		inst := g.u32At(at)
		inst = (inst &^ (0xffff << 5)) | (uint32(imm16) << 5)
		inst = (inst &^ (0x3 << 21)) | (shift << 21)
		_ = opcodeBase
		g.putU32At(at, inst)
	}
	patchMovWide(offset, 0xD2800000, uint16(val), 0)
	patchMovWide(offset+4, 0xF2800000, uint16(val>>16), 1)
	patchMovWide(offset+8, 0xF2800000, uint16(val>>32), 2)
	patchMovWide(offset+12, 0xF2800000, uint16(val>>48), 3)
}
