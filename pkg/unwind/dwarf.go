package unwind

import "bytes"

// uleb128/sleb128 encode the variable-length integers both .eh_frame's CFI
// program and the GCC except-table format use.
func uleb128(buf *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func sleb128(buf *bytes.Buffer, v int64) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBit := b&0x40 != 0
		if (v == 0 && !signBit) || (v == -1 && signBit) {
			more = false
		} else {
			b |= 0x80
		}
		buf.WriteByte(b)
	}
}

func le32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func le64(buf *bytes.Buffer, v uint64) {
	le32(buf, uint32(v))
	le32(buf, uint32(v>>32))
}

// DWARF CFI opcodes used by the minimal CIE/FDE this package emits. The
// frame-description program here only needs to express the one prologue
// convention pkg/codegen always generates (SUB SP,#n; STR FP,[SP]; STR
// LR,[SP,#8]), so it does not attempt to be a general CFI assembler --
// a deliberate simplification recorded in DESIGN.md: a real toolchain
// backend derives this program from its own prologue tracking, but this
// module's codegen only ever emits one fixed prologue shape.
const (
	dwCfaDefCfa         = 0x0c
	dwCfaOffset         = 0x80
	dwCfaAdvanceLoc4    = 0x04
	dwEhPeAbsptr        = 0x00
	dwEhPeUdata4        = 0x03
	dwEhPePcrel         = 0x10
	dwEhPeIndirect      = 0x80
	dwehFrameCFAReg     = 31 // SP
	dwRegFP             = 29
	dwRegLR             = 30
)

// buildCIE constructs one Common Information Entry whose personality
// routine is personalityAddr and whose augmentation carries an LSDA
// pointer encoding and an FDE address encoding ("zPLR"), the shape eh_frame readers (and libgcc's own
// _Unwind_Find_FDE) expect, mirroring unwind.rs's
// `module.isa().create_systemv_cie()` plus `cie.personality =
// Some(...)`.
func buildCIE(personalityAddr uint64) []byte {
	var body bytes.Buffer
	le32(&body, 0) // CIE_id == 0
	body.WriteByte(1) // version
	body.WriteString("zPLR")
	body.WriteByte(0)
	uleb128(&body, 1) // code alignment factor
	sleb128(&body, -8) // data alignment factor
	body.WriteByte(30) // return address register (LR)

	var aug bytes.Buffer
	uleb128(&aug, 1+8+1+1) // augmentation data length: personality encoding+ptr, lsda encoding, fde encoding
	aug.WriteByte(dwEhPeAbsptr)
	le64(&aug, personalityAddr)
	aug.WriteByte(dwEhPeAbsptr) // LSDA pointer encoding
	aug.WriteByte(dwEhPeAbsptr) // FDE address encoding
	body.Write(aug.Bytes())

	body.WriteByte(dwCfaDefCfa)
	uleb128(&body, dwehFrameCFAReg)
	uleb128(&body, 0)

	pad := (-body.Len()) & 3
	for i := 0; i < pad; i++ {
		body.WriteByte(0)
	}

	var out bytes.Buffer
	le32(&out, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

// buildFDE constructs one Frame Description Entry covering [funcAddr,
// funcAddr+size) with an LSDA pointer, mirroring
// `unwind_info.to_fde(...)` / `fde.lsda = Some(...)` in unwind.rs.
//
// cieLen is len(cie) -- the CIE byte-stream this FDE refers to, not
// including the FDE's own framing. The CIE-pointer field encodes the
// distance back from itself to the CIE's start, and the FDE's own
// 4-byte length prefix sits before that field, so the encoded distance
// is cieLen+4, not cieLen.
func buildFDE(cieLen uint32, funcAddr uint64, size uint32, lsdaAddr uint64) []byte {
	var body bytes.Buffer
	le32(&body, cieLen+4)
	le64(&body, funcAddr)
	le64(&body, uint64(size))
	uleb128(&body, 8) // augmentation data length: one absptr LSDA pointer
	le64(&body, lsdaAddr)

	body.WriteByte(dwCfaOffset | dwRegFP)
	uleb128(&body, 0)
	body.WriteByte(dwCfaOffset | dwRegLR)
	uleb128(&body, 1)

	pad := (-body.Len()) & 3
	for i := 0; i < pad; i++ {
		body.WriteByte(0)
	}

	var out bytes.Buffer
	le32(&out, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

// ehFrameEntryKind distinguishes GCC-table call sites (full
// gcc_except_table format) from Fast's own compact LSDA, both produced
// for the same call-site list.
type ehFrameEntryKind int

const (
	entryNoCleanup ehFrameEntryKind = iota
	entryCleanup
	entryCatch
)

func kindOf(cs CallSiteInfo) ehFrameEntryKind {
	if !cs.HasLandingPad {
		return entryNoCleanup
	}
	if cs.IsCatch {
		return entryCatch
	}
	return entryCleanup
}

// buildGccExceptTable emits a minimal GCC-ABI except-table: one call-site
// table entry per call site (start/length/landing-pad/action), a
// genuine catch-all action record for Catch entries, no type filtering
// beyond that one catch-all -- the same shape unwind_gcc.rs builds via
// the eh_frame_experiments crate, hand rolled here since this pack
// carries no Go DWARF except-table writer.
//
// __gcc_personality_v0 treats a call site's action record's type
// filter as: 0 means "cleanup", never a HANDLER_FOUND match during the
// search phase; a positive filter indexes the type-info table (which
// here holds exactly one entry, the catch-all at index 1) and does
// match. So a Catch call site's action record must encode filter=1,
// not 0.
func buildGccExceptTable(fn FuncInfo) []byte {
	var cs bytes.Buffer
	var action bytes.Buffer
	// Action table is 1-indexed; byte offset 0 of this buffer is action
	// record 1 (the catch-all: filter=1, next=0 meaning "no more
	// actions to try at this call site").
	sleb128(&action, 1)
	sleb128(&action, 0)

	for _, c := range fn.CallSites {
		k := kindOf(c)
		start := uint32(c.RetAddr) - 1
		le32(&cs, start)
		le32(&cs, 1)
		switch k {
		case entryNoCleanup:
			le32(&cs, 0)
			uleb128(&cs, 0)
		case entryCleanup:
			le32(&cs, c.LandingPad)
			uleb128(&cs, 0)
		case entryCatch:
			le32(&cs, c.LandingPad)
			uleb128(&cs, 1) // action table offset 1, 1-based, selects the catch-all record above
		}
	}

	// TType offset counts forward from the byte right after this uleb128
	// itself to the type-info table's end, per the LSDA format; the
	// call-site encoding byte, the call-site table length field, the
	// call-site table, the action table and the 4-byte type-info table
	// all sit between the two, so it must be computed from their actual
	// encoded lengths rather than assumed fixed.
	var csLenEnc bytes.Buffer
	uleb128(&csLenEnc, uint64(cs.Len()))
	ttypeOffset := 1 + csLenEnc.Len() + cs.Len() + action.Len() + 4

	var out bytes.Buffer
	out.WriteByte(dwEhPeAbsptr) // LPStart encoding: absolute
	le64(&out, uint64(fn.Addr)) // LPStart: landing pads are offsets from the function start
	out.WriteByte(dwEhPeUdata4) // TType encoding
	uleb128(&out, uint64(ttypeOffset))
	out.WriteByte(dwEhPeUdata4) // call-site table encoding: start/length/landing pad as udata4, action as uleb128
	uleb128(&out, uint64(cs.Len()))
	out.Write(cs.Bytes())
	out.Write(action.Bytes())
	le32(&out, 0) // type info table: one catch-all (type 0 == catch(...)), read backwards from TType base
	return out.Bytes()
}
