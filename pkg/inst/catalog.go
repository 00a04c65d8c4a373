package inst

// Info holds static metadata for one opcode.
type Info struct {
	Mnemonic string // Assembler mnemonic (e.g., "ldh", "jeq", "chk_crc")
	Category Category
	Format   Format
}

// Catalog maps each opcode byte to its Info. Entries with an empty mnemonic
// are unassigned opcode values.
var Catalog [256]Info

// AllOps returns every assigned opcode value in ascending order.
func AllOps() []Opcode {
	ops := make([]Opcode, 0, 64)
	for i := 0; i < 256; i++ {
		if Catalog[i].Mnemonic != "" {
			ops = append(ops, Opcode(i))
		}
	}
	return ops
}

// Mnemonic returns the assembler mnemonic for op, or "" if unassigned.
func Mnemonic(op Opcode) string {
	return Catalog[op].Mnemonic
}

func init() {
	// Loads into A. The mnemonic is shared across operand shapes the way
	// tcpdump spells them; the assembler disambiguates by operand syntax
	// (ld #k vs ld [k] vs ld M[k] vs ld len).
	loads := []struct {
		op       Opcode
		mnemonic string
		format   Format
	}{
		{LD_IMM, "ld", FmtImmediate},
		{LD_ABS_W, "ld", FmtMemoryAbs},
		{LD_ABS_H, "ldh", FmtMemoryAbs},
		{LD_ABS_B, "ldb", FmtMemoryAbs},
		{LD_IND_W, "ld", FmtMemoryInd},
		{LD_IND_H, "ldh", FmtMemoryInd},
		{LD_IND_B, "ldb", FmtMemoryInd},
		{LD_MEM, "ld", FmtMemoryReg},
		{LD_LEN, "ld", FmtRegOnly},
		{LD_MSH, "ldb", FmtExtended},

		{LDX_IMM, "ldx", FmtImmediate},
		{LDX_MEM, "ldx", FmtMemoryReg},
		{LDX_LEN, "ldx", FmtRegOnly},
		{LDX_MSH, "ldxb", FmtExtended},
	}
	for _, l := range loads {
		Catalog[l.op] = Info{Mnemonic: l.mnemonic, Category: CatLoad, Format: l.format}
	}

	Catalog[ST] = Info{Mnemonic: "st", Category: CatStore, Format: FmtMemoryReg}
	Catalog[STX] = Info{Mnemonic: "stx", Category: CatStore, Format: FmtMemoryReg}

	aluK := []struct {
		op       Opcode
		mnemonic string
	}{
		{ADD_K, "add"}, {SUB_K, "sub"}, {MUL_K, "mul"}, {DIV_K, "div"},
		{OR_K, "or"}, {AND_K, "and"}, {LSH_K, "lsh"}, {RSH_K, "rsh"},
		{MOD_K, "mod"}, {XOR_K, "xor"},
	}
	for _, a := range aluK {
		Catalog[a.op] = Info{Mnemonic: a.mnemonic, Category: CatALU, Format: FmtImmediate}
	}
	aluX := []struct {
		op       Opcode
		mnemonic string
	}{
		{ADD_X, "add"}, {SUB_X, "sub"}, {MUL_X, "mul"}, {DIV_X, "div"},
		{OR_X, "or"}, {AND_X, "and"}, {LSH_X, "lsh"}, {RSH_X, "rsh"},
		{MOD_X, "mod"}, {XOR_X, "xor"},
	}
	for _, a := range aluX {
		Catalog[a.op] = Info{Mnemonic: a.mnemonic, Category: CatALU, Format: FmtRegOnly}
	}
	Catalog[NEG] = Info{Mnemonic: "neg", Category: CatALU, Format: FmtRegOnly}

	Catalog[JMP_JA] = Info{Mnemonic: "ja", Category: CatJump, Format: FmtJumpUncond}
	condJumps := []struct {
		op       Opcode
		mnemonic string
	}{
		{JEQ_K, "jeq"}, {JGT_K, "jgt"}, {JGE_K, "jge"}, {JSET_K, "jset"},
		{JEQ_X, "jeq"}, {JGT_X, "jgt"}, {JGE_X, "jge"}, {JSET_X, "jset"},
	}
	for _, j := range condJumps {
		Catalog[j.op] = Info{Mnemonic: j.mnemonic, Category: CatJump, Format: FmtJumpCond}
	}

	Catalog[RET_K] = Info{Mnemonic: "ret", Category: CatRet, Format: FmtImmediate}
	Catalog[RET_A] = Info{Mnemonic: "ret", Category: CatRet, Format: FmtRegOnly}

	Catalog[TAX] = Info{Mnemonic: "tax", Category: CatMisc, Format: FmtRegOnly}
	Catalog[TXA] = Info{Mnemonic: "txa", Category: CatMisc, Format: FmtRegOnly}

	checks := []struct {
		op       Opcode
		mnemonic string
	}{
		{CHK_CRC, "chk_crc"},
		{CHK_L3_CSUM, "chk_l3_csum"},
		{CHK_L4_CSUM, "chk_l4_csum"},
		{CHK_TRUNC, "chk_trunc"},
		{CHK_FRAME_LEN, "chk_frame_len"},
		{CHK_PROTO_LOC, "chk_proto_loc"},
	}
	for _, c := range checks {
		Catalog[c.op] = Info{Mnemonic: c.mnemonic, Category: CatExt, Format: FmtExtended}
	}
}
