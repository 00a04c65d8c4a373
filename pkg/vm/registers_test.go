package vm

import "testing"

// TestRegisterAliasing verifies A and X alias scratch slots 0 and 1.
func TestRegisterAliasing(t *testing.T) {
	var r RegisterFile
	r.SetA(0x11)
	r.SetX(0x22)
	if r.Slot(0) != 0x11 || r.Slot(1) != 0x22 {
		t.Errorf("slots = %d, %d, want 0x11, 0x22", r.Slot(0), r.Slot(1))
	}
	r.SetSlot(0, 0x33)
	if r.A() != 0x33 {
		t.Errorf("A = %d after SetSlot(0), want 0x33", r.A())
	}
}

// TestModifiedFlags verifies the diagnostic write tracking.
func TestModifiedFlags(t *testing.T) {
	var r RegisterFile
	if r.Modified(5) {
		t.Error("fresh slot reports modified")
	}
	r.SetSlot(5, 1)
	if !r.Modified(5) {
		t.Error("written slot not reported modified")
	}
	r.Reset()
	if r.Modified(5) {
		t.Error("Reset should clear modified flags")
	}
}

// TestErrorBitsStick verifies bits accumulate until cleared.
func TestErrorBitsStick(t *testing.T) {
	var r RegisterFile
	r.SetError(ErrBitCRC)
	r.SetError(ErrBitTruncated)
	if r.Status() != ErrBitCRC|ErrBitTruncated {
		t.Errorf("status = 0x%X", r.Status())
	}
	r.ClearErrors()
	if r.Status() != 0 {
		t.Errorf("status after clear = 0x%X", r.Status())
	}
}

// TestNamedRegisters verifies the extension-state registers.
func TestNamedRegisters(t *testing.T) {
	var r RegisterFile
	r.SetFrameLen(64)
	r.SetL3Offset(14)
	r.SetL4Offset(34)
	r.SetPayloadOffset(54)
	if r.FrameLen() != 64 || r.L3Offset() != 14 || r.L4Offset() != 34 || r.PayloadOffset() != 54 {
		t.Error("named register round trip failed")
	}
	r.Reset()
	if r.FrameLen() != 0 || r.L3Offset() != 0 {
		t.Error("Reset should clear named registers")
	}
}
