package testing

import (
	"testing"

	"github.com/dargueta/spindle/drivecode"
	"github.com/stretchr/testify/require"
)

// Branch operands baked into the drive code returned by NewRuntime.
const (
	BranchWithoutNop = 0x11
	BranchWithNop    = 0x22
)

// Offsets of the relocation markers placed in the stage 1 returned by
// NewRuntime.
const (
	ResidentPageMarkerOffset = 0x20
	ZeroPageMarkerOffset     = 0x21
)

// NewRuntime builds a synthetic runtime whose stage 1 is `stage1Size` bytes
// long. The code is meaningless but has the right shape: stage 1 carries a
// resident page marker and a zeropage marker, and the drive code holds the
// zone branch operands where the GCR table builder expects them.
func NewRuntime(t *testing.T, stage1Size int) *drivecode.Runtime {
	stage1 := make([]byte, stage1Size)
	for i := range stage1 {
		// Stay clear of every relocation marker value.
		stage1[i] = byte(0x40 + i%0x80)
	}
	reloc := make([]byte, stage1Size)
	copy(reloc, stage1)

	stage1[ResidentPageMarkerOffset] = 0x02
	reloc[ResidentPageMarkerOffset] = 0x42
	stage1[ZeroPageMarkerOffset] = 0xf6
	reloc[ZeroPageMarkerOffset] = 0x96

	driveCode := make([]byte, drivecode.DriveCodeSize)
	for i := range driveCode {
		driveCode[i] = byte(i * 7)
	}
	// The continuation record of the communication sector starts out empty.
	driveCode[0x301] = 0
	driveCode[0x302] = 0
	driveCode[0x303] = 0
	driveCode[0x306] = BranchWithNop
	driveCode[0x307] = BranchWithoutNop

	driveCodeErr := make([]byte, drivecode.DriveCodeSize)
	copy(driveCodeErr, driveCode)
	driveCodeErr[0] ^= 0xff

	rt := &drivecode.Runtime{
		Stage1:       stage1,
		Stage1Reloc:  reloc,
		EFlagWarning: []byte("WARNING: ERRORS ON\x00"),
		DriveCode:    driveCode,
		DriveCodeErr: driveCodeErr,
		PatchOffsets: [3]byte{0x10, 0x20, 0x30},
	}
	require.NoError(t, rt.Validate(), "synthetic runtime is invalid")
	return rt
}
