// Package drivecode holds the pre-assembled runtime that is stored on track 18
// of every disk side: the host-side stage 1 loader and the drive-resident code.
//
// The runtime is produced by a separate assembler build and is treated as
// opaque data here, except for the relocation of stage 1 and a handful of
// bytes the image builder reads from or patches into it.
package drivecode

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/gcr"
)

const (
	// DriveCodeSize is the size of the drive code: six sectors.
	DriveCodeSize = 6 * 256

	// Stage 1 occupies three or four sectors with 254 payload bytes each.
	minStage1Size = 2*254 + 1
	maxStage1Size = 4 * 254

	// BASIC line of stage 1 holding the decimal SYS target.
	sysTargetOffset = 7
)

// File names used by Load.
const (
	Stage1File       = "stage1.bin"
	Stage1RelocFile  = "stage1reloc.bin"
	EFlagWarningFile = "eflagwarning.bin"
	DriveCodeFile    = "drivecode.bin"
	DriveCodeErrFile = "drivecode-err.bin"
	PatchOffsetsFile = "patch-offsets.bin"
)

// Runtime is the complete set of code blobs for one build of the loader.
type Runtime struct {
	// Stage1 is the first-stage loader, assembled for the default placement.
	Stage1 []byte
	// Stage1Reloc is the same code assembled with different placement. Bytes
	// that differ between the two are relocation markers.
	Stage1Reloc []byte
	// EFlagWarning is appended to stage 1 when simulated read errors are on.
	EFlagWarning []byte
	DriveCode    []byte
	// DriveCodeErr is the drive code variant that simulates read errors.
	DriveCodeErr []byte
	// PatchOffsets are the offsets within the resident loader page of the three
	// instructions toggled to enable and disable shadow RAM.
	PatchOffsets [3]byte
}

// Load reads a runtime from the blobs in `dir`. EFlagWarningFile and
// DriveCodeErrFile are optional; without them simulated read errors are
// unavailable.
func Load(dir string) (*Runtime, error) {
	rt := &Runtime{}
	required := []struct {
		name string
		dest *[]byte
	}{
		{Stage1File, &rt.Stage1},
		{Stage1RelocFile, &rt.Stage1Reloc},
		{DriveCodeFile, &rt.DriveCode},
	}
	for _, blob := range required {
		data, err := os.ReadFile(filepath.Join(dir, blob.name))
		if err != nil {
			return nil, spindle.ErrIOFailed.Wrap(err)
		}
		*blob.dest = data
	}

	optional := []struct {
		name string
		dest *[]byte
	}{
		{EFlagWarningFile, &rt.EFlagWarning},
		{DriveCodeErrFile, &rt.DriveCodeErr},
	}
	for _, blob := range optional {
		data, err := os.ReadFile(filepath.Join(dir, blob.name))
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return nil, spindle.ErrIOFailed.Wrap(err)
		}
		*blob.dest = data
	}

	offsets, err := os.ReadFile(filepath.Join(dir, PatchOffsetsFile))
	if err != nil {
		return nil, spindle.ErrIOFailed.Wrap(err)
	}
	if len(offsets) != len(rt.PatchOffsets) {
		return nil, spindle.ErrInvalidRuntime.WithMessage(
			fmt.Sprintf("%s must hold %d bytes, got %d", PatchOffsetsFile, len(rt.PatchOffsets), len(offsets)))
	}
	copy(rt.PatchOffsets[:], offsets)

	return rt, rt.Validate()
}

// Validate checks the sizes of all blobs.
func (rt *Runtime) Validate() error {
	if len(rt.Stage1) != len(rt.Stage1Reloc) {
		return spindle.ErrInvalidRuntime.WithMessage(
			fmt.Sprintf(
				"stage 1 is %d bytes but its relocation image is %d",
				len(rt.Stage1),
				len(rt.Stage1Reloc)))
	}
	if len(rt.Stage1) < minStage1Size || len(rt.Stage1) > maxStage1Size {
		return spindle.ErrInvalidRuntime.WithMessage(
			fmt.Sprintf(
				"stage 1 size %d not in range [%d, %d]",
				len(rt.Stage1),
				minStage1Size,
				maxStage1Size))
	}
	if len(rt.DriveCode) != DriveCodeSize {
		return spindle.ErrInvalidRuntime.WithMessage(
			fmt.Sprintf("drive code must be %d bytes, got %d", DriveCodeSize, len(rt.DriveCode)))
	}
	if rt.DriveCodeErr != nil && len(rt.DriveCodeErr) != DriveCodeSize {
		return spindle.ErrInvalidRuntime.WithMessage(
			fmt.Sprintf(
				"error-simulating drive code must be %d bytes, got %d",
				DriveCodeSize,
				len(rt.DriveCodeErr)))
	}
	return nil
}

// SupportsErrors reports whether the runtime can simulate read errors.
func (rt *Runtime) SupportsErrors() bool {
	return rt.DriveCodeErr != nil && rt.EFlagWarning != nil
}

// Branches returns the zone branch operands baked into the GCR decode table.
func (rt *Runtime) Branches() gcr.BranchOffsets {
	return gcr.BranchOffsets{
		WithoutNop: rt.DriveCode[0x300+7],
		WithNop:    rt.DriveCode[0x300+6],
	}
}

// DriveCodeFor returns the drive code to install.
func (rt *Runtime) DriveCodeFor(simulateErrors bool) []byte {
	if simulateErrors {
		return rt.DriveCodeErr
	}
	return rt.DriveCode
}

// Placement gives where the host-side loader lives and where it jumps when
// the first load completes.
type Placement struct {
	JumpAddress  uint16
	ResidentPage byte
	BufferPage   byte
	ZeroPage     byte
}

// RelocatedStage1 returns stage 1 relocated for `placement`, with the error-flag
// warning appended if `simulateErrors` is set.
func (rt *Runtime) RelocatedStage1(placement Placement, simulateErrors bool) ([]byte, error) {
	stage1 := make([]byte, len(rt.Stage1), len(rt.Stage1)+len(rt.EFlagWarning))
	for i, b := range rt.Stage1 {
		if b == rt.Stage1Reloc[i] {
			stage1[i] = b
			continue
		}

		switch b {
		case 0x02:
			stage1[i] = placement.ResidentPage
		case 0x03:
			stage1[i] = placement.ResidentPage + 1
		case 0x07:
			stage1[i] = placement.BufferPage
		case 0x08:
			stage1[i] = byte((placement.JumpAddress - 1) >> 8)
		case 0x01:
			stage1[i] = byte((placement.JumpAddress - 1) & 0xff)
		default:
			if b < 0xe0 {
				return nil, spindle.ErrInternal.WithMessage(
					fmt.Sprintf("unknown relocation marker $%02x at offset %d", b, i))
			}
			stage1[i] = b - 0xf4 + placement.ZeroPage
		}
	}

	if simulateErrors {
		if !rt.SupportsErrors() {
			return nil, spindle.ErrInvalidArgument.WithMessage(
				"this runtime cannot simulate read errors")
		}
		sysTarget := strconv.Itoa(0x801 + len(rt.Stage1) - 2)
		stage1 = append(stage1, rt.EFlagWarning...)
		copy(stage1[sysTargetOffset:], sysTarget)
		stage1[sysTargetOffset+len(sysTarget)] = 0
	}

	if len(stage1) > maxStage1Size {
		return nil, spindle.ErrInvalidRuntime.WithMessage(
			fmt.Sprintf("stage 1 with warning is %d bytes, limit is %d", len(stage1), maxStage1Size))
	}
	return stage1, nil
}
