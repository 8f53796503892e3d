package drivecode_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/spindle"
	"github.com/dargueta/spindle/drivecode"
	st "github.com/dargueta/spindle/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRuntime(t *testing.T, rt *drivecode.Runtime, withErrors bool) string {
	dir := t.TempDir()
	files := map[string][]byte{
		drivecode.Stage1File:       rt.Stage1,
		drivecode.Stage1RelocFile:  rt.Stage1Reloc,
		drivecode.DriveCodeFile:    rt.DriveCode,
		drivecode.PatchOffsetsFile: rt.PatchOffsets[:],
	}
	if withErrors {
		files[drivecode.EFlagWarningFile] = rt.EFlagWarning
		files[drivecode.DriveCodeErrFile] = rt.DriveCodeErr
	}
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir
}

func TestLoad(t *testing.T) {
	rt := st.NewRuntime(t, 700)
	dir := writeRuntime(t, rt, true)

	loaded, err := drivecode.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, rt, loaded)
	assert.True(t, loaded.SupportsErrors())
}

func TestLoadWithoutOptionalFiles(t *testing.T) {
	rt := st.NewRuntime(t, 700)
	dir := writeRuntime(t, rt, false)

	loaded, err := drivecode.Load(dir)
	require.NoError(t, err)
	assert.False(t, loaded.SupportsErrors())
	assert.Nil(t, loaded.DriveCodeErr)

	_, err = loaded.RelocatedStage1(drivecode.Placement{ResidentPage: 2}, true)
	assert.ErrorIs(t, err, spindle.ErrInvalidArgument)
}

func TestLoadErrors(t *testing.T) {
	rt := st.NewRuntime(t, 700)

	dir := writeRuntime(t, rt, false)
	require.NoError(t, os.Remove(filepath.Join(dir, drivecode.Stage1File)))
	_, err := drivecode.Load(dir)
	assert.ErrorIs(t, err, spindle.ErrIOFailed)

	dir = writeRuntime(t, rt, false)
	require.NoError(
		t, os.WriteFile(filepath.Join(dir, drivecode.PatchOffsetsFile), []byte{1, 2}, 0o644))
	_, err = drivecode.Load(dir)
	assert.ErrorIs(t, err, spindle.ErrInvalidRuntime)

	dir = writeRuntime(t, rt, false)
	require.NoError(
		t, os.WriteFile(filepath.Join(dir, drivecode.DriveCodeFile), rt.DriveCode[:100], 0o644))
	_, err = drivecode.Load(dir)
	assert.ErrorIs(t, err, spindle.ErrInvalidRuntime)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		Name   string
		Modify func(rt *drivecode.Runtime)
	}{
		{"reloc size mismatch", func(rt *drivecode.Runtime) { rt.Stage1Reloc = rt.Stage1Reloc[:600] }},
		{"stage 1 too small", func(rt *drivecode.Runtime) {
			rt.Stage1 = rt.Stage1[:2*254]
			rt.Stage1Reloc = rt.Stage1Reloc[:2*254]
		}},
		{"stage 1 too large", func(rt *drivecode.Runtime) {
			rt.Stage1 = make([]byte, 4*254+1)
			rt.Stage1Reloc = make([]byte, 4*254+1)
		}},
		{"drive code size", func(rt *drivecode.Runtime) { rt.DriveCode = rt.DriveCode[1:] }},
		{"error drive code size", func(rt *drivecode.Runtime) {
			rt.DriveCodeErr = append(rt.DriveCodeErr, 0)
		}},
	}

	for _, test := range tests {
		t.Run(
			test.Name,
			func(t *testing.T) {
				rt := st.NewRuntime(t, 700)
				test.Modify(rt)
				assert.ErrorIs(t, rt.Validate(), spindle.ErrInvalidRuntime)
			},
		)
	}
}

func TestBranchesAndDriveCode(t *testing.T) {
	rt := st.NewRuntime(t, 700)

	branches := rt.Branches()
	assert.EqualValues(t, st.BranchWithoutNop, branches.WithoutNop)
	assert.EqualValues(t, st.BranchWithNop, branches.WithNop)

	assert.Equal(t, rt.DriveCode, rt.DriveCodeFor(false))
	assert.Equal(t, rt.DriveCodeErr, rt.DriveCodeFor(true))
}

func TestRelocatedStage1(t *testing.T) {
	rt := st.NewRuntime(t, 600)
	markers := map[int]byte{0x30: 0x03, 0x31: 0x07, 0x32: 0x08, 0x33: 0x01, 0x34: 0xf4}
	for offset, marker := range markers {
		rt.Stage1[offset] = marker
		rt.Stage1Reloc[offset] = marker ^ 0x40
	}

	placement := drivecode.Placement{
		JumpAddress:  0x1000,
		ResidentPage: 0x04,
		BufferPage:   0x05,
		ZeroPage:     0x10,
	}
	stage1, err := rt.RelocatedStage1(placement, false)
	require.NoError(t, err)
	require.Len(t, stage1, 600)

	expected := make([]byte, 600)
	copy(expected, rt.Stage1)
	expected[st.ResidentPageMarkerOffset] = 0x04
	expected[st.ZeroPageMarkerOffset] = 0x12
	expected[0x30] = 0x05
	expected[0x31] = 0x05
	expected[0x32] = 0x0f
	expected[0x33] = 0xff
	expected[0x34] = 0x10
	assert.Equal(t, expected, stage1)

	// The runtime itself is left untouched.
	assert.EqualValues(t, 0x02, rt.Stage1[st.ResidentPageMarkerOffset])
}

func TestRelocatedStage1UnknownMarker(t *testing.T) {
	rt := st.NewRuntime(t, 600)
	rt.Stage1[0x40] = 0x50
	rt.Stage1Reloc[0x40] = 0x51

	_, err := rt.RelocatedStage1(drivecode.Placement{ResidentPage: 2}, false)
	assert.ErrorIs(t, err, spindle.ErrInternal)
}

func TestRelocatedStage1WithErrorWarning(t *testing.T) {
	rt := st.NewRuntime(t, 600)

	stage1, err := rt.RelocatedStage1(drivecode.Placement{ResidentPage: 2, ZeroPage: 0xf4}, true)
	require.NoError(t, err)
	require.Len(t, stage1, 600+len(rt.EFlagWarning))

	// SYS 2647 jumps to the warning code right after the original stage 1.
	assert.Equal(t, []byte("2647\x00"), stage1[7:12])
	assert.Equal(t, rt.EFlagWarning, stage1[600:])
	assert.Equal(t, rt.Stage1[12:st.ResidentPageMarkerOffset], stage1[12:st.ResidentPageMarkerOffset])
}

func TestRelocatedStage1WarningTooLarge(t *testing.T) {
	rt := st.NewRuntime(t, 4*254)

	_, err := rt.RelocatedStage1(drivecode.Placement{ResidentPage: 2}, true)
	assert.ErrorIs(t, err, spindle.ErrInvalidRuntime)

	stage1, err := rt.RelocatedStage1(drivecode.Placement{ResidentPage: 2}, false)
	require.NoError(t, err)
	assert.Len(t, stage1, 4*254)
}
