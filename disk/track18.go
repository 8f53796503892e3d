package disk

// Sectors of the directory track.
const (
	SectorBAM         = 0
	SectorDirectory   = 1 // further directory blocks follow every third sector
	SectorDriveMisc   = 2
	SectorGCRTable    = 3
	SectorFlip        = 5
	SectorSeek        = 6
	SectorStage1      = 8
	SectorStage1Part3 = 9
	SectorDriveFetch  = 11
	SectorDriveInit   = 12
	SectorStage1Part4 = 15
	SectorDriveComm   = 17
	SectorStage1Part2 = 18
)

// Offsets within the BAM sector.
const (
	bamEntriesOffset         = 0x04
	bamExtendedEntriesOffset = 0xc0
	bamTitleOffset           = 0x90
	bamIDOffset              = 0xa2
	bamDOSTypeOffset         = 0xa5
)

// Offsets within the seek sector, after byte reordering.
const (
	seekTrackOffset  = 0x80
	seekSectorOffset = 0xc0
)

// Offset of the three-byte continuation record at the end of a sector.
const chainRecordOffset = 253

// Role describes what a sector of the directory track holds.
type Role int

const (
	RoleUnused Role = iota
	RoleBAM
	RoleDirectory
	RoleDriveCode
	RoleGCRTable
	RoleFlipCode
	RoleSeekCode
	RoleStage1
)

var roleNames = map[Role]string{
	RoleUnused:    "unused",
	RoleBAM:       "bam",
	RoleDirectory: "directory",
	RoleDriveCode: "drivecode",
	RoleGCRTable:  "gcr decoding table",
	RoleFlipCode:  "drivecode for disk flip / end",
	RoleSeekCode:  "drivecode and data for seek",
	RoleStage1:    "stage 1",
}

func (r Role) String() string {
	return roleNames[r]
}

// Track18Layout gives the role of every sector of the directory track. The
// optional directory blocks and the fourth stage 1 block are only in use when
// the directory art or stage 1 need them.
var Track18Layout = [19]Role{
	SectorBAM:         RoleBAM,
	SectorDirectory:   RoleDirectory,
	SectorDriveMisc:   RoleDriveCode,
	SectorGCRTable:    RoleGCRTable,
	4:                 RoleDirectory,
	SectorFlip:        RoleFlipCode,
	SectorSeek:        RoleSeekCode,
	7:                 RoleDirectory,
	SectorStage1:      RoleStage1,
	SectorStage1Part3: RoleStage1,
	10:                RoleDirectory,
	SectorDriveFetch:  RoleDriveCode,
	SectorDriveInit:   RoleDriveCode,
	13:                RoleDirectory,
	14:                RoleUnused,
	SectorStage1Part4: RoleStage1,
	16:                RoleDirectory,
	SectorDriveComm:   RoleDriveCode,
	SectorStage1Part2: RoleStage1,
}

// drive code pages in load order, and where each is stored
var driveCodeSectors = [6]int{
	SectorDriveInit,
	SectorDriveMisc,
	SectorDriveFetch,
	SectorDriveComm,
	SectorFlip,
	SectorSeek,
}
