package section

// Type is the 16-byte type tag of a section descriptor.
type Type string

// Section types recognized in segment files.
const (
	TypeHeader     Type = "header"
	TypeHeader2    Type = "header2"
	TypeVolume     Type = "volume"
	TypeDisk       Type = "disk"
	TypeData       Type = "data"
	TypeSectors    Type = "sectors"
	TypeTable      Type = "table"
	TypeTable2     Type = "table2"
	TypeDigest     Type = "digest"
	TypeHash       Type = "hash"
	TypeError2     Type = "error2"
	TypeSession    Type = "session"
	TypeDone       Type = "done"
	TypeNext       Type = "next"
	TypeDeltaChunk Type = "delta_chunk"

	// TypeSingleFiles holds the single-file entry tree of logical images.
	TypeSingleFiles Type = "ltree"
)

var knownTypes = map[Type]struct{}{
	TypeHeader: {}, TypeHeader2: {}, TypeVolume: {}, TypeDisk: {}, TypeData: {},
	TypeSectors: {}, TypeTable: {}, TypeTable2: {}, TypeDigest: {}, TypeHash: {},
	TypeError2: {}, TypeSession: {}, TypeDone: {}, TypeNext: {}, TypeDeltaChunk: {},
	TypeSingleFiles: {},
}

// Known reports whether t is part of the section vocabulary.
func (t Type) Known() bool {
	_, ok := knownTypes[t]
	return ok
}

// Terminal reports whether t closes the section list of a segment file.
func (t Type) Terminal() bool {
	return t == TypeDone || t == TypeNext
}
