package page

// PayloadSize is the number of opaque content bytes a file-data page holds
// after its chain header.
const PayloadSize = Size - headerSize

// FileDataPayload returns the mutable payload slice of a file-data page.
func FileDataPayload(p []byte) []byte {
	return p[headerSize:Size]
}

// InitFileDataPage formats a fresh, empty file-data page.
func InitFileDataPage(p []byte) {
	InitChainPage(p, KindFileData)
}
