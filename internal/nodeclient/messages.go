package nodeclient

// Wire message bodies for each RPC. These are deliberately flat structs
// (no interfaces, no embedded pointers gob can't register) since gob
// needs every concrete type it encodes to be self-describing.

type checksumReqMsg struct {
	VolumeID  string
	Position  uint64
	HasWindow bool
	Offset    uint64
	Length    uint64
	Algo      string
}

type checksumRespMsg struct {
	Absent bool
	Length uint64
	Digest [64]byte
}

type readReqMsg struct {
	VolumeID  string
	Position  uint64
	HasWindow bool
	Offset    uint64
	Length    uint64
}

type readRespMsg struct {
	Absent bool
	Data   []byte
}

type writeReqMsg struct {
	VolumeID string
	Position uint64
	Data     []byte
}

type writeRespMsg struct{}

type deleteReqMsg struct {
	VolumeID string
	Position uint64
}

type deleteRespMsg struct{}

type ackReqMsg struct {
	VolumeID string
	Position uint64
}

type ackRespMsg struct{}

type errorRespMsg struct {
	Message string
}
