package model

// Motive tags the suspicious signal reported as a fraud warning.
type Motive string

const (
	MotiveNoFace     Motive = "NO_FACE"
	MotiveTabSwitch  Motive = "TAB_SWITCH"
	MotiveWindowBlur Motive = "WINDOW_BLUR"
)

// Valid reports whether m is one of the known motives.
func (m Motive) Valid() bool {
	switch m {
	case MotiveNoFace, MotiveTabSwitch, MotiveWindowBlur:
		return true
	}
	return false
}

// WarningReply is the API answer to a fraud warning report.
type WarningReply struct {
	Warnings  *int `json:"warnings"`
	Suspended bool `json:"suspendido"`
}

// Blob is an assembled media recording.
type Blob struct {
	Data     []byte
	MimeType string
}

// Size returns the blob length in bytes.
func (b *Blob) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// UploadMeta is the optional context attached to an uploaded file.
type UploadMeta struct {
	AttemptID int64
}
