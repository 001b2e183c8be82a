package apperr

// Kind names a session-level failure class.
type Kind string

const (
	KindLoad       Kind = "LOAD"
	KindSave       Kind = "SAVE"
	KindProctoring Kind = "PROCTORING"
	KindUpload     Kind = "UPLOAD"
	KindFinalize   Kind = "FINALIZE"
)

// SessionError is a failure of one session operation, carrying the message
// shown to the student alongside the underlying cause.
type SessionError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *SessionError) Unwrap() error { return e.Err }

// UserMessage returns the student-facing text.
func (e *SessionError) UserMessage() string { return e.Message }

// Is matches another SessionError of the same kind, so callers can write
// errors.Is(err, apperr.Proctoring).
func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	return ok && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Kind markers for errors.Is.
var (
	Load       = &SessionError{Kind: KindLoad}
	Save       = &SessionError{Kind: KindSave}
	Proctoring = &SessionError{Kind: KindProctoring}
	Upload     = &SessionError{Kind: KindUpload}
	Finalize   = &SessionError{Kind: KindFinalize}
)

func newKind(kind Kind, msg string, err error) *SessionError {
	return &SessionError{Kind: kind, Message: msg, Err: err}
}

// LoadError reports a failed attempt/questions fetch.
func LoadError(msg string, err error) *SessionError { return newKind(KindLoad, msg, err) }

// SaveError reports a failed autosave of one question.
func SaveError(msg string, err error) *SessionError { return newKind(KindSave, msg, err) }

// ProctoringError reports an unavailable or denied camera/microphone.
func ProctoringError(msg string, err error) *SessionError { return newKind(KindProctoring, msg, err) }

// UploadError reports a proctoring video that could not be stored.
func UploadError(msg string, err error) *SessionError { return newKind(KindUpload, msg, err) }

// FinalizeError reports a generic finalize failure.
func FinalizeError(msg string, err error) *SessionError { return newKind(KindFinalize, msg, err) }
