package model

import "time"

// LocalAnswer is the student's in-progress response to one question.
type LocalAnswer struct {
	Text     *string        `json:"respuesta_texto,omitempty"`
	OptionID *int64         `json:"id_opcion,omitempty"`
	Matching []MatchingPair `json:"respuesta_matching,omitempty"`
	AudioURL *string        `json:"url_audio,omitempty"`
}

// AnswerPatch is a partial edit. Only non-nil fields are merged.
type AnswerPatch struct {
	Text     *string         `json:"respuesta_texto,omitempty"`
	OptionID *int64          `json:"id_opcion,omitempty"`
	Matching *[]MatchingPair `json:"respuesta_matching,omitempty"`
	AudioURL *string         `json:"url_audio,omitempty"`
}

// Empty reports whether the patch carries no field at all.
func (p AnswerPatch) Empty() bool {
	return p.Text == nil && p.OptionID == nil && p.Matching == nil && p.AudioURL == nil
}

// AnswerFromQuestion hydrates a LocalAnswer from the response fields the
// backend returned with the question.
func AnswerFromQuestion(q Question) LocalAnswer {
	return LocalAnswer{
		Text:     cloneString(q.Text),
		OptionID: cloneInt64(q.OptionID),
		Matching: clonePairs(q.Matching),
		AudioURL: cloneString(q.AudioURL),
	}
}

// Merge returns a copy of a with the fields present in p replaced.
func (a LocalAnswer) Merge(p AnswerPatch) LocalAnswer {
	out := a.Clone()
	if p.Text != nil {
		out.Text = cloneString(p.Text)
	}
	if p.OptionID != nil {
		out.OptionID = cloneInt64(p.OptionID)
	}
	if p.Matching != nil {
		out.Matching = clonePairs(*p.Matching)
		if out.Matching == nil {
			out.Matching = []MatchingPair{}
		}
	}
	if p.AudioURL != nil {
		out.AudioURL = cloneString(p.AudioURL)
	}
	return out
}

// Answered reports whether any response field holds a value.
func (a LocalAnswer) Answered() bool {
	return (a.Text != nil && *a.Text != "") ||
		(a.OptionID != nil && *a.OptionID != 0) ||
		len(a.Matching) > 0 ||
		(a.AudioURL != nil && *a.AudioURL != "")
}

// Clone deep-copies the answer so callers never share pointers with the store.
func (a LocalAnswer) Clone() LocalAnswer {
	return LocalAnswer{
		Text:     cloneString(a.Text),
		OptionID: cloneInt64(a.OptionID),
		Matching: clonePairs(a.Matching),
		AudioURL: cloneString(a.AudioURL),
	}
}

// SaveState is the transient persistence status of one question's answer.
type SaveState struct {
	Saving  bool       `json:"saving,omitempty"`
	SavedAt *time.Time `json:"saved_at,omitempty"`
	Error   string     `json:"error,omitempty"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt64(n *int64) *int64 {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

func clonePairs(p []MatchingPair) []MatchingPair {
	if p == nil {
		return nil
	}
	out := make([]MatchingPair, len(p))
	copy(out, p)
	return out
}
