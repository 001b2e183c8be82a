package model

import (
	"strings"
	"time"
)

// AttemptStatus enumerates server-side attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "EN_PROGRESO"
	AttemptStatusFinalized  AttemptStatus = "FINALIZADO"
	AttemptStatusGraded     AttemptStatus = "CALIFICADO"
	AttemptStatusSuspended  AttemptStatus = "SUSPENDIDO"
)

// Attempt is one student's try at one evaluation. The server owns it; the
// gateway holds a read-mostly copy for the lifetime of a session.
type Attempt struct {
	ID           int64         `json:"id_intento"`
	EvaluationID int64         `json:"id_evaluacion"`
	CourseID     int64         `json:"id_curso,omitempty"`
	Status       AttemptStatus `json:"estado"`
	StartedAt    *time.Time    `json:"inicio,omitempty"`
	ScheduledEnd *time.Time    `json:"fin_programado,omitempty"`
}

// InProgress reports whether the attempt still accepts answers. An empty
// status is treated as in progress.
func (a *Attempt) InProgress() bool {
	if a == nil {
		return false
	}
	s := AttemptStatus(strings.ToUpper(strings.TrimSpace(string(a.Status))))
	return s == "" || s == AttemptStatusInProgress
}

// Evaluation is the exam metadata. Immutable for the duration of an attempt.
type Evaluation struct {
	ID         int64  `json:"id_evaluacion"`
	CourseID   int64  `json:"id_curso,omitempty"`
	Title      string `json:"titulo"`
	Timed      bool   `json:"tiene_tiempo"`
	Minutes    int    `json:"tiempo_minutos,omitempty"`
	UsesCamera bool   `json:"usa_camara"`
}

// Profile is the authenticated student as reported by the API.
type Profile struct {
	ID    int64  `json:"id_usuario"`
	Name  string `json:"nombre"`
	Email string `json:"email,omitempty"`
	Role  string `json:"rol,omitempty"`
}

// AttemptQuestions is the payload of GET /rendiciones/intentos/:id/preguntas.
type AttemptQuestions struct {
	Evaluation *Evaluation `json:"evaluacion"`
	Attempt    *Attempt    `json:"intento"`
	Standalone []Question  `json:"preguntas_sueltas"`
	Blocks     []Block     `json:"bloques"`
	CourseID   int64       `json:"id_curso,omitempty"`
}

// CourseIDHint returns the first course id the payload carries, or zero.
func (p *AttemptQuestions) CourseIDHint() int64 {
	if p == nil {
		return 0
	}
	if p.Evaluation != nil && p.Evaluation.CourseID > 0 {
		return p.Evaluation.CourseID
	}
	if p.Attempt != nil && p.Attempt.CourseID > 0 {
		return p.Attempt.CourseID
	}
	return p.CourseID
}

// AttemptSnapshot is the cached subset of an attempt used outside a live session.
type AttemptSnapshot struct {
	StudentID  int64       `json:"student_id,omitempty"`
	Evaluation *Evaluation `json:"evaluacion"`
	Attempt    *Attempt    `json:"intento"`
	CachedAt   time.Time   `json:"cached_at"`
}

// Result is the post-submission summary returned by the API.
type Result struct {
	AttemptID     int64         `json:"id_intento"`
	CourseID      int64         `json:"id_curso,omitempty"`
	Status        AttemptStatus `json:"estado,omitempty"`
	Score         *float64      `json:"puntaje,omitempty"`
	MaxScore      *float64      `json:"puntaje_maximo,omitempty"`
	Grade         *float64      `json:"nota,omitempty"`
	PendingReview bool          `json:"pendiente_revision,omitempty"`
	FinishedAt    *time.Time    `json:"fin,omitempty"`
}
