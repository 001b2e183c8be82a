package session

import (
	"github.com/stemsi/exstem-attempt/internal/countdown"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// LoadingTitle is the title shown until the evaluation arrives.
const LoadingTitle = "Cargando..."

// JumpMarker is one entry of the question navigator.
type JumpMarker struct {
	Index    int  `json:"i"`
	Label    int  `json:"label"`
	Current  bool `json:"current"`
	Answered bool `json:"answered"`
}

// CurrentQuestion is the question payload with the local answer applied.
type CurrentQuestion struct {
	model.Question
	Kind model.FlatKind `json:"kind"`
}

// ViewModel is everything the presentation layer renders.
type ViewModel struct {
	Version uint64 `json:"version"`
	State   Phase  `json:"state"`

	Loading      bool   `json:"loading"`
	ErrorMessage string `json:"error_message"`

	AttemptID    int64  `json:"id_intento"`
	SafeCourseID *int64 `json:"id_curso_seguro"`

	Evaluation *model.Evaluation `json:"evaluacion"`
	Attempt    *model.Attempt    `json:"intento"`
	Profile    *model.Profile    `json:"perfil"`

	Title       string `json:"titulo"`
	TimerText   string `json:"timer_text"`
	Timed       bool   `json:"tiene_tiempo"`
	TimerDanger bool   `json:"timer_danger"`

	Total        int  `json:"total"`
	CurrentIndex int  `json:"current_index"`
	IsFirst      bool `json:"is_first"`
	IsLast       bool `json:"is_last"`

	CurrentQuestion *CurrentQuestion `json:"current_pregunta"`
	CurrentBlock    *model.Block     `json:"current_bloque"`
	SaveState       model.SaveState  `json:"save_state"`

	Delivered         bool          `json:"entregado"`
	Finalizing        bool          `json:"finalizando"`
	ShowFinalizeModal bool          `json:"show_finalizar_modal"`
	ShowWarnModal     bool          `json:"show_warn_modal"`
	Result            *model.Result `json:"resultado"`

	ProctoringRequired bool   `json:"proctoring_required"`
	ProctoringReady    bool   `json:"proctoring_ready"`
	ProctoringError    string `json:"proctoring_error"`
	Warnings           int    `json:"warnings"`
	Suspended          bool   `json:"suspended"`

	Jump []JumpMarker `json:"jump"`
}

// project builds the view model. Caller holds m.mu.
func (m *Machine) project() ViewModel {
	vm := ViewModel{
		Version:      m.version,
		State:        m.phase,
		Loading:      m.phase == PhaseLoading,
		ErrorMessage: m.errMsg,
		Evaluation:   m.evaluation,
		Attempt:      m.attempt,
		Profile:      m.profile,
		Title:        LoadingTitle,
		TimerText:    countdown.Untimed,

		Delivered:         m.delivered,
		Finalizing:        m.phase == PhaseFinalizing,
		ShowFinalizeModal: m.showFinalizeModal,
		Result:            m.result,

		ProctoringRequired: m.proctoringRequired,
		Suspended:          m.suspended,
	}

	if m.attempt != nil {
		vm.AttemptID = m.attempt.ID
	}
	if m.safeCourseID > 0 {
		id := m.safeCourseID
		vm.SafeCourseID = &id
	}
	if m.evaluation != nil {
		if m.evaluation.Title != "" {
			vm.Title = m.evaluation.Title
		}
		vm.Timed = m.evaluation.Timed
	}
	if m.countdown != nil {
		vm.TimerText = m.countdown.Text()
	}
	vm.TimerDanger = countdown.Danger(vm.TimerText)

	if m.capture != nil {
		vm.ProctoringReady = m.capture.Ready()
		vm.ProctoringError = m.capture.Error()
	}
	if m.monitor != nil {
		vm.Warnings = m.monitor.Warnings()
		vm.ShowWarnModal = m.monitor.ModalOpen() && !m.suspended
	}

	total := len(m.flat)
	idx := clampIndex(m.current, total)
	vm.Total = total
	vm.CurrentIndex = idx
	vm.IsFirst = idx == 0
	vm.IsLast = total == 0 || idx == total-1

	if total > 0 {
		item := m.flat[idx]
		q := item.Question
		if local, ok := m.answers.Get(item.QuestionID); ok {
			q.Text = local.Text
			q.OptionID = local.OptionID
			q.Matching = local.Matching
			q.AudioURL = local.AudioURL
		}
		vm.CurrentQuestion = &CurrentQuestion{Question: q, Kind: item.Kind}
		if item.Kind == model.FlatKindSubQuestion {
			vm.CurrentBlock = item.Block
		}
		if m.pipeline != nil {
			vm.SaveState, _ = m.pipeline.Status(item.QuestionID)
		}
	}

	vm.Jump = make([]JumpMarker, total)
	for i, item := range m.flat {
		vm.Jump[i] = JumpMarker{
			Index:    i,
			Label:    i + 1,
			Current:  i == idx,
			Answered: m.answers.Answered(item.QuestionID),
		}
	}

	return vm
}

func clampIndex(i, total int) int {
	if total == 0 || i < 0 {
		return 0
	}
	if i > total-1 {
		return total - 1
	}
	return i
}
