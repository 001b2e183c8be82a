package model

// QuestionType identifies how a question is answered.
type QuestionType struct {
	ID   int64  `json:"id_tipo_pregunta,omitempty"`
	Code string `json:"codigo"`
	Name string `json:"nombre,omitempty"`
}

// Option is one selectable choice of a multiple-choice question.
type Option struct {
	ID   int64  `json:"id_opcion"`
	Text string `json:"texto"`
}

// MatchingPair links a left-hand item to its chosen right-hand item.
type MatchingPair struct {
	Left  string `json:"izquierda"`
	Right string `json:"derecha"`
}

// Question is the payload of a question as served for answering, including
// any response the student already persisted.
type Question struct {
	ID        int64          `json:"id_pregunta"`
	Statement string         `json:"enunciado"`
	Type      QuestionType   `json:"tipo"`
	MediaURL  string         `json:"url_multimedia,omitempty"`
	Options   []Option       `json:"opciones,omitempty"`
	Pairs     []MatchingPair `json:"pares,omitempty"`
	Points    float64        `json:"puntaje,omitempty"`

	Text     *string        `json:"respuesta_texto,omitempty"`
	OptionID *int64         `json:"id_opcion,omitempty"`
	Matching []MatchingPair `json:"respuesta_matching,omitempty"`
	AudioURL *string        `json:"url_audio,omitempty"`
}

// Block groups sub-questions that share a passage or audio (listening/reading).
type Block struct {
	ID        int64      `json:"id_bloque"`
	Title     string     `json:"titulo,omitempty"`
	Passage   string     `json:"texto,omitempty"`
	MediaURL  string     `json:"url_multimedia,omitempty"`
	Questions []Question `json:"preguntas"`
}

// FlatKind tells a standalone question apart from a block sub-question.
type FlatKind string

const (
	FlatKindQuestion    FlatKind = "PREGUNTA"
	FlatKindSubQuestion FlatKind = "SUBPREGUNTA"
)

// FlatQuestion is one element of the order-stable answering sequence.
type FlatQuestion struct {
	Kind       FlatKind `json:"kind"`
	QuestionID int64    `json:"id_pregunta"`
	Question   Question `json:"pregunta"`
	Block      *Block   `json:"bloque,omitempty"`
}

// BuildFlat lays out standalone questions first, then each block's
// sub-questions in block order. Entries without an id are skipped.
func BuildFlat(standalone []Question, blocks []Block) []FlatQuestion {
	out := make([]FlatQuestion, 0, len(standalone))

	for _, q := range standalone {
		if q.ID == 0 {
			continue
		}
		out = append(out, FlatQuestion{Kind: FlatKindQuestion, QuestionID: q.ID, Question: q})
	}

	for i := range blocks {
		b := &blocks[i]
		for _, q := range b.Questions {
			if q.ID == 0 {
				continue
			}
			out = append(out, FlatQuestion{Kind: FlatKindSubQuestion, QuestionID: q.ID, Question: q, Block: b})
		}
	}

	return out
}
