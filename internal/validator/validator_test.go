package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type signal struct {
	Motive string `json:"motivo" binding:"required,oneof=NO_FACE TAB_SWITCH WINDOW_BLUR"`
	Index  *int   `json:"i" binding:"omitempty,min=0"`
}

func TestStruct(t *testing.T) {
	Setup()

	assert.Nil(t, Struct(&signal{Motive: "TAB_SWITCH"}))

	fields := Struct(&signal{Motive: "SLEEPING"})
	assert.Contains(t, fields, "motivo")

	neg := -1
	fields = Struct(&signal{Motive: "NO_FACE", Index: &neg})
	assert.Contains(t, fields, "i")
}
