package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	key := ObjectKey(12, "proctoring_12.WEBM")

	assert.True(t, strings.HasPrefix(key, "proctoring/12/"), key)
	assert.True(t, strings.HasSuffix(key, ".webm"), key)
	assert.NotEqual(t, key, ObjectKey(12, "proctoring_12.webm"))
}

func TestObjectKeyDefaultsExtension(t *testing.T) {
	assert.True(t, strings.HasSuffix(ObjectKey(3, "recording"), ".webm"))
}
