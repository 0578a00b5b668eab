package pdfutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageCountRejectsGarbage(t *testing.T) {
	_, err := PageCount([]byte("definitely not a pdf"))
	assert.Error(t, err)

	_, err = PageCount(nil)
	assert.Error(t, err)
}
