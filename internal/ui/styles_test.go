package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoColorStyles_RenderPlain(t *testing.T) {
	// Given: no-color styles
	styles := NoColorStyles()

	// When: rendering text
	rendered := styles.Error.Render("fail")

	// Then: the text passes through unstyled
	assert.Equal(t, "fail", rendered)
}

func TestGetStyles_SelectsByPreference(t *testing.T) {
	noColor := GetStyles(true)
	assert.Equal(t, "header", noColor.Header.Render("header"))

	// Color styles still render the text itself, whatever the wrapping.
	color := GetStyles(false)
	assert.Contains(t, color.Header.Render("header"), "header")
}
