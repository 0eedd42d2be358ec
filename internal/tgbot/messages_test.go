package tgbot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"event-bot/internal/models"
)

func TestEvidenceLine(t *testing.T) {
	assert.Equal(t, "none", evidenceLine(models.Evidence{}))
	assert.Equal(t, "receipt file attached", evidenceLine(models.Evidence{FileRef: "7/a.jpg"}))
	assert.Equal(t, "transaction: 5566", evidenceLine(models.Evidence{Text: "5566"}))

	card := registrationCard(models.RegistrationDetail{EventName: "Spring Cup"})
	assert.Contains(t, card, "Receipt: none")
}
