package threads

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/pkg/apperrors"
)

func msg(id, replyTo, text string) *models.Message {
	return &models.Message{ID: id, ReplyTo: replyTo, Text: text, Type: models.MessageTypeText}
}

func TestRepliesOneHopInOrder(t *testing.T) {
	messages := []*models.Message{
		msg("1", "", "root"),
		msg("2", "1", "first"),
		msg("3", "2", "nested"),
		msg("4", "", "other"),
		msg("5", "1", "second"),
	}

	got := slices.Collect(Replies(messages, "1"))

	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "5", got[1].ID)
}

func TestRepliesExcludesParentAndStopsEarly(t *testing.T) {
	messages := []*models.Message{msg("1", "1", "self"), msg("2", "1", "a"), msg("3", "1", "b")}

	var seen []string
	for m := range Replies(messages, "1") {
		seen = append(seen, m.ID)
		break
	}
	assert.Equal(t, []string{"2"}, seen)
}

func TestRepliesIsRestartable(t *testing.T) {
	messages := []*models.Message{msg("1", "", "root"), msg("2", "1", "a")}
	seq := Replies(messages, "1")

	assert.Len(t, slices.Collect(seq), 1)
	assert.Len(t, slices.Collect(seq), 1)
}

func TestOpenRendersTombstoneForDeletedParent(t *testing.T) {
	// parent "1" was deleted, its reply survives
	messages := []*models.Message{msg("2", "1", "orphan")}

	entries := slices.Collect(Open(messages, "1"))

	require.Len(t, entries, 1)
	assert.Equal(t, "2", entries[0].Message.ID)
	assert.Equal(t, Tombstone, entries[0].ParentLabel)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Ответ на: привет", Label(msg("1", "", "привет")))
	assert.Equal(t, "Ответ на: report.pdf", Label(&models.Message{
		ID:   "1",
		File: &models.FileRef{StoredName: "1_report.pdf", OriginalName: "report.pdf"},
	}))
	assert.Equal(t, "Ответ на: Сообщение", Label(&models.Message{ID: "1"}))
	assert.Equal(t, Tombstone, Label(nil))
}

func TestCheckReply(t *testing.T) {
	assert.ErrorIs(t, CheckReply("7", "7"), apperrors.ErrReplyCycle)
	assert.NoError(t, CheckReply("7", "6"))
	assert.NoError(t, CheckReply("7", ""))
}
