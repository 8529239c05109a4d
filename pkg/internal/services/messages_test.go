package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converse-im/converse/pkg/internal/services"
	"github.com/converse-im/converse/pkg/models"
)

func newStore() *services.MessageStore {
	return services.NewMessageStore(services.NewEventBus())
}

func sendText(t *testing.T, store *services.MessageStore, conversationID, senderID, text string) models.Message {
	t.Helper()
	message, err := store.NewMessage(conversationID, senderID, models.MessageKindText,
		services.EncodeBody(models.TextBody{Text: text}))
	require.NoError(t, err)
	return message
}

func TestNewMessageAssignsPerConversationSequence(t *testing.T) {
	store := newStore()

	first := sendText(t, store, "c1", "u1", "one")
	second := sendText(t, store, "c1", "u2", "two")
	other := sendText(t, store, "c2", "u1", "elsewhere")

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, uint64(1), other.Seq)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "one", first.Payload["text"])
}

func TestNewMessageRejectsMalformedPayload(t *testing.T) {
	store := newStore()

	_, err := store.NewMessage("c1", "u1", models.MessageKindText, map[string]any{})
	require.ErrorIs(t, err, models.ErrInvalidPayload)

	_, err = store.NewMessage("c1", "u1", models.MessageKindDocument, map[string]any{
		"attachment": "ref",
	})
	require.ErrorIs(t, err, models.ErrInvalidPayload)

	_, err = store.NewMessage("c1", "u1", "sticker", map[string]any{"text": "hi"})
	require.ErrorIs(t, err, models.ErrInvalidPayload)

	assert.Zero(t, store.CountMessage("c1"))
}

func TestNewMessageDropsForeignPayloadKeys(t *testing.T) {
	store := newStore()

	message, err := store.NewMessage("c1", "u1", models.MessageKindText, map[string]any{
		"text":  "hi",
		"bogus": true,
	})
	require.NoError(t, err)
	assert.NotContains(t, message.Payload, "bogus")
}

func TestEditMessage(t *testing.T) {
	store := newStore()
	message := sendText(t, store, "c1", "u1", "tpyo")

	edited, err := store.EditMessage(message.ID, "u1", "typo")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "typo", edited.Payload["text"])

	_, err = store.EditMessage(message.ID, "u2", "hijack")
	require.ErrorIs(t, err, models.ErrNotEditable)
}

func TestEditMessageOnlyForTextKind(t *testing.T) {
	store := newStore()

	image, err := store.NewMessage("c1", "u1", models.MessageKindImage,
		services.EncodeBody(models.ImageBody{Attachment: "att-1"}))
	require.NoError(t, err)
	_, err = store.EditMessage(image.ID, "u1", "nope")
	require.ErrorIs(t, err, models.ErrNotEditable)

	callLog, err := store.NewMessage("c1", "u1", models.MessageKindCallLog,
		services.EncodeBody(models.CallLogBody{CallType: models.CallTypeVoice, Outcome: models.CallOutcomeEnded}))
	require.NoError(t, err)
	_, err = store.EditMessage(callLog.ID, "u1", "nope")
	require.ErrorIs(t, err, models.ErrNotEditable)

	system, err := store.NewMessage("c1", "", models.MessageKindSystem,
		services.EncodeBody(models.SystemBody{Text: "u2 joined"}))
	require.NoError(t, err)
	_, err = store.EditMessage(system.ID, "", "nope")
	require.ErrorIs(t, err, models.ErrNotEditable)
}

func TestEditDeletedMessage(t *testing.T) {
	store := newStore()
	message := sendText(t, store, "c1", "u1", "gone")

	_, err := store.DeleteMessage(message.ID, "u1", models.DeleteScopeForEveryone)
	require.NoError(t, err)

	_, err = store.EditMessage(message.ID, "u1", "resurrect")
	require.ErrorIs(t, err, models.ErrNotEditable)
}

func TestDeleteForEveryoneRequiresSender(t *testing.T) {
	store := newStore()
	message := sendText(t, store, "c1", "u1", "secret")

	_, err := store.DeleteMessage(message.ID, "u2", models.DeleteScopeForEveryone)
	require.ErrorIs(t, err, models.ErrForbidden)

	deleted, err := store.DeleteMessage(message.ID, "u1", models.DeleteScopeForEveryone)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, models.DeleteScopeForEveryone, deleted.DeleteScope)
	assert.Empty(t, deleted.Payload)
	assert.Equal(t, message.ID, deleted.ID)
	assert.Equal(t, message.Seq, deleted.Seq)
}

func TestDeleteForSenderHidesOnlyForDeleter(t *testing.T) {
	store := newStore()
	kept := sendText(t, store, "c1", "u1", "first")
	hidden := sendText(t, store, "c1", "u1", "second")

	_, err := store.DeleteMessage(hidden.ID, "u2", models.DeleteScopeForSender)
	require.NoError(t, err)

	u2Page, _ := store.ListMessage("c1", "u2", 0, 10)
	require.Len(t, u2Page, 1)
	assert.Equal(t, kept.ID, u2Page[0].ID)

	u1Page, _ := store.ListMessage("c1", "u1", 0, 10)
	require.Len(t, u1Page, 2)
	assert.Equal(t, "second", u1Page[0].Payload["text"])

	// Single-entry fetch honors the same scope.
	_, err = store.GetMessage(hidden.ID, "u2")
	require.ErrorIs(t, err, models.ErrNotFound)
	visible, err := store.GetMessage(hidden.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, hidden.ID, visible.ID)
}

func TestDeleteForEveryoneVisibleToAllAsTombstone(t *testing.T) {
	store := newStore()
	message := sendText(t, store, "c1", "u1", "oops")

	_, err := store.DeleteMessage(message.ID, "u1", models.DeleteScopeForEveryone)
	require.NoError(t, err)

	for _, viewer := range []string{"u1", "u2", "u3"} {
		page, _ := store.ListMessage("c1", viewer, 0, 10)
		require.Len(t, page, 1)
		assert.True(t, page[0].IsDeleted)
		assert.Empty(t, page[0].Payload)
	}
}

func TestDeleteRejectsUnknownScope(t *testing.T) {
	store := newStore()
	message := sendText(t, store, "c1", "u1", "hi")

	_, err := store.DeleteMessage(message.ID, "u1", "for_admins")
	require.ErrorIs(t, err, models.ErrInvalidPayload)
}

func TestPinIsIdempotent(t *testing.T) {
	store := newStore()
	message := sendText(t, store, "c1", "u1", "keep this")

	pinned, err := store.PinMessage(message.ID, true)
	require.NoError(t, err)
	assert.True(t, pinned.IsPinned)

	again, err := store.PinMessage(message.ID, true)
	require.NoError(t, err)
	assert.True(t, again.IsPinned)

	unpinned, err := store.PinMessage(message.ID, false)
	require.NoError(t, err)
	assert.False(t, unpinned.IsPinned)
}

func TestListPinned(t *testing.T) {
	store := newStore()
	first := sendText(t, store, "c1", "u1", "a")
	sendText(t, store, "c1", "u1", "b")
	third := sendText(t, store, "c1", "u2", "c")

	_, err := store.PinMessage(first.ID, true)
	require.NoError(t, err)
	_, err = store.PinMessage(third.ID, true)
	require.NoError(t, err)

	pinned := store.ListPinned("c1", "u1")
	require.Len(t, pinned, 2)
	assert.Equal(t, first.ID, pinned[0].ID)
	assert.Equal(t, third.ID, pinned[1].ID)
}

func TestHistoryPagination(t *testing.T) {
	store := newStore()
	for i := 0; i < 10; i++ {
		sendText(t, store, "c1", "u1", "msg")
	}

	page, next := store.ListMessage("c1", "u1", 0, 4)
	require.Len(t, page, 4)
	assert.Equal(t, uint64(10), page[0].Seq)
	assert.Equal(t, uint64(7), page[3].Seq)
	assert.Equal(t, uint64(7), next)

	// Restartable: the same cursor yields the same page.
	replay, _ := store.ListMessage("c1", "u1", 0, 4)
	assert.Equal(t, page[0].ID, replay[0].ID)

	page, next = store.ListMessage("c1", "u1", next, 4)
	require.Len(t, page, 4)
	assert.Equal(t, uint64(6), page[0].Seq)
	assert.Equal(t, uint64(3), next)

	page, next = store.ListMessage("c1", "u1", next, 4)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(1), page[1].Seq)
	assert.Zero(t, next)
}

func TestHistoryClampsPageSize(t *testing.T) {
	store := newStore()
	for i := 0; i < 120; i++ {
		sendText(t, store, "c1", "u1", "msg")
	}

	page, _ := store.ListMessage("c1", "u1", 0, 5000)
	assert.Len(t, page, 100)

	page, _ = store.ListMessage("c1", "u1", 0, 0)
	assert.Len(t, page, 100)
}

func TestHistoryCopiesAreDetached(t *testing.T) {
	store := newStore()
	sendText(t, store, "c1", "u1", "original")

	page, _ := store.ListMessage("c1", "u1", 0, 1)
	page[0].Payload["text"] = "tampered"

	fresh, _ := store.ListMessage("c1", "u1", 0, 1)
	assert.Equal(t, "original", fresh[0].Payload["text"])
}
