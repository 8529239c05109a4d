package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converse-im/converse/pkg/internal/services"
	"github.com/converse-im/converse/pkg/models"
)

func TestReactToggles(t *testing.T) {
	store := newStore()
	aggregator := services.NewReactionAggregator(store)
	message := sendText(t, store, "c1", "u1", "nice")

	reacted, err := aggregator.ReactMessage(message.ID, "u2", "👍")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, reacted.Reactions["👍"])

	// Same user, same emoji: un-react, and the empty bucket disappears.
	reacted, err = aggregator.ReactMessage(message.ID, "u2", "👍")
	require.NoError(t, err)
	assert.NotContains(t, reacted.Reactions, "👍")
}

func TestReactAllowsMultipleEmojisPerUser(t *testing.T) {
	store := newStore()
	aggregator := services.NewReactionAggregator(store)
	message := sendText(t, store, "c1", "u1", "double")

	_, err := aggregator.ReactMessage(message.ID, "u2", "👍")
	require.NoError(t, err)
	reacted, err := aggregator.ReactMessage(message.ID, "u2", "🎉")
	require.NoError(t, err)

	assert.Equal(t, []string{"u2"}, reacted.Reactions["👍"])
	assert.Equal(t, []string{"u2"}, reacted.Reactions["🎉"])
}

func TestReactorSetStaysUnique(t *testing.T) {
	store := newStore()
	aggregator := services.NewReactionAggregator(store)
	message := sendText(t, store, "c1", "u1", "popular")

	for _, user := range []string{"u2", "u3", "u2"} {
		_, err := aggregator.ReactMessage(message.ID, user, "❤️")
		require.NoError(t, err)
	}

	reactors, err := aggregator.ListReactors(message.ID, "❤️")
	require.NoError(t, err)
	// u2 toggled twice, so only u3 remains.
	assert.Equal(t, []string{"u3"}, reactors)
}

func TestListReactorsUnusedEmoji(t *testing.T) {
	store := newStore()
	aggregator := services.NewReactionAggregator(store)
	message := sendText(t, store, "c1", "u1", "quiet")

	reactors, err := aggregator.ListReactors(message.ID, "😶")
	require.NoError(t, err)
	assert.Empty(t, reactors)

	_, err = aggregator.ListReactors("missing", "😶")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestReactRejectedOnTombstone(t *testing.T) {
	store := newStore()
	aggregator := services.NewReactionAggregator(store)
	message := sendText(t, store, "c1", "u1", "bye")

	_, err := store.DeleteMessage(message.ID, "u1", models.DeleteScopeForEveryone)
	require.NoError(t, err)

	_, err = aggregator.ReactMessage(message.ID, "u2", "👍")
	require.ErrorIs(t, err, models.ErrNotEditable)
}
