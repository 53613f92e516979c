package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/jobflow/pkg/events"
)

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	for _, brokers := range [][]string{nil, {""}} {
		pub, sub, err := CreateChannel(watermill.NopLogger{}, brokers, "cg-jobflow")
		require.ErrorIs(t, err, ErrNoBrokers)
		assert.Nil(t, pub)
		assert.Nil(t, sub)
	}
}

func TestPartitionKey_UsesJobKey(t *testing.T) {
	msg := message.NewMessage(watermill.NewUUID(), []byte(`{}`))
	msg.Metadata.Set(events.EventMetadataKey, "job-42")

	key, err := partitionKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "job-42", key)
}
