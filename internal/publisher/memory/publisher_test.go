package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	attrs := map[string]string{"domain": "acme.com"}
	id1, err := pub.Publish(context.Background(), attrs, map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), nil, "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	attrs["domain"] = "changed"
	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "acme.com", msgs[0].Attributes["domain"])
	assert.Equal(t, "payload", msgs[1].Payload)

	msgs[0].Payload = "modified"
	assert.NotEqual(t, "modified", pub.Messages()[0].Payload)
}
