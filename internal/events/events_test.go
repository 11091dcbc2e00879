package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return m.Called(ctx, channel, payload).Error(0)
}

func TestEncodeDecode(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw, err := Encode(TypeBetPlaced, BetPlaced{BetID: "b1", MarketID: "m1", StakeAmount: 50}, at)
	require.NoError(t, err)

	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeBetPlaced, env.Type)
	assert.True(t, at.Equal(env.Ts))

	var got BetPlaced
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "b1", got.BetID)
	assert.Equal(t, int64(50), got.StakeAmount)
}

func TestFanout_PublishesToAllSinks(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{}`)

	a, b := &mockPublisher{}, &mockPublisher{}
	a.On("Publish", ctx, ChannelBets, payload).Return(errors.New("down"))
	b.On("Publish", ctx, ChannelBets, payload).Return(nil)

	err := NewFanout(a, nil, b).Publish(ctx, ChannelBets, payload)
	assert.ErrorContains(t, err, "down")
	a.AssertExpectations(t)
	b.AssertExpectations(t)
}

func TestMemoryBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewMemoryBus()
	all, err := bus.Subscribe(ctx, "*")
	require.NoError(t, err)
	bets, err := bus.Subscribe(ctx, ChannelBets)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, ChannelMarkets, []byte("m")))
	require.NoError(t, bus.Publish(ctx, ChannelBets, []byte("b")))

	assert.Equal(t, []byte("m"), <-all)
	assert.Equal(t, []byte("b"), <-all)
	assert.Equal(t, []byte("b"), <-bets)

	msgs, err := bus.StreamRead(ctx, "stream:"+ChannelBets, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("b"), msgs[0].Payload)

	more, err := bus.StreamRead(ctx, "stream:"+ChannelBets, msgs[0].ID, 10)
	require.NoError(t, err)
	assert.Empty(t, more)

	cancel()
	_, open := <-bets
	for open {
		_, open = <-bets
	}
}

var _ domain.EventPublisher = (*mockPublisher)(nil)
