package broadcast

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/playperu/tasting/internal/coordinator"
)

type RelayTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	broker *Broker
	cancel context.CancelFunc
	done   chan error
}

func (s *RelayTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr
	s.client = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	logger := slog.New(slog.DiscardHandler)
	s.broker = NewBroker(logger, nil)
	relay := NewRelay(s.client, s.broker, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- relay.Run(ctx) }()

	s.Require().Eventually(func() bool {
		return s.mr.PubSubNumPat() > 0
	}, time.Second, 5*time.Millisecond)
}

func (s *RelayTestSuite) TearDownTest() {
	s.cancel()
	s.Require().NoError(<-s.done)
	s.client.Close()
	s.mr.Close()
}

func TestRelayTestSuite(t *testing.T) {
	suite.Run(t, new(RelayTestSuite))
}

func (s *RelayTestSuite) TestPublishedEventsReachLocalSubscribers() {
	sub := s.broker.Subscribe("s1", "c1")
	other := s.broker.Subscribe("s2", "c2")
	pub := NewRedisPublisher(s.client, s.broker, slog.New(slog.DiscardHandler))

	pub.Publish("s1", coordinator.Event{Name: coordinator.EventSessionStarted, SessionID: "s1", Epoch: 2})
	pub.Publish("s1", coordinator.Event{Name: coordinator.EventSessionAdvanced, SessionID: "s1", Epoch: 3})

	for _, want := range []string{coordinator.EventSessionStarted, coordinator.EventSessionAdvanced} {
		select {
		case data := <-sub.C:
			s.Equal(want, decode(s.T(), data).Name)
		case <-time.After(time.Second):
			s.FailNow("event not relayed", want)
		}
	}
	s.Empty(other.C)
}

func (s *RelayTestSuite) TestCheck() {
	pub := NewRedisPublisher(s.client, s.broker, slog.New(slog.DiscardHandler))
	s.NoError(pub.Check(context.Background()))
}

func (s *RelayTestSuite) TestResyncDropsSubscribersOfOneSession() {
	sub := s.broker.Subscribe("s1", "c1")
	other := s.broker.Subscribe("s2", "c2")
	pub := NewRedisPublisher(s.client, s.broker, slog.New(slog.DiscardHandler))

	pub.Resync("s1")
	s.Eventually(func() bool { return s.broker.Subscribers("s1") == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-sub.C
	s.False(ok)
	s.Equal(1, s.broker.Subscribers("s2"))
	s.Empty(other.C)
}

func (s *RelayTestSuite) TestPublishFailureDropsLocalSubscribers() {
	sub := s.broker.Subscribe("s1", "c1")
	other := s.broker.Subscribe("s2", "c2")
	pub := NewRedisPublisher(s.client, s.broker, slog.New(slog.DiscardHandler))

	s.mr.Close()
	pub.Publish("s1", coordinator.Event{Name: coordinator.EventSessionAdvanced, SessionID: "s1", Epoch: 3})
	s.Zero(s.broker.Subscribers("s1"))
	_, ok := <-sub.C
	s.False(ok)
	s.Equal(1, s.broker.Subscribers("s2"))
	s.Empty(other.C)

	s.Require().NoError(s.mr.Restart())
}

func (s *RelayTestSuite) TestReconnectDropsAllSubscribers() {
	first := s.broker.Subscribe("s1", "c1")
	second := s.broker.Subscribe("s2", "c2")

	s.mr.Close()
	s.Require().NoError(s.mr.Restart())

	s.Eventually(func() bool {
		return s.broker.Subscribers("s1") == 0 && s.broker.Subscribers("s2") == 0
	}, 5*time.Second, 10*time.Millisecond)
	for _, sub := range []*Subscription{first, second} {
		_, ok := <-sub.C
		s.False(ok)
	}

	s.Require().Eventually(func() bool { return s.mr.PubSubNumPat() > 0 }, time.Second, 5*time.Millisecond)
	sub := s.broker.Subscribe("s1", "c3")
	pub := NewRedisPublisher(s.client, s.broker, slog.New(slog.DiscardHandler))
	pub.Publish("s1", coordinator.Event{Name: coordinator.EventSessionStarted, SessionID: "s1", Epoch: 2})
	select {
	case data := <-sub.C:
		s.Equal(coordinator.EventSessionStarted, decode(s.T(), data).Name)
	case <-time.After(time.Second):
		s.FailNow("event not relayed after reconnect")
	}
}
