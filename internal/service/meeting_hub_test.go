package service

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amhar4u/Smart-LMS-sub001/internal/model"
)

// newHubFixture uses maxMsgSize 0 so Register never touches the (nil) conn.
func newHubFixture() *MeetingHub {
	return NewMeetingHub(4096, 4096, 0, zap.NewNop())
}

func recvEvent(t *testing.T, c *Client) model.Envelope {
	t.Helper()
	select {
	case raw := <-c.Send:
		var env model.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	default:
		t.Fatal("no event buffered")
		return model.Envelope{}
	}
}

func requireNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected event: %s", raw)
	default:
	}
}

func TestBroadcastReachesAllRoomMembers(t *testing.T) {
	hub := newHubFixture()
	a, cleanupA := hub.Register("c1", "u1", nil)
	defer cleanupA()
	b, cleanupB := hub.Register("c2", "u2", nil)
	defer cleanupB()
	outsider, cleanupC := hub.Register("c3", "u3", nil)
	defer cleanupC()

	hub.JoinRoom(MeetingRoom("m1"), a)
	hub.JoinRoom(MeetingRoom("m1"), b)
	hub.JoinRoom(MeetingRoom("m2"), outsider)

	hub.BroadcastMeeting("m1", model.EventStudentJoined, model.StudentJoined{StudentID: "s1"})

	for _, c := range []*Client{a, b} {
		env := recvEvent(t, c)
		require.Equal(t, model.EventStudentJoined, env.Event)
		var payload model.StudentJoined
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		require.Equal(t, "s1", payload.StudentID)
	}
	requireNoEvent(t, outsider)
}

func TestRegisterJoinsUserRoom(t *testing.T) {
	hub := newHubFixture()
	c, cleanup := hub.Register("c1", "u1", nil)
	defer cleanup()

	hub.NotifyUser("u1", model.EventError, model.ErrorReply{Message: "ping"})
	env := recvEvent(t, c)
	require.Equal(t, model.EventError, env.Event)

	hub.NotifyUser("someone-else", model.EventError, nil)
	requireNoEvent(t, c)
}

func TestSendEventIsDirect(t *testing.T) {
	hub := newHubFixture()
	a, cleanupA := hub.Register("c1", "u1", nil)
	defer cleanupA()
	b, cleanupB := hub.Register("c2", "u2", nil)
	defer cleanupB()
	hub.JoinRoom(MeetingRoom("m1"), a)
	hub.JoinRoom(MeetingRoom("m1"), b)

	hub.SendEvent(a, model.EventEngagementData, model.EngagementSnapshot{MeetingID: "m1"})
	require.Equal(t, model.EventEngagementData, recvEvent(t, a).Event)
	requireNoEvent(t, b)
}

func TestUnregisterLeavesEveryRoom(t *testing.T) {
	hub := newHubFixture()
	c, cleanup := hub.Register("c1", "u1", nil)
	hub.JoinRoom(MeetingRoom("m1"), c)
	require.Equal(t, 1, hub.RoomCount(MeetingRoom("m1")))

	cleanup()
	require.Zero(t, hub.RoomCount(MeetingRoom("m1")))
	require.Zero(t, hub.RoomCount(UserRoom("u1")))
	require.Empty(t, hub.ActiveMeetings())

	// broadcasting to the emptied room is a no-op, not a panic on the
	// closed Send channel
	hub.BroadcastMeeting("m1", model.EventStudentJoined, nil)
}

func TestCloseMeetingRoom(t *testing.T) {
	hub := newHubFixture()
	c, cleanup := hub.Register("c1", "u1", nil)
	defer cleanup()
	hub.JoinRoom(MeetingRoom("m1"), c)
	require.Equal(t, []string{"m1"}, hub.ActiveMeetings())

	hub.CloseMeetingRoom("m1")

	env := recvEvent(t, c)
	require.Equal(t, model.EventMeetingEnded, env.Event)
	require.Zero(t, hub.RoomCount(MeetingRoom("m1")))
	require.Empty(t, hub.ActiveMeetings())

	// user room membership survives the meeting
	hub.NotifyUser("u1", model.EventError, nil)
	require.Equal(t, model.EventError, recvEvent(t, c).Event)
}

func TestSendAfterUnregisterIsDropped(t *testing.T) {
	hub := newHubFixture()
	c, cleanup := hub.Register("c1", "u1", nil)
	hub.JoinRoom(MeetingRoom("m1"), c)
	cleanup()

	// Direct and room sends to a gone client must be silent drops, never a
	// send on the closed channel.
	hub.SendEvent(c, model.EventError, model.ErrorReply{Message: "late"})
	hub.NotifyUser("u1", model.EventError, nil)
	hub.BroadcastMeeting("m1", model.EventStudentJoined, nil)
}

func TestBroadcastRacingUnregister(t *testing.T) {
	// Fan-out snapshots room members before sending; a disconnect landing in
	// between must not take down the broadcasting goroutine.
	hub := newHubFixture()

	const clients = 64
	cleanups := make([]func(), 0, clients)
	for i := 0; i < clients; i++ {
		c, cleanup := hub.Register(fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i), nil)
		hub.JoinRoom(MeetingRoom("m1"), c)
		cleanups = append(cleanups, cleanup)
	}

	var wg sync.WaitGroup
	wg.Add(len(cleanups) + 1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			hub.BroadcastMeeting("m1", model.EventStudentJoined, nil)
		}
	}()
	for _, cleanup := range cleanups {
		go func(cleanup func()) {
			defer wg.Done()
			cleanup()
		}(cleanup)
	}
	wg.Wait()

	require.Zero(t, hub.RoomCount(MeetingRoom("m1")))
}

func TestJoinRoomIdempotent(t *testing.T) {
	hub := newHubFixture()
	c, cleanup := hub.Register("c1", "u1", nil)
	defer cleanup()

	hub.JoinRoom(MeetingRoom("m1"), c)
	hub.JoinRoom(MeetingRoom("m1"), c)
	require.Equal(t, 1, hub.RoomCount(MeetingRoom("m1")))

	hub.BroadcastMeeting("m1", model.EventStudentJoined, nil)
	recvEvent(t, c)
	requireNoEvent(t, c)
}
