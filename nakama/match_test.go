package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/minaorangina/gamehost/games"
	"github.com/minaorangina/gamehost/games/highcard"
	utils "github.com/minaorangina/gamehost/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopLogger implements runtime.Logger for tests that only need to satisfy the interface.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) WithField(string, interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) Fields() map[string]interface{} {
	return nil
}

type sent struct {
	op    int64
	frame Frame
	to    []string
}

// mockDispatcher records match dispatcher calls for assertions.
type mockDispatcher struct {
	sent   []sent
	labels []string
}

func (md *mockDispatcher) BroadcastMessage(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	to := []string{}
	for _, p := range presences {
		to = append(to, p.GetUserId())
	}
	md.sent = append(md.sent, sent{op: opCode, frame: f, to: to})
	return nil
}

func (md *mockDispatcher) BroadcastMessageDeferred(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	return nil
}

func (md *mockDispatcher) MatchKick(presences []runtime.Presence) error {
	return nil
}

func (md *mockDispatcher) MatchLabelUpdate(label string) error {
	md.labels = append(md.labels, label)
	return nil
}

// find returns the frames sent with op whose text contains substr
func (md *mockDispatcher) find(op int64, substr string) []sent {
	out := []sent{}
	for _, s := range md.sent {
		if s.op == op && strings.Contains(s.frame.Text, substr) {
			out = append(out, s)
		}
	}
	return out
}

func (md *mockDispatcher) last() sent {
	return md.sent[len(md.sent)-1]
}

type presence struct {
	userID string
}

func (p presence) GetHidden() bool                   { return false }
func (p presence) GetPersistence() bool              { return false }
func (p presence) GetUsername() string               { return p.userID }
func (p presence) GetStatus() string                 { return "" }
func (p presence) GetReason() runtime.PresenceReason { return runtime.PresenceReasonUnknown }
func (p presence) GetUserId() string                 { return p.userID }
func (p presence) GetSessionId() string              { return "session-" + p.userID }
func (p presence) GetNodeId() string                 { return "node" }

type matchData struct {
	presence
	op   int64
	data []byte
}

func (m matchData) GetOpCode() int64      { return m.op }
func (m matchData) GetData() []byte       { return m.data }
func (m matchData) GetReliable() bool     { return true }
func (m matchData) GetReceiveTime() int64 { return 0 }

func command(userID, text string) runtime.MatchData {
	data, _ := json.Marshal(Command{Text: text})
	return matchData{presence: presence{userID}, op: OpCommand, data: data}
}

type harness struct {
	mh    *matchHandler
	d     *mockDispatcher
	state interface{}
}

func newHarness(t *testing.T, params map[string]interface{}) *harness {
	t.Helper()
	h := &harness{mh: &matchHandler{game: highcard.Game{}}, d: &mockDispatcher{}}
	state, rate, label := h.mh.MatchInit(context.Background(), noopLogger{}, nil, nil, params)
	utils.AssertEqual(t, rate, tickRate)
	assert.Contains(t, label, `"state":"lobby"`)
	h.state = state
	return h
}

func (h *harness) join(t *testing.T, userID string) bool {
	t.Helper()
	ctx := context.Background()
	state, ok, _ := h.mh.MatchJoinAttempt(ctx, noopLogger{}, nil, nil, h.d, 0, h.state, presence{userID}, nil)
	if !ok {
		return false
	}
	h.state = h.mh.MatchJoin(ctx, noopLogger{}, nil, nil, h.d, 0, state, []runtime.Presence{presence{userID}})
	return true
}

func (h *harness) loop(msgs ...runtime.MatchData) {
	h.state = h.mh.MatchLoop(context.Background(), noopLogger{}, nil, nil, h.d, 0, h.state, msgs)
}

func (h *harness) leave(userID string) {
	h.state = h.mh.MatchLeave(context.Background(), noopLogger{}, nil, nil, h.d, 0, h.state, []runtime.Presence{presence{userID}})
}

func TestMatchLifecycle(t *testing.T) {
	h := newHarness(t, map[string]interface{}{
		"seats":       float64(2),
		"opt_seed":    "5",
		"opt_timeout": "6s",
	})

	utils.AssertTrue(t, h.join(t, "p1"))
	utils.AssertEqual(t, len(h.d.sent), 0)
	assert.Contains(t, h.d.labels[len(h.d.labels)-1], `"open":1`)

	utils.AssertTrue(t, h.join(t, "p2"))

	t.Run("the match starts once every seat is taken", func(t *testing.T) {
		intro := h.d.find(OpMessage, "High Card")
		require.Len(t, intro, 1)
		utils.AssertEqual(t, len(intro[0].to), 0)

		hands := h.d.find(OpMessage, "Your hand")
		require.Len(t, hands, 2)
		assert.Equal(t, []string{"p1"}, hands[0].to)
		assert.Equal(t, []string{"p2"}, hands[1].to)

		assert.Contains(t, h.d.labels[len(h.d.labels)-1], `"state":"inProgress"`)
	})

	t.Run("nobody joins a started match", func(t *testing.T) {
		utils.AssertFalse(t, h.join(t, "p3"))
	})

	t.Run("commands are answered", func(t *testing.T) {
		h.loop(command("p1", "play 1"))
		last := h.d.last()
		utils.AssertEqual(t, last.op, OpResult)
		utils.AssertEqual(t, last.frame.Result, "Ok")
		assert.Equal(t, []string{"p1"}, last.to)

		before := h.d.sent[len(h.d.sent)-2]
		utils.AssertEqual(t, before.op, OpMessage)
		assert.Contains(t, before.frame.Text, "You play the")
		assert.Equal(t, []string{"p1"}, before.to)

		h.loop(matchData{presence: presence{"p1"}, op: OpCommand, data: []byte("{")})
		utils.AssertEqual(t, h.d.last().op, OpError)

		h.loop(command("stranger", "play 1"))
		utils.AssertEqual(t, h.d.last().op, OpError)
	})

	t.Run("ticks drive the stage timer", func(t *testing.T) {
		h.loop()
		h.loop()
		utils.AssertEqual(t, len(h.d.find(OpMessage, "wins round 1")), 0)
		h.loop()
		utils.AssertEqual(t, len(h.d.find(OpMessage, "wins round 1")), 1)
	})

	t.Run("the match ends when too few players remain", func(t *testing.T) {
		h.leave("p2")
		utils.AssertTrue(t, h.state == nil)
		last := h.d.last()
		utils.AssertEqual(t, last.op, OpOver)
		utils.AssertEqual(t, len(last.frame.Scores), 2)
	})
}

func TestLobby(t *testing.T) {
	t.Run("commands before the start are refused", func(t *testing.T) {
		h := newHarness(t, map[string]interface{}{"seats": 3})
		h.join(t, "p1")
		h.loop(command("p1", "hand"))
		utils.AssertEqual(t, h.d.last().op, OpError)
		utils.AssertEqual(t, h.d.last().frame.Error, "match has not started")
	})

	t.Run("an empty lobby ends", func(t *testing.T) {
		h := newHarness(t, map[string]interface{}{"seats": 3})
		h.join(t, "p1")
		h.leave("p1")
		utils.AssertTrue(t, h.state == nil)
	})

	t.Run("rejoining keeps the seat", func(t *testing.T) {
		h := newHarness(t, map[string]interface{}{"seats": 3})
		h.join(t, "p1")
		h.join(t, "p1")
		s := h.state.(*MatchState)
		assert.Equal(t, []string{"p1", "", ""}, s.Seats)
	})

	t.Run("the start signal fills empty seats with computers", func(t *testing.T) {
		h := newHarness(t, map[string]interface{}{"seats": 3, "opt_seed": "9"})
		h.join(t, "p1")

		state, result := h.mh.MatchSignal(context.Background(), noopLogger{}, nil, nil, h.d, 0, h.state, "start")
		utils.AssertEqual(t, result, "started")
		s := state.(*MatchState)
		utils.AssertEqual(t, s.Computers, 2)
		utils.AssertTrue(t, s.match.IsComputer(2))
		require.NotEmpty(t, h.d.find(OpMessage, "High Card"))

		_, result = h.mh.MatchSignal(context.Background(), noopLogger{}, nil, nil, h.d, 0, state, "start")
		utils.AssertEqual(t, result, "already started")
	})

	t.Run("bad seat counts fall back to the maximum", func(t *testing.T) {
		h := newHarness(t, map[string]interface{}{"seats": "99", "computers": 12})
		s := h.state.(*MatchState)
		utils.AssertEqual(t, len(s.Seats), 8)
		utils.AssertEqual(t, s.Computers, 0)
	})
}

type fakeInitializer struct {
	runtime.Initializer
	matches []string
	rpcs    []string
}

func (f *fakeInitializer) RegisterMatch(name string, fn func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error)) error {
	f.matches = append(f.matches, name)
	return nil
}

func (f *fakeInitializer) RegisterRpc(id string, fn func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error)) error {
	f.rpcs = append(f.rpcs, id)
	return nil
}

type fakeNakama struct {
	runtime.NakamaModule
	module string
	params map[string]interface{}
}

func (f *fakeNakama) MatchCreate(ctx context.Context, module string, params map[string]interface{}) (string, error) {
	f.module, f.params = module, params
	return "match-1", nil
}

func TestRegister(t *testing.T) {
	initializer := &fakeInitializer{}
	require.NoError(t, InitModule(context.Background(), noopLogger{}, nil, nil, initializer))
	assert.Equal(t, []string{"highcard"}, initializer.matches)
	assert.Equal(t, []string{rpcCreateMatch}, initializer.rpcs)
}

func TestCreateMatchRPC(t *testing.T) {
	rpc := createMatchRPC(games.Default())
	nk := &fakeNakama{}

	out, err := rpc(context.Background(), noopLogger{}, nil, nk, `{"game":"highcard","seats":4,"values":{"rounds":"5"}}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"match_id":"match-1"}`, out)
	utils.AssertEqual(t, nk.module, "highcard")
	utils.AssertEqual(t, nk.params["opt_rounds"], interface{}("5"))

	_, err = rpc(context.Background(), noopLogger{}, nil, nk, `{"game":"chess"}`)
	utils.AssertErrored(t, err)

	_, err = rpc(context.Background(), noopLogger{}, nil, nk, `nope`)
	utils.AssertErrored(t, err)
}
