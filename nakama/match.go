// Package nakama runs matches inside a Nakama server as authoritative matches.
package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/minaorangina/gamehost/engine"
	"github.com/minaorangina/gamehost/messenger"
	"github.com/minaorangina/gamehost/timer"
	"go.uber.org/zap/zapcore"
)

// Op codes carried by match data
const (
	// OpCommand is a client command: {"text": "...", "public": bool}
	OpCommand int64 = 1
	// OpAuto asks the host to act for the sender
	OpAuto int64 = 2

	// OpMessage is a game message for one seat or everyone
	OpMessage int64 = 10
	// OpResult answers a command
	OpResult int64 = 11
	// OpError reports a refused command
	OpError int64 = 12
	// OpOver carries the final scores
	OpOver int64 = 13
)

const tickRate = 1

// Command is the payload of OpCommand
type Command struct {
	Text   string `json:"text"`
	Public bool   `json:"public"`
}

// Frame is the payload of every server op code
type Frame struct {
	ID     uint64  `json:"id,omitempty"`
	To     string  `json:"to,omitempty"`
	Text   string  `json:"text,omitempty"`
	Result string  `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
	Scores []int64 `json:"scores,omitempty"`
}

type label struct {
	Game  string `json:"game"`
	Open  int    `json:"open"`
	State string `json:"state"`
}

type outbound struct {
	to    messenger.Target
	frame Frame
}

// outbox is the match's transport. Nakama only lets us send from inside a
// match callback, so messages wait here until the callback flushes them.
type outbox struct {
	pending []outbound
}

func (o *outbox) Deliver(to messenger.Target, msg messenger.Message) error {
	o.pending = append(o.pending, outbound{to: to, frame: Frame{ID: msg.ID, To: to.String(), Text: msg.String()}})
	return nil
}

// MatchState is one nakama match
type MatchState struct {
	Game      string            `json:"game"`
	Seats     []string          `json:"seats"`
	Computers int               `json:"computers"`
	Values    map[string]string `json:"values"`

	presences map[string]runtime.Presence
	match     *engine.Match
	clock     *timer.Manual
	out       *outbox
}

func (s *MatchState) humanSeats() int {
	return len(s.Seats) - s.Computers
}

func (s *MatchState) openSeats() int {
	if s.match != nil {
		return 0
	}
	open := 0
	for _, id := range s.Seats[:s.humanSeats()] {
		if id == "" {
			open++
		}
	}
	return open
}

func (s *MatchState) seatOf(userID string) int {
	for i, id := range s.Seats {
		if id == userID && id != "" {
			return i
		}
	}
	return -1
}

type matchHandler struct {
	game          engine.Game
	hookOnTimeout bool
}

// MatchInit reads "seats", "computers" and any "opt_" prefixed game option from params
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	min, max := mh.game.Seats()
	seats := intParam(params, "seats", max)
	if seats < min || seats > max {
		logger.Warn("MatchInit: %d seats is not allowed for %s, using %d", seats, mh.game.Name(), max)
		seats = max
	}
	computers := intParam(params, "computers", 0)
	if computers < 0 || computers >= seats {
		computers = 0
	}

	values := map[string]string{}
	for k, v := range params {
		if len(k) > 4 && k[:4] == "opt_" {
			values[k[4:]] = fmt.Sprint(v)
		}
	}

	state := &MatchState{
		Game:      mh.game.Name(),
		Seats:     make([]string, seats),
		Computers: computers,
		Values:    values,
		presences: map[string]runtime.Presence{},
		out:       &outbox{},
	}
	logger.Debug("MatchInit: %s with %d seats, %d computers", state.Game, seats, computers)
	return state, tickRate, mh.label(state)
}

func (mh *matchHandler) label(state *MatchState) string {
	l := label{Game: state.Game, Open: state.openSeats(), State: "lobby"}
	if state.match != nil {
		l.State = state.match.PlayState().String()
	}
	data, _ := json.Marshal(l)
	return string(data)
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	s, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}
	if s.match != nil {
		return s, false, "match already started"
	}
	if s.seatOf(presence.GetUserId()) >= 0 {
		return s, true, ""
	}
	if s.openSeats() == 0 {
		return s, false, "match full"
	}
	return s, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	s, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		s.presences[p.GetUserId()] = p
		if s.seatOf(p.GetUserId()) >= 0 {
			continue
		}
		assigned := false
		for i := 0; i < s.humanSeats(); i++ {
			if s.Seats[i] == "" {
				s.Seats[i] = p.GetUserId()
				assigned = true
				logger.Debug("MatchJoin: %s takes seat %d", p.GetUserId(), i)
				break
			}
		}
		if !assigned {
			logger.Warn("MatchJoin: User %s joined but no seat was available.", p.GetUserId())
		}
	}

	if s.match == nil && s.openSeats() == 0 {
		if err := mh.start(s, logger); err != nil {
			logger.Error("MatchJoin: could not start %s: %v", s.Game, err)
			return nil
		}
	}

	mh.flush(s, dispatcher, logger)
	mh.updateLabel(s, dispatcher, logger)
	return s
}

func (mh *matchHandler) start(s *MatchState, logger runtime.Logger) error {
	computers := make([]int, 0, s.Computers)
	for i := s.humanSeats(); i < len(s.Seats); i++ {
		computers = append(computers, i)
	}

	s.clock = timer.NewManual()
	m, err := engine.NewMatch(engine.MatchOpts{
		Game:          mh.game,
		Seats:         len(s.Seats),
		Computers:     computers,
		HookOnTimeout: mh.hookOnTimeout,
		Alerts:        []time.Duration{30 * time.Second, 10 * time.Second},
		Values:        s.Values,
		Transport:     s.out,
		Timer:         s.clock,
		Logger:        newZapLogger(logger, zapcore.InfoLevel),
	})
	if err != nil {
		return err
	}
	s.match = m
	return m.Start()
}

// MatchLeave makes every departed seat leave its match for good
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	s, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	for _, p := range presences {
		delete(s.presences, p.GetUserId())
		seat := s.seatOf(p.GetUserId())
		if seat < 0 {
			continue
		}
		if s.match == nil {
			s.Seats[seat] = ""
			continue
		}
		if err := s.match.Leave(seat); err != nil {
			logger.Warn("MatchLeave: seat %d: %v", seat, err)
		}
	}

	if s.match == nil && len(s.presences) == 0 {
		logger.Info("MatchLeave: Terminating lobby with no players.")
		return nil
	}
	return mh.settle(s, dispatcher, logger)
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	s, ok := state.(*MatchState)
	if !ok {
		return state
	}

	for _, msg := range messages {
		mh.handle(s, msg, dispatcher, logger)
	}

	if s.match == nil {
		return s
	}
	s.clock.Advance(time.Second / tickRate)
	return mh.settle(s, dispatcher, logger)
}

func (mh *matchHandler) handle(s *MatchState, msg runtime.MatchData, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	// whatever the command said goes out before its result
	reply := func(op int64, f Frame) {
		mh.flush(s, dispatcher, logger)
		mh.send(dispatcher, logger, op, f, []runtime.Presence{msg})
	}

	if s.match == nil {
		reply(OpError, Frame{Error: engine.ErrNotStarted.Error()})
		return
	}
	seat := s.seatOf(msg.GetUserId())
	if seat < 0 {
		reply(OpError, Frame{Error: engine.ErrUnknownSeat.Error()})
		return
	}

	switch msg.GetOpCode() {
	case OpCommand:
		var cmd Command
		if err := json.Unmarshal(msg.GetData(), &cmd); err != nil {
			reply(OpError, Frame{Error: "could not parse command"})
			return
		}
		res, err := s.match.Request(seat, cmd.Public, cmd.Text)
		if err != nil {
			reply(OpError, Frame{Error: err.Error()})
			return
		}
		reply(OpResult, Frame{Result: res.String()})

	case OpAuto:
		out, err := s.match.Act(seat)
		if err != nil {
			reply(OpError, Frame{Error: err.Error()})
			return
		}
		reply(OpResult, Frame{Result: out.String()})

	default:
		logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
	}
}

// settle flushes pending messages and ends the nakama match once the game is over
func (mh *matchHandler) settle(s *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) interface{} {
	mh.flush(s, dispatcher, logger)
	if s.match == nil || !s.match.Over() {
		mh.updateLabel(s, dispatcher, logger)
		return s
	}

	scores, _ := s.match.Scores()
	mh.send(dispatcher, logger, OpOver, Frame{Scores: scores}, nil)
	logger.Info("match %s over, scores %v", s.match.ID(), scores)
	return nil
}

func (mh *matchHandler) flush(s *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	pending := s.out.pending
	s.out.pending = nil

	for _, o := range pending {
		var to []runtime.Presence
		if o.to.Kind == messenger.Seat {
			if o.to.Seat < 0 || o.to.Seat >= len(s.Seats) {
				continue
			}
			p, ok := s.presences[s.Seats[o.to.Seat]]
			if !ok {
				continue
			}
			to = []runtime.Presence{p}
		}
		mh.send(dispatcher, logger, OpMessage, o.frame, to)
	}
}

func (mh *matchHandler) send(dispatcher runtime.MatchDispatcher, logger runtime.Logger, op int64, f Frame, to []runtime.Presence) {
	data, err := json.Marshal(f)
	if err != nil {
		logger.Error("could not marshal frame: %v", err)
		return
	}
	if err := dispatcher.BroadcastMessage(op, data, to, nil, true); err != nil {
		logger.Warn("could not send op %d: %v", op, err)
	}
}

func (mh *matchHandler) updateLabel(s *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if err := dispatcher.MatchLabelUpdate(mh.label(s)); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	logger.Debug("MatchTerminate: Match terminated with %d seconds grace", graceSeconds)
	if s, ok := state.(*MatchState); ok && s.match != nil {
		s.match.Close()
	}
	return state
}

// MatchSignal understands "start", which fills the open seats with computers
func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	s, ok := state.(*MatchState)
	if !ok || data != "start" {
		return state, ""
	}
	if s.match != nil {
		return s, "already started"
	}

	// seat the humans first so computers take the trailing seats
	humans := []string{}
	for _, id := range s.Seats[:s.humanSeats()] {
		if id != "" {
			humans = append(humans, id)
		}
	}
	if len(humans) == 0 {
		return s, "no players"
	}
	copy(s.Seats, humans)
	for i := len(humans); i < len(s.Seats); i++ {
		s.Seats[i] = ""
	}
	s.Computers = len(s.Seats) - len(humans)

	if err := mh.start(s, logger); err != nil {
		return s, err.Error()
	}
	mh.flush(s, dispatcher, logger)
	mh.updateLabel(s, dispatcher, logger)
	return s, "started"
}

func intParam(params map[string]interface{}, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
