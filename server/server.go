// Package server hosts matches over HTTP and websockets.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/minaorangina/gamehost/engine"
	"github.com/minaorangina/gamehost/games"
	"github.com/minaorangina/gamehost/messenger"
	"github.com/minaorangina/gamehost/store"
	"github.com/minaorangina/gamehost/timer"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type NewGameReq struct {
	Name      string            `json:"name"`
	Game      string            `json:"game"`
	Seats     int               `json:"seats"`
	Computers int               `json:"computers"`
	Values    map[string]string `json:"values"`
}

type JoinGameReq struct {
	GameID string `json:"game_id"`
	Name   string `json:"name"`
}

type PendingGameRes struct {
	GameID   string   `json:"game_id"`
	PlayerID string   `json:"player_id"`
	Name     string   `json:"name"`
	Admin    bool     `json:"is_admin"`
	Players  []string `json:"players"`
	Seat     int      `json:"seat"`
	Ticket   string   `json:"ticket"`
}

type GetGameRes struct {
	Status       string           `json:"status"`
	GameID       string           `json:"game_id"`
	Game         string           `json:"game"`
	Players      []string         `json:"players,omitempty"`
	Seats        int              `json:"seats,omitempty"`
	Scores       []int64          `json:"scores,omitempty"`
	Achievements []map[string]int `json:"achievements,omitempty"`
}

type ServerOpts struct {
	Addr  string
	Store store.MatchStore
	Games *games.Registry
	// Tickets signs seat tickets; it is required
	Tickets       *Tickets
	HookOnTimeout bool
	Alerts        []time.Duration
	// NewTimer defaults to wall clock timers
	NewTimer func() timer.Timer
	Logger   *zap.Logger
}

// GameServer is a game server
type GameServer struct {
	store         store.MatchStore
	games         *games.Registry
	tickets       *Tickets
	hookOnTimeout bool
	alerts        []time.Duration
	newTimer      func() timer.Timer
	logger        *zap.Logger

	mu   sync.Mutex
	hubs map[string]*hub

	http.Server
}

// NewServer creates a new GameServer
func NewServer(opts ServerOpts) *GameServer {
	s := &GameServer{
		store:         opts.Store,
		games:         opts.Games,
		tickets:       opts.Tickets,
		hookOnTimeout: opts.HookOnTimeout,
		alerts:        opts.Alerts,
		newTimer:      opts.NewTimer,
		logger:        opts.Logger,
		hubs:          map[string]*hub{},
	}
	if s.store == nil {
		s.store = store.NewInMemoryMatchStore(0)
	}
	if s.games == nil {
		s.games = games.Default()
	}
	if s.newTimer == nil {
		s.newTimer = func() timer.Timer { return timer.NewClock() }
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	router := http.NewServeMux()
	router.Handle("/games", http.HandlerFunc(s.HandleListGames))
	router.Handle("/new", http.HandlerFunc(s.HandleNewGame))
	router.Handle("/join", http.HandlerFunc(s.HandleJoinGame))
	router.Handle("/start", http.HandlerFunc(s.HandleStartGame))
	router.Handle("/game/", http.HandlerFunc(s.HandleFindGame))
	router.Handle("/ws", http.HandlerFunc(s.HandleWS))

	access := zap.NewStdLog(s.logger.Named("http")).Writer()
	s.Addr = opts.Addr
	s.Handler = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(handlers.LoggingHandler(access, router))

	return s
}

// ServeHTTP serves http
func (g *GameServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.Handler.ServeHTTP(w, r)
}

func (g *GameServer) hubFor(id string) *hub {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hubs[id]
}

// Sweep forgets matches that ended, and lobbies that never started,
// more than retention ago, and disconnects their players.
func (g *GameServer) Sweep(retention time.Duration) []string {
	removed := g.store.Sweep(retention)

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range removed {
		if h, ok := g.hubs[id]; ok {
			h.close()
			delete(g.hubs, id)
		}
	}
	if len(removed) > 0 {
		g.logger.Info("swept matches", zap.Strings("ids", removed))
	}
	return removed
}

func (g *GameServer) HandleListGames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, g.games.Names())
}

// HandleNewGame handles a request to create a new game
func (g *GameServer) HandleNewGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var data NewGameReq
	err := json.NewDecoder(r.Body).Decode(&data)
	defer r.Body.Close()
	if err != nil {
		writeParseError(err, w)
		return
	}
	if data.Name == "" {
		writeText(w, http.StatusBadRequest, "Missing player name")
		return
	}

	game, err := g.games.Find(data.Game)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	_, max := game.Seats()
	if data.Seats <= 0 || data.Seats > max {
		data.Seats = max
	}
	if data.Computers < 0 || data.Computers >= data.Seats {
		writeText(w, http.StatusBadRequest, "too many computer seats")
		return
	}

	gameID := NewGameID()
	playerID := NewID()
	err = g.store.AddLobby(store.Lobby{
		ID:        gameID,
		Game:      game.Name(),
		CreatorID: playerID,
		MaxSeats:  data.Seats,
		Computers: data.Computers,
		Values:    data.Values,
		Players:   []store.PlayerInfo{{PlayerID: playerID, Name: data.Name}},
	})
	if errors.Is(err, store.ErrStoreFull) {
		writeText(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		g.logger.Error("could not add lobby", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	g.mu.Lock()
	g.hubs[gameID] = newHub(gameID, g.logger)
	g.mu.Unlock()

	ticket, err := g.tickets.Issue(Ticket{PlayerID: playerID, MatchID: gameID, Seat: 0})
	if err != nil {
		g.logger.Error("could not issue ticket", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	g.logger.Info("lobby created", zap.String("match_id", gameID), zap.String("game", game.Name()))
	writeJSON(w, http.StatusCreated, PendingGameRes{
		GameID:   gameID,
		PlayerID: playerID,
		Name:     data.Name,
		Admin:    true,
		Players:  []string{data.Name},
		Seat:     0,
		Ticket:   ticket,
	})
}

func (g *GameServer) HandleJoinGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var data JoinGameReq
	err := json.NewDecoder(r.Body).Decode(&data)
	defer r.Body.Close()
	if err != nil {
		writeParseError(err, w)
		return
	}
	if data.GameID == "" {
		writeText(w, http.StatusBadRequest, "Missing game ID")
		return
	}
	if data.Name == "" {
		writeText(w, http.StatusBadRequest, "Missing player name")
		return
	}

	playerID := NewID()
	seat, err := g.store.AddPlayer(data.GameID, playerID, data.Name)
	switch {
	case errors.Is(err, store.ErrUnknownMatchID):
		writeText(w, http.StatusBadRequest, unknownGameIDMsg(data.GameID))
		return
	case errors.Is(err, store.ErrLobbyFull), errors.Is(err, store.ErrMatchStarted):
		writeText(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	lobby, _ := g.store.FindLobby(data.GameID)
	if h := g.hubFor(data.GameID); h != nil {
		h.sendFrame(messenger.Broadcast(), OutboundFrame{Event: "joined", Text: data.Name + " has joined the game!"})
	}

	ticket, err := g.tickets.Issue(Ticket{PlayerID: playerID, MatchID: data.GameID, Seat: seat})
	if err != nil {
		g.logger.Error("could not issue ticket", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, PendingGameRes{
		PlayerID: playerID,
		GameID:   data.GameID,
		Name:     data.Name,
		Players:  lobby.Names(),
		Seat:     seat,
		Ticket:   ticket,
	})
}

// HandleStartGame turns a lobby into a running match. Only its creator may start it.
func (g *GameServer) HandleStartGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	ticket, err := g.tickets.Parse(bearer(r))
	if err != nil {
		writeText(w, http.StatusUnauthorized, err.Error())
		return
	}

	lobby, ok := g.store.FindLobby(ticket.MatchID)
	if !ok {
		if g.store.FindMatch(ticket.MatchID) != nil {
			writeText(w, http.StatusConflict, store.ErrMatchStarted.Error())
			return
		}
		writeText(w, http.StatusNotFound, unknownGameIDMsg(ticket.MatchID))
		return
	}
	if lobby.CreatorID != ticket.PlayerID {
		writeText(w, http.StatusForbidden, "only the game's creator can start it")
		return
	}

	game, err := g.games.Find(lobby.Game)
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}

	h := g.hubFor(lobby.ID)
	if h == nil {
		h = newHub(lobby.ID, g.logger)
		g.mu.Lock()
		g.hubs[lobby.ID] = h
		g.mu.Unlock()
	}

	humans := len(lobby.Players)
	computers := make([]int, 0, lobby.Computers)
	for i := 0; i < lobby.Computers; i++ {
		computers = append(computers, humans+i)
	}

	match, err := engine.NewMatch(engine.MatchOpts{
		ID:            lobby.ID,
		Game:          game,
		Seats:         humans + lobby.Computers,
		Computers:     computers,
		HookOnTimeout: g.hookOnTimeout,
		Alerts:        g.alerts,
		Values:        lobby.Values,
		Transport:     h,
		Timer:         g.newTimer(),
		Logger:        g.logger,
	})
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := g.store.Promote(lobby.ID, match); err != nil {
		writeText(w, http.StatusConflict, err.Error())
		return
	}
	if err := match.Start(); err != nil {
		g.logger.Error("could not start match", zap.String("match_id", lobby.ID), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, g.matchStatus(lobby.ID, match, lobby.Names()))
}

func (g *GameServer) matchStatus(id string, m *engine.Match, names []string) GetGameRes {
	res := GetGameRes{
		Status:       m.PlayState().String(),
		GameID:       id,
		Game:         m.GameName(),
		Players:      names,
		Seats:        m.Seats(),
		Achievements: m.Achievements(),
	}
	if scores, ok := m.Scores(); ok {
		res.Scores = scores
	}
	return res
}

func (g *GameServer) HandleFindGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	gameID := strings.TrimPrefix(r.URL.Path, "/game/")
	if gameID == "" {
		writeText(w, http.StatusBadRequest, "missing game ID")
		return
	}

	if lobby, ok := g.store.FindLobby(gameID); ok {
		writeJSON(w, http.StatusOK, GetGameRes{
			Status:  "pending",
			GameID:  gameID,
			Game:    lobby.Game,
			Players: lobby.Names(),
			Seats:   lobby.MaxSeats,
		})
		return
	}

	match := g.store.FindMatch(gameID)
	if match == nil {
		writeText(w, http.StatusNotFound, unknownGameIDMsg(gameID))
		return
	}
	writeJSON(w, http.StatusOK, g.matchStatus(gameID, match, nil))
}

func (g *GameServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	ticket, err := g.tickets.Parse(bearer(r))
	if err != nil {
		writeText(w, http.StatusUnauthorized, err.Error())
		return
	}

	h := g.hubFor(ticket.MatchID)
	if h == nil {
		writeText(w, http.StatusNotFound, unknownGameIDMsg(ticket.MatchID))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already replied
		g.logger.Info("could not upgrade to websocket", zap.Error(err))
		return
	}

	c := newClient(ticket.Seat)
	if !h.attach(c) {
		conn.Close()
		return
	}

	sc := &seatConn{
		server: g,
		hub:    h,
		client: c,
		ticket: ticket,
		conn:   conn,
		logger: g.logger.With(zap.String("match_id", ticket.MatchID), zap.Int("seat", ticket.Seat)),
	}
	seat := ticket.Seat
	sc.reply(OutboundFrame{Event: "welcome", Seat: &seat, MatchID: ticket.MatchID})

	go sc.writePump()
	go sc.readPump()
}
