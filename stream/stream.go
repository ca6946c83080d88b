package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tmpim/epaperify"
	"github.com/tmpim/epaperify/store"
)

// Subscription is a set of packet kinds a client wants to receive.
type Subscription uint32

// Possible subscription flags.
const (
	SubscriptionFrames = Subscription(1 << iota)
	SubscriptionMetadata
	SubscriptionAll = Subscription(0)
)

// Playback states.
const (
	StateStopped = iota + 1
	StatePaused
	StatePlaying
	StateTransitioning
)

var AllStates = []int{StateStopped, StatePaused, StatePlaying, StateTransitioning}

// WebsocketControl is the message a client sends to change its
// subscriptions.
type WebsocketControl struct {
	ID           string `json:"id"`
	Subscription uint32 `json:"subscription"`
}

// IsSubscribedTo returns whether or not the client subscription is subscribed
// to the given subscription.
func (s Subscription) IsSubscribedTo(sub Subscription) bool {
	return (s & sub) == sub
}

// Conn is the side of a websocket connection the manager needs.
// *websocket.Conn implements it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
}

// Client is a websocket connected client.
type Client struct {
	mutex         *sync.Mutex
	id            string
	conn          Conn
	subscriptions Subscription
}

// Options configures a StreamManager.
type Options struct {
	// Encoder is the base configuration for every played sequence. Its
	// Context is replaced on each play.
	Encoder epaperify.EncoderOptions
	// Framerate is the number of frames sent per second.
	Framerate int
	// Store records every played sequence if set.
	Store *store.Store
	// Logger receives progress lines. Nil discards them.
	Logger *log.Logger
}

// StreamManager plays image sequences as keyframes and deltas to every
// connected client.
type StreamManager struct {
	clientsMutex *sync.Mutex
	clients      []*Client

	stateCond *sync.Cond
	state     State

	targetState uint32

	// historyMutex guards history and orders frame broadcasts against
	// clients subscribing, so a late joiner never misses or repeats a frame.
	historyMutex *sync.Mutex
	history      [][]byte

	opts Options
	log  *log.Logger
}

// State is the playback state shared with clients.
type State struct {
	Title    string
	State    int
	Position int
	Frames   int
	// StreamID is the recording of the current sequence, or -1 if it is
	// not being recorded.
	StreamID      int64
	RelativeStart time.Time
	Context       context.Context
	Cancel        func()
}

func (s *State) MarshalJSON() ([]byte, error) {
	type stateJSON struct {
		Title         string `json:"title"`
		State         int    `json:"state"`
		Position      int    `json:"position"`
		Frames        int    `json:"frames"`
		StreamID      int64  `json:"streamId,omitempty"`
		RelativeStart int64  `json:"relativeStart"`
	}

	streamID := s.StreamID
	if streamID < 0 {
		streamID = 0
	}

	return json.Marshal(stateJSON{
		Title:         s.Title,
		State:         s.State,
		Position:      s.Position,
		Frames:        s.Frames,
		StreamID:      streamID,
		RelativeStart: s.RelativeStart.Unix(),
	})
}

// NewEmptyState returns a state that changes nothing when passed to
// UpdateState.
func NewEmptyState() State {
	return State{
		Position: -1,
		Frames:   -1,
	}
}

// UpdateWith copies every set field of new into s.
func (s *State) UpdateWith(new State) {
	if new.Title != "" {
		s.Title = new.Title
	}
	if new.State != 0 {
		s.State = new.State
	}
	if new.Position >= 0 {
		s.Position = new.Position
	}
	if new.Frames >= 0 {
		s.Frames = new.Frames
	}
	if new.StreamID != 0 {
		s.StreamID = new.StreamID
	}
	if !new.RelativeStart.IsZero() {
		s.RelativeStart = new.RelativeStart
	}
	if new.Context != nil {
		s.Context = new.Context
	}
	if new.Cancel != nil {
		s.Cancel = new.Cancel
	}
}

// Metadata describes a playable source.
type Metadata struct {
	Title  string
	Frames int
}

// NewStreamManager returns a stopped manager.
func NewStreamManager(opts Options) *StreamManager {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}
	if opts.Framerate < 1 {
		opts.Framerate = 1
	}

	return &StreamManager{
		clientsMutex: new(sync.Mutex),
		stateCond:    sync.NewCond(new(sync.Mutex)),
		historyMutex: new(sync.Mutex),
		targetState:  StateStopped,
		state: State{
			State: StateStopped,
		},
		opts: opts,
		log:  logger,
	}
}

// Broadcast sends every packet in data to the clients subscribed to sub.
func (s *StreamManager) Broadcast(sub Subscription, data ...[]byte) {
	s.clientsMutex.Lock()
	clientCopy := make([]*Client, len(s.clients))
	copy(clientCopy, s.clients)
	s.clientsMutex.Unlock()

	for _, client := range clientCopy {
		client.mutex.Lock()
		if client.subscriptions.IsSubscribedTo(sub) {
			for _, d := range data {
				client.conn.WriteMessage(websocket.BinaryMessage, d)
			}
		}
		client.mutex.Unlock()
	}
}

// publish broadcasts a frame packet and keeps it for late joiners. A
// keyframe starts a new history.
func (s *StreamManager) publish(d *epaperify.Delta) {
	buf := new(bytes.Buffer)
	if _, err := d.WriteTo(buf); err != nil {
		s.log.Println("epaperify stream: publish: failed to write packet:", err)
		return
	}
	packet := buf.Bytes()

	s.historyMutex.Lock()
	defer s.historyMutex.Unlock()

	if d.Keyframe {
		s.history = s.history[:0]
	}
	s.history = append(s.history, packet)

	s.Broadcast(SubscriptionFrames, packet)
}

func (s *StreamManager) clearHistory() {
	s.historyMutex.Lock()
	s.history = nil
	s.historyMutex.Unlock()
}

// Clients returns the number of connected clients.
func (s *StreamManager) Clients() int {
	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	return len(s.clients)
}

// HandleConn serves a client until its connection fails. Clients start
// without subscriptions and send WebsocketControl messages to change them.
func (s *StreamManager) HandleConn(conn Conn) {
	s.clientsMutex.Lock()
	client := &Client{
		mutex:         new(sync.Mutex),
		conn:          conn,
		subscriptions: 0,
	}
	s.clients = append(s.clients, client)
	s.clientsMutex.Unlock()

	defer func() {
		s.clientsMutex.Lock()
		defer s.clientsMutex.Unlock()

		for i, c := range s.clients {
			if c == client {
				s.clients = append(s.clients[:i], s.clients[i+1:]...)
				return
			}
		}
	}()

	for {
		msgType, data, err := client.conn.ReadMessage()
		if err != nil {
			s.log.Println("epaperify stream: client disconnected:", err)
			return
		}

		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}

		var controlMsg WebsocketControl
		err = json.Unmarshal(data, &controlMsg)
		if err != nil {
			s.log.Println("epaperify stream: failed to unmarshal control message:", err)
			continue
		}

		s.subscribe(client, controlMsg)
	}
}

func (s *StreamManager) subscribe(client *Client, msg WebsocketControl) {
	sub := Subscription(msg.Subscription)

	if sub.IsSubscribedTo(SubscriptionMetadata) {
		state := s.State()
		d, err := state.MarshalJSON()
		if err == nil {
			client.mutex.Lock()
			client.conn.WriteMessage(websocket.BinaryMessage, append([]byte{epaperify.PacketMetadata}, d...))
			client.mutex.Unlock()
		} else {
			s.log.Println("epaperify stream: error encoding state JSON:", err)
		}
	}

	s.historyMutex.Lock()
	defer s.historyMutex.Unlock()

	client.mutex.Lock()
	defer client.mutex.Unlock()

	joining := sub.IsSubscribedTo(SubscriptionFrames) &&
		!client.subscriptions.IsSubscribedTo(SubscriptionFrames)
	if joining {
		for _, packet := range s.history {
			client.conn.WriteMessage(websocket.BinaryMessage, packet)
		}
	}

	client.id = msg.ID
	client.subscriptions = sub
}

// WaitForState blocks until the manager reaches state or ctx is done.
func (s *StreamManager) WaitForState(state int, ctx context.Context) (State, bool) {
	wrappedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-wrappedCtx.Done()
		s.stateCond.L.Lock()
		defer s.stateCond.L.Unlock()
		s.stateCond.Broadcast()
	}()

	s.stateCond.L.Lock()
	defer s.stateCond.L.Unlock()

	for {
		if s.state.State == state {
			return s.state, true
		}
		if wrappedCtx.Err() != nil {
			return State{}, false
		}
		s.stateCond.Wait()
	}
}

// UpdateState applies state if the current state is one of requiredStates
// and tells every client about the change.
func (s *StreamManager) UpdateState(state State, requiredStates []int) bool {
	s.stateCond.L.Lock()

	matched := false
	for _, required := range requiredStates {
		if s.state.State == required {
			matched = true
		}
	}

	if !matched {
		s.stateCond.L.Unlock()
		return false
	}

	prevState := s.state
	s.state.UpdateWith(state)
	s.stateCond.Broadcast()
	newState := s.state
	s.stateCond.L.Unlock()

	if newState.State != prevState.State {
		s.log.Printf("epaperify stream: state %d -> %d", prevState.State, newState.State)
	}

	d, err := newState.MarshalJSON()
	if err == nil {
		s.Broadcast(SubscriptionMetadata, append([]byte{epaperify.PacketMetadata}, d...))
	} else {
		s.log.Println("epaperify stream: error encoding state JSON:", err)
	}

	if newState.State == StateStopped && prevState.State != StateStopped {
		s.Broadcast(SubscriptionAll, []byte{epaperify.PacketStop})
	}

	return true
}

// State returns the current playback state.
func (s *StreamManager) State() State {
	s.stateCond.L.Lock()
	defer s.stateCond.L.Unlock()

	return s.state
}
