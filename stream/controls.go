package stream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/tmpim/epaperify"
)

const (
	stateTimeout = 3 * time.Second
)

func (s *StreamManager) frameDuration() time.Duration {
	return time.Second / time.Duration(s.opts.Framerate)
}

// PlaySource encodes frames and plays them to every client. It returns once
// the first frame has been sent, or with an error if playback could not
// start. cancel is called when playback ends.
func (s *StreamManager) PlaySource(meta *Metadata, frames <-chan image.Image,
	ctx context.Context, cancel func()) error {
	if !s.UpdateState(State{
		Title:         meta.Title,
		State:         StateTransitioning,
		Position:      0,
		Frames:        meta.Frames,
		StreamID:      -1,
		RelativeStart: time.Now(),
		Context:       ctx,
		Cancel:        cancel,
	}, []int{StateStopped}) {
		cancel()
		return errors.New("epaperify stream: play: player must be stopped to play")
	}

	s.clearHistory()

	opts := s.opts.Encoder
	opts.Context = ctx

	var streamID int64
	if s.opts.Store != nil {
		header := epaperify.Header{
			Width:    opts.Width,
			Height:   opts.Height,
			Channels: opts.Palette.Channels(),
		}
		id, err := s.opts.Store.CreateStream(meta.Title, header, opts.Palette, opts.Codec)
		if err != nil {
			s.log.Println("epaperify stream: play: not recording:", err)
		} else {
			streamID = id
			state := NewEmptyState()
			state.StreamID = id
			s.UpdateState(state, []int{StateTransitioning})
		}
	}

	output := make(chan epaperify.Delta, s.opts.Framerate)
	encodeDone := make(chan error, 1)
	go func() {
		s.log.Println("epaperify stream: play: encode started")
		err := epaperify.EncodeSequence(frames, output, opts)
		if err != nil {
			s.log.Println("epaperify stream: play: encode ended:", err)
		}
		encodeDone <- err
	}()

	atomic.StoreUint32(&s.targetState, StatePlaying)
	statePlaying := make(chan error, 2)

	go func() {
		position := 0

		defer s.log.Println("epaperify stream: play: frame outputter quitting")
		defer cancel()
		defer close(statePlaying)
		defer func() {
			s.log.Println("epaperify stream: play: playback has stopped")
			state := NewEmptyState()
			state.State = StateStopped
			state.Position = position
			state.RelativeStart = time.Now()
			if !s.UpdateState(state, []int{StateTransitioning, StatePlaying, StatePaused}) {
				s.log.Println("epaperify stream: play: already stopped")
			}
		}()
		defer func() {
			// Unblock the encoder if we stopped early.
			go func() {
				for range output {
				}
			}()
		}()

		t := time.NewTicker(s.frameDuration())
		defer t.Stop()

		hasPaused := false

		for range t.C {
			targetState := atomic.LoadUint32(&s.targetState)
			if !hasPaused && targetState == StatePaused {
				state := NewEmptyState()
				state.State = StatePaused
				state.Position = position
				state.RelativeStart = time.Now()
				if !s.UpdateState(state, []int{StatePlaying, StatePaused}) {
					s.log.Println("epaperify stream: play: state inconsistency, expected playing")
				}
				hasPaused = true
				continue
			} else if hasPaused && targetState == StatePlaying {
				state := NewEmptyState()
				state.State = StatePlaying
				state.RelativeStart = time.Now().Add(-time.Duration(position) * s.frameDuration())
				if !s.UpdateState(state, []int{StatePlaying, StatePaused}) {
					s.log.Println("epaperify stream: play: state inconsistency, expected paused")
				}
				hasPaused = false
			} else if targetState == StateStopped {
				break
			} else if hasPaused {
				continue
			}

			d, more := <-output
			if !more {
				if err := <-encodeDone; err != nil && position == 0 {
					statePlaying <- fmt.Errorf("epaperify stream: play: %w", err)
				}
				break
			}

			s.publish(&d)

			if streamID != 0 {
				if err := s.opts.Store.Append(streamID, d); err != nil {
					s.log.Println("epaperify stream: play: failed to record frame:", err)
				}
			}

			if position == 0 {
				state := NewEmptyState()
				state.RelativeStart = time.Now()
				state.State = StatePlaying
				if !s.UpdateState(state, []int{StateTransitioning}) {
					statePlaying <- errors.New("epaperify stream: play: state inconsistency, expected transitioning")
					return
				}

				statePlaying <- nil
			}

			position++
		}
	}()

	err, ok := <-statePlaying
	if !ok {
		return errors.New("epaperify stream: play: failed to load first frame")
	}

	return err
}

// PlayDirectory plays the images of a directory in name order.
func (s *StreamManager) PlayDirectory(path string) error {
	meta, paths, err := DirectorySource(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	frames := LoadFrames(ctx, paths, s.log)

	return s.PlaySource(meta, frames, ctx, cancel)
}

func (s *StreamManager) waitForStateDefaultTimeout(state int) (State, error) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(stateTimeout))
	defer cancel()

	finalState, ok := s.WaitForState(state, ctx)
	if !ok {
		return State{}, errors.New("epaperify stream: timeout waiting for desired state")
	}

	return finalState, nil
}

// Resume casually attempts to resume playback of paused media.
func (s *StreamManager) Resume() (State, error) {
	state := s.State()
	if state.State != StatePaused {
		return State{}, errors.New("epaperify stream: resume: current state must be paused to resume")
	}

	atomic.StoreUint32(&s.targetState, StatePlaying)

	return s.waitForStateDefaultTimeout(StatePlaying)
}

// Pause casually attempts to pause playback of playing media.
func (s *StreamManager) Pause() (State, error) {
	state := s.State()
	if state.State != StatePlaying {
		return State{}, errors.New("epaperify stream: pause: current state must be playing to pause")
	}

	atomic.StoreUint32(&s.targetState, StatePaused)

	return s.waitForStateDefaultTimeout(StatePaused)
}

// Stop stops the playing or paused media.
func (s *StreamManager) Stop() (State, error) {
	state := s.State()

	validState := state.State != StateStopped
	validCtx := state.Context != nil && state.Context.Err() == nil && state.Cancel != nil

	if !validState || !validCtx {
		return State{}, errors.New("epaperify stream: not in a valid state to stop")
	}

	atomic.StoreUint32(&s.targetState, StateStopped)
	state.Cancel()

	return s.waitForStateDefaultTimeout(StateStopped)
}
