package epaperify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/ioutil"
	"log"
)

// EncoderOptions configures EncodeSequence.
type EncoderOptions struct {
	Context context.Context

	// Width and Height are the size every frame is resized to.
	Width  int
	Height int
	// Fit keeps the aspect ratio of frames that do not match the target
	// size. Frames are still padded to exactly Width x Height.
	Fit bool

	Workers int
	Palette Palette
	Codec   Codec

	// KeyframeInterval is the number of frames between keyframes. 1 makes
	// every frame a keyframe.
	KeyframeInterval int

	Logger *log.Logger
}

func (e *EncoderOptions) validate() error {
	if e.Context == nil {
		return errors.New("epaperify: EncodeSequence: context must be specified")
	}
	if e.Width <= 0 {
		return errors.New("epaperify: EncodeSequence: width must be specified")
	}
	if e.Height <= 0 {
		return errors.New("epaperify: EncodeSequence: height must be specified")
	}
	if e.Width > 0xffff || e.Height > 0xffff {
		return errors.New("epaperify: EncodeSequence: width and height must be below 65536")
	}
	if e.Workers < 1 {
		return errors.New("epaperify: EncodeSequence: at least one worker is required")
	}
	if !e.Palette.Valid() {
		return errors.New("epaperify: EncodeSequence: palette must be specified")
	}
	if !e.Codec.Valid() {
		return errors.New("epaperify: EncodeSequence: unknown codec")
	}
	if e.KeyframeInterval < 1 {
		return errors.New("epaperify: EncodeSequence: keyframe interval must be at least 1")
	}
	return nil
}

func (e *EncoderOptions) logger() *log.Logger {
	if e.Logger == nil {
		return log.New(ioutil.Discard, "", 0)
	}
	return e.Logger
}

type frameOrError struct {
	frame *Frame
	err   error
}

type frameJob struct {
	img    image.Image
	output chan<- frameOrError
}

// EncodeSequence quantizes the images received on frames and sends one Delta
// per image on output, in the order the images arrived. Images are resized
// and quantized by opts.Workers goroutines; diffing against the previous
// frame happens in order on the calling goroutine.
//
// EncodeSequence returns when frames is closed and every delta has been
// sent, or when the context is done. It closes output before returning.
func EncodeSequence(frames <-chan image.Image, output chan<- Delta, opts EncoderOptions) error {
	defer close(output)

	if err := opts.validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(opts.Context)
	defer cancel()

	inbox := make(chan frameJob, opts.Workers*2)
	for i := 0; i < opts.Workers; i++ {
		go quantizeWorker(inbox, opts)
	}

	outputChan := make(chan chan frameOrError, opts.Workers*2)
	go framePump(ctx, frames, inbox, outputChan)

	// Drain the pump if we leave early so no worker blocks forever.
	defer func() {
		go func() {
			for range outputChan {
			}
		}()
	}()

	logger := opts.logger()
	dopts := DiffOptions{Channels: opts.Palette.Channels(), Codec: opts.Codec}

	var prev *Frame
	var seq uint32
	for {
		var result chan frameOrError
		var more bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, more = <-outputChan:
			if !more {
				// The pump also stops when the context is done.
				return opts.Context.Err()
			}
		}

		frame := <-result
		if frame.err != nil {
			return fmt.Errorf("epaperify: EncodeSequence: frame %d: %w", seq, frame.err)
		}

		d := Delta{
			Seq:    seq,
			Header: frame.frame.Header,
			Codec:  opts.Codec,
		}

		var err error
		if prev == nil || int(seq)%opts.KeyframeInterval == 0 {
			d.Keyframe = true
			d.Data, err = opts.Codec.Compress(frame.frame.Pix)
		} else {
			d.Data, err = Diff(frame.frame, prev, dopts)
		}
		if err != nil {
			return fmt.Errorf("epaperify: EncodeSequence: frame %d: %w", seq, err)
		}

		logger.Printf("epaperify sequence: frame %d keyframe=%v %d bytes", seq, d.Keyframe, len(d.Data))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case output <- d:
		}

		prev = frame.frame
		seq++
	}
}

func framePump(ctx context.Context, frames <-chan image.Image, inbox chan<- frameJob,
	outputChan chan<- chan frameOrError) {
	defer close(inbox)
	defer close(outputChan)

	for {
		var img image.Image
		var more bool
		select {
		case <-ctx.Done():
			return
		case img, more = <-frames:
			if !more {
				return
			}
		}

		frameOutput := make(chan frameOrError, 1)
		select {
		case <-ctx.Done():
			return
		case outputChan <- frameOutput:
		}

		inbox <- frameJob{
			img:    img,
			output: frameOutput,
		}
	}
}

func quantizeWorker(inbox <-chan frameJob, opts EncoderOptions) {
	for job := range inbox {
		img := Resize(job.img, opts.Width, opts.Height, opts.Fit)
		if opts.Fit {
			img = pad(img, opts.Width, opts.Height)
		}

		quant, err := QuantizeImage(img, opts.Palette)
		if err != nil {
			job.output <- frameOrError{err: err}
			continue
		}

		job.output <- frameOrError{frame: NewFrame(quant)}
	}
}
