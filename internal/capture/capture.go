// Package capture reads raw audio from PipeWire devices and normalizes
// it into fixed-length mono frames at the pipeline sample rate.
//
// Each Source owns one pw-record subprocess and one goroutine. The
// microphone source is mandatory; the system-loopback source (a PipeWire
// monitor target) is optional and is captured at its native rate, then
// downmixed, resampled to the pipeline frame length and high-pass
// filtered like the mic path.
package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gmarchesi/verbatim/internal/dsp"
)

// Frame is one normalized audio frame: mono float32 samples at the
// pipeline sample rate, exactly the configured chunk size long.
type Frame struct {
	Samples   []float32
	Timestamp time.Time
}

// Config describes one capture source.
type Config struct {
	Name       string // "mic" or "loopback", used in logs
	Device     string // pw-record --target; empty selects the default
	Channels   int
	SampleRate int // pipeline target rate

	// CaptureRate is the rate the device is opened at. When it differs
	// from SampleRate the source resamples every frame down to ChunkSize
	// samples. Zero means capture at SampleRate directly.
	CaptureRate int

	// ChunkSize is the normalized frame length in samples.
	ChunkSize int

	// HighPassCutoff in Hz; zero disables the filter.
	HighPassCutoff float64

	ChannelBufferSize int
	RetryDelay        time.Duration
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", c.Channels)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("invalid ChunkSize: %d", c.ChunkSize)
	}
	if c.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", c.ChannelBufferSize)
	}
	return nil
}

// Source captures from a single device.
type Source struct {
	config  Config
	running atomic.Bool

	mu     sync.Mutex // guards cancel
	cancel context.CancelFunc

	wg sync.WaitGroup
}

func NewSource(config Config) *Source {
	if config.CaptureRate == 0 {
		config.CaptureRate = config.SampleRate
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}
	return &Source{config: config}
}

func (s *Source) IsRunning() bool {
	return s.running.Load()
}

// Start launches the capture loop. The returned frame channel is closed
// when the loop exits; that closure is the stream's end-of-stream signal.
func (s *Source) Start(ctx context.Context) (<-chan Frame, <-chan error, error) {
	if s.running.Load() {
		return nil, nil, fmt.Errorf("already capturing")
	}
	if err := s.config.validate(); err != nil {
		return nil, nil, err
	}
	if err := CheckPipeWireAvailable(ctx); err != nil {
		return nil, nil, fmt.Errorf("PipeWire not available: %w", err)
	}

	captureCtx, cancel := context.WithCancel(ctx)

	frameCh := make(chan Frame, s.config.ChannelBufferSize)
	errCh := make(chan error, 1)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.running.Store(true)
	s.wg.Add(1)
	go s.captureLoop(captureCtx, frameCh, errCh)

	return frameCh, errCh, nil
}

func (s *Source) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Source) Wait() {
	s.wg.Wait()
}

// captureLoop keeps a pw-record subprocess alive until the context is
// cancelled. Device errors are logged and the subprocess is restarted
// after a short delay; they never tear the stream down on their own.
func (s *Source) captureLoop(ctx context.Context, frameCh chan<- Frame, errCh chan<- error) {
	defer func() {
		close(frameCh)
		close(errCh)
		s.running.Store(false)
		s.wg.Done()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.runOnce(ctx, frameCh); err != nil && ctx.Err() == nil {
			log.Printf("Capture[%s]: device error: %v (retrying in %v)",
				s.config.Name, err, s.config.RetryDelay)
			s.emitErr(errCh, err)
			select {
			case <-time.After(s.config.RetryDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// runOnce spawns one pw-record process and reads frames until it dies or
// the context is cancelled.
func (s *Source) runOnce(ctx context.Context, frameCh chan<- Frame) error {
	args := s.buildPwRecordArgs()
	cmd := exec.CommandContext(ctx, "pw-record", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pw-record: %w", err)
	}
	defer cmd.Wait()

	// Proportional chunk at the capture rate so one read spans the same
	// wall-clock time as one pipeline frame.
	nativeChunk := s.config.ChunkSize * s.config.CaptureRate / s.config.SampleRate
	readBytes := nativeChunk * s.config.Channels * 4
	buf := make([]byte, readBytes)

	var highpass *dsp.HighPass
	if s.config.HighPassCutoff > 0 {
		highpass = dsp.NewHighPass(s.config.SampleRate, s.config.HighPassCutoff)
	}

	log.Printf("Capture[%s]: started: device=%q channels=%d capture_rate=%d native_chunk=%d",
		s.config.Name, s.config.Device, s.config.Channels, s.config.CaptureRate, nativeChunk)

	frameCount := 0
	for {
		if _, err := io.ReadFull(stdout, buf); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read audio: %w", err)
		}

		frame := s.normalize(buf, highpass)
		frameCount++
		if frameCount%500 == 1 {
			log.Printf("Capture[%s]: frame #%d, level=%.4f, queued=%d",
				s.config.Name, frameCount, peak(frame), len(frameCh))
		}

		select {
		case frameCh <- Frame{Samples: frame, Timestamp: time.Now()}:
		case <-ctx.Done():
			return nil
		}
	}
}

// normalize decodes f32le bytes, downmixes to mono, resamples to the
// pipeline frame length and applies the high-pass filter.
func (s *Source) normalize(raw []byte, highpass *dsp.HighPass) []float32 {
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}

	samples = dsp.Downmix(samples, s.config.Channels)
	if len(samples) != s.config.ChunkSize {
		samples = dsp.Resample(samples, s.config.ChunkSize)
	}
	if highpass != nil {
		samples = highpass.Process(samples)
	}
	return samples
}

func (s *Source) emitErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
		// best effort, the log line above already recorded it
	}
}

func (s *Source) buildPwRecordArgs() []string {
	args := []string{
		"--format", "f32",
		"--rate", strconv.Itoa(s.config.CaptureRate),
		"--channels", strconv.Itoa(s.config.Channels),
	}
	if s.config.Device != "" {
		args = append(args, "--target", s.config.Device)
	}
	args = append(args, "-") // stdout
	return args
}

func peak(frame []float32) float64 {
	var max float32
	for _, s := range frame {
		if s < 0 {
			s = -s
		}
		if s > max {
			max = s
		}
	}
	return float64(max)
}

// CheckPipeWireAvailable verifies pw-record exists and PipeWire responds.
func CheckPipeWireAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(checkCtx, "pw-cli", "info")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}
