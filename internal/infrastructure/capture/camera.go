package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"arcast/internal/core/domain"
	"arcast/internal/core/ports"
	"arcast/pkg/optimize"
)

// keyframeInterval is how many synthetic frames pass between IDR units.
const keyframeInterval = 30

// TestPatternCamera is the in-tree camera driver: it synthesizes frames at
// the requested cadence instead of reading a device. In H.264 mode it emits
// structurally valid Annex-B access units (SPS/PPS ahead of every IDR) so
// the whole encoded video path can run without real hardware; in I420 mode
// it emits a moving luma gradient for the raw-pixel path.
type TestPatternCamera struct {
	format   domain.PixelFormat
	rotation domain.Rotation
	logger   *zap.SugaredLogger

	forceIDR atomic.Bool

	mu     sync.Mutex
	stream *patternStream
}

func NewTestPatternCamera(format domain.PixelFormat, rotation domain.Rotation, logger *zap.SugaredLogger) *TestPatternCamera {
	return &TestPatternCamera{
		format:   format,
		rotation: rotation,
		logger:   logger,
	}
}

// Open starts frame synthesis. Only one stream may be live at a time.
func (c *TestPatternCamera) Open(ctx context.Context, profile domain.CaptureProfile) (ports.CameraStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return nil, domain.ErrCameraBusy
	}

	frameRate := profile.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}

	s := &patternStream{
		camera:  c,
		profile: profile,
		frames:  make(chan *domain.MediaFrame, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		epoch:   time.Now(),
	}
	if c.format != domain.PixelFormatH264 {
		s.pixels = optimize.NewBytePool(profile.Width * profile.Height * 3 / 2)
	}
	c.stream = s

	c.logger.Infow("test pattern capture started",
		"format", c.format.String(),
		"width", profile.Width, "height", profile.Height, "frame_rate", frameRate)

	go s.generate(time.Second / time.Duration(frameRate))
	return s, nil
}

// ForceKeyframe makes the next synthesized access unit an IDR. No-op in
// raw pixel mode.
func (c *TestPatternCamera) ForceKeyframe() {
	c.forceIDR.Store(true)
}

func (c *TestPatternCamera) release(s *patternStream) {
	c.mu.Lock()
	if c.stream == s {
		c.stream = nil
	}
	c.mu.Unlock()
}

type patternStream struct {
	camera  *TestPatternCamera
	profile domain.CaptureProfile
	frames  chan *domain.MediaFrame
	pixels  *optimize.BytePool // raw mode only; H.264 units vary in size
	stop    chan struct{}
	done    chan struct{}
	epoch   time.Time
	once    sync.Once
}

func (s *patternStream) Frames() <-chan *domain.MediaFrame {
	return s.frames
}

// Err always returns nil: a synthetic stream only ends on Close.
func (s *patternStream) Err() error {
	return nil
}

func (s *patternStream) Close() error {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		s.camera.release(s)
	})
	return nil
}

func (s *patternStream) generate(interval time.Duration) {
	defer close(s.done)
	defer close(s.frames)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		frame := s.synthesize(seq)
		seq++

		// The consumer side is a drop-oldest queue; if it has not taken
		// the previous frame yet, replace it.
		select {
		case s.frames <- frame:
		default:
			select {
			case old := <-s.frames:
				old.Release()
			default:
			}
			select {
			case s.frames <- frame:
			default:
				frame.Release()
			}
		}
	}
}

func (s *patternStream) synthesize(seq int) *domain.MediaFrame {
	timestamp := time.Since(s.epoch).Nanoseconds()
	if s.camera.format == domain.PixelFormatH264 {
		keyframe := seq%keyframeInterval == 0 || s.camera.forceIDR.Swap(false)
		return domain.NewMediaFrame(
			synthesizeAccessUnit(seq, keyframe),
			domain.PixelFormatH264,
			s.profile.Width, s.profile.Height,
			s.camera.rotation, timestamp, nil,
		)
	}
	buf := s.pixels.Get()
	renderI420(buf, s.profile.Width, s.profile.Height, seq)
	return domain.NewMediaFrame(
		buf,
		domain.PixelFormatI420,
		s.profile.Width, s.profile.Height,
		s.camera.rotation, timestamp, func() { s.pixels.Put(buf) },
	)
}

var (
	testSPS = []byte{0x67, 0x42, 0x00, 0x1f, 0xe9, 0x02, 0xc1, 0x2c, 0x80}
	testPPS = []byte{0x68, 0xce, 0x06, 0xe2}
)

// synthesizeAccessUnit builds an Annex-B unit with a recognizable slice
// payload. Keyframes carry SPS and PPS ahead of the IDR slice.
func synthesizeAccessUnit(seq int, keyframe bool) []byte {
	startCode := []byte{0x00, 0x00, 0x00, 0x01}

	slice := make([]byte, 64)
	if keyframe {
		slice[0] = 0x65 // IDR, NRI 3
	} else {
		slice[0] = 0x41 // non-IDR, NRI 2
	}
	for i := 1; i < len(slice); i++ {
		slice[i] = byte((seq + i) % 251)
	}

	var au []byte
	if keyframe {
		au = append(au, startCode...)
		au = append(au, testSPS...)
		au = append(au, startCode...)
		au = append(au, testPPS...)
	}
	au = append(au, startCode...)
	au = append(au, slice...)
	return au
}

// renderI420 paints a diagonal gradient that shifts every frame into a
// pooled buffer sized for the stream's profile.
func renderI420(buf []byte, width, height, seq int) {
	lumaSize := width * height

	for y := 0; y < height; y++ {
		row := buf[y*width : (y+1)*width]
		for x := range row {
			row[x] = byte(x + y + seq*4)
		}
	}
	for i := lumaSize; i < len(buf); i++ {
		buf[i] = 0x80
	}
}
