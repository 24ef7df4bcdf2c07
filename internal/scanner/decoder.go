package scanner

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// ~10 fps frame sampling.
	DefaultFrameInterval = 100 * time.Millisecond
	// Same-text emissions are suppressed while the code stays in frame.
	DefaultCooldown = 2 * time.Second
)

// Scan is one emission from the decode loop: raw scanned text, exactly
// once per physical presentation of a code.
type Scan struct {
	Text string
	At   time.Time
}

// Decoder runs a single-threaded cooperative frame loop over one
// camera. It owns the camera from Open until Close; no overlapping
// decode attempts happen on one device.
type Decoder struct {
	cam      Camera
	interval time.Duration
	cooldown time.Duration

	lastText string
	lastSeen time.Time

	releaseOnce sync.Once
	releaseErr  error

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Open acquires a camera from the source and returns a decoder bound
// to it. The caller must Close the decoder on every exit path.
func Open(ctx context.Context, src CameraSource, interval, cooldown time.Duration) (*Decoder, error) {
	cam, err := src.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return NewDecoder(cam, interval, cooldown), nil
}

// NewDecoder wraps an already-acquired camera. Ownership of the camera
// transfers to the decoder.
func NewDecoder(cam Camera, interval, cooldown time.Duration) *Decoder {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Decoder{
		cam:      cam,
		interval: interval,
		cooldown: cooldown,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Next blocks until the camera decodes a new presentation of a code,
// then returns it. Frames with no code are skipped silently. A decode
// of the same text within the cooldown window refreshes the window and
// is not re-emitted, so a code held in front of the camera produces
// one Scan, not ten per second. Hard camera failures are returned to
// the caller; the decoder stays usable if the caller wants to retry.
func (d *Decoder) Next(ctx context.Context) (*Scan, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, err := d.cam.DecodeFrame(ctx)
		if err != nil {
			if errors.Is(err, ErrNoCode) {
				if err := d.sleep(ctx, d.interval); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		now := d.now()
		if text == d.lastText && now.Sub(d.lastSeen) < d.cooldown {
			// Still in frame: keep suppressing until it leaves.
			d.lastSeen = now
			if err := d.sleep(ctx, d.interval); err != nil {
				return nil, err
			}
			continue
		}

		d.lastText = text
		d.lastSeen = now
		return &Scan{Text: text, At: now}, nil
	}
}

// Close releases the camera. Safe to call more than once and from
// deferred teardown paths.
func (d *Decoder) Close() error {
	d.releaseOnce.Do(func() {
		d.releaseErr = d.cam.Release()
	})
	return d.releaseErr
}

func sleepCtx(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
