package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/neboloop/sessionkeeper/internal/config"
	"github.com/neboloop/sessionkeeper/internal/detect"
)

// ErrHandshake is returned when neither the connected indicator nor the
// run-all fallback produces a connected runtime.
var ErrHandshake = errors.New("runtime handshake failed")

// NewDetector builds the detector used by the handshake and the health poll:
// disconnect descriptors first, then keyword matching over page text.
func NewDetector(h config.Handshake) detect.Detector {
	return detect.Chain{
		detect.ElementDetector{Disconnected: h.DisconnectDescriptors},
		detect.TextDetector{
			Connected:    h.ConnectedKeywords,
			Disconnected: h.DisconnectedKeywords,
			VisibleOnly:  h.VisibleTextOnly,
		},
	}
}

// handshake connects the notebook to its runtime. An explicit connected
// indicator is preferred; run-all is only triggered when the detector asks
// for the fallback. A disconnected or unreadable runtime fails the handshake.
func (m *Machine) handshake(ctx context.Context) error {
	h := m.cfg.Handshake

	clicked, err := m.clickFirst(ctx, h.ConnectDescriptors)
	if err != nil {
		return fmt.Errorf("%w: connect: %w", ErrHandshake, err)
	}
	if clicked != "" {
		m.log.Info("clicked connect", zap.String("descriptor", clicked))
		if err := m.clock.Sleep(ctx, h.ConnectSettle); err != nil {
			return err
		}
	}

	sig, err := m.waitConnected(ctx, h.IndicatorWait)
	if err != nil {
		return err
	}
	switch sig {
	case detect.SignalConnected:
		return nil
	case detect.SignalFallbackRequired:
	default:
		return fmt.Errorf("%w: runtime reports %s", ErrHandshake, sig)
	}

	m.log.Info("no connected indicator, trying run all")
	clicked, err = m.clickFirst(ctx, h.RunAllDescriptors)
	if err != nil {
		return fmt.Errorf("%w: run all: %w", ErrHandshake, err)
	}
	if clicked == "" {
		return fmt.Errorf("%w: no run-all control found", ErrHandshake)
	}
	m.log.Info("clicked run all", zap.String("descriptor", clicked))

	sig, err = m.waitConnected(ctx, h.RunAllWait)
	if err != nil {
		return err
	}
	if sig != detect.SignalConnected {
		return fmt.Errorf("%w: runtime reports %s after %s", ErrHandshake, sig, h.RunAllWait)
	}
	return nil
}

// clickFirst activates the first element of the first descriptor that
// matches anything and returns that descriptor, or "" when none match.
func (m *Machine) clickFirst(ctx context.Context, descriptors []string) (string, error) {
	for _, desc := range descriptors {
		els, err := m.cap.FindByDescriptor(ctx, desc)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			m.log.Debug("descriptor lookup failed", zap.String("descriptor", desc), zap.Error(err))
			continue
		}
		if len(els) == 0 {
			continue
		}
		if err := m.cap.Activate(ctx, els[0]); err != nil {
			return "", fmt.Errorf("activate %s: %w", els[0].Describe(), err)
		}
		return desc, nil
	}
	return "", nil
}

// waitConnected polls the detector until it reports connected or wait
// elapses, and returns the last verdict. A failed read counts as unknown.
func (m *Machine) waitConnected(ctx context.Context, wait time.Duration) (detect.Signal, error) {
	poll := m.cfg.Handshake.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	deadline := m.clock.Now().Add(wait)
	for {
		sig, err := m.detector.Detect(ctx, m.cap)
		switch {
		case ctx.Err() != nil:
			return detect.SignalUnknown, ctx.Err()
		case err != nil:
			m.log.Debug("indicator check failed", zap.Error(err))
			sig = detect.SignalUnknown
		case sig == detect.SignalConnected:
			return sig, nil
		}

		remaining := deadline.Sub(m.clock.Now())
		if remaining <= 0 {
			return sig, nil
		}
		if err := m.clock.Sleep(ctx, min(poll, remaining)); err != nil {
			return detect.SignalUnknown, err
		}
	}
}
