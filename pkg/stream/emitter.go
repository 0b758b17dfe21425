package stream

import (
	"errors"
	"fmt"

	"github.com/aretw0/tendril/pkg/domain"
)

// Emit writes envelopes to ch in order and closes ch after the last one.
// The last envelope must be the only terminal one when more than one is written.
// On a write failure ch is still closed; the write error is returned.
func Emit(ch Channel, envelopes ...domain.ProtocolEnvelope) error {
	for i, env := range envelopes {
		if i < len(envelopes)-1 && env.Terminal() {
			return fmt.Errorf("envelope %d of %d is terminal", i+1, len(envelopes))
		}
	}
	for _, env := range envelopes {
		if err := ch.Write(env); err != nil {
			return errors.Join(err, closeQuietly(ch))
		}
	}
	return ch.Close()
}

func closeQuietly(ch Channel) error {
	if err := ch.Close(); err != nil && !errors.Is(err, domain.ErrChannelClosed) {
		return err
	}
	return nil
}
