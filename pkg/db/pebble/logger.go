package pebble

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/objstore/pkg/log"
)

// engineLogger sends pebble's own messages to the engine logger instead of
// stdout. Routine messages such as WAL replay are logged at debug level.
type engineLogger struct{}

var _ pebble.Logger = engineLogger{}

func (engineLogger) Infof(format string, args ...any) {
	log.Engine.Debug().Str("source", "pebble").Msgf(format, args...)
}

// Fatalf logs and panics. pebble does not expect it to return.
func (engineLogger) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Engine.Error().Str("source", "pebble").Msg(msg)
	panic(msg)
}
