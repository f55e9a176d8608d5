package nakama

import (
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// runtimeWriter feeds zap's encoded lines into nakama's logger
type runtimeWriter struct {
	logger runtime.Logger
}

func (w runtimeWriter) Write(p []byte) (int, error) {
	w.logger.Info("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (w runtimeWriter) Sync() error {
	return nil
}

// newZapLogger lets the engine log through nakama's runtime logger
func newZapLogger(logger runtime.Logger, level zapcore.Level) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, runtimeWriter{logger}, level))
}
