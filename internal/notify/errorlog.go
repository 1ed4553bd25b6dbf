package notify

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OpenErrorLog opens the append-only failure log at path. Each failure is
// one human-readable line. The returned func closes the file.
func OpenErrorLog(path string) (*zap.Logger, func(), error) {
	sink, closeFn, err := zap.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "notify: open error log %s", path)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000 MST")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.CallerKey = zapcore.OmitKey
	encCfg.StacktraceKey = zapcore.OmitKey

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, zap.ErrorLevel)
	return zap.New(core), closeFn, nil
}
