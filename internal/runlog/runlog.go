// Package runlog builds the logger of a batch run: a JSON file inside
// the run folder capturing everything, teed with a console sink whose
// level follows the verbose flag.
package runlog

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New opens the run log file and returns the teed logger plus a closer
// flushing both sinks.
func New(logFile string, verbose bool) (*zap.Logger, func(), error) {
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "unable to open log file %s", logFile)
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(file),
		zapcore.DebugLevel,
	)
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(os.Stderr),
		consoleLevel(verbose),
	)

	log := zap.New(zapcore.NewTee(fileCore, consoleCore))
	closer := func() {
		_ = log.Sync()
		_ = file.Close()
	}
	return log, closer, nil
}

// consoleLevel keeps the console quiet unless verbose; the file sink
// captures everything regardless.
func consoleLevel(verbose bool) zapcore.Level {
	if verbose {
		return zapcore.DebugLevel
	}
	return zapcore.ErrorLevel
}
