package logging

import (
	"fmt"

	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

type waLogger struct {
	log *zap.Logger
}

// WhatsmeowLogger adapts a zap logger to whatsmeow's logging interface.
func WhatsmeowLogger(log *zap.Logger, module string) waLog.Logger {
	return &waLogger{log: log.With(zap.String("module", module))}
}

func (l *waLogger) Debugf(msg string, args ...any) { l.log.Debug(fmt.Sprintf(msg, args...)) }
func (l *waLogger) Infof(msg string, args ...any)  { l.log.Info(fmt.Sprintf(msg, args...)) }
func (l *waLogger) Warnf(msg string, args ...any)  { l.log.Warn(fmt.Sprintf(msg, args...)) }
func (l *waLogger) Errorf(msg string, args ...any) { l.log.Error(fmt.Sprintf(msg, args...)) }

func (l *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{log: l.log.With(zap.String("sub", module))}
}
