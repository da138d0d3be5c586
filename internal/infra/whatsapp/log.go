package whatsapp

import (
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"

	"github.com/tiendademo/whatsapp-agent/pkg/logger"
)

// zapLogger adapts whatsmeow's logging interface onto zap
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewLogger returns a waLog.Logger writing to l
func NewLogger(l *logger.Logger) waLog.Logger {
	return &zapLogger{s: logger.OrGlobal(l).Sugar()}
}

func (z *zapLogger) Warnf(msg string, args ...interface{})  { z.s.Warnf(msg, args...) }
func (z *zapLogger) Errorf(msg string, args ...interface{}) { z.s.Errorf(msg, args...) }
func (z *zapLogger) Infof(msg string, args ...interface{})  { z.s.Infof(msg, args...) }
func (z *zapLogger) Debugf(msg string, args ...interface{}) { z.s.Debugf(msg, args...) }

func (z *zapLogger) Sub(module string) waLog.Logger {
	return &zapLogger{s: z.s.Named(module)}
}
