package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.SugaredLogger
}

type Config struct {
	LogLevel    string
	DevMode     bool
	ServiceName string
}

func NewLogger(config Config) (*Logger, error) {
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.Config{
		Encoding:         "json",
		Level:            zap.NewAtomicLevelAt(level),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    zap.NewProductionEncoderConfig(),
	}

	if config.DevMode {
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	if config.ServiceName != "" {
		zapLogger = zapLogger.With(zap.String("service", config.ServiceName))
	}

	sugar := zapLogger.Sugar()
	return &Logger{sugar}, nil
}

// NewNop returns a logger that discards everything. Used as the default for
// components constructed without one.
func NewNop() *Logger {
	return &Logger{zap.NewNop().Sugar()}
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{l.SugaredLogger.Named(name)}
}

func (l *Logger) Sync() error {
	return l.SugaredLogger.Sync()
}
