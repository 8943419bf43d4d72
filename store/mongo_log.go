package store

import (
	"fmt"
	"strings"

	"github.com/agentuity/go-doccache/logger"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLogSink forwards MongoDB driver log messages to a Logger. Install it
// with options.Client().SetLoggerOptions(options.Logger().SetSink(...)).
type MongoLogSink struct {
	log logger.Logger
}

var _ options.LogSink = (*MongoLogSink)(nil)

// NewMongoLogSink returns a driver log sink writing to log.
func NewMongoLogSink(log logger.Logger) *MongoLogSink {
	return &MongoLogSink{log: log.WithPrefix("[mongo]")}
}

func formatKV(message string, keysAndValues []interface{}) string {
	if len(keysAndValues) == 0 {
		return message
	}
	var sb strings.Builder
	sb.WriteString(message)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return sb.String()
}

func (s *MongoLogSink) Info(level int, message string, keysAndValues ...interface{}) {
	msg := formatKV(message, keysAndValues)
	if level <= int(options.LogLevelInfo) {
		s.log.Debug("%s", msg)
		return
	}
	s.log.Trace("%s", msg)
}

func (s *MongoLogSink) Error(err error, message string, keysAndValues ...interface{}) {
	s.log.Error("%s: %v", formatKV(message, keysAndValues), err)
}
