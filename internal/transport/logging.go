package transport

import (
	"fmt"

	"tracktweak/internal/log"
)

// LoggingTransport implements the Transport interface by logging a one-line
// summary of every meter frame. It is the headless display.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs frames at info level and anything else at debug level.
func (lt *LoggingTransport) Send(data any) error {
	frame, ok := data.(*Frame)
	if !ok {
		log.Debugf("LOG_TRANSPORT: Received (%T): %+v", data, data)
		return nil
	}
	log.Infof("level %s  M %s  S %s  I %s LUFS  [%s]",
		formatReading(frame.Level, "%.3f"),
		formatReading(frame.Momentary, "%6.1f"),
		formatReading(frame.ShortTerm, "%6.1f"),
		formatReading(frame.Integrated, "%6.1f"),
		frame.Zone)
	return nil // Logging transport never fails to "send"
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)

// formatReading renders a frame reading, or "--" when it carried no valid data.
func formatReading(v *float64, format string) string {
	if v == nil {
		return "--"
	}
	return fmt.Sprintf(format, *v)
}
