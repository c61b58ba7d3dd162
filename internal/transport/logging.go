// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"

	applog "lumen/internal/log"
)

// LoggingTransport implements the Transport interface by logging data.
// Frames go to the debug level, events to info.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	if ev, ok := data.(Event); ok {
		applog.Infof("LoggingTransport: %s %d", ev.Name, ev.Count)
		return nil
	}
	if applog.GetLevel() > applog.LevelDebug {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		applog.Debugf("LoggingTransport: (%T) %+v (marshal error: %v)", data, data, err)
		return nil
	}
	applog.Debugf("LoggingTransport: %s", jsonData)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LoggingTransport: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
