// Package logger provides structured, component-scoped logging for mediamirror.
//
// Features:
//   - Multiple log levels (TRACE, DEBUG, INFO, WARN, ERROR)
//   - Component-based filtering
//   - Text, JSON and color output
//   - Size/age based file rotation with gzip backups
//   - Configuration from JSON/YAML files or MEDIAMIRROR_LOG_* variables
//
// Usage:
//
//	log := logger.WithComponent(logger.ComponentSegment)
//	log.Info("segment written", logger.Fields{
//		"index": 3,
//		"bytes": 524288,
//	})
//
//	cfg := logger.EnvironmentConfig(nil)
//	l, closer, err := logger.CreateLoggerWithRotation(cfg)
//	if err == nil {
//		defer closer.Close()
//		logger.SetGlobalLogger(l)
//	}
//
// Components:
//   - ComponentApp: orchestration and CLI
//   - ComponentManifest: manifest retrieval and decoding
//   - ComponentRendition: rendition selection
//   - ComponentSegment: track reconstruction
//   - ComponentMux: track multiplexing
//   - ComponentDownloader: direct downloads
//   - ComponentClient: HTTP client retries
package logger
