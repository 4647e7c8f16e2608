package logging

import (
	"fmt"
	"log"
	"os"
	"sync"
)

var (
	instanceID     string
	instanceIDOnce sync.Once

	// Async logging channel and worker
	logChan   chan string
	logWorker sync.Once
	logWg     sync.WaitGroup
	logMu     sync.Mutex
)

// initLogWorker starts the async log worker goroutine
func initLogWorker() {
	logMu.Lock()
	defer logMu.Unlock()

	logWorker.Do(func() {
		// Buffered so the request path never blocks on logging.
		logChan = make(chan string, 1000)

		logWg.Add(1)
		go func() {
			defer logWg.Done()
			for msg := range logChan {
				log.Print(msg)
			}
		}()
	})
}

// GetInstanceID returns the unique instance ID for this proxy process
func GetInstanceID() string {
	instanceIDOnce.Do(func() {
		// Try PROXY_ID first (allows a fixed ID), then POD_NAME, then HOSTNAME
		instanceID = os.Getenv("PROXY_ID")
		if instanceID == "" {
			instanceID = os.Getenv("POD_NAME")
		}
		if instanceID == "" {
			instanceID = os.Getenv("HOSTNAME")
		}
		if instanceID == "" {
			hostname, _ := os.Hostname()
			if hostname != "" {
				if len(hostname) > 8 {
					instanceID = hostname[len(hostname)-8:]
				} else {
					instanceID = hostname
				}
			} else {
				instanceID = "unknown"
			}
		}
	})
	return instanceID
}

// Logf logs a formatted message with the instance ID prefix (async, non-blocking)
func Logf(format string, v ...interface{}) {
	initLogWorker()
	msg := fmt.Sprintf(format, v...)
	logMsg := fmt.Sprintf("[proxy=%s] %s", GetInstanceID(), msg)

	// Non-blocking send: if the channel is full, fall back to sync logging
	select {
	case logChan <- logMsg:
	default:
		log.Print(logMsg)
	}
}

// Log logs a message with the instance ID prefix (async, non-blocking)
func Log(v ...interface{}) {
	initLogWorker()
	msg := fmt.Sprint(v...)
	logMsg := fmt.Sprintf("[proxy=%s] %s", GetInstanceID(), msg)

	select {
	case logChan <- logMsg:
	default:
		log.Print(logMsg)
	}
}

// Fatalf logs a fatal error with the instance ID prefix and exits (synchronous)
func Fatalf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	log.Fatalf("[proxy=%s] %s", GetInstanceID(), msg)
}

// Flush waits for all pending log messages to be written
func Flush() {
	logMu.Lock()
	defer logMu.Unlock()

	if logChan != nil {
		close(logChan)
		logWg.Wait()
		logChan = nil
		logWorker = sync.Once{}
	}
}
