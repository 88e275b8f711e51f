// Package logging writes run events to an append-only log file and status lines to the console.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

var (
	mu      sync.Mutex
	logFile *os.File
	runID   = uuid.NewString()

	infoColor  = color.New(color.FgCyan)
	errorColor = color.New(color.FgRed)

	consoleMu sync.Mutex
	console   io.Writer = os.Stderr
)

// Init directs the standard logger at logPath, opened for append. Each line carries the
// run id. Extra writers (stderr in debug mode) receive a copy of every line.
func Init(logPath string, mirrors ...io.Writer) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix(fmt.Sprintf("run=%s ", ShortRunID()))

	var writers []io.Writer
	for _, w := range mirrors {
		if w != nil {
			writers = append(writers, w)
		}
	}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	if len(writers) == 0 {
		log.SetOutput(io.Discard)
		return nil
	}
	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// Close flushes and releases the log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// RunID identifies the current process in every log line.
func RunID() string {
	return runID
}

// ShortRunID is the first segment of RunID.
func ShortRunID() string {
	if i := strings.IndexByte(runID, '-'); i > 0 {
		return runID[:i]
	}
	return runID
}

// LogEvent writes one untagged line to the run log.
func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// Info records an informational event.
func Info(format string, args ...any) {
	LogEvent("[INFO] %s", fmt.Sprintf(format, args...))
}

// Error records a failure. A nil err logs the message alone.
func Error(err error, format string, args ...any) {
	LogEvent("[ERROR] %s", errorMessage(err, format, args...))
}

func errorMessage(err error, format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return msg
}

// SetConsole sends status lines to w and returns a func that restores the previous writer.
func SetConsole(w io.Writer) func() {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	prev := console
	console = w
	return func() {
		consoleMu.Lock()
		console = prev
		consoleMu.Unlock()
	}
}

func consoleWriter() io.Writer {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	return console
}

// Status records an informational event and shows it on the console.
func Status(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	Info("%s", msg)
	Console(consoleWriter(), msg, false)
}

// StatusError records a failure and shows the message, without err, on the console.
func StatusError(err error, format string, args ...any) {
	Error(err, format, args...)
	ConsoleError(consoleWriter(), fmt.Sprintf(format, args...), false)
}

// InfoPayload records label followed by payload, JSON-encoded where possible.
func InfoPayload(label string, payload any) {
	Info("%s %s", label, formatPayload(payload))
}

// Console prints a status line to out. newline inserts a blank line first.
func Console(out io.Writer, msg string, newline bool) {
	if newline {
		fmt.Fprintln(out)
	}
	infoColor.Fprintln(out, msg)
}

// ConsoleError prints a failure line to out.
func ConsoleError(out io.Writer, msg string, newline bool) {
	if newline {
		fmt.Fprintln(out)
	}
	errorColor.Fprintln(out, msg)
}

// LogRequest records HTTP traffic between ragask and a model server.
func LogRequest(direction, host, model, tool string, payload any) {
	msg := buildRequestMessage(direction, host, model, tool, payload)
	log.Println(msg)
}

func buildRequestMessage(direction, host, model, tool string, payload any) string {
	dir := strings.TrimSpace(direction)
	if dir != "" {
		dir = strings.ToUpper(dir)
	}
	hostValue := strings.TrimSpace(host)
	if hostValue == "" {
		hostValue = "unknown"
	}
	modelValue := strings.TrimSpace(model)
	if modelValue == "" {
		modelValue = "unknown"
	}
	parts := []string{fmt.Sprintf("[%s]", dir)}
	parts = append(parts, fmt.Sprintf("host=%s", hostValue))
	parts = append(parts, fmt.Sprintf("model=%s", modelValue))
	if tool = strings.TrimSpace(tool); tool != "" {
		parts = append(parts, fmt.Sprintf("tool=%s", tool))
	}
	parts = append(parts, fmt.Sprintf("payload=%s", formatPayload(payload)))
	return strings.Join(parts, " ")
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
