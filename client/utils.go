package main

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/burntcarrot/docsync/engine"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
)

// Flags represents the command-line flags that are passed to docsync's client.
type Flags struct {
	Server string
	Secure bool
	API    string
	Doc    string
	Token  string
	File   string
	Debug  bool
}

// parseFlags parses command-line flags.
func parseFlags() Flags {
	serverAddr := flag.String("server", "localhost:8080", "The network address of the server")
	useSecureConn := flag.Bool("secure", false, "Enable a secure WebSocket connection (wss://)")
	apiURL := flag.String("api", "", "The base URL of the document API (defaults to the server address)")
	docID := flag.String("doc", "", "The ID of the document to open")
	token := flag.String("token", os.Getenv("DOCSYNC_TOKEN"), "The bearer token used for the session")
	enableDebug := flag.Bool("debug", false, "Enable debugging mode to show more verbose logs")
	file := flag.String("file", "", "The file to save the document's content to")

	flag.Parse()

	return Flags{
		Server: *serverAddr,
		Secure: *useSecureConn,
		API:    *apiURL,
		Doc:    *docID,
		Token:  *token,
		Debug:  *enableDebug,
		File:   *file,
	}
}

// endpoints returns the WebSocket endpoint and the API base URL.
func endpoints(flags Flags) (string, string) {
	ws := url.URL{Scheme: "ws", Host: flags.Server}
	api := url.URL{Scheme: "http", Host: flags.Server}
	if flags.Secure {
		ws.Scheme = "wss"
		api.Scheme = "https"
	}

	if flags.API != "" {
		return ws.String(), flags.API
	}
	return ws.String(), api.String()
}

// ensureDirExists ensures that a directory exists, and if it isn't present, it tries to create a new one.
func ensureDirExists(path string) (bool, error) {
	// Check if the directory exists
	if _, err := os.Stat(path); err == nil {
		return true, nil
	}

	// Create the directory
	err := os.Mkdir(path, 0700)
	if err != nil {
		return false, err
	}

	return true, nil
}

// setupLogger initializes the client's logger (logrus).
func setupLogger(logger *logrus.Logger) (*os.File, *os.File, error) {
	// define log file paths, based on the home directory.
	logPath := "docsync.log"
	debugLogPath := "docsync-debug.log"

	// Get the home directory.
	homeDirExists := true
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDirExists = false
	}

	docsyncDir := filepath.Join(homeDir, ".docsync")

	dirExists, err := ensureDirExists(docsyncDir)
	if err != nil {
		return nil, nil, err
	}

	// Get log paths based on the home directory.
	if dirExists && homeDirExists {
		logPath = filepath.Join(docsyncDir, "docsync.log")
		debugLogPath = filepath.Join(docsyncDir, "docsync-debug.log")
	}

	// Open the log file and create if it does not exist.
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // skipcq: GSC-G302
	if err != nil {
		fmt.Printf("Logger error, exiting: %s", err)
		return nil, nil, err
	}

	// Create a separate log file for verbose logs.
	debugLogFile, err := os.OpenFile(debugLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // skipcq: GSC-G302
	if err != nil {
		fmt.Printf("Logger error, exiting: %s", err)
		return nil, nil, err
	}

	logger.SetOutput(io.Discard)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.AddHook(&writer.Hook{
		Writer: logFile,
		LogLevels: []logrus.Level{
			logrus.WarnLevel,
			logrus.ErrorLevel,
			logrus.FatalLevel,
			logrus.PanicLevel,
		},
	})
	logger.AddHook(&writer.Hook{
		Writer: debugLogFile,
		LogLevels: []logrus.Level{
			logrus.TraceLevel,
			logrus.DebugLevel,
			logrus.InfoLevel,
		},
	})

	return logFile, debugLogFile, nil
}

// closeLogFiles closes the log files created by the client.
// closeLogFiles is meant to be used for defer calls.
func closeLogFiles(logFile, debugLogFile *os.File) {
	if err := logFile.Close(); err != nil {
		fmt.Printf("Failed to close log file: %s", err)
		return
	}

	if err := debugLogFile.Close(); err != nil {
		fmt.Printf("Failed to close debug log file: %s", err)
		return
	}
}

// statusLine formats the sync state for the editor's status bar.
func statusLine(v engine.View) string {
	title := v.Title
	if title == "" {
		title = v.DocID
	}

	line := fmt.Sprintf("%s | %s | v%d", title, v.Status, v.Version)
	if v.Pending > 0 {
		line += fmt.Sprintf(" | %d pending", v.Pending)
	}
	if v.Resyncing {
		line += " | resyncing"
	}
	return line
}

// printView "prints" the document state to the logs.
func printView(v engine.View) {
	if flags.Debug {
		logger.Debugf("---DOCUMENT STATE--- doc=%s version=%d pending=%d caret=%d content=%q", v.DocID, v.Version, v.Pending, v.Caret, v.Content)
	}
}
