package logger

import (
	"log"
	"os"
)

var (
	InfoLogger  *log.Logger
	WarnLogger  *log.Logger
	ErrorLogger *log.Logger
	logFile     *os.File
)

// Init creates or truncates the log file and wires the three level loggers
// to it.
func Init(logFilePath string) error {
	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}

	InfoLogger = log.New(logFile, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	WarnLogger = log.New(logFile, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLogger = log.New(logFile, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	return nil
}

// RotateLog starts a fresh log file and repoints the loggers at it.
func RotateLog(logFilePath string) error {
	if logFile != nil {
		logFile.Close()
	}

	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}

	InfoLogger.SetOutput(logFile)
	WarnLogger.SetOutput(logFile)
	ErrorLogger.SetOutput(logFile)

	return nil
}

// Cleanup closes the log file when the application is done using it.
func Cleanup() {
	if logFile != nil {
		logFile.Close()
	}
}

// Info logs an informational message to the log file.
func Info(v ...interface{}) {
	InfoLogger.Println(v...)
}

// Warn logs a non-fatal problem, such as bookkeeping that failed after a
// broadcast already went out.
func Warn(v ...interface{}) {
	WarnLogger.Println(v...)
}

// Error logs an error message to the log file.
func Error(v ...interface{}) {
	ErrorLogger.Println(v...)
}
