// Package logging routes the standard logger to a size-rotated file.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/fatih/color"
)

const (
	// FileName is the main log file inside the log directory.
	FileName = "mangadl.log"

	MaxSize    = 1024 * 1024
	MaxBackups = 10
)

// Path returns the location of the main log file for dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Setup points the standard logger at dir/mangadl.log. With verbose set the
// output is mirrored to stderr. The returned closer releases the file.
func Setup(dir string, verbose bool) (io.Closer, error) {
	w, err := NewRotatingWriter(Path(dir), MaxSize, MaxBackups)
	if err != nil {
		return nil, err
	}

	var out io.Writer = w
	if verbose {
		out = io.MultiWriter(w, os.Stderr)
	}

	log.SetOutput(out)
	log.SetFlags(log.LstdFlags)
	log.Printf("[Logging] Writing to %s", w.Path())

	return w, nil
}

var (
	infoColor    = color.New(color.FgCyan)
	successColor = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// Info prints a status line to stdout.
func Info(format string, args ...any) {
	infoColor.Fprintln(color.Output, fmt.Sprintf(format, args...))
}

func Success(format string, args ...any) {
	successColor.Fprintln(color.Output, fmt.Sprintf(format, args...))
}

func Warn(format string, args ...any) {
	warnColor.Fprintln(color.Error, fmt.Sprintf(format, args...))
}

// Error prints to stderr in red.
func Error(format string, args ...any) {
	errorColor.Fprintln(color.Error, fmt.Sprintf(format, args...))
}
