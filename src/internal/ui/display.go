package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
	Bold   = "\033[1m"
)

var (
	mu sync.Mutex
	// Status receives the Log* lines. Stdout stays free for command output.
	Status io.Writer = os.Stderr
)

const Version = "1.0.0"

func PrintBanner(w io.Writer) {
	banner := `
  __                _             _ _ _
 / _| __ _  ___ ___| |_ ___ _ __ | (_) |_
| |_ / _` + "`" + ` |/ __/ _ \ __/ __| '_ \| | | __|
|  _| (_| | (_|  __/ |_\__ \ |_) | | | |_
|_|  \__,_|\___\___|\__|___/ .__/|_|_|\__|
                           |_|
`
	fmt.Fprintln(w, Cyan+banner+Reset)
	fmt.Fprintln(w, Gray+"  v"+Version+" - Facet splitting and route proofs for EVM contracts"+Reset)
	fmt.Fprintln(w)
}

func clearLine(w io.Writer) {
	fmt.Fprint(w, "\r\033[K")
}

func logLine(color, tag, format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	clearLine(Status)
	fmt.Fprintf(Status, color+tag+" "+Reset+format+"\n", a...)
}

func LogSuccess(format string, a ...interface{}) {
	logLine(Green, "[SUCCESS]", format, a...)
}

func LogInfo(format string, a ...interface{}) {
	logLine(Blue, "[INFO]", format, a...)
}

func LogWarn(format string, a ...interface{}) {
	logLine(Yellow, "[WARN]", format, a...)
}

func LogError(format string, a ...interface{}) {
	logLine(Red, "[ERROR]", format, a...)
}

// PrintStats writes the closing summary of a multi-file run.
func PrintStats(w io.Writer, total, valid, failed, findings int, duration time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, Gray+strings.Repeat("─", 50)+Reset)
	fmt.Fprintf(w, "🏁 Completed in %s\n", duration.Round(time.Millisecond))
	fmt.Fprintf(w, "📊 Total: %d | ✅ Valid: %d | ❌ Failed: %d | 🛡️  Findings: %d\n", total, valid, failed, findings)
	fmt.Fprintln(w, Gray+strings.Repeat("─", 50)+Reset)
}
