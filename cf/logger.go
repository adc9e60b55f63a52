package cf

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mangadl/logging"
)

const (
	maxLogSize    = 10 * 1024 * 1024
	maxLogFiles   = 3
	cfLogFileName = "cfDebug.log"
)

var (
	cfLogMutex  sync.Mutex
	cfLogger    *log.Logger
	cfLogWriter *logging.RotatingWriter
)

// InitCFLogger opens the Cloudflare debug log in dir. Until it is called
// the diagnostics are discarded.
func InitCFLogger(dir string) error {
	w, err := logging.NewRotatingWriter(filepath.Join(dir, cfLogFileName), maxLogSize, maxLogFiles)
	if err != nil {
		return fmt.Errorf("failed to open CF log: %w", err)
	}

	cfLogMutex.Lock()
	if cfLogWriter != nil {
		cfLogWriter.Close()
	}
	cfLogWriter = w
	cfLogger = log.New(w, "", log.LstdFlags|log.Lmicroseconds)
	cfLogMutex.Unlock()

	logCF("=== CloudFlare Debug Logger Initialized (%s) ===", w.Path())
	return nil
}

// CloseCFLogger closes the debug log.
func CloseCFLogger() {
	cfLogMutex.Lock()
	defer cfLogMutex.Unlock()

	if cfLogWriter != nil {
		cfLogger.Print("=== CloudFlare Debug Logger Closing ===")
		cfLogWriter.Close()
		cfLogWriter = nil
		cfLogger = nil
	}
}

func logCF(format string, args ...any) {
	cfLogMutex.Lock()
	defer cfLogMutex.Unlock()

	if cfLogger == nil {
		return
	}
	cfLogger.Output(2, fmt.Sprintf(format, args...))
}

// LogCFDetection records the outcome of a challenge check.
func LogCFDetection(detected bool, info *Info) {
	logCF("=== CLOUDFLARE DETECTION ===")
	logCF("  Challenge Detected: %v", detected)
	if detected && info != nil {
		for i, indicator := range info.Indicators {
			logCF("    [%d] %s", i+1, indicator)
		}
		logCF("  CF Ray ID: %s", info.RayID)
		logCF("  Status Code: %d", info.StatusCode)
		logCF("  Turnstile: %v", info.Turnstile)
	}
	logCF("===")
}

// LogCFCookieData dumps stored bypass data without cookie values.
func LogCFCookieData(domain string, data *BypassData) {
	logCF("=== STORED BYPASS DATA ===")
	logCF("  Domain: %s", domain)
	logCF("  Captured At: %s", data.CapturedAt)
	if capturedTime, err := time.Parse(time.RFC3339, data.CapturedAt); err == nil {
		logCF("  Age: %v", time.Since(capturedTime).Round(time.Minute))
	}
	logCF("  Total Cookies: %d", len(data.AllCookies))

	if cc := data.CfClearanceStruct; cc != nil {
		logCF("  cf_clearance: %d chars, domain=%s", len(cc.Value), cc.Domain)
		if cc.Expires != nil {
			if left := time.Until(*cc.Expires); left < 0 {
				logCF("    ⚠️  EXPIRED %v ago", -left.Round(time.Minute))
			} else {
				logCF("    Valid for: %v", left.Round(time.Hour))
			}
		}
	} else {
		logCF("  ⚠️  NO CF_CLEARANCE COOKIE FOUND")
	}
	logCF("  User-Agent: %s", data.Entropy.UserAgent)
	logCF("===")
}

// LogCFValidation records a validation result.
func LogCFValidation(domain string, valid bool, problems []string) {
	logCF("=== COOKIE VALIDATION === domain=%s valid=%v", domain, valid)
	if len(problems) > 0 {
		logCF("  %s", strings.Join(problems, "; "))
	}
}

func LogCFError(context, domain string, err error) {
	logCF("!!! ERROR !!! context=%s domain=%s: %v", context, domain, err)
}
