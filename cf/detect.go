package cf

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gocolly/colly"
)

// Info describes why a response was judged to be a challenge.
type Info struct {
	StatusCode int
	Indicators []string
	RayID      string
	Turnstile  bool
}

// Strong markers identify a challenge on their own. The challenge-platform
// script is embedded on normal pages of some sites too, so it only counts
// next to a strong marker.
var (
	strongChecks = map[string]string{
		"cloudflare-browser-verification": "JS browser verification challenge",
		"challenge-form":                  "Cloudflare challenge form",
		"cf-chl-":                         "Cloudflare challenge token",
		"attention required":              "Cloudflare BIC",
		"checking your browser":           "Cloudflare browser check",
		"verify you are human":            "Cloudflare human verification",
	}
	weakChecks = map[string]string{
		"/cdn-cgi/challenge-platform/": "Cloudflare challenge JS",
	}

	// "just a moment" only counts inside <title>; reader comments use the phrase
	justAMomentRe = regexp.MustCompile(`(?i)<title[^>]*>[^<]*just a moment[^<]*</title>`)
)

// Detect inspects a response and reports whether Cloudflare served a
// challenge instead of the page. A plain 403/503 from a server that is not
// Cloudflare is not a challenge.
func Detect(statusCode int, header http.Header, body []byte) (bool, *Info) {
	lower := strings.ToLower(string(body))
	info := &Info{StatusCode: statusCode}
	if header != nil {
		info.RayID = header.Get("CF-Ray")
	}

	strong := false
	for substr, reason := range strongChecks {
		if strings.Contains(lower, substr) {
			info.Indicators = append(info.Indicators, reason)
			strong = true
		}
	}
	if justAMomentRe.MatchString(lower) {
		info.Indicators = append(info.Indicators, "Cloudflare challenge page")
		strong = true
	}
	if strings.Contains(lower, "cf-turnstile") {
		info.Indicators = append(info.Indicators, "Turnstile CAPTCHA")
		info.Turnstile = true
		strong = true
	}

	if strong {
		for substr, reason := range weakChecks {
			if strings.Contains(lower, substr) {
				info.Indicators = append(info.Indicators, reason)
			}
		}
	}

	fromCloudflare := info.RayID != ""
	if header != nil && strings.Contains(strings.ToLower(header.Get("Server")), "cloudflare") {
		fromCloudflare = true
	}
	if (statusCode == http.StatusForbidden || statusCode == http.StatusServiceUnavailable) && fromCloudflare && strong {
		info.Indicators = append(info.Indicators, http.StatusText(statusCode))
	}

	if header != nil {
		for _, c := range header.Values("Set-Cookie") {
			if strings.HasPrefix(c, "cf_clearance=") && strong {
				info.Indicators = append(info.Indicators, "New cf_clearance cookie in response")
			}
		}
	}

	logCF("Detect: status=%d bytes=%d ray=%q", statusCode, len(body), info.RayID)
	if !strong {
		LogCFDetection(false, nil)
		return false, nil
	}

	LogCFDetection(true, info)
	return true, info
}

// DetectFromColly runs Detect on a colly response.
func DetectFromColly(r *colly.Response) (bool, *Info) {
	if r == nil {
		return false, nil
	}
	var header http.Header
	if r.Headers != nil {
		header = *r.Headers
	}
	return Detect(r.StatusCode, header, r.Body)
}
