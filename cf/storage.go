package cf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoData is returned when no bypass data is stored for a domain.
var ErrNoData = errors.New("no cf data stored")

// MaxDataAge is how long captured data is trusted.
const MaxDataAge = 24 * time.Hour

// Store keeps one JSON file of bypass data per domain.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultStore uses <user config dir>/mangadl/cf.
func DefaultStore() (*Store, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return NewStore(filepath.Join(configDir, "mangadl", "cf")), nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(domain string) string {
	return filepath.Join(s.dir, domain+".json")
}

// Save writes data under its domain.
func (s *Store) Save(data *BypassData) error {
	if data.Domain == "" {
		return fmt.Errorf("bypass data has no domain")
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := os.WriteFile(s.path(data.Domain), jsonData, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logCF("Save: stored %d bytes for domain=%s", len(jsonData), data.Domain)
	LogCFCookieData(data.Domain, data)
	return nil
}

// Load reads the data stored for domain.
func (s *Store) Load(domain string) (*BypassData, error) {
	jsonData, err := os.ReadFile(s.path(domain))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", domain, ErrNoData)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var data BypassData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &data, nil
}

// Lookup finds data for a host, trying the bare domain when the host has
// a www. prefix.
func (s *Store) Lookup(host string) (*BypassData, error) {
	data, err := s.Load(host)
	if errors.Is(err, ErrNoData) && strings.HasPrefix(host, "www.") {
		return s.Load(strings.TrimPrefix(host, "www."))
	}
	return data, err
}

// Delete removes the data stored for domain.
func (s *Store) Delete(domain string) error {
	if err := os.Remove(s.path(domain)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", domain, ErrNoData)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	logCF("Delete: removed data for domain=%s", domain)
	return nil
}

// List returns the stored domains in name order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	domains := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			domains = append(domains, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	sort.Strings(domains)
	return domains, nil
}

// MarkFailed stamps the stored data so Validate rejects it for a while.
func (s *Store) MarkFailed(domain string) error {
	data, err := s.Load(domain)
	if err != nil {
		return err
	}
	if data.Headers == nil {
		data.Headers = map[string]string{}
	}
	data.Headers["_failed_at"] = time.Now().Format(time.RFC3339)
	return s.Save(data)
}

// Validate checks that stored data is still usable: not older than
// MaxDataAge, carrying an unexpired cf_clearance and not marked failed in
// the last five minutes.
func Validate(data *BypassData) error {
	if data == nil {
		return fmt.Errorf("bypass data is nil")
	}

	fail := func(msg string) error {
		LogCFValidation(data.Domain, false, []string{msg})
		return errors.New(msg)
	}

	if data.CapturedAt != "" && data.IsExpired(MaxDataAge) {
		return fail(fmt.Sprintf("bypass data is older than %v", MaxDataAge))
	}

	cc := data.CfClearanceStruct
	if cc == nil {
		return fail("no cf_clearance cookie structure found")
	}
	if cc.Value == "" {
		return fail("cf_clearance value is empty")
	}
	if cc.Expires != nil && time.Now().After(*cc.Expires) {
		return fail(fmt.Sprintf("cf_clearance cookie has expired at %v", cc.Expires.Format(time.RFC3339)))
	}

	if failedAt, ok := data.Headers["_failed_at"]; ok {
		if t, err := time.Parse(time.RFC3339, failedAt); err == nil && time.Since(t) < 5*time.Minute {
			return fail("cookie failed recently, needs manual re-capture")
		}
	}

	LogCFValidation(data.Domain, true, nil)
	return nil
}

// ParseCfClearanceCookie parses a raw "cf_clearance=...; Path=/; ..." line.
func ParseCfClearanceCookie(raw string) (*CfClearanceCookie, error) {
	if raw == "" {
		return nil, fmt.Errorf("cfClearance string is empty")
	}

	parts := strings.Split(raw, ";")
	first := strings.TrimSpace(parts[0])
	if !strings.HasPrefix(first, "cf_clearance=") {
		return nil, fmt.Errorf("invalid cf_clearance format")
	}
	cookie := &CfClearanceCookie{
		Name:  "cf_clearance",
		Value: strings.TrimPrefix(first, "cf_clearance="),
	}

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		key, value, _ := strings.Cut(part, "=")
		switch strings.ToLower(key) {
		case "httponly":
			cookie.HttpOnly = true
		case "secure":
			cookie.Secure = true
		case "path":
			cookie.Path = value
		case "domain":
			cookie.Domain = value
		case "samesite":
			cookie.SameSite = value
		case "expires":
			if t, err := time.Parse(time.RFC1123, value); err == nil {
				cookie.Expires = &t
			} else {
				logCF("ParseCfClearanceCookie: bad Expires %q: %v", value, err)
			}
		}
	}
	return cookie, nil
}

// ParseCapturedData parses the JSON exported by the capture extension.
func ParseCapturedData(jsonData []byte) (*BypassData, error) {
	var data BypassData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if data.Domain == "" {
		return nil, fmt.Errorf("domain is empty")
	}

	rawCF := data.Headers["cfClearance"]
	if rawCF == "" {
		rawCF = data.CfClearance
	}
	if rawCF != "" && data.CfClearanceStruct == nil {
		if strings.HasPrefix(rawCF, "cf_clearance=") {
			cookie, err := ParseCfClearanceCookie(rawCF)
			if err != nil {
				return nil, err
			}
			data.CfClearanceStruct = cookie
		} else {
			data.CfClearanceStruct = &CfClearanceCookie{Name: "cf_clearance", Value: rawCF, Domain: data.Domain, Path: "/"}
		}
		data.CfClearance = data.CfClearanceStruct.Value
	}
	if data.CfClearanceStruct == nil {
		for _, c := range data.AllCookies {
			if c.Name == "cf_clearance" {
				data.CfClearanceStruct = &CfClearanceCookie{
					Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
					HttpOnly: c.HTTPOnly, Secure: c.Secure, SameSite: c.SameSite,
				}
				if c.ExpirationDate > 0 {
					t := time.Unix(int64(c.ExpirationDate), 0)
					data.CfClearanceStruct.Expires = &t
				}
				data.CfClearance = c.Value
				break
			}
		}
	}

	if !data.HasCookies() {
		return nil, fmt.Errorf("no cookies found in captured data")
	}
	if data.CapturedAt == "" {
		data.CapturedAt = time.Now().Format(time.RFC3339)
	}

	logCF("ParseCapturedData: domain=%s cookies=%d", data.Domain, len(data.AllCookies))
	return &data, nil
}
