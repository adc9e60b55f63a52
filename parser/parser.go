package parser

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"mangadl/models"
)

// Characters that are invalid in file paths on at least one supported OS.
var invalidTitleChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// Matches a chapter number with an optional sub-chapter part.
// Handles "10", "10.5", "10-5" and "10_5".
var chapterNumberRe = regexp.MustCompile(`(\d+)((?:[-_\.]\d+)?)`)

// Matches a chapter number inside a reader URL.
// Handles URLs like: /chapter-18/, /chapter_18.5, /chapter-18-5/
var chapterURLRe = regexp.MustCompile(`(?i)chapter[-_\.]?(\d+)((?:[-_\.]\d+)?)`)

// Image extensions we keep when sanitizing content-addressed filenames
var imageNameRe = regexp.MustCompile(`(?i)(.*)(\.(jpg|jpeg|png|gif|bmp|webp))(\?.*)?`)

// Characters that are invalid in a single file name
var invalidFileChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeTitle returns a filesystem-safe directory name for a manga title.
// The same title always produces the same name.
func SanitizeTitle(title string) string {
	title = norm.NFC.String(strings.TrimSpace(title))
	return invalidTitleChars.ReplaceAllString(title, "_")
}

// SanitizeFilename strips query strings from image names and replaces
// characters that cannot appear in a file name.
func SanitizeFilename(name string) string {
	if m := imageNameRe.FindStringSubmatch(name); m != nil {
		name = m[1] + m[2]
	} else if idx := strings.Index(name, "?"); idx >= 0 {
		name = name[:idx]
	}
	return invalidFileChars.ReplaceAllString(name, "_")
}

// ParseChapterNumber parses the first chapter number found in raw.
// A dash, dot or underscore separated suffix becomes the decimal part
// ("10-5" -> 10.5).
func ParseChapterNumber(raw string) (models.ChapterNumber, error) {
	m := chapterNumberRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("no chapter number in %q", raw)
	}
	return composeNumber(m[1], m[2])
}

// ChapterNumberFromURL extracts the chapter number from a reader URL
// such as https://site/manga/x/chapter-10-5/.
func ChapterNumberFromURL(chapterURL string) (models.ChapterNumber, error) {
	// The last match wins so slugs containing "chapter" do not shadow the real segment
	all := chapterURLRe.FindAllStringSubmatch(chapterURL, -1)
	if len(all) == 0 {
		return 0, fmt.Errorf("no chapter number in url %q", chapterURL)
	}
	m := all[len(all)-1]
	return composeNumber(m[1], m[2])
}

func composeNumber(whole, part string) (models.ChapterNumber, error) {
	// Normalize separators: replace - or _ with .
	part = strings.NewReplacer("-", ".", "_", ".").Replace(part)
	value, err := strconv.ParseFloat(whole+part, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chapter number %q: %w", whole+part, err)
	}
	return models.ChapterNumber(value), nil
}

// SortChapters orders chapters ascending by number and drops duplicates.
// Only the first chapter seen for a number is kept, which also collapses
// repeated "chapter 0" placeholder entries.
func SortChapters(chapters []models.ChapterRef) []models.ChapterRef {
	seen := make(map[models.ChapterNumber]struct{}, len(chapters))
	result := make([]models.ChapterRef, 0, len(chapters))

	for _, ch := range chapters {
		if _, dup := seen[ch.Number]; dup {
			log.Printf("[Parser] Dropping duplicate chapter %s: %s", ch.Number, ch.URL)
			continue
		}
		seen[ch.Number] = struct{}{}
		result = append(result, ch)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Number < result[j].Number
	})
	return result
}

// LocalChapterList returns a set of all file names in rootDir.
// A missing directory is treated as empty.
// Optionally pass an exclusion list to skip certain file names.
func LocalChapterList(rootDir string, exclusionList ...string) (map[string]struct{}, error) {
	expandedPath, err := ExpandPath(rootDir)
	if err != nil {
		return nil, err
	}

	exclusions := make(map[string]struct{}, len(exclusionList))
	for _, name := range exclusionList {
		exclusions[name] = struct{}{}
	}

	files := make(map[string]struct{})

	entries, err := os.ReadDir(expandedPath)
	if os.IsNotExist(err) {
		return files, nil
	}
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, skip := exclusions[entry.Name()]; !skip {
			files[entry.Name()] = struct{}{}
		}
	}

	return files, nil
}

// ExpandPath expands ~ to the user's home directory, or returns the path as-is
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, path[2:]), nil
	}
	return path, nil
}
