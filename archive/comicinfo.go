package archive

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// DefaultLanguage is used when no language code is given.
const DefaultLanguage = "en"

// ComicInfoName is the entry name of the metadata document inside a .cbz.
const ComicInfoName = "ComicInfo.xml"

// ComicInfo is the metadata document embedded in every archive.
// It carries exactly four fields.
type ComicInfo struct {
	XMLName     xml.Name `xml:"ComicInfo"`
	Series      string   `xml:"Series"`
	Genre       string   `xml:"Genre"`
	Summary     string   `xml:"Summary"`
	LanguageISO string   `xml:"LanguageISO"`
}

// NewComicInfo builds the metadata document for a series.
// Genres are joined with ", " and an empty language defaults to "en".
func NewComicInfo(series string, genres []string, summary, languageCode string) *ComicInfo {
	if languageCode == "" {
		languageCode = DefaultLanguage
	}
	return &ComicInfo{
		Series:      series,
		Genre:       strings.Join(genres, ", "),
		Summary:     summary,
		LanguageISO: languageCode,
	}
}

// Marshal renders the document with an XML declaration.
func (c *ComicInfo) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", ComicInfoName, err)
	}
	return append([]byte(xml.Header), body...), nil
}
