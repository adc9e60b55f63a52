package downloader

import (
	"context"
	"net/http"

	"mangadl/models"
)

// TransferMode selects how an image body is written to disk.
type TransferMode int

const (
	// TransferWhole reads the full body before writing it.
	TransferWhole TransferMode = iota
	// TransferStream copies the body to the file as it arrives.
	TransferStream
)

func (m TransferMode) String() string {
	if m == TransferStream {
		return "stream"
	}
	return "whole"
}

// SiteAdapter turns one site's pages or API into the common chapter and
// image model. Implementations live in the sites package.
type SiteAdapter interface {
	// Name identifies the adapter in logs.
	Name() string

	// Identify resolves a configured URL into a canonical id and title.
	Identify(ctx context.Context, ref string) (id, title string, err error)

	// ListChapters returns the chapter index sorted ascending with
	// duplicate numbers removed.
	ListChapters(ctx context.Context, id string) ([]models.ChapterRef, error)

	// ListImages returns page image URLs in reading order.
	ListImages(ctx context.Context, chapterURL string) ([]string, error)

	// Metadata returns genres and summary. Both may be empty.
	Metadata(ctx context.Context, id string) (genres []string, summary string, err error)

	// ImageHeaders are sent with every image request of a chapter.
	ImageHeaders(referer string) http.Header

	TransferMode() TransferMode
}

// Transport fetches a rendered page. waitSelector is only honoured by
// browser backed transports.
type Transport interface {
	FetchHTML(ctx context.Context, url, waitSelector string) (string, error)
}

// ProgressObserver receives progress of a run. Calls may come from
// several workers at once.
type ProgressObserver interface {
	TaskCreated(id, label string, total int)
	TaskAdvanced(id string, n int)
	TaskCompleted(id string, err error)
}

// NopObserver discards progress.
type NopObserver struct{}

func (NopObserver) TaskCreated(string, string, int) {}
func (NopObserver) TaskAdvanced(string, int)        {}
func (NopObserver) TaskCompleted(string, error)     {}
