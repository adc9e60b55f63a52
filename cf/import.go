package cf

import (
	"fmt"

	"golang.design/x/clipboard"
)

// ImportFromClipboard reads captured bypass JSON from the clipboard and
// saves it in store. It returns the domain the data belongs to.
func ImportFromClipboard(store *Store) (string, error) {
	if err := clipboard.Init(); err != nil {
		LogCFError("ImportFromClipboard", "unknown", err)
		return "", fmt.Errorf("failed to initialize clipboard: %w", err)
	}

	raw := clipboard.Read(clipboard.FmtText)
	if len(raw) == 0 {
		return "", fmt.Errorf("clipboard is empty")
	}
	return Import(store, raw)
}

// Import parses captured bypass JSON and saves it in store.
func Import(store *Store, raw []byte) (string, error) {
	data, err := ParseCapturedData(raw)
	if err != nil {
		LogCFError("Import", "unknown", err)
		return "", fmt.Errorf("failed to parse captured data: %w", err)
	}

	if err := store.Save(data); err != nil {
		LogCFError("Import", data.Domain, err)
		return "", fmt.Errorf("failed to save data: %w", err)
	}
	return data.Domain, nil
}
