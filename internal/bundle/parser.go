package bundle

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNotBundle is returned for input that is not a tabsession bundle.
var ErrNotBundle = errors.New("not a valid tabsession bundle")

// BundleParser deserializes a bundle file back into structured data.
type BundleParser interface {
	Parse(data []byte) (*SessionBundle, error)
}

// ParserFor picks a parser from a file name: .json files are JSON, anything
// else is treated as Markdown.
func ParserFor(path string) BundleParser {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return &JSONParser{}
	}
	return &MarkdownParser{}
}

// JSONParser parses a JSON-encoded SessionBundle.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*SessionBundle, error) {
	var bundle SessionBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse JSON bundle: %w", err)
	}
	if bundle.Meta.ID == "" {
		return nil, fmt.Errorf("%w: missing bundle id", ErrNotBundle)
	}
	return &bundle, nil
}

// MarkdownParser parses a Markdown-rendered SessionBundle by extracting the
// embedded base64 JSON payload from the sentinel comments.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(data []byte) (*SessionBundle, error) {
	content := string(data)

	if !strings.Contains(content, versionSentinel) {
		return nil, fmt.Errorf("%w: missing version sentinel", ErrNotBundle)
	}

	start := strings.Index(content, dataPrefix)
	if start == -1 {
		return nil, fmt.Errorf("%w: missing data payload", ErrNotBundle)
	}
	start += len(dataPrefix)
	end := strings.Index(content[start:], dataSuffix)
	if end == -1 {
		return nil, fmt.Errorf("%w: malformed data payload", ErrNotBundle)
	}
	encoded := content[start : start+end]

	jsonBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupted base64 payload: %w", ErrNotBundle, err)
	}

	var bundle SessionBundle
	if err := json.Unmarshal(jsonBytes, &bundle); err != nil {
		return nil, fmt.Errorf("%w: failed to parse embedded JSON: %w", ErrNotBundle, err)
	}
	return &bundle, nil
}
