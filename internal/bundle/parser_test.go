package bundle

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/tabsession/internal/session"
	"github.com/fakeyudi/tabsession/internal/tabrestore"
)

func TestMarkdownParser_PlainMarkdownWithoutSentinel(t *testing.T) {
	p := &MarkdownParser{}

	plainMarkdown := `# Some Document

This is just a regular Markdown file with no bundle sentinel.

- item 1
- item 2
`
	_, err := p.Parse([]byte(plainMarkdown))
	if err == nil {
		t.Fatal("expected error for plain Markdown without sentinel, got nil")
	}
	if !errors.Is(err, ErrNotBundle) {
		t.Errorf("expected ErrNotBundle, got: %q", err.Error())
	}
}

func TestMarkdownParser_CorruptedBase64Payload(t *testing.T) {
	p := &MarkdownParser{}

	corrupted := versionSentinel + "\n" + dataPrefix + "!!!not-valid-base64!!!" + dataSuffix + "\n\n# Session\n"
	_, err := p.Parse([]byte(corrupted))
	if err == nil {
		t.Fatal("expected error for corrupted base64 payload, got nil")
	}
	if !errors.Is(err, ErrNotBundle) {
		t.Errorf("expected ErrNotBundle, got: %q", err.Error())
	}
}

func TestMarkdownParser_MissingDataPayload(t *testing.T) {
	p := &MarkdownParser{}

	noData := versionSentinel + "\n\n# Session\n\nSome content but no data payload.\n"
	_, err := p.Parse([]byte(noData))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotBundle)
	assert.Contains(t, err.Error(), "missing data payload")
}

func TestMarkdownParser_UnterminatedPayload(t *testing.T) {
	p := &MarkdownParser{}

	_, err := p.Parse([]byte(versionSentinel + "\n" + dataPrefix + "abcd"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed data payload")
}

func TestMarkdownParser_ValidBase64ButInvalidJSON(t *testing.T) {
	p := &MarkdownParser{}

	badJSON := base64.StdEncoding.EncodeToString([]byte("this is not json {{{"))
	content := versionSentinel + "\n" + dataPrefix + badJSON + dataSuffix + "\n\n# Session\n"

	_, err := p.Parse([]byte(content))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotBundle)
}

func TestJSONParser_MalformedJSON(t *testing.T) {
	p := &JSONParser{}

	cases := []struct {
		name  string
		input string
	}{
		{"empty input", ""},
		{"truncated object", `{"meta": {`},
		{"plain text", "not json at all"},
		{"array instead of object", `[1, 2, 3]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Parse([]byte(tc.input))
			if err == nil {
				t.Fatalf("expected error for malformed JSON input %q, got nil", tc.input)
			}
			if !strings.Contains(err.Error(), "failed to parse JSON bundle") {
				t.Errorf("expected descriptive error containing 'failed to parse JSON bundle', got: %q", err.Error())
			}
		})
	}
}

func TestJSONParser_ObjectWithoutID(t *testing.T) {
	_, err := (&JSONParser{}).Parse([]byte(`{"windows": []}`))
	assert.ErrorIs(t, err, ErrNotBundle)
}

func TestParserFor(t *testing.T) {
	assert.IsType(t, &JSONParser{}, ParserFor("out/session.JSON"))
	assert.IsType(t, &MarkdownParser{}, ParserFor("session.md"))
	assert.IsType(t, &MarkdownParser{}, ParserFor("session"))
}

func TestNewStampsID(t *testing.T) {
	a := New("/d", time.Now())
	b := New("/d", time.Now())
	assert.NotEmpty(t, a.Meta.ID)
	assert.NotEqual(t, a.Meta.ID, b.Meta.ID)
	assert.NotNil(t, a.Windows)
	assert.NotNil(t, a.Recent)
}

func TestFromWindows(t *testing.T) {
	windows := []*session.SessionWindow{{
		WindowID:         1,
		Bounds:           session.Rect{X: 1, Y: 2, Width: 3, Height: 4},
		SelectedTabIndex: 0,
		Type:             session.TypeNormal,
		IsMaximized:      true,
		Tabs: []*session.SessionTab{{
			WindowID:               1,
			TabID:                  2,
			CurrentNavigationIndex: 1,
			Navigations: []session.TabNavigation{
				{Index: 0, URL: "http://a", Title: "A"},
				{Index: 1, URL: "http://b", TypeMask: session.HasPostData},
			},
		}},
	}}

	got := FromWindows(windows)
	require.Len(t, got, 1)
	w := got[0]
	assert.Equal(t, int32(1), w.ID)
	assert.Equal(t, "normal", w.Type)
	assert.Equal(t, Bounds{X: 1, Y: 2, Width: 3, Height: 4}, w.Bounds)
	assert.True(t, w.Maximized)
	require.Len(t, w.Tabs, 1)
	assert.Equal(t, "http://b", w.Tabs[0].CurrentURL())
	assert.Equal(t, "http://b", w.Tabs[0].CurrentTitle())
	assert.True(t, w.Tabs[0].Navigations[1].PostData)
	assert.False(t, w.Tabs[0].Navigations[0].PostData)
}

func TestFromEntries(t *testing.T) {
	closed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	entries := []tabrestore.Entry{
		&tabrestore.Tab{
			EntryBase:   tabrestore.EntryBase{ID: 7, Timestamp: closed},
			Navigations: []session.TabNavigation{{URL: "http://t", Title: "T"}},
		},
		&tabrestore.Window{
			EntryBase:        tabrestore.EntryBase{ID: 8, FromLastSession: true},
			SelectedTabIndex: 1,
			Tabs: []*tabrestore.Tab{
				{Navigations: []session.TabNavigation{{URL: "http://w1"}}},
				{Navigations: []session.TabNavigation{{URL: "http://w2"}}},
			},
		},
	}

	got := FromEntries(entries)
	require.Len(t, got, 2)

	assert.Equal(t, KindTab, got[0].Kind)
	assert.Equal(t, int32(7), got[0].ID)
	assert.True(t, got[0].Timestamp.Equal(closed))
	assert.Equal(t, "T", got[0].Tabs[0].CurrentTitle())

	assert.Equal(t, KindWindow, got[1].Kind)
	assert.True(t, got[1].FromLastSession)
	assert.True(t, got[1].Timestamp.IsZero())
	assert.Equal(t, 1, got[1].SelectedTabIndex)
	require.Len(t, got[1].Tabs, 2)
	assert.Equal(t, "http://w2", got[1].Tabs[1].CurrentURL())
}

func TestTabCurrentOutOfRange(t *testing.T) {
	tab := Tab{CurrentNavigationIndex: 3}
	assert.Empty(t, tab.CurrentURL())
	assert.Empty(t, tab.CurrentTitle())
}
