// Package bundle turns a reconstructed session and the recently closed list
// into a portable document, and reads such documents back.
package bundle

import (
	"time"

	"github.com/google/uuid"

	"github.com/fakeyudi/tabsession/internal/session"
	"github.com/fakeyudi/tabsession/internal/tabrestore"
)

// SessionBundle is the complete, renderable snapshot of a session directory.
type SessionBundle struct {
	Meta    Meta          `json:"meta"`
	Windows []Window      `json:"windows"`
	Recent  []RecentEntry `json:"recent"`
}

// Meta describes where the snapshot came from.
type Meta struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	DataDir    string    `json:"data_dir"`
	SessionLog string    `json:"session_log,omitempty"`
	TabsLog    string    `json:"tabs_log,omitempty"`
	Commands   int       `json:"commands"` // session commands replayed
}

// Window is a restored window.
type Window struct {
	ID               int32  `json:"id"`
	Type             string `json:"type"`
	Bounds           Bounds `json:"bounds"`
	Maximized        bool   `json:"maximized"`
	SelectedTabIndex int    `json:"selected_tab_index"`
	Tabs             []Tab  `json:"tabs"`
}

// Bounds mirrors session.Rect.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Tab is a restored tab with its history.
type Tab struct {
	ID                     int32        `json:"id"`
	CurrentNavigationIndex int          `json:"current_navigation_index"`
	Navigations            []Navigation `json:"navigations"`
}

// Navigation is one history entry. Page state is not carried.
type Navigation struct {
	Index      int    `json:"index"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
	Referrer   string `json:"referrer,omitempty"`
	Transition int32  `json:"transition"`
	PostData   bool   `json:"post_data,omitempty"`
}

// Entry kinds of RecentEntry.
const (
	KindTab    = "tab"
	KindWindow = "window"
)

// RecentEntry is a recently closed tab or window.
type RecentEntry struct {
	Kind             string    `json:"kind"`
	ID               int32     `json:"id"`
	Timestamp        time.Time `json:"timestamp,omitzero"`
	FromLastSession  bool      `json:"from_last_session,omitempty"`
	SelectedTabIndex int       `json:"selected_tab_index"`
	Tabs             []Tab     `json:"tabs"`
}

// New returns an empty bundle stamped with a fresh id.
func New(dataDir string, now time.Time) *SessionBundle {
	return &SessionBundle{
		Meta: Meta{
			ID:        uuid.NewString(),
			CreatedAt: now.UTC().Truncate(time.Second),
			DataDir:   dataDir,
		},
		Windows: []Window{},
		Recent:  []RecentEntry{},
	}
}

// FromWindows converts reconstructed windows.
func FromWindows(windows []*session.SessionWindow) []Window {
	out := make([]Window, 0, len(windows))
	for _, w := range windows {
		bw := Window{
			ID:               int32(w.WindowID),
			Type:             w.Type.String(),
			Bounds:           Bounds{X: w.Bounds.X, Y: w.Bounds.Y, Width: w.Bounds.Width, Height: w.Bounds.Height},
			Maximized:        w.IsMaximized,
			SelectedTabIndex: w.SelectedTabIndex,
			Tabs:             make([]Tab, 0, len(w.Tabs)),
		}
		for _, t := range w.Tabs {
			bw.Tabs = append(bw.Tabs, Tab{
				ID:                     int32(t.TabID),
				CurrentNavigationIndex: t.CurrentNavigationIndex,
				Navigations:            fromNavigations(t.Navigations),
			})
		}
		out = append(out, bw)
	}
	return out
}

// FromEntries converts the recently closed list, keeping its order.
func FromEntries(entries []tabrestore.Entry) []RecentEntry {
	out := make([]RecentEntry, 0, len(entries))
	for _, e := range entries {
		base := e.Base()
		re := RecentEntry{
			ID:              int32(base.ID),
			FromLastSession: base.FromLastSession,
		}
		if !base.Timestamp.IsZero() {
			re.Timestamp = base.Timestamp.UTC()
		}
		switch e := e.(type) {
		case *tabrestore.Tab:
			re.Kind = KindTab
			re.Tabs = []Tab{fromRestoreTab(e)}
		case *tabrestore.Window:
			re.Kind = KindWindow
			re.SelectedTabIndex = e.SelectedTabIndex
			for _, t := range e.Tabs {
				re.Tabs = append(re.Tabs, fromRestoreTab(t))
			}
		}
		out = append(out, re)
	}
	return out
}

func fromRestoreTab(t *tabrestore.Tab) Tab {
	return Tab{
		ID:                     int32(t.ID),
		CurrentNavigationIndex: t.CurrentNavigationIndex,
		Navigations:            fromNavigations(t.Navigations),
	}
}

func fromNavigations(navs []session.TabNavigation) []Navigation {
	out := make([]Navigation, 0, len(navs))
	for _, n := range navs {
		out = append(out, Navigation{
			Index:      n.Index,
			URL:        n.URL,
			Title:      n.Title,
			Referrer:   n.Referrer,
			Transition: int32(n.Transition),
			PostData:   n.TypeMask&session.HasPostData != 0,
		})
	}
	return out
}

// CurrentURL returns the URL of the selected navigation, or "" if none.
func (t Tab) CurrentURL() string {
	if t.CurrentNavigationIndex < 0 || t.CurrentNavigationIndex >= len(t.Navigations) {
		return ""
	}
	return t.Navigations[t.CurrentNavigationIndex].URL
}

// CurrentTitle is the selected navigation's title, falling back to its URL.
func (t Tab) CurrentTitle() string {
	if t.CurrentNavigationIndex < 0 || t.CurrentNavigationIndex >= len(t.Navigations) {
		return ""
	}
	n := t.Navigations[t.CurrentNavigationIndex]
	if n.Title != "" {
		return n.Title
	}
	return n.URL
}

// TabCount is the number of tabs across all windows.
func (b *SessionBundle) TabCount() int {
	n := 0
	for _, w := range b.Windows {
		n += len(w.Tabs)
	}
	return n
}
