// Package xhs crawls creator profiles on Xiaohongshu.
package xhs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

const (
	// BaseURL is the platform origin.
	BaseURL = "https://www.xiaohongshu.com"

	statePrefix = "window.__INITIAL_STATE__"
)

// ErrStateNotFound means the page carried no initial state script.
var ErrStateNotFound = errors.New("initial state script not found")

// undefinedLiteral matches bare JavaScript undefined values, which are not valid JSON.
var undefinedLiteral = regexp.MustCompile(`([:\[,])\s*undefined\s*([,\]}])`)

// ProfileURL returns the profile page for a creator.
func ProfileURL(creatorID string) string {
	return BaseURL + "/user/profile/" + creatorID
}

// NoteURL returns the public page for a note.
func NoteURL(noteID, xsecToken string) string {
	u := BaseURL + "/explore/" + noteID
	if xsecToken != "" {
		u += "?xsec_token=" + xsecToken + "&xsec_source=pc_user"
	}
	return u
}

type initialState struct {
	User struct {
		LoggedIn bool            `json:"loggedIn"`
		Notes    json.RawMessage `json:"notes"`
	} `json:"user"`
}

type noteEntry struct {
	ID       string   `json:"id"`
	NoteCard noteCard `json:"noteCard"`
}

type noteCard struct {
	NoteID          string       `json:"noteId"`
	NoteIDSnake     string       `json:"note_id"`
	Title           string       `json:"title"`
	DisplayTitle    string       `json:"displayTitle"`
	DisplayTitleRaw string       `json:"display_title"`
	Time            flexInt      `json:"time"`
	XsecToken       string       `json:"xsecToken"`
	User            cardUser     `json:"user"`
	InteractInfo    interactInfo `json:"interactInfo"`
	InteractInfoRaw interactInfo `json:"interact_info"`
}

type cardUser struct {
	UserID      string `json:"userId"`
	UserIDSnake string `json:"user_id"`
}

type interactInfo struct {
	LikedCount          flexString `json:"likedCount"`
	LikedCountSnake     flexString `json:"liked_count"`
	CollectedCount      flexString `json:"collectedCount"`
	CollectedCountSnake flexString `json:"collected_count"`
	CommentCount        flexString `json:"commentCount"`
	CommentCountSnake   flexString `json:"comment_count"`
	ShareCount          flexString `json:"shareCount"`
	ShareCountSnake     flexString `json:"share_count"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

// flexInt accepts a JSON number or numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", raw, err)
	}
	*f = flexInt(n)
	return nil
}

// ExtractInitialState finds the initial state script in an HTML page and returns it as JSON.
func ExtractInitialState(html []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if strings.HasPrefix(text, statePrefix) {
			script = text
			return false
		}
		return true
	})
	if script == "" {
		return nil, ErrStateNotFound
	}
	body := strings.TrimSpace(strings.TrimPrefix(script, statePrefix))
	body = strings.TrimSpace(strings.TrimPrefix(body, "="))
	body = strings.TrimSuffix(body, ";")
	// Applied twice so adjacent undefined values sharing a delimiter are both replaced.
	body = undefinedLiteral.ReplaceAllString(body, "${1}null${2}")
	body = undefinedLiteral.ReplaceAllString(body, "${1}null${2}")
	return []byte(body), nil
}

// ParseInitialState extracts the creator's notes from a profile page.
// creatorID fills in the author when a note card omits it.
func ParseInitialState(html []byte, creatorID string) ([]crawler.RawNote, error) {
	state, err := decodeState(html)
	if err != nil {
		return nil, err
	}
	entries, err := decodeNotes(state.User.Notes)
	if err != nil {
		return nil, err
	}
	notes := make([]crawler.RawNote, 0, len(entries))
	for _, e := range entries {
		note := e.toRawNote(creatorID)
		if note.NoteID == "" {
			continue
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// ParseLoginState reports whether the page was rendered for a logged-in session.
func ParseLoginState(html []byte) (bool, error) {
	state, err := decodeState(html)
	if err != nil {
		return false, err
	}
	return state.User.LoggedIn, nil
}

func decodeState(html []byte) (initialState, error) {
	raw, err := ExtractInitialState(html)
	if err != nil {
		return initialState{}, err
	}
	var state initialState
	if err := json.Unmarshal(raw, &state); err != nil {
		return initialState{}, fmt.Errorf("decode initial state: %w", err)
	}
	return state, nil
}

// decodeNotes accepts either a list of tabs (each a list of entries) or a flat list.
func decodeNotes(raw json.RawMessage) ([]noteEntry, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var tabs [][]noteEntry
	if err := json.Unmarshal(raw, &tabs); err == nil {
		if len(tabs) == 0 {
			return nil, nil
		}
		return tabs[0], nil
	}
	var flat []noteEntry
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	return flat, nil
}

func (e noteEntry) toRawNote(creatorID string) crawler.RawNote {
	c := e.NoteCard
	id := firstNonEmpty(c.NoteID, c.NoteIDSnake, e.ID)
	info := c.InteractInfo
	alt := c.InteractInfoRaw
	return crawler.RawNote{
		NoteID:         id,
		Title:          firstNonEmpty(c.Title, c.DisplayTitle, c.DisplayTitleRaw),
		NoteURL:        NoteURL(id, c.XsecToken),
		Time:           int64(c.Time),
		UserID:         firstNonEmpty(c.User.UserID, c.User.UserIDSnake, creatorID),
		LikedCount:     firstNonEmpty(string(info.LikedCount), string(info.LikedCountSnake), string(alt.LikedCount), string(alt.LikedCountSnake)),
		CollectedCount: firstNonEmpty(string(info.CollectedCount), string(info.CollectedCountSnake), string(alt.CollectedCount), string(alt.CollectedCountSnake)),
		CommentCount:   firstNonEmpty(string(info.CommentCount), string(info.CommentCountSnake), string(alt.CommentCount), string(alt.CommentCountSnake)),
		ShareCount:     firstNonEmpty(string(info.ShareCount), string(info.ShareCountSnake), string(alt.ShareCount), string(alt.ShareCountSnake)),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
