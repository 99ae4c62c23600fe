package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"bringitback-controlplane/pkg/errutil"
)

const (
	DefaultLimit = 10
	MaxLimit     = 250
)

type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit,default=10"`
}

// Size clamps Limit to [1, MaxLimit], defaulting to DefaultLimit.
func (p Pagination) Size() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// Validate rejects cursors that were not issued by Page.
func (p Pagination) Validate() error {
	if p.Cursor == "" {
		return nil
	}
	cursor, err := DecodeCursor(p.Cursor)
	if err != nil {
		return errutil.ValidationFailed("invalid cursor", err, errutil.WithReason("INVALID_CURSOR"))
	}
	if _, _, ok := cursor.Position(); !ok {
		return errutil.ValidationFailed("invalid cursor", nil, errutil.WithReason("INVALID_CURSOR"))
	}
	return nil
}

// Cursor is the keyset position of the last row on a page.
type Cursor struct {
	CreatedAt string `json:"created_at,omitempty"`
	ID        string `json:"id,omitempty"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}
	return &cursor, nil
}

// Position decodes the cursor into its (created_at, id) key. ok is false for
// blank or malformed cursors, which read as the first page.
func (c *Cursor) Position() (createdAt time.Time, id string, ok bool) {
	if c == nil || c.ID == "" {
		return time.Time{}, "", false
	}
	t, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
	if err != nil {
		return time.Time{}, "", false
	}
	return t, c.ID, true
}

// Page trims a result fetched with Size()+1 rows down to one page and
// builds its PageInfo from the last row kept.
func Page[T any](items []*T, p Pagination, key func(*T) (time.Time, string)) ([]*T, *PageInfo) {
	limit := p.Size()
	info := &PageInfo{}
	if len(items) > limit {
		items = items[:limit]
		info.HasMore = true
	}
	if info.HasMore && len(items) > 0 {
		createdAt, id := key(items[len(items)-1])
		info.NextCursor, _ = EncodeCursor(Cursor{CreatedAt: createdAt.Format(time.RFC3339Nano), ID: id})
	}
	return items, info
}
