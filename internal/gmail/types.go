package gmail

import (
	"strings"
	"time"
)

type MessageID string
type ThreadID string
type LabelID string
type AttachmentID string
type FilterID string
type DraftID string

// LabelKind distinguishes Gmail's built-in labels from user-created ones.
// System labels cannot be created, renamed, or deleted.
type LabelKind string

const (
	LabelSystem LabelKind = "system"
	LabelUser   LabelKind = "user"
)

// Well-known system label ids.
const (
	LabelInbox   LabelID = "INBOX"
	LabelUnread  LabelID = "UNREAD"
	LabelTrash   LabelID = "TRASH"
	LabelStarred LabelID = "STARRED"
)

// Message is a request-scoped snapshot of one Gmail message. Ids are
// account-scoped: a MessageID obtained through one account's session is
// meaningless against any other account.
type Message struct {
	ID       MessageID
	ThreadID ThreadID
	LabelIDs []LabelID
	Headers  map[string]string // From, To, Subject, Reply-To, Message-ID, References, Date
	Snippet  string
	Body     string // decoded text/plain part, may be empty
	Date     time.Time
}

// Header returns a header value by case-insensitive name.
func (m Message) Header(name string) string {
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HasLabel reports whether the message carries the given label id.
func (m Message) HasLabel(id LabelID) bool {
	for _, l := range m.LabelIDs {
		if l == id {
			return true
		}
	}
	return false
}

// Attachment describes one attachment part of a message. It exists only as
// a child of its message; content is fetched separately by part id.
type Attachment struct {
	PartID   AttachmentID
	Filename string
	MimeType string
	Size     int64
}

type Label struct {
	ID   LabelID
	Name string
	Kind LabelKind
}

// FilterCriteria matches messages for a server-side filter. At least one
// field must be set.
type FilterCriteria struct {
	From          string
	To            string
	Subject       string
	Query         string
	HasAttachment bool
}

// Empty reports whether no criterion is set.
func (c FilterCriteria) Empty() bool {
	return c.From == "" && c.To == "" && c.Subject == "" && c.Query == "" && !c.HasAttachment
}

// FilterActions are applied by the service to matching messages. At least
// one field must be set.
type FilterActions struct {
	AddLabelIDs    []LabelID
	RemoveLabelIDs []LabelID
	Forward        string
}

// Empty reports whether no action is set.
func (a FilterActions) Empty() bool {
	return len(a.AddLabelIDs) == 0 && len(a.RemoveLabelIDs) == 0 && a.Forward == ""
}

type Filter struct {
	ID       FilterID
	Criteria FilterCriteria
	Actions  FilterActions
}

// Draft pairs a draft id with its underlying message. Drafts are mutable
// until sent and destroyed on delete or send.
type Draft struct {
	ID      DraftID
	Message Message
}

// ModifyOps describes a batch label/state change.
type ModifyOps struct {
	AddLabels    []LabelID
	RemoveLabels []LabelID
}

// Query is a raw Gmail search expression, passed through to the service's
// search grammar unmodified.
type Query struct {
	Raw string
}

// ListPage is one page of a message listing.
type ListPage struct {
	IDs           []MessageID
	NextPageToken string
}

// DraftPage is one page of a draft listing.
type DraftPage struct {
	Drafts        []Draft
	NextPageToken string
}

// Outgoing is a fully built wire payload for send or draft creation.
// ThreadID, when set, places the message in an existing conversation.
type Outgoing struct {
	Raw      []byte
	ThreadID ThreadID
}

// SendResult identifies the message accepted by the service.
type SendResult struct {
	ID       MessageID
	ThreadID ThreadID
}
