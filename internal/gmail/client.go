package gmail

import "context"

// Client is the Gmail surface required by mailpilot. One Client is bound to
// exactly one account's session; implementations must never be shared
// across accounts.
//
// List returns a single page; callers drive pagination with the
// continuation token and truncate at their own limit. Send and SendDraft
// are non-idempotent and are never retried by implementations: an
// ambiguous outcome (timeout after the request was transmitted) surfaces
// as an error rather than risking duplicate delivery.
type Client interface {
	// Profile returns the authenticated account's email address.
	Profile(ctx context.Context) (string, error)

	List(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	GetMessage(ctx context.Context, id MessageID) (Message, error)
	GetMetadata(ctx context.Context, id MessageID, headers []string) (Message, error)

	BatchModify(ctx context.Context, ids []MessageID, ops ModifyOps) error
	Trash(ctx context.Context, id MessageID) error
	Untrash(ctx context.Context, id MessageID) error

	Send(ctx context.Context, out Outgoing) (SendResult, error)

	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, name string) (Label, error)
	DeleteLabel(ctx context.Context, id LabelID) error
	RenameLabel(ctx context.Context, id LabelID, newName string) (Label, error)

	ListFilters(ctx context.Context) ([]Filter, error)
	CreateFilter(ctx context.Context, f Filter) (Filter, error)
	DeleteFilter(ctx context.Context, id FilterID) error

	ListDrafts(ctx context.Context, pageToken string, pageSize int) (DraftPage, error)
	CreateDraft(ctx context.Context, out Outgoing) (Draft, error)
	DeleteDraft(ctx context.Context, id DraftID) error
	SendDraft(ctx context.Context, id DraftID) (SendResult, error)

	GetAttachment(ctx context.Context, msg MessageID, part AttachmentID) ([]byte, error)

	// ListAttachments walks the message's part tree without downloading
	// any content.
	ListAttachments(ctx context.Context, id MessageID) ([]Attachment, error)
}
