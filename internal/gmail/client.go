package gmail

import "context"

// Client is the narrow Gmail surface required by mailtriage.
type Client interface {
	List(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	Get(ctx context.Context, id MessageID) (Message, error)
	ListLabels(ctx context.Context) (map[string]LabelID, map[LabelID]string, error)
	CreateLabel(ctx context.Context, name string) (LabelID, error)
	Modify(ctx context.Context, id MessageID, ops LabelOps) error
	Trash(ctx context.Context, id MessageID) error
}
