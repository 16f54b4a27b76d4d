package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sungwon/email-queue/internal/msgstore"
)

// File renders each message as an .eml and stores it in a message store.
type File struct {
	store msgstore.Store
	now   func() time.Time
}

func NewFile(store msgstore.Store) *File {
	return &File{store: store, now: time.Now}
}

func (f *File) GetName() string { return TypeFile }

// Send stores the message under <timestamp>_<email id>.eml.
func (f *File) Send(ctx context.Context, msg *Message) (*DeliveryResult, error) {
	now := f.now()
	raw, err := renderMessage(msg, now)
	if err != nil {
		return nil, fmt.Errorf("file: render message: %w", err)
	}

	id := msg.ID
	if id == "" {
		id = "message"
	}
	key := fmt.Sprintf("%s_%s.eml", now.UTC().Format("20060102_150405"), strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(id))
	if err := f.store.Put(ctx, key, raw); err != nil {
		return nil, fmt.Errorf("file: store message: %w", err)
	}
	return sentResult("file-"+msg.ID, map[string]string{"location": f.store.Location(key)}), nil
}

// HealthCheck verifies a local store directory is writable. Remote stores
// are assumed healthy.
func (f *File) HealthCheck(context.Context) error {
	if w, ok := f.store.(interface{ Writable() error }); ok {
		if err := w.Writable(); err != nil {
			return fmt.Errorf("file: store not writable: %w", err)
		}
	}
	return nil
}
