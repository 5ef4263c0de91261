package mailbox

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/openclinic-labs/intake-core/internal/core/domain"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Mailbox = (*S3Mailbox)(nil)

// S3Mailbox reads raw messages the mail gateway drops into object storage.
// New messages live under the incoming prefix; MarkProcessed moves them
// under the processed prefix so a poll never sees them again.
type S3Mailbox struct {
	client          *minio.Client
	bucket          string
	incomingPrefix  string
	processedPrefix string
}

// S3MailboxConfig holds settings for S3Mailbox.
type S3MailboxConfig struct {
	Client *minio.Client
	Bucket string

	// IncomingPrefix defaults to "incoming/".
	IncomingPrefix string

	// ProcessedPrefix defaults to "processed/".
	ProcessedPrefix string
}

// NewS3Mailbox creates a new S3Mailbox.
func NewS3Mailbox(cfg S3MailboxConfig) *S3Mailbox {
	incoming := cfg.IncomingPrefix
	if incoming == "" {
		incoming = "incoming/"
	}
	processed := cfg.ProcessedPrefix
	if processed == "" {
		processed = "processed/"
	}
	return &S3Mailbox{
		client:          cfg.Client,
		bucket:          cfg.Bucket,
		incomingPrefix:  incoming,
		processedPrefix: processed,
	}
}

// ListNew returns the keys of unprocessed messages, oldest first.
func (m *S3Mailbox) ListNew(ctx context.Context, limit int) ([]string, error) {
	objectCh := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    m.incomingPrefix,
		Recursive: true,
	})

	type entry struct {
		key      string
		modified int64
	}
	var entries []entry
	for obj := range objectCh {
		if obj.Err != nil {
			return nil, fmt.Errorf("list mailbox: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		entries = append(entries, entry{key: obj.Key, modified: obj.LastModified.UnixNano()})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].modified < entries[j].modified })

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.key)
		if limit > 0 && len(keys) >= limit {
			break
		}
	}
	return keys, nil
}

// Fetch downloads and parses one raw message into document attachments.
func (m *S3Mailbox) Fetch(ctx context.Context, key string) ([]domain.SourceDocument, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	return ParseMessage(key, raw)
}

// MarkProcessed moves the message under the processed prefix.
func (m *S3Mailbox) MarkProcessed(ctx context.Context, key string) error {
	dst := m.processedPrefix + strings.TrimPrefix(key, m.incomingPrefix)

	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.bucket, Object: dst},
		minio.CopySrcOptions{Bucket: m.bucket, Object: key},
	)
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", key, dst, err)
	}

	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s after copy: %w", key, err)
	}
	return nil
}
