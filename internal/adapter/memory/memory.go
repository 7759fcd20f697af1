package memory

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/jun/cote/internal/adapter"
	"github.com/jun/cote/internal/config"
)

const (
	maxContentSize = config.MaxContentSize
	// DynamoDB items are capped at 400 KB including attribute names.
	maxItemContentSize = 350 * 1024
	maxTitleLength     = 255
	maxItemCount       = 50
	itemTTL            = 24 * time.Hour
)

// MemoryAdapter implements adapter.StorageAdapter for one user.
// If client is nil, it uses an in-memory map (for tests).
// If client is set, it uses DynamoDB (for dev mode persistence).
type MemoryAdapter struct {
	client *dynamodb.Client
	table  string
	userID string

	// Fallback for tests
	files map[string]*adapter.File
	mu    sync.RWMutex
}

// FileItem is the DynamoDB row for one file.
type FileItem struct {
	PK           string    `dynamodbav:"pk"`
	UserID       string    `dynamodbav:"user_id"`
	ID           string    `dynamodbav:"id"`
	Name         string    `dynamodbav:"name"`
	MIMEType     string    `dynamodbav:"mime_type"`
	ModifiedTime time.Time `dynamodbav:"modified_time"`
	Size         int64     `dynamodbav:"size"`
	ETag         string    `dynamodbav:"etag"`
	Starred      bool      `dynamodbav:"starred"`
	Content      []byte    `dynamodbav:"content"`
	TTL          int64     `dynamodbav:"ttl"`
}

func NewMemoryAdapter(client *dynamodb.Client, table, userID string) *MemoryAdapter {
	return &MemoryAdapter{
		client: client,
		table:  table,
		userID: userID,
		files:  make(map[string]*adapter.File),
	}
}

// pk scopes file IDs to their owner so that two users cannot address each
// other's files.
func (m *MemoryAdapter) pk(fileID string) string {
	return m.userID + "#" + fileID
}

func (m *MemoryAdapter) GetFile(ctx context.Context, fileID string) (*adapter.File, error) {
	if m.client == nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		f, ok := m.files[fileID]
		if !ok {
			return nil, adapter.ErrNotFound
		}
		cp := *f
		cp.Content = append([]byte(nil), f.Content...)
		return &cp, nil
	}

	item, err := m.getItem(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return item.file(), nil
}

func (m *MemoryAdapter) SaveFile(ctx context.Context, fileID string, content []byte, etag string) (*adapter.FileMetadata, error) {
	if err := m.checkContent(content); err != nil {
		return nil, err
	}

	return m.update(ctx, fileID, func(f *adapter.File) error {
		if etag != "" && f.ETag != etag {
			return adapter.ErrPreconditionFailed
		}
		f.Content = append([]byte(nil), content...)
		f.Size = int64(len(content))
		return nil
	})
}

func (m *MemoryAdapter) CreateFile(ctx context.Context, name string, content []byte) (*adapter.FileMetadata, error) {
	if len(name) > maxTitleLength {
		return nil, fmt.Errorf("name too long (max %d characters)", maxTitleLength)
	}
	if err := m.checkContent(content); err != nil {
		return nil, err
	}

	names, err := m.names(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(names) >= maxItemCount {
		return nil, fmt.Errorf("item limit reached (max %d items)", maxItemCount)
	}

	f := &adapter.File{
		FileMetadata: adapter.FileMetadata{
			ID:           uuid.New().String(),
			Name:         UniqueName(name, names),
			MIMEType:     mimeFor(name),
			ModifiedTime: time.Now(),
			Size:         int64(len(content)),
			ETag:         uuid.New().String(),
		},
		Content: append([]byte(nil), content...),
	}

	if m.client == nil {
		m.mu.Lock()
		m.files[f.ID] = f
		m.mu.Unlock()
		meta := f.FileMetadata
		return &meta, nil
	}

	if err := m.putItem(ctx, f); err != nil {
		return nil, err
	}
	return &f.FileMetadata, nil
}

// RenameFile stores newName, suffixed with " (n)" before the extension when
// another file already uses it.
func (m *MemoryAdapter) RenameFile(ctx context.Context, fileID string, newName string) (*adapter.FileMetadata, error) {
	if len(newName) > maxTitleLength {
		return nil, fmt.Errorf("name too long (max %d characters)", maxTitleLength)
	}

	names, err := m.names(ctx, fileID)
	if err != nil {
		return nil, err
	}
	name := UniqueName(newName, names)

	return m.update(ctx, fileID, func(f *adapter.File) error {
		f.Name = name
		f.MIMEType = mimeFor(name)
		return nil
	})
}

func (m *MemoryAdapter) SetStarred(ctx context.Context, fileID string, starred bool) (*adapter.FileMetadata, error) {
	return m.update(ctx, fileID, func(f *adapter.File) error {
		f.Starred = starred
		return nil
	})
}

// update applies fn to the stored file and bumps its ETag.
func (m *MemoryAdapter) update(ctx context.Context, fileID string, fn func(*adapter.File) error) (*adapter.FileMetadata, error) {
	if m.client == nil {
		m.mu.Lock()
		defer m.mu.Unlock()
		f, ok := m.files[fileID]
		if !ok {
			return nil, adapter.ErrNotFound
		}
		if err := fn(f); err != nil {
			return nil, err
		}
		f.ModifiedTime = time.Now()
		f.ETag = uuid.New().String()
		meta := f.FileMetadata
		return &meta, nil
	}

	item, err := m.getItem(ctx, fileID)
	if err != nil {
		return nil, err
	}
	f := item.file()
	if err := fn(f); err != nil {
		return nil, err
	}
	f.ModifiedTime = time.Now()
	f.ETag = uuid.New().String()
	if err := m.putItem(ctx, f); err != nil {
		return nil, err
	}
	return &f.FileMetadata, nil
}

func (m *MemoryAdapter) checkContent(content []byte) error {
	limit := maxContentSize
	if m.client != nil {
		limit = maxItemContentSize
	}
	if len(content) > limit {
		return fmt.Errorf("%w (max %d bytes)", adapter.ErrTooLarge, limit)
	}
	return nil
}

// names lists the names of the user's files other than exceptID.
func (m *MemoryAdapter) names(ctx context.Context, exceptID string) (map[string]bool, error) {
	out := make(map[string]bool)

	if m.client == nil {
		m.mu.RLock()
		defer m.mu.RUnlock()
		for id, f := range m.files {
			if id != exceptID {
				out[f.Name] = true
			}
		}
		return out, nil
	}

	// Scan and filter (inefficient but fine for dev)
	res, err := m.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:            aws.String(m.table),
		FilterExpression:     aws.String("user_id = :uid"),
		ProjectionExpression: aws.String("id, #n"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: m.userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan files: %w", err)
	}

	var items []FileItem
	if err := attributevalue.UnmarshalListOfMaps(res.Items, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal files: %w", err)
	}
	for _, item := range items {
		if item.ID != exceptID {
			out[item.Name] = true
		}
	}
	return out, nil
}

func (m *MemoryAdapter) getItem(ctx context.Context, fileID string) (*FileItem, error) {
	out, err := m.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(m.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: m.pk(fileID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return nil, adapter.ErrNotFound
	}

	var item FileItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file: %w", err)
	}
	return &item, nil
}

func (m *MemoryAdapter) putItem(ctx context.Context, f *adapter.File) error {
	item := FileItem{
		PK:           m.pk(f.ID),
		UserID:       m.userID,
		ID:           f.ID,
		Name:         f.Name,
		MIMEType:     f.MIMEType,
		ModifiedTime: f.ModifiedTime,
		Size:         f.Size,
		ETag:         f.ETag,
		Starred:      f.Starred,
		Content:      f.Content,
		TTL:          time.Now().Add(itemTTL).Unix(),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal file: %w", err)
	}
	_, err = m.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(m.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to save file to DynamoDB: %w", err)
	}
	return nil
}

func (item *FileItem) file() *adapter.File {
	return &adapter.File{
		FileMetadata: adapter.FileMetadata{
			ID:           item.ID,
			Name:         item.Name,
			MIMEType:     item.MIMEType,
			ModifiedTime: item.ModifiedTime,
			Size:         item.Size,
			ETag:         item.ETag,
			Starred:      item.Starred,
		},
		Content: item.Content,
	}
}

// UniqueName returns name, or "base (n).ext" with the smallest n >= 1 that
// is not in taken.
func UniqueName(name string, taken map[string]bool) string {
	if !taken[name] {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		// Dotfiles such as ".env" have no extension to keep.
		base, ext = name, ""
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if !taken[candidate] {
			return candidate
		}
	}
}

func mimeFor(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
	}
	return "text/plain"
}

// Provider implements adapter.StorageProvider backed by DynamoDB (or Memory if nil).
type Provider struct {
	client *dynamodb.Client
	table  string
	stores map[string]*MemoryAdapter
	mu     sync.Mutex
}

func NewProvider(client *dynamodb.Client, table string) *Provider {
	return &Provider{
		client: client,
		table:  table,
		stores: make(map[string]*MemoryAdapter),
	}
}

func (p *Provider) GetAdapter(ctx context.Context, userID string) (adapter.StorageAdapter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.stores[userID]; !ok {
		p.stores[userID] = NewMemoryAdapter(p.client, p.table, userID)
	}
	return p.stores[userID], nil
}
