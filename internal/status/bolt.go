package status

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"
	"time"

	kgzip "github.com/klauspost/compress/gzip"
	bolt "go.etcd.io/bbolt"

	"github.com/siteone-mirror/crawler/internal/wireformat"
)

var (
	bucketVisited = []byte("visited")
	bucketBodies  = []byte("bodies")
	bucketMeta    = []byte("meta")
)

// BoltStore is a file-backed Store: one bbolt database, one bucket per
// concern, wireformat-encoded records written on every Put.
type BoltStore struct {
	mu       sync.Mutex
	db       *bolt.DB
	compress bool

	order []string

	byType   map[ContentType]int
	totalLen int64
	notices  []Notice
	finalUA  string
}

// OpenBoltStore opens (creating if absent) a bbolt database at path. When
// compress is true, bodies are gzip-compressed before storage, mirroring
// the cache's own --http-cache-compression flag.
func OpenBoltStore(path string, compress bool) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("status: open bolt db %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketVisited, bucketBodies, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %q: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db, compress: compress, byType: make(map[ContentType]int)}, nil
}

func (s *BoltStore) AddVisitedUrl(v VisitedUrl) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVisited)
		if b.Get([]byte(v.UqId)) != nil {
			existed = true
			return nil
		}
		rec := wireformat.VisitedRecord{
			UqId:                 v.UqId,
			SourceUqId:           v.SourceUqId,
			Url:                  v.Url,
			StatusCode:           int32(v.StatusCode),
			RequestMicros:        v.RequestMicros,
			Size:                 v.Size,
			ContentType:          string(v.ContentType),
			IsExternal:           v.IsExternal,
			IsAllowedForCrawling: v.IsAllowedForCrawling,
			SkippedReason:        v.SkippedReason,
			MirrorPath:           v.MirrorPath,
		}
		return b.Put([]byte(v.UqId), rec.Marshal())
	})
	if err != nil || existed {
		return false
	}
	s.order = append(s.order, v.UqId)
	s.byType[v.ContentType]++
	s.totalLen += v.Size
	return true
}

func (s *BoltStore) GetVisitedUrl(uqId string) (VisitedUrl, bool) {
	var out VisitedUrl
	var found bool
	s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketVisited).Get([]byte(uqId))
		if raw == nil {
			return nil
		}
		rec, err := wireformat.UnmarshalVisitedRecord(raw)
		if err != nil {
			// Corrupted record: treated as absent, same policy as the cache.
			return nil
		}
		out = fromRecord(rec)
		found = true
		return nil
	})
	return out, found
}

func fromRecord(rec wireformat.VisitedRecord) VisitedUrl {
	return VisitedUrl{
		UqId:                 rec.UqId,
		SourceUqId:           rec.SourceUqId,
		Url:                  rec.Url,
		StatusCode:           int(rec.StatusCode),
		RequestMicros:        rec.RequestMicros,
		Size:                 rec.Size,
		ContentType:          ContentType(rec.ContentType),
		IsExternal:           rec.IsExternal,
		IsAllowedForCrawling: rec.IsAllowedForCrawling,
		SkippedReason:        rec.SkippedReason,
		MirrorPath:           rec.MirrorPath,
	}
}

func (s *BoltStore) GetVisitedUrls() []VisitedUrl {
	s.mu.Lock()
	order := append([]string(nil), s.order...)
	s.mu.Unlock()

	out := make([]VisitedUrl, 0, len(order))
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVisited)
		for _, id := range order {
			raw := b.Get([]byte(id))
			if raw == nil {
				continue
			}
			rec, err := wireformat.UnmarshalVisitedRecord(raw)
			if err != nil {
				continue
			}
			out = append(out, fromRecord(rec))
		}
		return nil
	})
	return out
}

func (s *BoltStore) SetBody(uqId string, body []byte) error {
	payload := body
	if s.compress {
		var buf bytes.Buffer
		gw := kgzip.NewWriter(&buf)
		if _, err := gw.Write(body); err != nil {
			return err
		}
		if err := gw.Close(); err != nil {
			return err
		}
		payload = buf.Bytes()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBodies).Put([]byte(uqId), payload)
	})
}

func (s *BoltStore) GetBody(uqId string) ([]byte, bool) {
	var out []byte
	var found bool
	s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketBodies).Get([]byte(uqId))
		if raw == nil {
			return nil
		}
		found = true
		if !s.compress {
			out = append([]byte(nil), raw...)
			return nil
		}
		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			found = false
			return nil
		}
		defer gr.Close()
		decoded, err := io.ReadAll(gr)
		if err != nil {
			found = false
			return nil
		}
		out = decoded
		return nil
	})
	return out, found
}

func (s *BoltStore) SetFinalUserAgent(ua string) {
	s.mu.Lock()
	s.finalUA = ua
	s.mu.Unlock()
	s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte("final-user-agent"), []byte(ua))
	})
}

func (s *BoltStore) AddNotice(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
}

func (s *BoltStore) Notices() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notice, len(s.notices))
	copy(out, s.notices)
	return out
}

func (s *BoltStore) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	byType := make(map[ContentType]int, len(s.byType))
	for k, v := range s.byType {
		byType[k] = v
	}
	return Summary{
		TotalVisited:   len(s.order),
		TotalBytes:     s.totalLen,
		ByContentType:  byType,
		TotalNotices:   len(s.notices),
		FinalUserAgent: s.finalUA,
	}
}

func (s *BoltStore) SetMirrorPath(uqId, path string) bool {
	v, ok := s.GetVisitedUrl(uqId)
	if !ok {
		return false
	}
	v.MirrorPath = path
	err := s.db.Update(func(tx *bolt.Tx) error {
		rec := wireformat.VisitedRecord{
			UqId: v.UqId, SourceUqId: v.SourceUqId, Url: v.Url,
			StatusCode: int32(v.StatusCode), RequestMicros: v.RequestMicros,
			Size: v.Size, ContentType: string(v.ContentType),
			IsExternal: v.IsExternal, IsAllowedForCrawling: v.IsAllowedForCrawling,
			SkippedReason: v.SkippedReason, MirrorPath: v.MirrorPath,
		}
		return tx.Bucket(bucketVisited).Put([]byte(uqId), rec.Marshal())
	})
	return err == nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
