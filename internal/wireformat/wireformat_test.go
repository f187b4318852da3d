package wireformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRecordRoundTrip(t *testing.T) {
	rec := CacheRecord{
		StatusCode: 200,
		Headers: []HeaderField{
			{Key: "content-type", Value: "text/html"},
			{Key: "set-cookie", Value: "a=1, b=2"},
		},
		Body:       []byte("<html></html>"),
		ExecMicros: 12345,
	}
	data := rec.Marshal()
	got, err := UnmarshalCacheRecord(data)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestCacheRecordEmptyBody(t *testing.T) {
	rec := CacheRecord{StatusCode: 204}
	data := rec.Marshal()
	got, err := UnmarshalCacheRecord(data)
	require.NoError(t, err)
	assert.Equal(t, int32(204), got.StatusCode)
	assert.Empty(t, got.Body)
}

func TestCacheRecordTruncatedIsError(t *testing.T) {
	rec := CacheRecord{StatusCode: 200, Body: []byte("hello world")}
	data := rec.Marshal()
	_, err := UnmarshalCacheRecord(data[:len(data)-3])
	assert.Error(t, err)
}

func TestVisitedRecordRoundTrip(t *testing.T) {
	rec := VisitedRecord{
		UqId:                 "abc123",
		SourceUqId:           "seed",
		Url:                  "https://siteone.io/page",
		StatusCode:           200,
		RequestMicros:        4200,
		Size:                 1024,
		ContentType:          "HTML",
		IsExternal:           false,
		IsAllowedForCrawling: true,
		SkippedReason:        "",
		MirrorPath:           "/page.html",
	}
	data := rec.Marshal()
	got, err := UnmarshalVisitedRecord(data)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestVisitedRecordNegativeStatus(t *testing.T) {
	rec := VisitedRecord{Url: "https://does-not-exist-xyzzy.example/", StatusCode: -1}
	data := rec.Marshal()
	got, err := UnmarshalVisitedRecord(data)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), got.StatusCode)
}
