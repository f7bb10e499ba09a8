package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hubServer(t *testing.T, total int, failFirst int32) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/rows", r.URL.Path)
		assert.Equal(t, "arxiv", r.URL.Query().Get("dataset"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		length, _ := strconv.Atoi(r.URL.Query().Get("length"))

		type row struct {
			RowIdx int    `json:"row_idx"`
			Row    Record `json:"row"`
		}
		rows := []row{}
		for i := offset; i < offset+length && i < total; i++ {
			rows = append(rows, row{RowIdx: i, Row: Record{
				Abstract:   "abstract " + strconv.Itoa(i),
				Categories: "cs.LG",
			}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"rows":           rows,
			"num_rows_total": total,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestHubSourcePaging(t *testing.T) {
	srv, calls := hubServer(t, 7, 0)
	src := NewHubSource(HubConfig{BaseURL: srv.URL, Dataset: "arxiv", PageSize: 3}, nil)

	var got []Record
	err := src.Each(context.Background(), func(r Record) bool {
		got = append(got, r)
		return true
	})
	require.NoError(t, err)
	assert.Len(t, got, 7)
	assert.Equal(t, "abstract 6", got[6].Abstract)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestHubSourceStopsEarly(t *testing.T) {
	srv, calls := hubServer(t, 100, 0)
	src := NewHubSource(HubConfig{BaseURL: srv.URL, Dataset: "arxiv", PageSize: 10}, nil)

	n := 0
	err := src.Each(context.Background(), func(Record) bool {
		n++
		return n < 4
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestHubSourceRetriesTransientErrors(t *testing.T) {
	srv, _ := hubServer(t, 2, 2)
	src := NewHubSource(HubConfig{
		BaseURL:    srv.URL,
		Dataset:    "arxiv",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, nil)

	n := 0
	err := src.Each(context.Background(), func(Record) bool { n++; return true })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHubSourceGivesUp(t *testing.T) {
	srv, _ := hubServer(t, 2, 10)
	src := NewHubSource(HubConfig{
		BaseURL:    srv.URL,
		Dataset:    "arxiv",
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}, nil)

	err := src.Each(context.Background(), func(Record) bool { return true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	content := `{"abstract":"first","categories":"math.AG"}

{"abstract":"second","categories":"cs.AI cs.LG"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	src := &FileSource{Path: path}
	var got []Record
	require.NoError(t, src.Each(context.Background(), func(r Record) bool {
		got = append(got, r)
		return true
	}))
	require.Len(t, got, 2)
	assert.Equal(t, "math.AG", got[0].Categories)
	assert.Equal(t, "file:"+path, src.Name())
}

func TestFileSourceMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"abstract\":\"ok\"}\nnot json\n"), 0o644))

	err := (&FileSource{Path: path}).Each(context.Background(), func(Record) bool { return true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2:")
}
