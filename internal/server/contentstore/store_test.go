package contentstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/evidencekeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	name  string
	data  []byte
	err   error
	calls int32
	gotID string
}

func (f *fakeGateway) Name() string { return f.name }

func (f *fakeGateway) Fetch(ctx context.Context, cid string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	f.gotID = cid
	return f.data, f.err
}

type fakeUploader struct {
	cid     string
	err     error
	gotName string
}

func (f *fakeUploader) Upload(ctx context.Context, r io.Reader, name string) (string, error) {
	f.gotName = name
	return f.cid, f.err
}

func newTestStore(gws []Gateway, maxAttempts int) *Store {
	return NewStore(nil, gws, Options{
		ResolveBase: "https://gateway.pinata.cloud/ipfs/",
		MaxAttempts: maxAttempts,
	}, logging.NewDiscard())
}

func TestStore_Retrieve_FallsThroughToSecondGateway(t *testing.T) {
	g1 := &fakeGateway{name: "g1", err: errors.New("connection refused")}
	g2 := &fakeGateway{name: "g2", data: []byte("payload")}
	g3 := &fakeGateway{name: "g3", data: []byte("other")}

	blob, err := newTestStore([]Gateway{g1, g2, g3}, 3).Retrieve(context.Background(), "ipfs://bafy123")
	require.NoError(t, err)

	assert.Equal(t, []byte("payload"), blob.Data)
	assert.Equal(t, "g2", blob.Gateway)
	assert.EqualValues(t, 1, g1.calls)
	assert.EqualValues(t, 1, g2.calls)
	assert.EqualValues(t, 0, g3.calls)
	assert.Equal(t, "bafy123", g2.gotID)
}

func TestStore_Retrieve_Exhausted(t *testing.T) {
	g1 := &fakeGateway{name: "g1", err: errors.New("503")}
	g2 := &fakeGateway{name: "g2", err: errors.New("timeout")}

	_, err := newTestStore([]Gateway{g1, g2}, 0).Retrieve(context.Background(), "bafy")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrievalExhausted)
	assert.Contains(t, err.Error(), "g1")
	assert.Contains(t, err.Error(), "g2")
}

func TestStore_Retrieve_CapsAttempts(t *testing.T) {
	g1 := &fakeGateway{name: "g1", err: errors.New("down")}
	g2 := &fakeGateway{name: "g2", err: errors.New("down")}
	g3 := &fakeGateway{name: "g3", data: []byte("never reached")}

	_, err := newTestStore([]Gateway{g1, g2, g3}, 2).Retrieve(context.Background(), "bafy")
	assert.ErrorIs(t, err, ErrRetrievalExhausted)
	assert.EqualValues(t, 0, g3.calls)
}

func TestStore_Retrieve_EmptyCIDAndNoGateways(t *testing.T) {
	_, err := newTestStore(nil, 3).Retrieve(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrRetrievalExhausted)

	_, err = newTestStore(nil, 3).Retrieve(context.Background(), "bafy")
	assert.ErrorIs(t, err, ErrRetrievalExhausted)
}

func TestStore_Retrieve_StopsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g1 := &fakeGateway{name: "g1", err: context.Canceled}
	g2 := &fakeGateway{name: "g2", data: []byte("x")}

	_, err := newTestStore([]Gateway{g1, g2}, 0).Retrieve(ctx, "bafy")
	assert.ErrorIs(t, err, ErrRetrievalExhausted)
	assert.EqualValues(t, 0, g2.calls)
}

func TestStore_Resolve(t *testing.T) {
	s := newTestStore(nil, 0)
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/bafy", s.Resolve("bafy"))
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/bafy", s.Resolve("ipfs://bafy"))
}

func TestStore_Retrieve_OverHTTPGateways(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not pinned yet", http.StatusGatewayTimeout)
	}))
	defer down.Close()

	var path string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte("hello world!"))
	}))
	defer up.Close()

	s := NewStore(nil, []Gateway{
		NewHTTPGateway(down.URL+"/ipfs/", down.Client(), 0),
		NewHTTPGateway(up.URL+"/ipfs", up.Client(), 0),
	}, Options{MaxAttempts: 3, AttemptTimeout: 5 * time.Second}, logging.NewDiscard())

	blob, err := s.Retrieve(context.Background(), "bafyabc")
	require.NoError(t, err)
	assert.Equal(t, "hello world!", string(blob.Data))
	assert.Equal(t, "/ipfs/bafyabc", path)
	assert.True(t, strings.HasPrefix(blob.Gateway, up.URL))
}

func TestHTTPGateway_MaxSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	_, err := NewHTTPGateway(srv.URL, srv.Client(), 5).Fetch(context.Background(), "cid")
	assert.Error(t, err)

	data, err := NewHTTPGateway(srv.URL, srv.Client(), 10).Fetch(context.Background(), "cid")
	require.NoError(t, err)
	assert.Len(t, data, 10)
}

func TestCleanCID(t *testing.T) {
	assert.Equal(t, "bafy", CleanCID(" ipfs://bafy "))
	assert.Equal(t, "bafy", CleanCID("bafy"))
	assert.Equal(t, "", CleanCID(""))
}

func TestStore_Upload_Delegates(t *testing.T) {
	u := &fakeUploader{cid: "bafy"}
	s := NewStore(u, nil, Options{}, logging.NewDiscard())

	cid, err := s.Upload(context.Background(), strings.NewReader("x"), "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "bafy", cid)
	assert.Equal(t, "clip.mp4", u.gotName)

	u.err = ErrForbidden
	_, err = s.Upload(context.Background(), strings.NewReader("x"), "clip.mp4")
	assert.ErrorIs(t, err, ErrForbidden)
}
