package events

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/notifier/internal/scope"
)

func mustScope(t *testing.T, path string) scope.Scope {
	t.Helper()
	sc, err := scope.Parse(path)
	require.NoError(t, err)
	return sc
}

func newCall(t *testing.T, method, path string, req http.Header, status int) Call {
	t.Helper()
	call, ok := NewCall(method, mustScope(t, path), req)
	require.True(t, ok)
	return call.WithResponse(status, http.Header{})
}

func TestVerbForMethod(t *testing.T) {
	cases := map[string]Verb{
		http.MethodPut:    VerbCreate,
		http.MethodPost:   VerbMetadataUpdate,
		http.MethodDelete: VerbDelete,
		MethodCopy:        VerbCopy,
	}
	for method, want := range cases {
		got, ok := VerbForMethod(method)
		assert.True(t, ok, method)
		assert.Equal(t, want, got, method)
	}

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPatch} {
		_, ok := VerbForMethod(method)
		assert.False(t, ok, method)
		assert.False(t, Notifiable(method), method)
	}
}

func TestIsSuccess(t *testing.T) {
	for _, status := range []int{200, 201, 202, 204} {
		assert.True(t, IsSuccess(status), status)
	}
	for _, status := range []int{0, 100, 206, 301, 304, 400, 404, 409, 500, 503} {
		assert.False(t, IsSuccess(status), status)
	}
}

func TestSynthesize_ObjectCreate(t *testing.T) {
	req := http.Header{}
	req.Set("X-Object-Meta-Color", "red")
	req.Set("X-Project-Id", "p-123")
	req.Set("X-Trans-Id", "tx-abc")

	lookup := http.Header{}
	lookup.Set("Last-Modified", "Tue, 01 Jan 2024 00:00:00 GMT")
	lookup.Set("Content-Length", "42")

	call := newCall(t, http.MethodPut, "/v1/acct/cont/obj", req, http.StatusCreated).WithLookup(lookup)

	ev, err := Synthesize(call)
	require.NoError(t, err)

	assert.Equal(t, "object.create", ev.Type)
	assert.Equal(t, "acct", ev.Payload[KeyAccount])
	assert.Equal(t, "cont", ev.Payload[KeyContainer])
	assert.Equal(t, "obj", ev.Payload[KeyObject])
	assert.Equal(t, "red", ev.Payload["x-object-meta-color"])
	assert.Equal(t, "Tue, 01 Jan 2024 00:00:00 GMT", ev.Payload[KeyLastModified])
	assert.Equal(t, int64(42), ev.Payload[KeyContentLength])
	assert.Equal(t, "p-123", ev.Payload[KeyProjectID])
	assert.Equal(t, "tx-abc", ev.Payload[KeyTransID])
}

func TestSynthesize_ContainerDelete(t *testing.T) {
	req := http.Header{}
	req.Set("X-Container-Meta-Ignored", "x")

	ev, err := Synthesize(newCall(t, http.MethodDelete, "/v1/acct/cont", req, http.StatusNoContent))
	require.NoError(t, err)

	assert.Equal(t, "container.delete", ev.Type)
	assert.Equal(t, Payload{
		KeyProjectID:         nil,
		KeyProjectName:       nil,
		KeyProjectDomainID:   nil,
		KeyProjectDomainName: nil,
		KeyTransID:           nil,
		KeyAccount:           "acct",
		KeyContainer:         "cont",
	}, ev.Payload)
}

func TestSynthesize_CopyDetection(t *testing.T) {
	t.Run("put with copy source becomes copy", func(t *testing.T) {
		req := http.Header{}
		req.Set("X-Copy-From", "/cont/obj1")

		ev, err := Synthesize(newCall(t, http.MethodPut, "/v1/acct/cont/obj2", req, http.StatusCreated))
		require.NoError(t, err)
		assert.Equal(t, "object.copy", ev.Type)
		assert.Equal(t, "cont", ev.Payload[KeyCopyFromContainer])
		assert.Equal(t, "obj1", ev.Payload[KeyCopyFromObject])
	})

	t.Run("leading slash is optional and object keeps slashes", func(t *testing.T) {
		req := http.Header{}
		req.Set("X-Copy-From", "src/dir/a%20b.txt")
		req.Set("X-Copy-From-Account", "other")

		ev, err := Synthesize(newCall(t, http.MethodPut, "/v1/acct/cont/obj", req, http.StatusCreated))
		require.NoError(t, err)
		assert.Equal(t, "src", ev.Payload[KeyCopyFromContainer])
		assert.Equal(t, "dir/a b.txt", ev.Payload[KeyCopyFromObject])
		assert.Equal(t, "other", ev.Payload[KeyCopyFromAccount])
	})

	t.Run("malformed copy source rejects the event", func(t *testing.T) {
		for _, value := range []string{"/cont", "cont", "/cont/", "//obj", "/c/%zz"} {
			req := http.Header{}
			req.Set("X-Copy-From", value)

			_, err := Synthesize(newCall(t, http.MethodPut, "/v1/acct/cont/obj", req, http.StatusCreated))
			assert.Error(t, err, value)
			assert.True(t, errors.Is(err, ErrMalformedCopySource), value)
		}
	})

	t.Run("copy verb records destination", func(t *testing.T) {
		req := http.Header{}
		req.Set("Destination", "dst/new.txt")
		req.Set("Destination-Account", "AUTH_b")

		ev, err := Synthesize(newCall(t, MethodCopy, "/v1/acct/cont/obj", req, http.StatusCreated))
		require.NoError(t, err)
		assert.Equal(t, "object.copy", ev.Type)
		assert.Equal(t, "dst", ev.Payload[KeyCopyToContainer])
		assert.Equal(t, "new.txt", ev.Payload[KeyCopyToObject])
		assert.Equal(t, "AUTH_b", ev.Payload[KeyCopyToAccount])
	})

	t.Run("malformed destination rejects the event", func(t *testing.T) {
		req := http.Header{}
		req.Set("Destination", "nowhere")

		_, err := Synthesize(newCall(t, MethodCopy, "/v1/acct/cont/obj", req, http.StatusCreated))
		assert.ErrorIs(t, err, ErrMalformedCopySource)
	})

	t.Run("delete ignores copy headers", func(t *testing.T) {
		req := http.Header{}
		req.Set("X-Copy-From", "garbage")

		ev, err := Synthesize(newCall(t, http.MethodDelete, "/v1/acct/cont/obj", req, http.StatusNoContent))
		require.NoError(t, err)
		assert.Equal(t, "object.delete", ev.Type)
	})
}

func TestSynthesize_FreshMetadata(t *testing.T) {
	for value, want := range map[string]bool{"true": true, "Yes": true, "1": true, "false": false, "0": false, "nope": false} {
		req := http.Header{}
		req.Set("X-Copy-From", "/c/o")
		req.Set("X-Fresh-Metadata", value)

		ev, err := Synthesize(newCall(t, http.MethodPut, "/v1/acct/cont/obj", req, http.StatusCreated))
		require.NoError(t, err)
		assert.Equal(t, want, ev.Payload[KeyFreshMetadata], value)
	}

	ev, err := Synthesize(newCall(t, http.MethodPut, "/v1/acct/cont/obj", http.Header{}, http.StatusCreated))
	require.NoError(t, err)
	assert.NotContains(t, ev.Payload, KeyFreshMetadata)
}

func TestSynthesize_ScopedMetadata(t *testing.T) {
	req := http.Header{}
	req.Set("X-Account-Meta-Quota", "10")
	req.Set("X-Remove-Account-Meta-Old", "1")
	req.Set("X-Container-Meta-Owner", "ops")
	req.Set("X-Remove-Container-Meta-Tag", "1")
	req.Set("X-Object-Meta-Color", "blue")
	req.Add("X-Object-Meta-Size", "first")
	req.Add("X-Object-Meta-Size", "second")

	t.Run("account scope only sees account metadata", func(t *testing.T) {
		ev, err := Synthesize(newCall(t, http.MethodPost, "/v1/acct", req, http.StatusNoContent))
		require.NoError(t, err)
		assert.Equal(t, "account.metadata_update", ev.Type)
		assert.Equal(t, "10", ev.Payload["x-account-meta-quota"])
		assert.Equal(t, "1", ev.Payload["x-remove-account-meta-old"])
		assert.NotContains(t, ev.Payload, "x-container-meta-owner")
		assert.NotContains(t, ev.Payload, "x-object-meta-color")
	})

	t.Run("container scope adds container metadata", func(t *testing.T) {
		ev, err := Synthesize(newCall(t, http.MethodPost, "/v1/acct/cont", req, http.StatusNoContent))
		require.NoError(t, err)
		assert.Equal(t, "container.metadata_update", ev.Type)
		assert.Equal(t, "ops", ev.Payload["x-container-meta-owner"])
		assert.Equal(t, "1", ev.Payload["x-remove-container-meta-tag"])
		assert.NotContains(t, ev.Payload, "x-object-meta-color")
	})

	t.Run("object scope sees every family and keeps the first value", func(t *testing.T) {
		ev, err := Synthesize(newCall(t, http.MethodPost, "/v1/acct/cont/obj", req, http.StatusAccepted))
		require.NoError(t, err)
		assert.Equal(t, "object.metadata_update", ev.Type)
		assert.Equal(t, "10", ev.Payload["x-account-meta-quota"])
		assert.Equal(t, "ops", ev.Payload["x-container-meta-owner"])
		assert.Equal(t, "blue", ev.Payload["x-object-meta-color"])
		assert.Equal(t, "first", ev.Payload["x-object-meta-size"])
	})

	t.Run("container create without metadata has identity and scope only", func(t *testing.T) {
		ev, err := Synthesize(newCall(t, http.MethodPut, "/v1/acct/cont", http.Header{}, http.StatusCreated))
		require.NoError(t, err)
		assert.Equal(t, "container.create", ev.Type)
		assert.Len(t, ev.Payload, 7)
	})
}

func TestSynthesize_ObjectFields(t *testing.T) {
	req := http.Header{}
	req.Set("X-Object-Meta-Mtime", "1704067200.5")

	resp := http.Header{}
	resp.Add("Etag", "d41d8cd98f00b204e9800998ecf8427e")
	resp.Add("Etag", "ignored")

	call, ok := NewCall(http.MethodPut, mustScope(t, "/v1/acct/cont/obj"), req)
	require.True(t, ok)
	call = call.WithResponse(http.StatusCreated, resp)

	ev, err := Synthesize(call)
	require.NoError(t, err)
	assert.Equal(t, "1704067200.5", ev.Payload["x-object-meta-mtime"])
	assert.Equal(t, "2024-01-01T00:00:00.500000", ev.Payload[KeyMtime])
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", ev.Payload[KeyHash])

	t.Run("container scope ignores etag", func(t *testing.T) {
		call, ok := NewCall(http.MethodPut, mustScope(t, "/v1/acct/cont"), http.Header{})
		require.True(t, ok)
		ev, err := Synthesize(call.WithResponse(http.StatusCreated, resp))
		require.NoError(t, err)
		assert.NotContains(t, ev.Payload, KeyHash)
	})

	t.Run("bad mtime keeps raw value only", func(t *testing.T) {
		req := http.Header{}
		req.Set("X-Object-Meta-Mtime", "yesterday")
		ev, err := Synthesize(newCall(t, http.MethodPut, "/v1/acct/cont/obj", req, http.StatusCreated))
		require.NoError(t, err)
		assert.Equal(t, "yesterday", ev.Payload["x-object-meta-mtime"])
		assert.NotContains(t, ev.Payload, KeyMtime)
	})
}

func TestSynthesize_LookupFields(t *testing.T) {
	lookup := http.Header{}
	lookup.Set("X-Timestamp", "1704067200.00000")
	lookup.Set("Last-Modified", "Mon, 01 Jan 2024 00:00:00 GMT")
	lookup.Set("Content-Length", "1024")

	t.Run("object", func(t *testing.T) {
		ev, err := Synthesize(newCall(t, http.MethodPut, "/v1/acct/cont/obj", nil, http.StatusCreated).WithLookup(lookup))
		require.NoError(t, err)
		assert.Equal(t, "2024-01-01T00:00:00.000000", ev.Payload[KeyUpdatedAt])
		assert.Equal(t, int64(1024), ev.Payload[KeyContentLength])
	})

	t.Run("container has no content length", func(t *testing.T) {
		ev, err := Synthesize(newCall(t, http.MethodPut, "/v1/acct/cont", nil, http.StatusCreated).WithLookup(lookup))
		require.NoError(t, err)
		assert.Equal(t, "2024-01-01T00:00:00.000000", ev.Payload[KeyUpdatedAt])
		assert.NotContains(t, ev.Payload, KeyContentLength)
	})

	t.Run("primary response headers are not lookup headers", func(t *testing.T) {
		call, ok := NewCall(http.MethodPut, mustScope(t, "/v1/acct/cont/obj"), nil)
		require.True(t, ok)
		ev, err := Synthesize(call.WithResponse(http.StatusCreated, lookup))
		require.NoError(t, err)
		assert.NotContains(t, ev.Payload, KeyUpdatedAt)
		assert.NotContains(t, ev.Payload, KeyLastModified)
		assert.NotContains(t, ev.Payload, KeyContentLength)
	})

	t.Run("unparsable content length is omitted", func(t *testing.T) {
		bad := http.Header{}
		bad.Set("Content-Length", "lots")
		ev, err := Synthesize(newCall(t, http.MethodPut, "/v1/acct/cont/obj", nil, http.StatusCreated).WithLookup(bad))
		require.NoError(t, err)
		assert.NotContains(t, ev.Payload, KeyContentLength)
	})
}

func TestSynthesize_TransIDFallsBackToResponse(t *testing.T) {
	resp := http.Header{}
	resp.Set("X-Trans-Id", "tx-from-proxy")

	call, ok := NewCall(http.MethodDelete, mustScope(t, "/v1/acct"), nil)
	require.True(t, ok)

	ev, err := Synthesize(call.WithResponse(http.StatusNoContent, resp))
	require.NoError(t, err)
	assert.Equal(t, "account.delete", ev.Type)
	assert.Equal(t, "tx-from-proxy", ev.Payload[KeyTransID])
}

func TestSynthesize_Idempotent(t *testing.T) {
	req := http.Header{}
	req.Set("X-Object-Meta-A", "1")
	req.Set("X-Object-Meta-B", "2")
	req.Set("X-Copy-From", "/c/o")
	req.Set("X-Fresh-Metadata", "true")
	lookup := http.Header{}
	lookup.Set("Content-Length", "7")

	call := newCall(t, http.MethodPut, "/v1/acct/cont/obj", req, http.StatusCreated).WithLookup(lookup)

	first, err := Synthesize(call)
	require.NoError(t, err)
	second, err := Synthesize(call)
	require.NoError(t, err)

	a, err := first.Payload.JSON()
	require.NoError(t, err)
	b, err := second.Payload.JSON()
	require.NoError(t, err)
	assert.Equal(t, first.Type, second.Type)
	assert.Equal(t, string(a), string(b))
}

func TestCall_DoesNotAliasHeaders(t *testing.T) {
	req := http.Header{}
	req.Set("X-Object-Meta-Color", "red")

	call, ok := NewCall(http.MethodPut, mustScope(t, "/v1/a/c/o"), req)
	require.True(t, ok)
	req.Set("X-Object-Meta-Color", "green")

	ev, err := Synthesize(call.WithResponse(http.StatusCreated, nil))
	require.NoError(t, err)
	assert.Equal(t, "red", ev.Payload["x-object-meta-color"])
}
