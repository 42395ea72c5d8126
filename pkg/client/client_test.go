package client

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/corescale/pkg/api"
	"github.com/cuemby/corescale/pkg/instancemanager"
	"github.com/cuemby/corescale/pkg/instancestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *instancemanager.InstanceManager) {
	t.Helper()
	im, err := instancemanager.New(instancestore.NewMemStore())
	require.NoError(t, err)
	srv := api.NewServer(im)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, im
}

func addrOf(ts *httptest.Server) string {
	return strings.TrimPrefix(ts.URL, "http://")
}

func TestClientGetState(t *testing.T) {
	ts, im := newTestServer(t)
	_, err := im.Update(0, instancemanager.Batch{
		Creates: []instancemanager.CreateInstance{{InstanceID: "i-1", InstanceType: "cpu-4"}},
	}, time.Now())
	require.NoError(t, err)

	c := NewClient(addrOf(ts))
	instances, version, err := c.GetState()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	require.Len(t, instances, 1)
	assert.Equal(t, "i-1", instances[0].InstanceID)
}

func TestClientUpdate(t *testing.T) {
	ts, _ := newTestServer(t)

	c := NewClient(addrOf(ts))
	version, err := c.Update(0, instancemanager.Batch{
		Creates: []instancemanager.CreateInstance{{InstanceID: "i-1", InstanceType: "cpu-4"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestClientUpdateVersionConflict(t *testing.T) {
	ts, _ := newTestServer(t)

	c := NewClient(addrOf(ts))
	_, err := c.Update(5, instancemanager.Batch{
		Creates: []instancemanager.CreateInstance{{InstanceID: "i-1", InstanceType: "cpu-4"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 409")
}

func TestClientGetStateUnreachable(t *testing.T) {
	c := NewClient("127.0.0.1:1")
	_, _, err := c.GetState()
	assert.Error(t, err)
}
