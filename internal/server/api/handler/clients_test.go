package handler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/btkvm/apiclient"
	"github.com/Alia5/btkvm/internal/server/api"
	"github.com/Alia5/btkvm/internal/server/api/handler"
	th "github.com/Alia5/btkvm/internal/testing"
)

const (
	addrA = "AA:AA:AA:AA:AA:AA"
	addrB = "BB:BB:BB:BB:BB:BB"
	addrC = "CC:CC:CC:CC:CC:CC"
)

func start(t *testing.T, f *th.Fixture) *apiclient.Transport {
	t.Helper()
	addr, done := th.StartAPIServer(t, f, "", func(r *api.Router, f *th.Fixture) {
		handler.Register(r, f.KVM, "test")
	})
	t.Cleanup(done)
	return apiclient.NewTransport(addr)
}

func twoClients(t *testing.T) *th.Fixture {
	return th.NewFixture(t, th.FixtureOptions{},
		th.NewFakeClient(addrA, "Alpha"),
		th.NewFakeClient(addrB, "Bravo"),
	)
}

func TestPing(t *testing.T) {
	c := start(t, twoClients(t))
	line, err := c.Do("ping", nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"server":"btkvm","version":"test"}`, line)
}

func TestClientsNamesAndInfo(t *testing.T) {
	tests := []struct {
		name    string
		clients []*th.FakeClient
		path    string
		want    string
	}{
		{
			name: "names without an active host",
			path: "clients/names",
			want: `{"clients":[""]}`,
		},
		{
			name:    "names start at the active host",
			clients: []*th.FakeClient{th.NewFakeClient(addrA, "Alpha"), th.NewFakeClient(addrB, "Bravo")},
			path:    "clients/names",
			want:    `{"clients":["Alpha","Bravo"]}`,
		},
		{
			name:    "info lists every client",
			clients: []*th.FakeClient{th.NewFakeClient(addrA, "Alpha"), th.NewFakeClient(addrB, "Bravo")},
			path:    "clients/info",
			want: `{"clients":[
				{"name":"Alpha","address":"AA:AA:AA:AA:AA:AA","isConnected":true,"isHost":true},
				{"name":"Bravo","address":"BB:BB:BB:BB:BB:BB","isConnected":true,"isHost":false}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := start(t, th.NewFixture(t, th.FixtureOptions{}, tt.clients...))
			line, err := c.Do(tt.path, nil, nil)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, line)
		})
	}
}

func TestClientConnectDisconnect(t *testing.T) {
	f := twoClients(t)
	c := start(t, f)
	params := map[string]string{"address": "bb:bb:bb:bb:bb:bb"}

	line, err := c.Do("clients/{address}/disconnect", nil, params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":"BB:BB:BB:BB:BB:BB"}`, line)
	assert.False(t, f.Clients[1].IsAlive())

	line, err = c.Do("clients/{address}/connect", nil, params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":"BB:BB:BB:BB:BB:BB"}`, line)
	assert.Equal(t, 1, f.Clients[1].Connects())
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		address string
		payload any
		status  string
	}{
		{"unknown connect", "clients/{address}/connect", addrC, nil, `"status":404`},
		{"unknown disconnect", "clients/{address}/disconnect", addrC, nil, `"status":404`},
		{"unknown remove", "clients/{address}/remove", addrC, nil, `"status":404`},
		{"unknown reorder", "clients/{address}/reorder", addrC, "up", `"status":404`},
		{"malformed address", "clients/{address}/connect", "nope", nil, `"status":400`},
		{"bad direction", "clients/{address}/reorder", addrA, "sideways", `"status":400`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := start(t, twoClients(t))
			line, err := c.Do(tt.path, tt.payload, map[string]string{"address": tt.address})
			require.NoError(t, err)
			assert.Contains(t, line, tt.status)
		})
	}
}

func TestClientReorder(t *testing.T) {
	f := twoClients(t)
	c := start(t, f)

	line, err := c.Do("clients/{address}/reorder", "up", map[string]string{"address": addrB})
	require.NoError(t, err)
	assert.JSONEq(t, `{"clients":[
		{"name":"Bravo","address":"BB:BB:BB:BB:BB:BB","isConnected":true,"isHost":false},
		{"name":"Alpha","address":"AA:AA:AA:AA:AA:AA","isConnected":true,"isHost":true}]}`, line)

	// moving past the top is a no-op
	line, err = c.Do("clients/{address}/reorder", "up", map[string]string{"address": addrB})
	require.NoError(t, err)
	assert.Contains(t, line, `"clients"`)
}

func TestClientRemove(t *testing.T) {
	f := twoClients(t)
	c := start(t, f)

	line, err := c.Do("clients/{address}/remove", nil, map[string]string{"address": addrA})
	require.NoError(t, err)
	assert.JSONEq(t, `{"address":"AA:AA:AA:AA:AA:AA"}`, line)
	assert.Equal(t, []string{addrA}, f.Unpairer.Removed())
	assert.Len(t, f.KVM.ClientsInfo(), 1)
	assert.False(t, f.Clients[0].IsAlive())
}
