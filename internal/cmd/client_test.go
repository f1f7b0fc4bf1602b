package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/btkvm/apiclient"
	"github.com/Alia5/btkvm/apitypes"
)

type call struct {
	path    string
	payload any
	params  map[string]string
}

func mockAPI(t *testing.T, responses map[string]string) (*apiclient.Client, *[]call) {
	t.Helper()
	var calls []call
	c := apiclient.WithTransport(apiclient.NewMockTransport(func(path string, payload any, params map[string]string) (string, error) {
		calls = append(calls, call{path, payload, params})
		res, ok := responses[path]
		if !ok {
			return "", errors.New("unexpected path " + path)
		}
		return res, nil
	}))
	return c, &calls
}

const infoDoc = `{"clients":[` +
	`{"name":"Laptop","address":"AA:AA:AA:AA:AA:AA","isConnected":true,"isHost":true},` +
	`{"name":"Tablet","address":"BB:BB:BB:BB:BB:BB","isConnected":false,"isHost":false}]}`

func TestClientCommands(t *testing.T) {
	const addr = "AA:AA:AA:AA:AA:AA"
	tests := []struct {
		name      string
		run       func(ctx context.Context, api *apiclient.Client, w io.Writer) error
		responses map[string]string
		wantPath  string
		wantOut   string
	}{
		{
			name:      "clients",
			run:       (&Clients{}).exec,
			responses: map[string]string{"clients/names": `{"clients":["Laptop","Tablet"]}`},
			wantPath:  "clients/names",
			wantOut:   "* Laptop\n  Tablet\n",
		},
		{
			name:      "clients info",
			run:       (&Clients{Info: true}).exec,
			responses: map[string]string{"clients/info": infoDoc},
			wantPath:  "clients/info",
			wantOut: "* AA:AA:AA:AA:AA:AA  connected  Laptop\n" +
				"  BB:BB:BB:BB:BB:BB  offline    Tablet\n",
		},
		{
			name:      "switch",
			run:       (&Switch{Address: addr}).exec,
			responses: map[string]string{"host/switch": `{"clients":["Laptop"]}`},
			wantPath:  "host/switch",
			wantOut:   "* Laptop\n",
		},
		{
			name:      "next",
			run:       (&Next{}).exec,
			responses: map[string]string{"host/next": `{"clients":["Tablet","Laptop"]}`},
			wantPath:  "host/next",
			wantOut:   "* Tablet\n  Laptop\n",
		},
		{
			name: "connect",
			run: func(ctx context.Context, api *apiclient.Client, w io.Writer) error {
				return clientAction("connect", addr, w)(ctx, api)
			},
			responses: map[string]string{"clients/{address}/connect": `{"address":"AA:AA:AA:AA:AA:AA"}`},
			wantPath:  "clients/{address}/connect",
			wantOut:   "connect: AA:AA:AA:AA:AA:AA\n",
		},
		{
			name: "remove",
			run: func(ctx context.Context, api *apiclient.Client, w io.Writer) error {
				return clientAction("remove", addr, w)(ctx, api)
			},
			responses: map[string]string{"clients/{address}/remove": `{"address":"AA:AA:AA:AA:AA:AA"}`},
			wantPath:  "clients/{address}/remove",
			wantOut:   "remove: AA:AA:AA:AA:AA:AA\n",
		},
		{
			name:      "reorder",
			run:       (&Reorder{Address: addr, Direction: "down"}).exec,
			responses: map[string]string{"clients/{address}/reorder": infoDoc},
			wantPath:  "clients/{address}/reorder",
			wantOut: "* AA:AA:AA:AA:AA:AA  connected  Laptop\n" +
				"  BB:BB:BB:BB:BB:BB  offline    Tablet\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, calls := mockAPI(t, tt.responses)
			var out bytes.Buffer
			require.NoError(t, tt.run(context.Background(), api, &out))
			require.Len(t, *calls, 1)
			assert.Equal(t, tt.wantPath, (*calls)[0].path)
			assert.Equal(t, tt.wantOut, out.String())
		})
	}
}

func TestClientCommandPayloads(t *testing.T) {
	api, calls := mockAPI(t, map[string]string{
		"clients/{address}/reorder": infoDoc,
		"host/switch":               `{"clients":["Laptop"]}`,
	})
	ctx := context.Background()
	require.NoError(t, (&Reorder{Address: "aa:aa:aa:aa:aa:aa", Direction: "up"}).exec(ctx, api, io.Discard))
	require.NoError(t, (&Switch{Address: "BB:BB:BB:BB:BB:BB"}).exec(ctx, api, io.Discard))

	require.Len(t, *calls, 2)
	assert.Equal(t, "up", (*calls)[0].payload)
	assert.Equal(t, map[string]string{"address": "aa:aa:aa:aa:aa:aa"}, (*calls)[0].params)
	assert.Equal(t, "BB:BB:BB:BB:BB:BB", (*calls)[1].payload)
}

func TestClientCommandProblem(t *testing.T) {
	api, _ := mockAPI(t, map[string]string{
		"clients/{address}/disconnect": `{"status":404,"title":"Not Found","detail":"unknown client: CC:CC:CC:CC:CC:CC"}`,
	})
	err := clientAction("disconnect", "CC:CC:CC:CC:CC:CC", io.Discard)(context.Background(), api)
	var apiErr *apitypes.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
}

type fakeStream struct {
	events []apitypes.Event
	err    error
}

func (s *fakeStream) Next() (apitypes.Event, error) {
	if len(s.events) == 0 {
		return apitypes.Event{}, s.err
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func TestFollow(t *testing.T) {
	events := []apitypes.Event{
		{Kind: "hostChanged", Clients: []string{"Laptop", "Tablet"}},
		{Kind: "clientsChanged", Clients: []string{"Laptop"}},
	}

	var out bytes.Buffer
	require.NoError(t, follow(context.Background(), &fakeStream{events: events, err: io.EOF}, &out))
	assert.Equal(t, "hostChanged\tLaptop, Tablet\nclientsChanged\tLaptop\n", out.String())

	boom := errors.New("boom")
	assert.ErrorIs(t, follow(context.Background(), &fakeStream{err: boom}, io.Discard), boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, follow(ctx, &fakeStream{err: boom}, io.Discard), "errors after cancel end the stream quietly")
}

func TestAPIFlagsPassword(t *testing.T) {
	f := &APIFlags{Password: "secret"}
	pwd, err := f.password()
	require.NoError(t, err)
	assert.Equal(t, "secret", pwd)

	f = &APIFlags{Password: "secret", NoAuth: true}
	pwd, err = f.password()
	require.NoError(t, err)
	assert.Empty(t, pwd)
}
