package apiclient_test

import (
	"context"
	"testing"

	apiclient "github.com/Alia5/btkvm/apiclient"
	apitypes "github.com/Alia5/btkvm/apitypes"
	"github.com/Alia5/btkvm/internal/server/api"
	"github.com/Alia5/btkvm/internal/server/api/handler"
	th "github.com/Alia5/btkvm/internal/testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents_NotSupportedWithMockTransport(t *testing.T) {
	_, err := testClient(nil, nil, nil).Events(context.Background())
	assert.ErrorContains(t, err, "not supported with mock transport")
}

func TestEventsAgainstServer(t *testing.T) {
	for _, password := range []string{"", "hunter2"} {
		t.Run("password="+password, func(t *testing.T) {
			f := th.NewFixture(t, th.FixtureOptions{},
				th.NewFakeClient("AA:AA:AA:AA:AA:AA", "Alpha"),
				th.NewFakeClient("BB:BB:BB:BB:BB:BB", "Bravo"),
			)
			addr, done := th.StartAPIServer(t, f, password, func(r *api.Router, f *th.Fixture) {
				handler.Register(r, f.KVM, "test")
			})
			defer done()

			c := apiclient.NewWithPassword(addr, password)
			if password == "" {
				c = apiclient.New(addr)
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			stream, err := c.Events(ctx)
			require.NoError(t, err)
			defer stream.Close()

			ev, err := stream.Next()
			require.NoError(t, err)
			assert.Equal(t, apitypes.Event{Kind: "hostChanged", Clients: []string{"Alpha", "Bravo"}}, ev)

			names, err := c.NextHost(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"Bravo", "Alpha"}, names.Clients)

			ev, err = stream.Next()
			require.NoError(t, err)
			assert.Equal(t, apitypes.Event{Kind: "hostChanged", Clients: []string{"Bravo", "Alpha"}}, ev)

			cancel()
			_, err = stream.Next()
			assert.Error(t, err)
		})
	}
}
