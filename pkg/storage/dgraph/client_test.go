package dgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jsonload/jsonload/pkg/storage"
)

func TestParseAddr(t *testing.T) {
	tests := []struct {
		addr     string
		target   string
		tls      bool
		errorMsg string
	}{
		{addr: "localhost:9080", target: "localhost:9080"},
		{addr: "http://alpha:9080", target: "alpha:9080"},
		{addr: "https://cloud.example.com:443", target: "cloud.example.com:443", tls: true},
		{addr: "", errorMsg: "empty dgraph address"},
		{addr: "ftp://alpha:9080", errorMsg: `unsupported scheme "ftp"`},
		{addr: "http://", errorMsg: "missing host"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			target, useTLS, err := ParseAddr(tt.addr)
			if tt.errorMsg != "" {
				require.ErrorContains(t, err, tt.errorMsg)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.target, target)
			require.Equal(t, tt.tls, useTLS)
		})
	}
}

func TestNewClientDoesNotDial(t *testing.T) {
	// grpc.NewClient connects lazily, so building a client never touches the network.
	c, err := NewClient(context.Background(), ClientConfig{Addr: "localhost:1"})
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestToAPIMutations(t *testing.T) {
	out := toAPIMutations([]storage.Mutation{
		{SetJSON: []byte(`[{"uid":"uid(v_0_1)","name":"A"}]`), Cond: "@if(eq(len(v_0_1), 0))"},
		{SetJSON: []byte(`[{"uid":"uid(v_0_1)"}]`)},
	})
	require.Len(t, out, 2)
	require.Equal(t, `[{"uid":"uid(v_0_1)","name":"A"}]`, string(out[0].GetSetJson()))
	require.Equal(t, "@if(eq(len(v_0_1), 0))", out[0].GetCond())
	require.Empty(t, out[1].GetCond())
}
