package dialer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainValidate(t *testing.T) {
	t.Parallel()

	target := Endpoint{Host: "irc.example", Port: 6697}
	proxy := SocksLayer{Proxy: Endpoint{Host: "127.0.0.1", Port: 1080}}
	tunnel := SSHLayer{Server: Endpoint{Host: "bastion.example", Port: 22}, User: "u", Password: "p"}

	tests := []struct {
		name    string
		target  Endpoint
		layers  []Layer
		wantErr error
	}{
		{name: "raw", target: target, layers: []Layer{RawLayer{}}},
		{name: "raw tls", target: target, layers: []Layer{RawLayer{}, TLSLayer{}}},
		{name: "raw socks", target: target, layers: []Layer{RawLayer{}, proxy}},
		{name: "raw socks tls", target: target, layers: []Layer{RawLayer{}, proxy, TLSLayer{VerifyName: "irc.example"}}},
		{name: "raw ssh tls", target: target, layers: []Layer{RawLayer{}, tunnel, TLSLayer{InsecureSkipVerify: true}}},
		{name: "missing target host", target: Endpoint{Port: 6667}, layers: []Layer{RawLayer{}}, wantErr: ErrNoTarget},
		{name: "missing target port", target: Endpoint{Host: "irc.example"}, layers: []Layer{RawLayer{}}, wantErr: ErrNoTarget},
		{name: "no layers", target: target, wantErr: ErrRawNotFirst},
		{name: "tls first", target: target, layers: []Layer{TLSLayer{}}, wantErr: ErrRawNotFirst},
		{name: "raw twice", target: target, layers: []Layer{RawLayer{}, RawLayer{}}, wantErr: ErrRawNotFirst},
		{name: "tls below socks", target: target, layers: []Layer{RawLayer{}, TLSLayer{}, proxy}, wantErr: ErrLayerOrder},
		{name: "tls twice", target: target, layers: []Layer{RawLayer{}, TLSLayer{}, TLSLayer{}}, wantErr: ErrLayerOrder},
		{name: "socks twice", target: target, layers: []Layer{RawLayer{}, proxy, proxy}, wantErr: ErrDuplicateTunnel},
		{name: "socks and ssh", target: target, layers: []Layer{RawLayer{}, tunnel, proxy}, wantErr: ErrDuplicateTunnel},
		{name: "socks without address", target: target, layers: []Layer{RawLayer{}, SocksLayer{}}, wantErr: ErrMissingLayerAddr},
		{name: "ssh without address", target: target, layers: []Layer{RawLayer{}, SSHLayer{User: "u"}}, wantErr: ErrMissingLayerAddr},
		{
			name:    "insecure with verify name",
			target:  target,
			layers:  []Layer{RawLayer{}, TLSLayer{VerifyName: "irc.example", InsecureSkipVerify: true}},
			wantErr: ErrInsecureVerify,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, err := NewChain(tt.target, tt.layers...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, c.Target)
		})
	}
}

func TestChainFirstHop(t *testing.T) {
	t.Parallel()

	target := Endpoint{Host: "irc.example", Port: 6667}
	proxy := Endpoint{Host: "127.0.0.1", Port: 1080}
	server := Endpoint{Host: "bastion.example", Port: 22}

	assert.Equal(t, target, Chain{Target: target, Layers: []Layer{RawLayer{}, TLSLayer{}}}.firstHop())
	assert.Equal(t, proxy, Chain{Target: target, Layers: []Layer{RawLayer{}, SocksLayer{Proxy: proxy}}}.firstHop())
	assert.Equal(t, server, Chain{Target: target, Layers: []Layer{RawLayer{}, SSHLayer{Server: server}}}.firstHop())
}

func TestChainString(t *testing.T) {
	t.Parallel()

	c := Chain{
		Target: Endpoint{Host: "irc.example", Port: 6697},
		Layers: []Layer{RawLayer{}, SocksLayer{Proxy: Endpoint{Host: "::1", Port: 1080}}, TLSLayer{}},
	}
	assert.Equal(t, "tcp+socks5+tls://irc.example:6697", c.String())
	assert.Equal(t, "[::1]:1080", Endpoint{Host: "::1", Port: 1080}.String())
}

func TestNewChainCopiesLayers(t *testing.T) {
	t.Parallel()

	layers := []Layer{RawLayer{}, TLSLayer{}}
	c, err := NewChain(Endpoint{Host: "irc.example", Port: 6697}, layers...)
	require.NoError(t, err)

	layers[1] = SocksLayer{}
	assert.Equal(t, TLSLayer{}, c.Layers[1])
}

func TestInfoString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tcp", Info{Layers: []string{"tcp"}}.String())
	assert.Equal(t, "tcp+tls tls=AB:CD", Info{Layers: []string{"tcp", "tls"}, PeerFingerprint: "AB:CD"}.String())
}
