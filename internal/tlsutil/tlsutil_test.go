package tlsutil

import (
	"crypto/tls"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfig(t *testing.T) {
	t.Parallel()

	cfg := ClientConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)

	secure := make(map[uint16]*tls.CipherSuite)
	for _, s := range tls.CipherSuites() {
		secure[s.ID] = s
	}
	for _, id := range cfg.CipherSuites {
		s, ok := secure[id]
		require.True(t, ok, "suite %#04x is not in the runtime's secure set", id)
		aead := strings.Contains(s.Name, "GCM") || strings.Contains(s.Name, "CHACHA20")
		assert.True(t, aead, "suite %s is not an AEAD construction", s.Name)
	}
}

func TestClientConfigIsFresh(t *testing.T) {
	t.Parallel()

	// Each caller gets its own suite slice; mutating one config must not
	// leak into the next.
	a := ClientConfig()
	a.CipherSuites[0] = 0
	b := ClientConfig()
	assert.NotEqual(t, uint16(0), b.CipherSuites[0])
}

func TestClient(t *testing.T) {
	t.Parallel()

	client := Client(5 * time.Second)
	require.NotNil(t, client)
	assert.Equal(t, 5*time.Second, client.Timeout)

	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.True(t, tr.ForceAttemptHTTP2)
	assert.Equal(t, 8, tr.MaxIdleConnsPerHost)
}
