package main

import (
	"bytes"
	"testing"

	"github.com/go-i2p/go-relaychat/lib/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenAddrWithPort(t *testing.T) {
	assert.Equal(t, "0.0.0.0:9000", listenAddrWithPort("0.0.0.0:8080", "9000"))
	assert.Equal(t, "127.0.0.1:9000", listenAddrWithPort("127.0.0.1:8080", "9000"))
	assert.Equal(t, "0.0.0.0:8080", listenAddrWithPort("0.0.0.0:1234", "not-a-port"))
	assert.Equal(t, "0.0.0.0:8080", listenAddrWithPort("0.0.0.0:1234", "70000"))
}

func TestConfigCommandPrintsYAML(t *testing.T) {
	viper.Reset()
	t.Cleanup(func() {
		viper.Reset()
		config.CfgFile = ""
	})
	t.Setenv("HOME", t.TempDir())

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "listen_addr: 0.0.0.0:8080")
}
