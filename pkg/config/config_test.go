package config

import (
	"encoding/hex"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToNodeConfigOverridesDefaults(t *testing.T) {
	var c Config
	c.Network.NetworkID = 9
	c.Consensus.InitialDifficulty = 3
	c.Consensus.TargetBlockTimeMs = 5000
	c.Block.MaxTransactionsPerBlock = 20
	c.Block.MinerReward = 25
	c.VM.EnableSmartContracts = false
	c.Storage.StorageKeyHex = hex.EncodeToString(make([]byte, 32))
	c.Node.SecretKeyHex = hex.EncodeToString(make([]byte, 32))

	nodeCfg, err := c.ToNodeConfig()
	require.NoError(t, err)
	require.Equal(t, uint32(9), nodeCfg.NetworkID)
	require.Equal(t, uint32(3), nodeCfg.InitialDifficulty)
	require.Equal(t, uint64(5000), nodeCfg.TargetBlockTimeMs)
	require.Equal(t, uint32(20), nodeCfg.MaxTransactionsPerBlock)
	require.Equal(t, uint64(25), nodeCfg.MinerReward)
	require.False(t, nodeCfg.EnableSmartContracts)
	require.Len(t, nodeCfg.StorageKey, 32)
	require.Len(t, nodeCfg.NodeSecretKey, 32)
}

func TestToNodeConfigRejectsMalformedHexKeys(t *testing.T) {
	var c Config
	c.Storage.StorageKeyHex = "not-hex"
	_, err := c.ToNodeConfig()
	require.Error(t, err)
}

func TestToNodeConfigKeepsDefaultsWhenUnset(t *testing.T) {
	var c Config
	nodeCfg, err := c.ToNodeConfig()
	require.NoError(t, err)
	require.Equal(t, uint32(1), nodeCfg.NetworkID) // core.DefaultNodeConfig's default
}

func TestToValidators(t *testing.T) {
	var c Config
	c.Validators = append(c.Validators, struct {
		ID        string `mapstructure:"id" json:"id"`
		PubKeyHex string `mapstructure:"pubkey_hex" json:"pubkey_hex"`
	}{ID: "v1", PubKeyHex: hex.EncodeToString(make([]byte, 33))})

	vs, err := c.ToValidators()
	require.NoError(t, err)
	require.Len(t, vs, 1)
	require.Equal(t, "v1", vs[0].ID)
	require.Len(t, vs[0].PubKey, 33)
}

func TestToValidatorsRejectsMalformedHex(t *testing.T) {
	var c Config
	c.Validators = append(c.Validators, struct {
		ID        string `mapstructure:"id" json:"id"`
		PubKeyHex string `mapstructure:"pubkey_hex" json:"pubkey_hex"`
	}{ID: "v1", PubKeyHex: "zz"})

	_, err := c.ToValidators()
	require.Error(t, err)
}

func TestToHardware(t *testing.T) {
	var c Config
	c.Hardware = append(c.Hardware, struct {
		ID   uint64 `mapstructure:"id" json:"id"`
		Name string `mapstructure:"name" json:"name"`
	}{ID: 1, Name: "valve"})

	hw := c.ToHardware()
	require.Equal(t, "valve", hw[1])
}

func TestLoadFromRepoRoot(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(wd)
	require.NoError(t, os.Chdir("../.."))

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "hb-mainnet", cfg.Network.ID)
}
