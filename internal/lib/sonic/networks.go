package sonic

import (
	"fmt"
	"os"

	"github.com/beetslabs/stakingmgr/internal/lib/misc"
)

type NetworkConfig struct {
	RPCURL      string
	RPCHeaders  map[string]string
	SubgraphURL string

	// Contract addresses
	SFCAddress    string
	STSAddress    string // stS liquid staking token (also the rate provider)
	STokenAddress string // wrapped S ERC-20
}

func (n NetworkConfig) String() string {
	return fmt.Sprintf("RPCURL: %s, SubgraphURL: %s, SFC: %s, stS: %s, wS: %s",
		n.RPCURL, n.SubgraphURL, n.SFCAddress, n.STSAddress, n.STokenAddress)
}

// GetNetworkConfig returns the defaults for a named network with any env /
// secret overrides applied.
func GetNetworkConfig(network string) NetworkConfig {
	cfg := getDefaults(network)

	if rpcURL := misc.GetSecret("SONIC_RPC_URL"); rpcURL != "" {
		cfg.RPCURL = rpcURL
	}
	if subgraphURL := os.Getenv("SONIC_SUBGRAPH_URL"); subgraphURL != "" {
		cfg.SubgraphURL = subgraphURL
	}
	if sfc := os.Getenv("SONIC_SFC_ADDRESS"); sfc != "" {
		cfg.SFCAddress = sfc
	}
	if sts := os.Getenv("SONIC_STS_ADDRESS"); sts != "" {
		cfg.STSAddress = sts
	}
	if ws := os.Getenv("SONIC_WS_ADDRESS"); ws != "" {
		cfg.STokenAddress = ws
	}
	return cfg
}

func getDefaults(network string) NetworkConfig {
	cfg := NetworkConfig{
		// The SFC lives at the same reserved address on every Sonic network
		SFCAddress: "0xFC00FACE00000000000000000000000000000000",
	}
	switch network {
	case "sonic":
		cfg.RPCURL = "https://rpc.soniclabs.com"
		cfg.SubgraphURL = "https://graph.soniclabs.com/subgraphs/name/sonic/staking"
		cfg.STSAddress = "0xE5DA20F15420aD15DE0fa650600aFc998bbE3955"
		cfg.STokenAddress = "0x039e2fB66102314Ce7b64Ce5Ce3E5183bc94aD38"
	case "blaze":
		cfg.RPCURL = "https://rpc.blaze.soniclabs.com"
		cfg.SubgraphURL = "https://graph.blaze.soniclabs.com/subgraphs/name/sonic/staking"
	case "localnet":
		cfg.RPCURL = "http://localhost:8545"
		cfg.SubgraphURL = "http://localhost:8000/subgraphs/name/sonic/staking"
	}
	return cfg
}
