package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poe-core/chain/node"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "poe-noded",
	Short: "Proof-of-engagement chain node",
	Long:  "Runs the engagement, stake and validator engines as a single process",
	Run:   runNode,
}

var (
	configFile     string
	dataDir        string
	genesisPath    string
	wsAddr         string
	rpcAddr        string
	metricsAddr    string
	epochReward    string
	endBlockMillis int
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "data directory")
	rootCmd.PersistentFlags().StringVar(&genesisPath, "genesis", "", "genesis configuration file (defaults to a built-in devnet genesis)")
	rootCmd.PersistentFlags().StringVar(&wsAddr, "ws-addr", "0.0.0.0:26657", "event stream websocket bind address")
	rootCmd.PersistentFlags().StringVar(&rpcAddr, "rpc-addr", "0.0.0.0:26658", "JSON dispatch bind address")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "0.0.0.0:9090", "prometheus metrics bind address")
	rootCmd.PersistentFlags().StringVar(&epochReward, "epoch-reward", "", "fixed epoch reward amount in the reward denom, empty disables reward distribution")
	rootCmd.PersistentFlags().IntVar(&endBlockMillis, "end-block-period-ms", 2000, "end-block scheduler tick period in milliseconds")

	viper.BindPFlags(rootCmd.PersistentFlags())
}

func runNode(cmd *cobra.Command, args []string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			log.Fatalf("failed to read config file: %v", err)
		}
	}

	cfg := &node.Config{
		DataDir:        dataDir,
		GenesisPath:    genesisPath,
		ListenAddr:     wsAddr,
		RPCAddr:        rpcAddr,
		MetricsAddr:    metricsAddr,
		EpochRewardAmt: epochReward,
		EndBlockPeriod: time.Duration(endBlockMillis) * time.Millisecond,
	}

	log.Printf("starting poe-noded v%s (commit %s)", Version, Commit)

	n, err := node.NewNode(cfg)
	if err != nil {
		log.Fatalf("failed to create node: %v", err)
	}

	if err := n.Start(); err != nil {
		log.Fatalf("failed to start node: %v", err)
	}

	log.Printf("poe-noded running: ws=%s rpc=%s metrics=%s", wsAddr, rpcAddr, metricsAddr)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Printf("shutting down poe-noded...")
	if err := n.Stop(); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Printf("poe-noded stopped")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
