package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wallet-pipeline/internal/node"
	"wallet-pipeline/internal/service/nonce"
	"wallet-pipeline/pkg/config"
)

var nonceCmd = &cobra.Command{
	Use:   "nonce <address>",
	Short: "查询地址的下一个可用 nonce",
	Long:  `向节点查询账户 nonce 状态 (包括 mempool 缺口)，输出修正后的下一个 nonce。`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		address := args[0]
		net, err := activeNetwork(cmd)
		if err != nil {
			fmt.Printf("解析网络失败: %v\n", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.Global.Broadcast.Timeout)
		defer cancel()
		info, err := node.NewRESTClient(net.URL, config.Global.Broadcast.Timeout).AccountNonces(ctx, address)
		if err != nil {
			fmt.Printf("查询失败: %v\n", err)
			os.Exit(1)
		}

		state := nonce.FromNode(info)
		fmt.Printf("Network:              %s\n", net.Name)
		fmt.Printf("Address:              %s\n", address)
		fmt.Printf("Last executed nonce:  %s\n", optionalNonce(info.LastExecutedTxNonce))
		fmt.Printf("Last mempool nonce:   %s\n", optionalNonce(info.LastMempoolTxNonce))
		fmt.Printf("Possible next nonce:  %d\n", info.PossibleNextNonce)
		fmt.Printf("Missing nonces:       %v\n", info.DetectedMissingNonces)
		fmt.Printf("Next nonce:           %d\n", nonce.CorrectNextNonce(state))
	},
}

func init() {
	rootCmd.AddCommand(nonceCmd)
}

func optionalNonce(n *uint64) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}
