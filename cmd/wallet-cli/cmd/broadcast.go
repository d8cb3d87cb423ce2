package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wallet-pipeline/internal/network"
	"wallet-pipeline/internal/node"
	"wallet-pipeline/internal/service/signer"
	"wallet-pipeline/pkg/config"
	"wallet-pipeline/pkg/wire"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "广播已签名的交易 (Online)",
	Long:  `读取已签名的交易文件 (Signed Tx)，校验签名后广播到 Stacks 节点。`,
	Run: func(cmd *cobra.Command, args []string) {
		inputFile, _ := cmd.Flags().GetString("input")
		rpcURL, _ := cmd.Flags().GetString("rpc")

		// 1. 读取 Signed Tx
		data, err := os.ReadFile(inputFile)
		if err != nil {
			fmt.Printf("读取文件失败: %v\n", err)
			os.Exit(1)
		}
		var signedTx SignedFile
		if err := json.Unmarshal(data, &signedTx); err != nil {
			fmt.Printf("解析文件失败: %v\n", err)
			os.Exit(1)
		}

		// 2. 反序列化并校验签名
		raw, err := wire.DecodeHex(signedTx.RawTx)
		if err != nil {
			fmt.Printf("raw_tx 不是合法的 hex: %v\n", err)
			os.Exit(1)
		}
		tx, err := signer.Verify(raw)
		if err != nil {
			fmt.Printf("签名校验失败: %v\n", err)
			os.Exit(1)
		}

		if rpcURL == "" {
			rpcURL = signedTx.NodeURL
		}
		if rpcURL == "" {
			net, err := activeNetwork(cmd)
			if err != nil {
				fmt.Printf("解析网络失败: %v\n", err)
				os.Exit(1)
			}
			rpcURL = net.URL
		}

		// 3. 广播
		fmt.Printf("正在连接节点: %s ...\n", rpcURL)
		fmt.Printf("正在广播交易 TxID: %s ...\n", wire.TxIDFromRaw(raw))
		ctx, cancel := context.WithTimeout(context.Background(), config.Global.Broadcast.Timeout)
		defer cancel()
		txid, err := node.NewRESTClient(rpcURL, config.Global.Broadcast.Timeout).BroadcastTransaction(ctx, raw)
		if err != nil {
			var rejected *node.RejectedError
			if errors.As(err, &rejected) {
				fmt.Printf("❌ 节点拒绝交易: %s\n", string(rejected.Body))
			} else {
				fmt.Printf("❌ 广播失败: %v\n", err)
			}
			os.Exit(1)
		}

		fmt.Printf("✅ 广播成功!\n")
		fmt.Printf("Tx URL: %s\n", network.Network{ChainID: tx.ChainID}.ExplorerLink(txid))
	},
}

func init() {
	rootCmd.AddCommand(broadcastCmd)
	broadcastCmd.Flags().StringP("input", "i", "signed.json", "已签名的交易文件")
	broadcastCmd.Flags().String("rpc", "", "Stacks 节点地址，默认使用签名文件中的节点")
}
