package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"wallet-pipeline/internal/network"
	"wallet-pipeline/internal/node"
	"wallet-pipeline/internal/service/builder"
	"wallet-pipeline/internal/service/fee"
	"wallet-pipeline/internal/service/nonce"
	"wallet-pipeline/internal/service/postcond"
	"wallet-pipeline/internal/service/request"
	"wallet-pipeline/internal/service/signer"
	"wallet-pipeline/pkg/cache"
	"wallet-pipeline/pkg/config"
	"wallet-pipeline/pkg/wire"
)

// SignedFile 是 sign 输出、broadcast 读取的文件格式
type SignedFile struct {
	TxID    string `json:"tx_id"`
	RawTx   string `json:"raw_tx"`
	Nonce   uint64 `json:"nonce"`
	Fee     uint64 `json:"fee"`
	Network string `json:"network"`
	NodeURL string `json:"node_url"`
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "签名交易请求 (Offline Signing)",
	Long: `读取 app 发来的交易请求 token，使用 Keystore 签名，并输出已签名的交易 (Raw Tx)。
指定 --nonce 时完全离线，否则向节点查询下一个可用 nonce。`,
	Run: func(cmd *cobra.Command, args []string) {
		inputFile, _ := cmd.Flags().GetString("input")
		outputFile, _ := cmd.Flags().GetString("output")
		keystoreFile, _ := cmd.Flags().GetString("keystore")
		nonceFlag, _ := cmd.Flags().GetInt64("nonce")

		// 1. 读取请求 token
		data, err := os.ReadFile(inputFile)
		if err != nil {
			fmt.Printf("读取输入文件失败: %v\n", err)
			os.Exit(1)
		}
		req, err := request.Parse(strings.TrimSpace(string(data)))
		if err != nil {
			fmt.Printf("解析交易请求失败: %v\n", err)
			os.Exit(1)
		}
		if !req.Authorized {
			fmt.Println("请求签名校验失败，拒绝签名。")
			os.Exit(1)
		}

		net, err := requestNetwork(cmd, req)
		if err != nil {
			fmt.Printf("解析网络失败: %v\n", err)
			os.Exit(1)
		}

		// 2. 加载 Keystore
		fmt.Printf("\n正在从 %s 加载 Keystore...\n", keystoreFile)
		account, err := unlockAccount(keystoreFile)
		if err != nil {
			fmt.Printf("解锁失败 (密码错误?): %v\n", err)
			os.Exit(1)
		}
		address := account.Address(net.TransactionVersion())

		postConditions, err := postcond.Resolve(req.PostConditions, req.StxAddress, address)
		if err != nil {
			fmt.Printf("post-condition 解析失败: %v\n", err)
			os.Exit(1)
		}

		// 3. nonce
		var nextNonce uint64
		if nonceFlag >= 0 {
			nextNonce = uint64(nonceFlag)
		} else {
			ttl := config.Global.Nonce.CacheTTL
			reconciler := nonce.NewReconciler(node.NewPool(config.Global.Broadcast.Timeout), cache.NewMemoryCache(ttl, 2*ttl), ttl)
			res, err := reconciler.NextNonce(context.Background(), net.URL, address)
			if err != nil {
				fmt.Printf("查询 nonce 失败: %v\n", err)
				os.Exit(1)
			}
			nextNonce = res.Nonce
		}

		// 4. 构建并计算手续费
		unsigned, err := builder.Build(builder.BuildInput{
			Network:           net,
			PublicKey:         account.PublicKey(),
			Nonce:             nextNonce,
			Sponsored:         req.Sponsored,
			PostConditions:    postConditions,
			PostConditionMode: req.PostConditionMode,
			Details:           req.Details,
		})
		if err != nil {
			fmt.Printf("构建交易失败: %v\n", err)
			os.Exit(1)
		}
		length, err := unsigned.ByteLength()
		if err != nil {
			fmt.Printf("构建交易失败: %v\n", err)
			os.Exit(1)
		}
		estimator := fee.FromConfig(config.Global.Fee)
		resolved, err := estimator.Resolve(estimator.DefaultFee(length), req.CustomFee, req.Sponsored)
		if err != nil {
			fmt.Printf("手续费无效: %v\n", err)
			os.Exit(1)
		}
		micro, err := resolved.Micro()
		if err != nil {
			fmt.Printf("手续费无效: %v\n", err)
			os.Exit(1)
		}
		unsigned = unsigned.WithFee(micro)

		// 显示交易详情供用户确认 (Verify on Screen)
		fmt.Println("\n================ 待签名交易 ================")
		fmt.Printf("Network:    %s (chain id 0x%08x)\n", net.Name, uint32(net.ChainID))
		fmt.Printf("App:        %s\n", req.AppDetails.Name)
		fmt.Printf("From:       %s\n", address)
		fmt.Printf("Type:       %s\n", req.Details.TxType())
		fmt.Printf("Nonce:      %d\n", nextNonce)
		fmt.Printf("Fee:        %s STX (%s)\n", resolved.Amount.String(), resolved.Source)
		fmt.Printf("Sponsored:  %v\n", req.Sponsored)
		fmt.Printf("PostConds:  %d\n", len(postConditions))
		fmt.Println("============================================")
		if unsigned.AllowModeWarning {
			fmt.Printf("\n⚠️  %s\n%s\n", builder.AllowModeWarningTitle, builder.AllowModeWarningText)
		}
		if resolved.HighFeeWarning {
			fmt.Println("\n⚠️  手续费明显高于默认值，请确认。")
		}

		// 5. 签名
		signed, err := signer.Sign(unsigned, account.PrivateKey())
		if err != nil {
			fmt.Printf("签名失败: %v\n", err)
			os.Exit(1)
		}

		// 6. 输出结果
		out := SignedFile{
			TxID:    signed.TxID,
			RawTx:   wire.EncodeHex(signed.Raw),
			Nonce:   signed.Nonce,
			Fee:     signed.Fee,
			Network: net.Name,
			NodeURL: net.URL,
		}
		outputData, _ := json.MarshalIndent(out, "", "  ")
		if err := os.WriteFile(outputFile, outputData, 0644); err != nil {
			fmt.Printf("保存结果失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n✅ 签名成功!\n")
		fmt.Printf("TxID: %s\n", signed.TxID)
		fmt.Printf("已保存到: %s\n", outputFile)
	},
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.Flags().StringP("input", "i", "request.jwt", "交易请求 token 文件路径")
	signCmd.Flags().StringP("output", "o", "signed.json", "签名后的输出文件路径")
	signCmd.Flags().StringP("keystore", "k", "wallet.json", "Keystore 文件路径")
	signCmd.Flags().Int64("nonce", -1, "指定 nonce (离线签名)，-1 表示向节点查询")
}

// requestNetwork --network 优先，其次是请求携带的网络
func requestNetwork(cmd *cobra.Command, req *request.SigningRequest) (network.Network, error) {
	if name, _ := cmd.Flags().GetString("network"); name != "" {
		return activeNetwork(cmd)
	}
	return network.Resolve(network.FromConfig(config.Global.Network), req.Network)
}
