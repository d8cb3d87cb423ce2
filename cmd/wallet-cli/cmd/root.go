package cmd

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"wallet-pipeline/internal/network"
	"wallet-pipeline/pkg/config"
	"wallet-pipeline/pkg/keystore"
	"wallet-pipeline/pkg/logger"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "wallet-cli",
	Short: "Stacks 钱包交易命令行工具",
	Long: `离线创建 keystore、签名交易请求，并在线广播已签名交易。
签名流程与 wallet-server 使用同一套构建和签名逻辑。`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Init()
		logger.Init(config.Global.App.Env)
	},
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("network", "", "网络名称 (mainnet/testnet)，默认使用配置中的激活网络")
}

// activeNetwork 解析 --network，未指定时使用配置
func activeNetwork(cmd *cobra.Command) (network.Network, error) {
	registry := network.FromConfig(config.Global.Network)
	if name, _ := cmd.Flags().GetString("network"); name != "" {
		if err := registry.SetActive(name); err != nil {
			return network.Network{}, err
		}
	}
	return registry.Active()
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

// unlockAccount 读取 keystore 文件并用密码解锁
func unlockAccount(path string) (*keystore.Account, error) {
	keyJSON, err := keystore.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取 keystore 失败: %w", err)
	}
	password, err := readPassword("请输入 keystore 密码: ")
	if err != nil {
		return nil, err
	}
	provider := keystore.NewProvider(keyJSON)
	if err := provider.Unlock(password); err != nil {
		return nil, err
	}
	return provider.ActiveAccount()
}
