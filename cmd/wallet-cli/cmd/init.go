package cmd

import (
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/spf13/cobra"

	"wallet-pipeline/pkg/keystore"
	"wallet-pipeline/pkg/wire"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "创建新的签名账户 (生成私钥并加密保存)",
	Long:  `随机生成 secp256k1 私钥，使用用户输入的密码加密，保存为 keystore 文件。`,
	Run: func(cmd *cobra.Command, args []string) {
		outputFile, _ := cmd.Flags().GetString("output")
		light, _ := cmd.Flags().GetBool("light")
		if _, err := os.Stat(outputFile); err == nil {
			fmt.Printf("错误: 文件 %s 已存在。请先删除或指定其他文件名。\n", outputFile)
			os.Exit(1)
		}

		fmt.Println("正在创建新账户...")
		password, err := readPassword("输入密码: ")
		if err != nil {
			fmt.Println("读取密码失败:", err)
			os.Exit(1)
		}
		confirmPassword, err := readPassword("确认密码: ")
		if err != nil {
			fmt.Println("读取密码失败:", err)
			os.Exit(1)
		}
		if password != confirmPassword {
			fmt.Println("两次输入的密码不一致！")
			os.Exit(1)
		}
		if len(password) < 6 {
			fmt.Println("密码长度至少需要 6 位。")
			os.Exit(1)
		}

		privateKey, err := btcec.NewPrivateKey()
		if err != nil {
			fmt.Printf("生成私钥失败: %v\n", err)
			os.Exit(1)
		}
		account := keystore.NewAccount(privateKey)

		scryptN := keystore.StandardScryptN
		if light {
			scryptN = keystore.LightScryptN
		}
		fmt.Println("正在加密保存...")
		encryptedKey, err := keystore.EncryptPrivateKey(privateKey.Serialize(), password, scryptN)
		if err != nil {
			fmt.Printf("加密失败: %v\n", err)
			os.Exit(1)
		}
		encryptedKey.Address = account.Address(wire.TransactionVersionMainnet)

		if err := encryptedKey.SaveToFile(outputFile); err != nil {
			fmt.Printf("保存文件失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n✅ 账户已创建！\n")
		fmt.Printf("文件位置: %s\n", outputFile)
		fmt.Printf("您的 ID: %s\n", encryptedKey.Id)
		fmt.Printf("主网地址: %s\n", encryptedKey.Address)
		fmt.Printf("测试网地址: %s\n", account.Address(wire.TransactionVersionTestnet))
		fmt.Println("\n⚠️  警告: 请务必记住您的密码！如果丢失密码，您将无法恢复账户。")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringP("output", "o", "wallet.json", "输出的 Keystore 文件名")
	initCmd.Flags().Bool("light", false, "使用较低的 scrypt 参数 (仅用于测试)")
}
