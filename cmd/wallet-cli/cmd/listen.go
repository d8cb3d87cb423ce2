package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"wallet-pipeline/internal/event"
	"wallet-pipeline/internal/service/mq"
	"wallet-pipeline/pkg/config"
	"wallet-pipeline/pkg/database"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "监听交易结果回传消息",
	Long:  `订阅 wallet-server 发给 app tab 的交易结果主题 (Redis Stream 或 Kafka)，逐条打印。`,
	Run: func(cmd *cobra.Command, args []string) {
		group, _ := cmd.Flags().GetString("group")
		topic := config.Global.Broadcast.Topic
		if topic == "" {
			topic = event.TopicTxResponse
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var consumer mq.Consumer
		switch config.Global.Redis.MQType {
		case "kafka":
			consumer = mq.NewKafkaConsumer(config.Global.Kafka.Brokers, group)
		default:
			rdb, err := database.ConnectRedis(ctx, config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
			if err != nil {
				fmt.Printf("连接 Redis 失败: %v\n", err)
				os.Exit(1)
			}
			defer rdb.Close()
			consumer = mq.NewRedisConsumer(rdb, group, "wallet-cli-"+uuid.NewString()[:8])
		}
		defer consumer.Close()

		fmt.Printf("正在监听主题 %s (Ctrl+C 退出)...\n", topic)
		err := consumer.Subscribe(ctx, topic, func(msg *mq.Message) error {
			var ev event.TransactionResponseEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				fmt.Printf("[%s] 无法解析的消息: %s\n", msg.ID, string(msg.Payload))
				return nil
			}
			switch {
			case ev.Response.Cancel != "":
				fmt.Printf("[%s] tab=%s 用户取消\n", msg.ID, ev.TabID)
			default:
				fmt.Printf("[%s] tab=%s status=%s txid=%s\n", msg.ID, ev.TabID, ev.Response.Status, ev.Response.TxID)
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			fmt.Printf("订阅失败: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().String("group", "wallet-cli", "消费者组")
}
