package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"tour-payments/config"
	"tour-payments/internal/app"
	"tour-payments/internal/broker"
	"tour-payments/internal/redisclient"
	"tour-payments/internal/service"
	"tour-payments/internal/store"
	"tour-payments/internal/util"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd(loadEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what the commands operate on
type env struct {
	orders  store.OrderStore
	engine  *service.Engine
	migrate func(ctx context.Context) error
	close   func()
}

type envLoader func(ctx context.Context) (*env, error)

// loadEnv wires the same collaborators the server uses, so a forced
// reconciliation takes the same order locks and emits the same events
func loadEnv(ctx context.Context) (*env, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Database.Backend != config.StoreBackendPostgres {
		return nil, errors.New("paymentsctl needs STORE_BACKEND=postgres, the memory store lives inside the server process")
	}
	if err := util.InitLogger(cfg.Server.Env); err != nil {
		return nil, err
	}

	orderStore, err := app.NewOrderStore(ctx, cfg.Database, nil)
	if err != nil {
		return nil, err
	}
	closers := []func() error{orderStore.Close}

	var locks service.Locker = store.NewKeyedMutex()
	if cfg.Redis.Enabled {
		rc, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			orderStore.Close()
			return nil, err
		}
		closers = append(closers, rc.Close)
		locks = redisclient.NewLocker(rc, cfg.Redis.LockTTL)
	}

	var (
		events   service.EventPublisher
		notifier service.FulfillmentNotifier
	)
	if cfg.Kafka.Enabled {
		orderEvents := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		closers = append(closers, orderEvents.Close)
		publisher := broker.NewEventPublisher(orderEvents, nil)
		events, notifier = publisher, publisher
	}

	gw := app.NewGateway(cfg.Gateway, nil)
	engine := service.NewEngine(orderStore.Orders, gw.Client, locks, notifier, events)
	engine.ResolveByReference(cfg.Gateway.ResolveByReference)

	db := orderStore.Orders.(*store.Store)
	return &env{
		orders:  orderStore.Orders,
		engine:  engine,
		migrate: db.Migrate,
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
			util.SyncLogger()
		},
	}, nil
}

func newRootCmd(load envLoader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "paymentsctl",
		Short:         "Operator tool for tour orders and their payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(orderCmd(load))
	rootCmd.AddCommand(reconcileCmd(load))
	rootCmd.AddCommand(migrateCmd(load))

	return rootCmd
}

// withEnv loads the environment for the duration of one command
func withEnv(load envLoader, fn func(ctx context.Context, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		e, err := load(ctx)
		if err != nil {
			return err
		}
		defer e.close()
		return fn(ctx, e)
	}
}
