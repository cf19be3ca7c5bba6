package main

import (
	"context"
	"flag"
	"os"
	"storefront/config"
	"storefront/internal"
	"storefront/services"
	"time"
)

func main() {

	logger := internal.NewLogger("internal", false, nil, nil)

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	logger.Info("using config file: " + *configPath)
	conf, err := config.GetConfig(*configPath)
	if err != nil {
		logger.Error("boot", err)
		os.Exit(1)
	}

	credential, err := conf.Credential()
	if err != nil {
		logger.Error("boot", err)
		os.Exit(1)
	}
	logger.Info("merchant environment: " + string(credential.Environment()))

	output := internal.LogOutput(conf)

	var mongo services.Database
	if conf.Mongo.Enabled {
		client, err := internal.NewMongoClient(conf)
		if err != nil {
			logger.Error("mongo client", err)
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = client.EnsureIndexes(ctx)
		cancel()
		if err != nil {
			logger.Error("mongo indexes", err)
			os.Exit(1)
		}
		mongo = client
		logger.Info("mongo client initialized")
	} else {
		logger.Warn("mongo disabled: checkout requests will fail")
	}

	metrics := internal.NewMetrics()

	payments := internal.NewPayments(conf, credential)
	payments.SetDatabase(mongo)
	payments.SetMetrics(metrics)
	if conf.Merchant.ApiSalt != "" {
		gateway, err := internal.NewGatewayClient(credential, conf.Merchant.ApiSalt, conf.Gateway.Timeout)
		if err != nil {
			logger.Error("gateway client", err)
			os.Exit(1)
		}
		gateway.SetLogger(internal.NewLogger("gateway", conf.IsDebug, mongo, output))
		gateway.SetMetrics(metrics)
		payments.SetGateway(gateway)
	}
	payments.SetLogger(internal.NewLogger("payments", conf.IsDebug, mongo, output))

	server := internal.NewServer(conf)
	server.SetLogger(internal.NewLogger("server", conf.IsDebug, mongo, output))
	server.SetPaymentsService(payments)
	server.SetMetrics(metrics)

	err = server.Start()
	if err != nil {
		logger.Error("server start", err)
		os.Exit(1)
	}

}
